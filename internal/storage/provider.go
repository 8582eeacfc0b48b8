// Package storage defines the repository file-system abstraction.
package storage

// Provider is the interface for repository file operations.
// All paths are relative to the repository root and use forward slashes.
type Provider interface {
	// Root returns the absolute repository root.
	Root() string
	// Abs resolves path against the root, rejecting traversal.
	Abs(path string) (string, error)
	// List returns the files directly inside dir whose name ends with ext.
	List(dir, ext string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether path exists (symlinks are not followed).
	Exists(path string) bool
	// CopyFrom copies an external file into path.
	CopyFrom(src, path string) error
	// Link replaces path with a symbolic link pointing at target.
	Link(target, path string) error
	// Entries returns the names of all entries directly inside dir.
	Entries(dir string) ([]string, error)
	// RemoveAll removes path and anything below it.
	RemoveAll(path string) error
}
