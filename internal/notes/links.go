package notes

import (
	"path"
	"strings"

	"github.com/starford/gitnotes/internal/storage"
)

// The symlink projection mirrors every note at <virtual path>.md, pointing
// relatively at its content file. It is a rebuildable cache only.

// LinkPath is the repository-relative location of m's symlink.
func LinkPath(m Metadata) string {
	return CleanPath(m.Path) + ContentExt
}

// LinkTarget is the relative target stored in m's symlink.
func LinkTarget(m Metadata) string {
	depth := strings.Count(LinkPath(m), "/")
	return strings.Repeat("../", depth) + ContentPath(m.ID)
}

// ProjectLink (re)creates the symlink for m.
func ProjectLink(fs storage.Provider, m Metadata) error {
	return fs.Link(LinkTarget(m), LinkPath(m))
}

// RemoveLink deletes m's symlink and any directories it leaves empty.
// A missing link is not an error.
func RemoveLink(fs storage.Provider, m Metadata) {
	_ = fs.Delete(LinkPath(m))
	for dir := path.Dir(LinkPath(m)); dir != "."; dir = path.Dir(dir) {
		names, err := fs.Entries(dir)
		if err != nil || len(names) > 0 {
			return
		}
		if err := fs.RemoveAll(dir); err != nil {
			return
		}
	}
}

// ClearLinks removes every repository-root entry except the notes and
// resources directories and dot-files.
func ClearLinks(fs storage.Provider) error {
	names, err := fs.Entries("")
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == NotesDir || name == ResourcesDir || strings.HasPrefix(name, ".") {
			continue
		}
		if err := fs.RemoveAll(name); err != nil {
			return err
		}
	}
	return nil
}

// RebuildLinks clears the projection and recreates one link per note.
func RebuildLinks(fs storage.Provider, notes []Metadata) error {
	if err := ClearLinks(fs); err != nil {
		return err
	}
	for _, m := range notes {
		if err := ProjectLink(fs, m); err != nil {
			return err
		}
	}
	return nil
}
