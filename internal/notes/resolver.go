package notes

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/gitnotes/internal/apperr"
)

// PathResolver turns a user-supplied path token into a virtual path.
type PathResolver interface {
	Resolve(token string) (string, error)
}

// VirtualResolver resolves tokens against a virtual working directory.
// A leading "/" addresses the virtual root.
type VirtualResolver struct {
	WorkingDir string
}

// Resolve implements PathResolver.
func (r VirtualResolver) Resolve(token string) (string, error) {
	return ChangeWorkingDir(r.WorkingDir, token), nil
}

// RealResolver resolves tokens against the real current directory, then
// expresses the result relative to BaseDir. A trailing ".md" is dropped so
// paths into the symlink projection resolve to their notes.
type RealResolver struct {
	BaseDir string
	Cwd     string
}

// Resolve implements PathResolver.
func (r RealResolver) Resolve(token string) (string, error) {
	p := token
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.Cwd, p)
	}
	rel, err := filepath.Rel(r.BaseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.Validation("Invalid path: '%s' is outside of %s", token, r.BaseDir)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = ""
	}
	return strings.TrimSuffix(rel, ContentExt), nil
}

// ChangeWorkingDir applies a relative or absolute virtual path to current.
// ".." never climbs above the root.
func ChangeWorkingDir(current, p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		current = ""
		p = strings.TrimLeft(p, "/")
	}
	wd := CleanPath(current)
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if i := strings.LastIndex(wd, "/"); i >= 0 {
				wd = wd[:i]
			} else {
				wd = ""
			}
		default:
			wd = path.Join(wd, part)
		}
	}
	return wd
}
