// Package vcs wraps the git repository that backs a note collection.
//
// The index is manipulated directly instead of through worktree status so
// that staging never scans the symlink projection at the repository root.
package vcs

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/storage"
)

// ShortIDLen is the number of hex digits shown for abbreviated commit ids.
const ShortIDLen = 7

// Signature identifies the author of the commits made by gitnotes.
type Signature struct {
	Name  string
	Email string
}

// Commit is a read-only summary of a git commit.
type Commit struct {
	Hash    string    `json:"hash"`
	ShortID string    `json:"short_id"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	When    time.Time `json:"when"`
	Message string    `json:"message"`
}

// Summary returns the message collapsed to a single line.
func (c Commit) Summary() string {
	return strings.ReplaceAll(strings.TrimSpace(c.Message), "\n", " ")
}

// Repository is an open git repository together with its worktree files.
type Repository struct {
	repo *git.Repository
	fs   storage.Provider
}

// Init creates a git repository at root. An existing repository is opened.
func Init(root string) (*Repository, error) {
	fs, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainInit(fs.Root(), false)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		repo, err = git.PlainOpen(fs.Root())
	}
	if err != nil {
		return nil, fmt.Errorf("vcs: init %s: %w", root, err)
	}
	return &Repository{repo: repo, fs: fs}, nil
}

// Open opens the git repository at root.
func Open(root string) (*Repository, error) {
	fs, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(fs.Root())
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, apperr.NotFound("No repository at %s, run 'gitnotes init' first", root)
		}
		return nil, fmt.Errorf("vcs: open %s: %w", root, err)
	}
	return &Repository{repo: repo, fs: fs}, nil
}

// Files returns the worktree file provider.
func (r *Repository) Files() storage.Provider {
	return r.fs
}

// Root returns the absolute worktree root.
func (r *Repository) Root() string {
	return r.fs.Root()
}

// head returns the HEAD commit, or nil when the repository has no commits.
func (r *Repository) head() (*object.Commit, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("vcs: head: %w", err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("vcs: head commit: %w", err)
	}
	return c, nil
}

// HasHead reports whether at least one commit exists.
func (r *Repository) HasHead() (bool, error) {
	c, err := r.head()
	return c != nil, err
}

// Head returns the HEAD commit summary. ok is false on an empty repository.
func (r *Repository) Head() (Commit, bool, error) {
	c, err := r.head()
	if err != nil || c == nil {
		return Commit{}, false, err
	}
	return toCommit(c), true, nil
}

// Stage records the current worktree state of each path in the index.
// Paths missing from the worktree are removed from the index.
func (r *Repository) Stage(paths ...string) error {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("vcs: read index: %w", err)
	}
	for _, p := range paths {
		p = cleanRel(p)
		if !r.fs.Exists(p) {
			removeEntry(idx, p)
			continue
		}
		data, err := r.fs.Read(p)
		if err != nil {
			return fmt.Errorf("vcs: stage %s: %w", p, err)
		}
		h, err := r.writeBlob(data)
		if err != nil {
			return fmt.Errorf("vcs: stage %s: %w", p, err)
		}
		setEntry(idx, p, h, len(data))
	}
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("vcs: write index: %w", err)
	}
	return nil
}

// Unstage removes paths from the index without touching the worktree.
func (r *Repository) Unstage(paths ...string) error {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("vcs: read index: %w", err)
	}
	for _, p := range paths {
		removeEntry(idx, cleanRel(p))
	}
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("vcs: write index: %w", err)
	}
	return nil
}

func (r *Repository) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

func setEntry(idx *index.Index, p string, h plumbing.Hash, size int) {
	e, err := idx.Entry(p)
	if err != nil {
		e = idx.Add(p)
	}
	e.Hash = h
	e.Mode = filemode.Regular
	e.Size = uint32(size)
	e.ModifiedAt = time.Now()
}

func removeEntry(idx *index.Index, p string) {
	_, _ = idx.Remove(p)
}

func cleanRel(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}

// headFiles maps every file path in the HEAD tree to its blob hash.
func (r *Repository) headFiles() (map[string]plumbing.Hash, error) {
	c, err := r.head()
	if err != nil || c == nil {
		return map[string]plumbing.Hash{}, err
	}
	return commitFiles(c)
}

func commitFiles(c *object.Commit) (map[string]plumbing.Hash, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("vcs: tree of %s: %w", c.Hash, err)
	}
	files := map[string]plumbing.Hash{}
	err = tree.Files().ForEach(func(f *object.File) error {
		files[f.Name] = f.Hash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vcs: walk tree of %s: %w", c.Hash, err)
	}
	return files, nil
}

// HasChanges reports whether the tree the index would produce differs from
// HEAD. A repository without commits always has changes.
func (r *Repository) HasChanges() (bool, error) {
	c, err := r.head()
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	n, err := r.changedFiles(c)
	return n > 0, err
}

// PathsChanged reports whether the index entry of any of paths differs from
// HEAD. Without commits every path counts as changed.
func (r *Repository) PathsChanged(paths ...string) (bool, error) {
	c, err := r.head()
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return false, fmt.Errorf("vcs: read index: %w", err)
	}
	for _, p := range paths {
		p = cleanRel(p)
		var staged plumbing.Hash
		if e, err := idx.Entry(p); err == nil {
			staged = e.Hash
		}
		var committed plumbing.Hash
		f, err := c.File(p)
		switch {
		case err == nil:
			committed = f.Hash
		case !errors.Is(err, object.ErrFileNotFound):
			return false, fmt.Errorf("vcs: read %s at HEAD: %w", p, err)
		}
		if staged != committed {
			return true, nil
		}
	}
	return false, nil
}

// changedFiles counts the paths whose index entry differs from c.
func (r *Repository) changedFiles(c *object.Commit) (int, error) {
	files, err := commitFiles(c)
	if err != nil {
		return 0, err
	}
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return 0, fmt.Errorf("vcs: read index: %w", err)
	}
	changed := 0
	seen := make(map[string]bool, len(idx.Entries))
	for _, e := range idx.Entries {
		seen[e.Name] = true
		if h, ok := files[e.Name]; !ok || h != e.Hash {
			changed++
		}
	}
	for name := range files {
		if !seen[name] {
			changed++
		}
	}
	return changed, nil
}

// Commit records the index as a new commit on HEAD. When HEAD exists and the
// index tree equals it, nothing is committed and created is false.
func (r *Repository) Commit(message string, sig Signature, when time.Time) (commit Commit, created bool, err error) {
	changed, err := r.HasChanges()
	if err != nil || !changed {
		return Commit{}, false, err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return Commit{}, false, fmt.Errorf("vcs: worktree: %w", err)
	}
	h, err := wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: sig.Name, Email: sig.Email, When: when},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return Commit{}, false, fmt.Errorf("vcs: commit: %w", err)
	}
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return Commit{}, false, fmt.Errorf("vcs: read commit: %w", err)
	}
	return toCommit(c), true, nil
}

// ResetIndex makes the index match HEAD, or empties it when there is no
// HEAD. The worktree is left alone.
func (r *Repository) ResetIndex() error {
	files, err := r.headFiles()
	if err != nil {
		return err
	}
	idx := &index.Index{Version: 2}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		blob, err := r.repo.BlobObject(files[name])
		if err != nil {
			return fmt.Errorf("vcs: reset index %s: %w", name, err)
		}
		setEntry(idx, name, files[name], int(blob.Size))
	}
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("vcs: write index: %w", err)
	}
	return nil
}

// Restore puts each path back to its HEAD version in both the worktree and
// the index. Paths absent from HEAD are deleted and unstaged.
func (r *Repository) Restore(paths ...string) error {
	c, err := r.head()
	if err != nil {
		return err
	}
	var staged []string
	for _, p := range paths {
		p = cleanRel(p)
		content, ok, err := fileAt(c, p)
		if err != nil {
			return err
		}
		if ok {
			if err := r.fs.Write(p, []byte(content)); err != nil {
				return fmt.Errorf("vcs: restore %s: %w", p, err)
			}
		} else if r.fs.Exists(p) {
			if err := r.fs.Delete(p); err != nil {
				return fmt.Errorf("vcs: restore %s: %w", p, err)
			}
		}
		staged = append(staged, p)
	}
	return r.Stage(staged...)
}

func fileAt(c *object.Commit, p string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	f, err := c.File(p)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("vcs: read %s at %s: %w", p, c.Hash, err)
	}
	content, err := f.Contents()
	if err != nil {
		return "", false, fmt.Errorf("vcs: read %s at %s: %w", p, c.Hash, err)
	}
	return content, true, nil
}

func (r *Repository) resolve(rev string) (*object.Commit, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, apperr.NotFound("Commit %s not found", rev)
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, apperr.NotFound("Commit %s not found", rev)
	}
	return c, nil
}

// Resolve returns the commit that rev names.
func (r *Repository) Resolve(rev string) (Commit, error) {
	c, err := r.resolve(rev)
	if err != nil {
		return Commit{}, err
	}
	return toCommit(c), nil
}

// FileAtRevision returns the content of p at rev. ok is false when the file
// does not exist in that commit.
func (r *Repository) FileAtRevision(rev, p string) (content string, ok bool, err error) {
	c, err := r.resolve(rev)
	if err != nil {
		return "", false, err
	}
	return fileAt(c, cleanRel(p))
}

// FilesAtRevision returns the content of every file directly inside dir at
// rev whose name ends with ext, keyed by path.
func (r *Repository) FilesAtRevision(rev, dir, ext string) (map[string]string, error) {
	c, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("vcs: tree of %s: %w", c.Hash, err)
	}
	out := map[string]string{}
	err = tree.Files().ForEach(func(f *object.File) error {
		if path.Dir(f.Name) != dir || !strings.HasSuffix(f.Name, ext) {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return err
		}
		out[f.Name] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vcs: read tree of %s: %w", c.Hash, err)
	}
	return out, nil
}

// Revert undoes the file changes introduced by rev in the worktree and the
// index. A file modified since rev is a conflict; nothing is written then.
// It returns the commit and the paths it changed.
func (r *Repository) Revert(rev string) (Commit, []string, error) {
	c, err := r.resolve(rev)
	if err != nil {
		return Commit{}, nil, err
	}
	after, err := commitFiles(c)
	if err != nil {
		return Commit{}, nil, err
	}
	before := map[string]plumbing.Hash{}
	var parent *object.Commit
	if c.NumParents() > 0 {
		parent, err = c.Parent(0)
		if err != nil {
			return Commit{}, nil, fmt.Errorf("vcs: parent of %s: %w", c.Hash, err)
		}
		if before, err = commitFiles(parent); err != nil {
			return Commit{}, nil, err
		}
	}

	var changed []string
	for p, h := range after {
		if bh, ok := before[p]; !ok || bh != h {
			changed = append(changed, p)
		}
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			changed = append(changed, p)
		}
	}
	sort.Strings(changed)

	short := toCommit(c).ShortID
	for _, p := range changed {
		want, inCommit, err := fileAt(c, p)
		if err != nil {
			return Commit{}, nil, err
		}
		switch {
		case inCommit && !r.fs.Exists(p):
			return Commit{}, nil, apperr.Conflict("Failed to undo commit: '%s' was deleted after %s", p, short)
		case inCommit:
			current, err := r.fs.Read(p)
			if err != nil {
				return Commit{}, nil, fmt.Errorf("vcs: revert %s: %w", p, err)
			}
			if string(current) != want {
				return Commit{}, nil, apperr.Conflict("Failed to undo commit: '%s' was modified after %s", p, short)
			}
		case r.fs.Exists(p):
			return Commit{}, nil, apperr.Conflict("Failed to undo commit: '%s' was recreated after %s", p, short)
		}
	}

	for _, p := range changed {
		content, ok, err := fileAt(parent, p)
		if err != nil {
			return Commit{}, nil, err
		}
		if ok {
			err = r.fs.Write(p, []byte(content))
		} else {
			err = r.fs.Delete(p)
		}
		if err != nil {
			return Commit{}, nil, fmt.Errorf("vcs: revert %s: %w", p, err)
		}
	}
	if err := r.Stage(changed...); err != nil {
		return Commit{}, nil, err
	}
	return toCommit(c), changed, nil
}

// Log returns up to limit commits reachable from HEAD, newest first.
// A negative limit returns the whole history.
func (r *Repository) Log(limit int) ([]Commit, error) {
	var out []Commit
	err := r.Walk("HEAD", "", func(c Commit) bool {
		if limit >= 0 && len(out) >= limit {
			return false
		}
		out = append(out, c)
		return true
	})
	return out, err
}

// Walk visits the commits reachable from start, newest first, stopping at
// until (exclusive) when it is set or as soon as fn returns false.
// An empty repository has nothing to visit.
func (r *Repository) Walk(start, until string, fn func(Commit) bool) error {
	if ok, err := r.HasHead(); err != nil || !ok {
		return err
	}
	from, err := r.resolve(start)
	if err != nil {
		return err
	}
	stop := plumbing.ZeroHash
	if until != "" {
		end, err := r.resolve(until)
		if err != nil {
			return err
		}
		stop = end.Hash
	}

	iter, err := r.repo.Log(&git.LogOptions{From: from.Hash})
	if err != nil {
		return fmt.Errorf("vcs: log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		if c.Hash == stop || !fn(toCommit(c)) {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("vcs: log: %w", err)
	}
	return nil
}

func toCommit(c *object.Commit) Commit {
	h := c.Hash.String()
	return Commit{
		Hash:    h,
		ShortID: h[:ShortIDLen],
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Author.When,
		Message: c.Message,
	}
}

// Identity fills a missing name or email from the global git configuration,
// falling back to "unknown".
func Identity(name, email string) Signature {
	if name == "" || email == "" {
		if cfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope); err == nil {
			if name == "" {
				name = cfg.User.Name
			}
			if email == "" {
				email = cfg.User.Email
			}
		}
	}
	if name == "" {
		name = "unknown"
	}
	if email == "" {
		email = "unknown"
	}
	return Signature{Name: name, Email: email}
}
