// Package query answers read-only questions about a note repository:
// directory listings, trees, attribute filters, content search, history and
// resources.
package query

import (
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/storage"
	"github.com/starford/gitnotes/internal/vcs"
)

// DateTimeFormat is used wherever a timestamp is printed.
const DateTimeFormat = "2006-01-02 15:04:05"

const untagged = "untagged"

// Entry is one child of a listed directory. Note is nil for directories.
type Entry struct {
	Name        string          `json:"name"`
	LastUpdated time.Time       `json:"last_updated"`
	Note        *notes.Metadata `json:"note,omitempty"`
}

// IsNote reports whether the entry is a note.
func (e Entry) IsNote() bool {
	return e.Note != nil
}

func buildTree(list []notes.Metadata) (*notes.FileTree, error) {
	tree, ok := notes.BuildTree(list)
	if !ok {
		return nil, apperr.Conflict("Failed to create note file tree: a path is used both as a note and as a directory")
	}
	return tree, nil
}

// ListDirectory returns the direct children of dir.
func ListDirectory(list []notes.Metadata, dir string) ([]Entry, error) {
	tree, err := buildTree(list)
	if err != nil {
		return nil, err
	}
	node := tree.Find(dir)
	switch {
	case node == nil:
		return nil, apperr.NotFound("Note '%s' not found", dir)
	case node.IsLeaf():
		return nil, apperr.Validation("'%s' is not a directory", dir)
	}

	var out []Entry
	node.Walk(func(e notes.WalkEntry) bool {
		out = append(out, Entry{Name: e.Name, LastUpdated: e.Node.LastUpdated, Note: e.Node.Note})
		return false
	})
	return out, nil
}

// TreeOptions selects how notes are grouped before the tree is built.
type TreeOptions struct {
	Prefix string
	// ByDate groups notes under their creation date (YYYY/MM/DD).
	ByDate bool
	// ByTags groups notes under their first tag.
	ByTags bool
}

// Tree builds the tree described by opts and returns the subtree at
// opts.Prefix.
func Tree(list []notes.Metadata, opts TreeOptions) (*notes.FileTree, error) {
	if opts.ByDate || opts.ByTags {
		regrouped := make([]notes.Metadata, len(list))
		for i, m := range list {
			p := m.Path
			if opts.ByDate {
				p = path.Join(m.Created.Format("2006/01/02"), p)
			}
			if opts.ByTags {
				tag := untagged
				if len(m.Tags) > 0 && m.Tags[0] != "" {
					tag = m.Tags[0]
				}
				p = path.Join(tag, p)
			}
			m.Path = p
			regrouped[i] = m
		}
		list = regrouped
	}

	tree, err := buildTree(list)
	if err != nil {
		return nil, err
	}
	node := tree.Find(opts.Prefix)
	if node == nil {
		return nil, apperr.NotFound("Note '%s' not found", opts.Prefix)
	}
	return node, nil
}

// FindQuery filters notes by attributes. Unset fields match everything.
type FindQuery struct {
	// Tags must all be present.
	Tags []string
	Path *regexp.Regexp
	ID   *regexp.Regexp
	// Created and Updated hold leading date parts: year, month, day, hour,
	// minute, second. They compare in local time.
	Created []int
	Updated []int
}

// Match reports whether m satisfies q.
func (q FindQuery) Match(m notes.Metadata) bool {
	for _, want := range q.Tags {
		found := false
		for _, tag := range m.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Path != nil && !q.Path.MatchString(m.Path) {
		return false
	}
	if q.ID != nil && !q.ID.MatchString(string(m.ID)) {
		return false
	}
	return datePartsMatch(m.Created, q.Created) && datePartsMatch(m.LastUpdated, q.Updated)
}

func datePartsMatch(t time.Time, parts []int) bool {
	t = t.Local()
	values := []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
	for i, p := range parts {
		if i >= len(values) || values[i] != p {
			return false
		}
	}
	return true
}

// Find returns the notes matching q ordered by path.
func Find(list []notes.Metadata, q FindQuery) []notes.Metadata {
	var out []notes.Metadata
	for _, m := range list {
		if q.Match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// CompilePattern compiles a search pattern, case-insensitive unless
// caseSensitive is set.
func CompilePattern(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperr.Validation("Invalid pattern: %v", err)
	}
	return re, nil
}

// Match is one content line matching a search.
type Match struct {
	Note notes.Metadata `json:"note"`
	// Commit is set for matches found in history.
	Commit *vcs.Commit `json:"commit,omitempty"`
	Line   int         `json:"line"`
	Text   string      `json:"text"`
	// Spans are the byte ranges of every match within Text.
	Spans [][]int `json:"spans"`
}

func matchLine(re *regexp.Regexp, n int, line string) (Match, bool) {
	spans := re.FindAllStringIndex(line, -1)
	if len(spans) == 0 {
		return Match{}, false
	}
	return Match{Line: n, Text: line, Spans: spans}, true
}

// Search scans the content of every note in the store.
func Search(store *notes.Store, re *regexp.Regexp) ([]Match, error) {
	var out []Match
	for _, m := range store.Notes() {
		note := m
		err := store.EachContentLine(m.ID, func(n int, line string) bool {
			if hit, ok := matchLine(re, n, line); ok {
				hit.Note = note
				out = append(out, hit)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SearchHistory scans every note version in the commits reachable from
// start, newest first, stopping before end when it is set.
func SearchHistory(repo *vcs.Repository, re *regexp.Regexp, start, end string) ([]Match, error) {
	var (
		out     []Match
		walkErr error
	)
	err := repo.Walk(start, end, func(c vcs.Commit) bool {
		hits, err := searchCommit(repo, re, c)
		if err != nil {
			walkErr = err
			return false
		}
		out = append(out, hits...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, walkErr
}

func searchCommit(repo *vcs.Repository, re *regexp.Regexp, c vcs.Commit) ([]Match, error) {
	metadata, err := repo.FilesAtRevision(c.Hash, notes.NotesDir, notes.MetadataExt)
	if err != nil {
		return nil, err
	}
	contents, err := repo.FilesAtRevision(c.Hash, notes.NotesDir, notes.ContentExt)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(metadata))
	for p := range metadata {
		files = append(files, p)
	}
	sort.Strings(files)

	commit := c
	var out []Match
	for _, p := range files {
		m, err := notes.DecodeMetadata([]byte(metadata[p]))
		if err != nil {
			continue
		}
		content, ok := contents[notes.ContentPath(m.ID)]
		if !ok {
			continue
		}
		n := 0
		for line := range strings.Lines(content) {
			n++
			if hit, ok := matchLine(re, n, strings.TrimRight(line, "\r\n")); ok {
				hit.Note = m
				hit.Commit = &commit
				out = append(out, hit)
			}
		}
	}
	return out, nil
}

// Log returns the last count commits, or all of them when count is negative.
func Log(repo *vcs.Repository, count int) ([]vcs.Commit, error) {
	return repo.Log(count)
}

// Resources lists the files below the resources directory, optionally
// restricted to prefix, as paths relative to that directory.
func Resources(fs storage.Provider, prefix string) ([]string, error) {
	base := notes.ResourcesDir
	if p := notes.CleanPath(prefix); p != "" {
		base = path.Join(base, doublestar.EscapeMeta(p))
	}
	if !fs.Exists(notes.ResourcesDir) {
		return nil, nil
	}

	found, err := doublestar.Glob(os.DirFS(fs.Root()), base+"/**", doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(found))
	for _, f := range found {
		out = append(out, f[len(notes.ResourcesDir)+1:])
	}
	sort.Strings(out)
	return out, nil
}
