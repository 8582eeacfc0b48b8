package notes

import (
	"path"
	"sort"
	"strings"
	"time"
)

// FileTree is a node of the virtual hierarchy built over a store snapshot.
// A leaf carries its note; an interior node carries the most recent
// last-updated time of its descendants and its children by segment.
// Trees are built once and never mutated afterwards.
type FileTree struct {
	Note        *Metadata
	LastUpdated time.Time

	children map[string]*FileTree
	names    []string // sorted keys of children
}

// WalkEntry describes one node visited by Walk.
type WalkEntry struct {
	Depth  int
	Parent string // path of the parent relative to the walk root
	Name   string
	Node   *FileTree

	IsFirst bool
	IsLast  bool
	// Ancestors holds the IsLast flag of every ancestor, outermost first.
	Ancestors []bool
}

// Path returns the entry's path relative to the walk root.
func (e WalkEntry) Path() string {
	return path.Join(e.Parent, e.Name)
}

func newInterior(updated time.Time) *FileTree {
	return &FileTree{LastUpdated: updated, children: map[string]*FileTree{}}
}

// BuildTree inserts every note by its path segments. It reports false when
// a segment is claimed both by a note and by a directory.
func BuildTree(notes []Metadata) (*FileTree, bool) {
	root := newInterior(time.Time{})

	for i := range notes {
		note := notes[i].Clone()
		parts := splitPath(note.Path)
		if len(parts) == 0 {
			return nil, false
		}

		current := root
		for j, part := range parts {
			if current.IsLeaf() {
				return nil, false
			}
			if note.LastUpdated.After(current.LastUpdated) {
				current.LastUpdated = note.LastUpdated
			}

			last := j == len(parts)-1
			child, exists := current.children[part]
			switch {
			case last && exists:
				return nil, false
			case last:
				child = &FileTree{Note: &note, LastUpdated: note.LastUpdated}
				current.insert(part, child)
			case !exists:
				child = newInterior(note.LastUpdated)
				current.insert(part, child)
			}
			current = child
		}
	}

	return root, true
}

func (t *FileTree) insert(name string, child *FileTree) {
	t.children[name] = child
	i := sort.SearchStrings(t.names, name)
	t.names = append(t.names, "")
	copy(t.names[i+1:], t.names[i:])
	t.names[i] = name
}

func splitPath(p string) []string {
	p = CleanPath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// IsLeaf reports whether the node is a note.
func (t *FileTree) IsLeaf() bool {
	return t.Note != nil
}

// IsTree reports whether the node is a directory.
func (t *FileTree) IsTree() bool {
	return t.Note == nil
}

// Names returns the child segment names in order.
func (t *FileTree) Names() []string {
	return append([]string(nil), t.names...)
}

// Child returns the child named name, or nil.
func (t *FileTree) Child(name string) *FileTree {
	if t.children == nil {
		return nil
	}
	return t.children[name]
}

// Find returns the subtree at prefix, or nil when it is absent.
// An empty prefix returns t itself.
func (t *FileTree) Find(prefix string) *FileTree {
	current := t
	for _, part := range splitPath(prefix) {
		current = current.Child(part)
		if current == nil {
			return nil
		}
	}
	return current
}

// Leaves returns every note below t in walk order.
func (t *FileTree) Leaves() []Metadata {
	var out []Metadata
	t.Walk(func(e WalkEntry) bool {
		if e.Node.IsLeaf() {
			out = append(out, e.Node.Note.Clone())
		}
		return true
	})
	return out
}

// Walk visits the nodes below t in pre-order with children sorted by name.
// Returning false from fn skips that node's children; siblings are still
// visited.
func (t *FileTree) Walk(fn func(WalkEntry) bool) {
	t.walk(fn, 0, "", nil)
}

func (t *FileTree) walk(fn func(WalkEntry) bool, depth int, parent string, ancestors []bool) {
	for i, name := range t.names {
		child := t.children[name]
		entry := WalkEntry{
			Depth:     depth,
			Parent:    parent,
			Name:      name,
			Node:      child,
			IsFirst:   i == 0,
			IsLast:    i == len(t.names)-1,
			Ancestors: ancestors,
		}
		if !fn(entry) || child.IsLeaf() {
			continue
		}
		next := make([]bool, len(ancestors)+1)
		copy(next, ancestors)
		next[len(ancestors)] = entry.IsLast
		child.walk(fn, depth+1, path.Join(parent, name), next)
	}
}
