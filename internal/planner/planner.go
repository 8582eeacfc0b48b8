// Package planner expands user-level move and remove requests, which may name
// a directory or a glob pattern, into primitive per-note commands.
package planner

import (
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/command"
	"github.com/starford/gitnotes/internal/notes"
)

// Planner plans against one tree snapshot. Relative paths are taken from
// WorkingDir. A nil Tree plans every request literally.
type Planner struct {
	Tree       *notes.FileTree
	WorkingDir string

	ids map[notes.NoteID]string
}

// New builds the tree for list and returns a planner over it.
func New(list []notes.Metadata, workingDir string) *Planner {
	tree, ok := notes.BuildTree(list)
	if !ok {
		tree = nil
	}
	ids := make(map[notes.NoteID]string, len(list))
	for _, m := range list {
		ids[m.ID] = m.Path
	}
	return &Planner{Tree: tree, WorkingDir: workingDir, ids: ids}
}

// IsGlob reports whether p contains a glob meta character.
func IsGlob(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// Move plans moving source to destination.
//
// A directory keeps its internal structure below destination. A single note
// moved onto an existing directory lands inside it under its own name. A glob
// with one match plans like that path; with several matches each one lands
// inside destination under its own name. A plan that would move two notes to
// one path, or onto a note it moves later, is refused.
func (p *Planner) Move(source, destination string, force bool) ([]command.Command, error) {
	dest := notes.ChangeWorkingDir(p.WorkingDir, destination)

	if IsGlob(source) {
		matches, err := p.glob(source)
		if err != nil {
			return nil, err
		}
		matches = slices.DeleteFunc(matches, func(m string) bool { return m == dest })
		if len(matches) == 0 {
			return nil, nil
		}
		for _, m := range matches {
			if strings.HasPrefix(dest, m+"/") {
				return nil, apperr.Validation("Cannot move '%s' into itself", m)
			}
		}
		if len(matches) == 1 {
			return checkTargets(p.moveOne(matches[0], dest, force))
		}

		var cmds []command.Command
		for _, m := range matches {
			target := path.Join(dest, path.Base(m))
			if node := p.find(m); node != nil && node.IsTree() {
				cmds = append(cmds, moveTree(node, m, target, force)...)
				continue
			}
			cmds = append(cmds, command.MoveNote{Source: m, Destination: target, Force: force})
		}
		return checkTargets(cmds)
	}

	src := p.resolve(source)
	if p.find(src) == nil {
		// Unknown: the interpreter reports it.
		return []command.Command{command.MoveNote{Source: source, Destination: dest, Force: force}}, nil
	}
	if src == "" {
		return nil, apperr.Validation("Cannot move the root directory")
	}
	return checkTargets(p.moveOne(src, dest, force))
}

// moveOne plans an existing note or directory at src.
func (p *Planner) moveOne(src, dest string, force bool) []command.Command {
	if node := p.find(src); node != nil && node.IsTree() {
		return moveTree(node, src, dest, force)
	}
	return []command.Command{p.moveSingle(src, dest, force)}
}

// checkTargets refuses plans where two moves share a destination or a move
// lands on the source of a later move.
func checkTargets(cmds []command.Command) ([]command.Command, error) {
	targets := make(map[string]string, len(cmds))
	sources := make(map[string]int, len(cmds))
	for i, c := range cmds {
		if mv, ok := c.(command.MoveNote); ok {
			sources[notes.CleanPath(mv.Source)] = i
		}
	}
	for i, c := range cmds {
		mv, ok := c.(command.MoveNote)
		if !ok {
			continue
		}
		dst := notes.CleanPath(mv.Destination)
		if prev, ok := targets[dst]; ok {
			return nil, apperr.Conflict("Notes '%s' and '%s' would both move to '%s'", prev, mv.Source, dst)
		}
		targets[dst] = mv.Source
		if j, ok := sources[dst]; ok && j > i {
			return nil, apperr.Conflict("Moving '%s' to '%s' would replace a note that is moved later", mv.Source, dst)
		}
	}
	return cmds, nil
}

func (p *Planner) moveSingle(source, dest string, force bool) command.Command {
	if target := p.find(dest); target != nil && target.IsTree() {
		dest = path.Join(dest, path.Base(source))
	}
	return command.MoveNote{Source: source, Destination: dest, Force: force}
}

func moveTree(node *notes.FileTree, src, dest string, force bool) []command.Command {
	var cmds []command.Command
	node.Walk(func(e notes.WalkEntry) bool {
		if e.Node.IsLeaf() {
			rel := e.Path()
			cmds = append(cmds, command.MoveNote{
				Source:      path.Join(src, rel),
				Destination: path.Join(dest, rel),
				Force:       force,
			})
		}
		return true
	})
	return cmds
}

// Remove plans removing target. A directory requires recursive.
func (p *Planner) Remove(target string, recursive bool) ([]command.Command, error) {
	var paths []string
	if IsGlob(target) {
		matches, err := p.glob(target)
		if err != nil {
			return nil, err
		}
		paths = matches
	} else {
		resolved := p.resolve(target)
		if p.find(resolved) == nil {
			return []command.Command{command.RemoveNote{Path: target}}, nil
		}
		paths = []string{resolved}
	}

	var cmds []command.Command
	for _, t := range paths {
		node := p.find(t)
		if node == nil || node.IsLeaf() {
			cmds = append(cmds, command.RemoveNote{Path: t})
			continue
		}
		if !recursive {
			return nil, apperr.Validation("'%s' is a directory, use -r to remove recursively", displayPath(t))
		}
		node.Walk(func(e notes.WalkEntry) bool {
			if e.Node.IsLeaf() {
				cmds = append(cmds, command.RemoveNote{Path: path.Join(t, e.Path())})
			}
			return true
		})
	}
	return cmds, nil
}

// glob returns the paths below the working directory matching pattern.
// A matching directory is returned whole and not descended into.
func (p *Planner) glob(pattern string) ([]string, error) {
	full := notes.ChangeWorkingDir(p.WorkingDir, pattern)
	if !doublestar.ValidatePattern(full) {
		return nil, apperr.Validation("Invalid glob pattern '%s'", pattern)
	}

	var matches []string
	if root := p.find(p.WorkingDir); root != nil && root.IsTree() {
		base := notes.CleanPath(p.WorkingDir)
		root.Walk(func(e notes.WalkEntry) bool {
			candidate := path.Join(base, e.Path())
			ok, err := doublestar.Match(full, candidate)
			if err != nil || !ok {
				return true
			}
			matches = append(matches, candidate)
			return false
		})
	}
	if len(matches) == 0 {
		return nil, apperr.NotFound("No notes match '%s'", pattern)
	}
	return matches, nil
}

func (p *Planner) find(virtual string) *notes.FileTree {
	if p.Tree == nil {
		return nil
	}
	return p.Tree.Find(virtual)
}

// resolve maps a token to a virtual path. An existing note id wins, as in
// the store.
func (p *Planner) resolve(token string) string {
	if id, err := notes.ParseNoteID(token); err == nil {
		if v, ok := p.ids[id]; ok {
			return v
		}
	}
	return notes.ChangeWorkingDir(p.WorkingDir, token)
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
