// Package command executes primitive note operations against the note store
// and the git index, and commits them as one unit.
package command

import "fmt"

// Command is one primitive operation understood by the Interpreter.
type Command interface {
	Name() string
}

// UpdateSymbolicLinks rebuilds the symlink projection from the store.
type UpdateSymbolicLinks struct{}

// AddNote creates a note at Path and opens the editor on its content.
type AddNote struct {
	Path string
	Tags []string
}

// AddNoteWithContent creates a note at Path with the given content.
type AddNoteWithContent struct {
	Path    string
	Tags    []string
	Content string
}

// EditNoteContent opens the editor on an existing note. When History is
// set the content is first replaced with its version at that revision.
type EditNoteContent struct {
	Path      string
	History   string
	ClearTags bool
	AddTags   []string
}

// EditNoteSetContent replaces the content of an existing note.
type EditNoteSetContent struct {
	Path      string
	ClearTags bool
	AddTags   []string
	Content   string
}

// MoveNote changes the virtual path of a note.
type MoveNote struct {
	Source      string
	Destination string
	Force       bool
}

// RemoveNote deletes a note.
type RemoveNote struct {
	Path string
}

// UndoCommit reverts the file changes of a commit.
type UndoCommit struct {
	Commit string
}

// RunSnippet runs the code blocks of a note, optionally saving their output
// back into the note.
type RunSnippet struct {
	Path       string
	SaveOutput bool
}

// AddResource copies an external file into the resources directory.
type AddResource struct {
	Path        string
	Destination string
}

// Commit commits the staged changes if they differ from HEAD.
type Commit struct{}

func (UpdateSymbolicLinks) Name() string { return "update-links" }
func (AddNote) Name() string             { return "add" }
func (AddNoteWithContent) Name() string  { return "add" }
func (EditNoteContent) Name() string     { return "edit" }
func (EditNoteSetContent) Name() string  { return "edit" }
func (MoveNote) Name() string            { return "move" }
func (RemoveNote) Name() string          { return "remove" }
func (UndoCommit) Name() string          { return "undo" }
func (RunSnippet) Name() string          { return "run" }
func (AddResource) Name() string         { return "add-resource" }
func (Commit) Name() string              { return "commit" }

func (c MoveNote) String() string {
	return fmt.Sprintf("move %s -> %s", c.Source, c.Destination)
}

func (c RemoveNote) String() string {
	return "remove " + c.Path
}

// Error annotates a failed command. Its message is the cause's message.
type Error struct {
	Command string
	Err     error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
