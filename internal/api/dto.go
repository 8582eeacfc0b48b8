package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/query"
	"github.com/starford/gitnotes/internal/vcs"
)

// CreateNoteRequest is the request body for creating a note. Without tags
// the note is tagged automatically from its content.
type CreateNoteRequest struct {
	Path    string   `json:"path" example:"work/todo"`
	Content string   `json:"content" example:"# Todo"`
	Tags    []string `json:"tags,omitempty"`
}

// Validate validates the request.
func (r *CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required),
	)
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content   *string  `json:"content"`
	ClearTags bool     `json:"clear_tags,omitempty"`
	AddTags   []string `json:"add_tags,omitempty"`
}

// Validate validates the request.
func (r *UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NotNil),
	)
}

// MoveRequest is the request body for moving notes. Source may name a
// note, a directory or a glob pattern.
type MoveRequest struct {
	Source      string `json:"source" example:"2023/*"`
	Destination string `json:"destination" example:"archive"`
	Force       bool   `json:"force,omitempty"`
}

// Validate validates the request.
func (r *MoveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Destination, validation.Required),
	)
}

// UndoRequest names the commit to revert.
type UndoRequest struct {
	Commit string `json:"commit" example:"a1b2c3d"`
}

// Validate validates the request.
func (r *UndoRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Commit, validation.Required),
	)
}

// NoteDetail is the full note response type.
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response.
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes"`
	Total int            `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []query.Match `json:"results"`
}

// LogResponse wraps commit history.
type LogResponse struct {
	Commits []vcs.Commit `json:"commits"`
}

// TreeNode is one node of the note tree. Leaves carry the note id.
type TreeNode struct {
	Name     string       `json:"name"`
	ID       notes.NoteID `json:"id,omitempty"`
	Children []TreeNode   `json:"children,omitempty"`
}

func treeNodes(tree *notes.FileTree) []TreeNode {
	if tree.IsLeaf() {
		return nil
	}
	out := []TreeNode{}
	for _, name := range tree.Names() {
		child := tree.Child(name)
		node := TreeNode{Name: name}
		if child.IsLeaf() {
			node.ID = child.Note.ID
		} else {
			node.Children = treeNodes(child)
		}
		out = append(out, node)
	}
	return out
}

// ResourceUploadResponse is returned after a successful resource upload.
type ResourceUploadResponse struct {
	Name string `json:"name" example:"img/plot.png"`
	Size int64  `json:"size" example:"12345"`
	URL  string `json:"url" example:"/api/resources/img/plot.png"`
}

// ResourceListResponse wraps a resource listing.
type ResourceListResponse struct {
	Resources []string `json:"resources"`
}
