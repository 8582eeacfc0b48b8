// Package noteservice is the application layer shared by the CLI, the HTTP
// API, the MCP server and the watcher. It resolves user paths against the
// working directory, expands batch requests, runs them through the command
// interpreter and commits automatically unless a transaction is open.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/checksum"
	"github.com/starford/gitnotes/internal/command"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/planner"
	"github.com/starford/gitnotes/internal/vcs"
)

// Event kinds published after successful changes.
const (
	NoteCreated   = "note.created"
	NoteUpdated   = "note.updated"
	NoteDeleted   = "note.deleted"
	CommitCreated = "commit.created"
)

// Event describes one change. Path is empty for commit events; Commit is
// empty for note events.
type Event struct {
	Kind   string `json:"-"`
	Path   string `json:"path,omitempty"`
	Commit string `json:"commit,omitempty"`
}

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	ID          notes.NoteID `json:"id"`
	Path        string       `json:"path"`
	Content     string       `json:"content"`
	Checksum    string       `json:"checksum"`
	Tags        []string     `json:"tags"`
	Created     time.Time    `json:"created"`
	LastUpdated time.Time    `json:"last_updated"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID          notes.NoteID `json:"id"`
	Path        string       `json:"path"`
	Tags        []string     `json:"tags"`
	LastUpdated time.Time    `json:"last_updated"`
}

// Option configures a Service.
type Option func(*Service)

// WithWorkingDir sets the initial virtual working directory.
func WithWorkingDir(dir string) Option {
	return func(s *Service) { s.workingDir = notes.CleanPath(dir) }
}

// WithPublisher sets the callback receiving change events.
func WithPublisher(fn func(Event)) Option {
	return func(s *Service) { s.publish = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service coordinates the repository, the interpreter and the planner.
// All methods are safe for concurrent use.
type Service struct {
	mu sync.Mutex

	repo *vcs.Repository
	in   *command.Interpreter

	workingDir string
	autoCommit bool
	publish    func(Event)
	logger     *slog.Logger
}

// NewService creates a service with auto-commit enabled.
func NewService(repo *vcs.Repository, in *command.Interpreter, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		in:         in,
		autoCommit: true,
		publish:    func(Event) {},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Repository returns the underlying repository.
func (s *Service) Repository() *vcs.Repository {
	return s.repo
}

// InitialWorkingDir derives the virtual working directory from the real
// current directory when it lies inside baseDir, and "" otherwise.
func InitialWorkingDir(baseDir, cwd string) string {
	if baseDir == "" || cwd == "" {
		return ""
	}
	dir, err := notes.RealResolver{BaseDir: baseDir, Cwd: cwd}.Resolve("")
	if err != nil {
		return ""
	}
	return dir
}

// path resolves a user token to what commands accept: an existing id is
// kept as is, anything else becomes a virtual path from the working dir.
func (s *Service) path(token string) (string, error) {
	store, err := s.in.Store()
	if err != nil {
		return "", err
	}
	if id, err := notes.ParseNoteID(token); err == nil && store.Has(id) {
		return token, nil
	}
	return notes.VirtualResolver{WorkingDir: s.workingDir}.Resolve(token)
}

func (s *Service) resolveID(token string) (*notes.Store, notes.NoteID, error) {
	store, err := s.in.Store()
	if err != nil {
		return nil, "", err
	}
	id, err := store.Resolve(token, notes.VirtualResolver{WorkingDir: s.workingDir})
	if err != nil {
		return nil, "", err
	}
	return store, id, nil
}

// execute runs cmds, appending a commit when auto-commit is on. On failure
// the uncommitted changes are rolled back when rollback is set.
func (s *Service) execute(ctx context.Context, rollback bool, cmds ...command.Command) (command.Result, error) {
	if s.autoCommit {
		cmds = append(cmds, command.Commit{})
	}
	res, err := s.in.Execute(ctx, cmds...)
	if err != nil {
		if rollback {
			if rbErr := s.in.Rollback(); rbErr != nil {
				s.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
			}
		}
		return res, err
	}
	for _, c := range res.Commits {
		s.publish(Event{Kind: CommitCreated, Commit: c.ShortID})
	}
	return res, nil
}

func (s *Service) notePath(id notes.NoteID) string {
	store, err := s.in.Store()
	if err != nil {
		return ""
	}
	m, _ := store.GetByID(id)
	return m.Path
}

// AddRequest describes a new note. A nil Content opens the editor.
type AddRequest struct {
	Path    string
	Tags    []string
	Content *string
}

// Add creates a note and returns its metadata.
func (s *Service) Add(ctx context.Context, req AddRequest) (notes.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(req.Path)
	if err != nil {
		return notes.Metadata{}, err
	}
	var cmd command.Command = command.AddNote{Path: p, Tags: req.Tags}
	if req.Content != nil {
		cmd = command.AddNoteWithContent{Path: p, Tags: req.Tags, Content: *req.Content}
	}
	if _, err := s.execute(ctx, s.autoCommit, cmd); err != nil {
		return notes.Metadata{}, err
	}

	store, err := s.in.Store()
	if err != nil {
		return notes.Metadata{}, err
	}
	m, ok := store.Get(p)
	if !ok {
		return notes.Metadata{}, apperr.Internal("note '%s' missing after add", p)
	}
	s.publish(Event{Kind: NoteCreated, Path: m.Path})
	return m, nil
}

// EditRequest describes a content change. A nil Content opens the editor,
// optionally on the version at History. IfMatch, when set, must match the
// checksum of the current content.
type EditRequest struct {
	Path      string
	History   string
	ClearTags bool
	AddTags   []string
	Content   *string
	IfMatch   string
}

// Edit changes a note and returns its metadata.
func (s *Service) Edit(ctx context.Context, req EditRequest) (notes.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Content != nil && req.History != "" {
		return notes.Metadata{}, apperr.Validation("History not supported when using stdin as input")
	}
	store, id, err := s.resolveID(req.Path)
	if err != nil {
		return notes.Metadata{}, err
	}
	if req.IfMatch != "" {
		current, err := store.ReadContent(id)
		if err != nil {
			return notes.Metadata{}, err
		}
		if !checksum.Matches(req.IfMatch, checksum.String(current)) {
			return notes.Metadata{}, apperr.Conflict("Note '%s' was changed, checksum mismatch", req.Path)
		}
	}

	token := string(id)
	var cmd command.Command = command.EditNoteContent{
		Path: token, History: req.History, ClearTags: req.ClearTags, AddTags: req.AddTags,
	}
	if req.Content != nil {
		cmd = command.EditNoteSetContent{
			Path: token, ClearTags: req.ClearTags, AddTags: req.AddTags, Content: *req.Content,
		}
	}
	if _, err := s.execute(ctx, s.autoCommit, cmd); err != nil {
		return notes.Metadata{}, err
	}

	store, err = s.in.Store()
	if err != nil {
		return notes.Metadata{}, err
	}
	m, _ := store.GetByID(id)
	s.publish(Event{Kind: NoteUpdated, Path: m.Path})
	return m, nil
}

// Move moves a note, a directory or the matches of a glob. Nothing is left
// behind when any single move fails.
func (s *Service) Move(ctx context.Context, source, destination string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.in.Store()
	if err != nil {
		return err
	}
	cmds, err := planner.New(store.Notes(), s.workingDir).Move(source, destination, force)
	if err != nil {
		return err
	}
	if _, err := s.execute(ctx, true, cmds...); err != nil {
		return err
	}
	for _, c := range cmds {
		mv := c.(command.MoveNote)
		s.publish(Event{Kind: NoteDeleted, Path: mv.Source})
		s.publish(Event{Kind: NoteCreated, Path: mv.Destination})
	}
	return nil
}

// Remove deletes a note, a directory (recursive only) or glob matches.
func (s *Service) Remove(ctx context.Context, target string, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.in.Store()
	if err != nil {
		return err
	}
	cmds, err := planner.New(store.Notes(), s.workingDir).Remove(target, recursive)
	if err != nil {
		return err
	}
	// Events carry paths, so capture them before the notes disappear.
	var removed []string
	for _, c := range cmds {
		p := c.(command.RemoveNote).Path
		if id, ok := store.Lookup(p); ok {
			p = s.notePath(id)
		}
		removed = append(removed, p)
	}
	if _, err := s.execute(ctx, true, cmds...); err != nil {
		return err
	}
	for _, p := range removed {
		s.publish(Event{Kind: NoteDeleted, Path: p})
	}
	return nil
}

// Undo reverts the changes of a commit in a new commit.
func (s *Service) Undo(ctx context.Context, commit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.execute(ctx, s.autoCommit, command.UndoCommit{Commit: commit})
	return err
}

// Run executes the code blocks of a note. Output is only committed when
// save is set.
func (s *Service) Run(ctx context.Context, token string, save bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(token)
	if err != nil {
		return err
	}
	cmds := []command.Command{command.RunSnippet{Path: p, SaveOutput: save}}
	if save && s.autoCommit {
		cmds = append(cmds, command.Commit{})
	}
	res, err := s.in.Execute(ctx, cmds...)
	if err != nil {
		return err
	}
	for _, c := range res.Commits {
		s.publish(Event{Kind: CommitCreated, Commit: c.ShortID})
		s.publish(Event{Kind: NoteUpdated, Path: s.pathOf(p)})
	}
	return nil
}

func (s *Service) pathOf(token string) string {
	store, err := s.in.Store()
	if err != nil {
		return token
	}
	if m, ok := store.Get(token); ok {
		return m.Path
	}
	return token
}

// AddResource copies a local file into the resources directory.
func (s *Service) AddResource(ctx context.Context, source, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.execute(ctx, s.autoCommit, command.AddResource{Path: source, Destination: destination})
	return err
}

// AddResourceData stores data as a resource under destination.
func (s *Service) AddResourceData(ctx context.Context, destination string, data []byte) error {
	if notes.CleanPath(destination) == "" {
		return apperr.Validation("Resource name is required")
	}
	tmp, err := os.CreateTemp("", "gitnotes-resource-*")
	if err != nil {
		return fmt.Errorf("noteservice: resource: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("noteservice: resource: %w", err)
	}
	return s.AddResource(ctx, tmp.Name(), destination)
}

// UpdateLinks rebuilds the symlink projection.
func (s *Service) UpdateLinks(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.in.Execute(ctx, command.UpdateSymbolicLinks{})
	return err
}

// Begin opens an explicit transaction: later changes are staged but not
// committed until Commit.
func (s *Service) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.in.NewTransaction(); err != nil {
		return err
	}
	s.autoCommit = false
	return nil
}

// Commit commits everything staged since Begin and re-enables auto-commit.
func (s *Service) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.in.Execute(ctx, command.Commit{})
	if err != nil {
		return err
	}
	s.autoCommit = true
	for _, c := range res.Commits {
		s.publish(Event{Kind: CommitCreated, Commit: c.ShortID})
	}
	return nil
}

// InTransaction reports whether Begin was called without a matching Commit.
func (s *Service) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.autoCommit
}

// WorkingDir returns the virtual working directory.
func (s *Service) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

// ChangeDir moves the working directory. The target must be a directory in
// the current tree.
func (s *Service) ChangeDir(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.in.Store()
	if err != nil {
		return err
	}
	target := notes.ChangeWorkingDir(s.workingDir, token)
	tree, ok := notes.BuildTree(store.Notes())
	if !ok {
		return apperr.Conflict("Failed to create note file tree: a path is used both as a note and as a directory")
	}
	node := tree.Find(target)
	switch {
	case node == nil:
		return apperr.NotFound("The path doesn't exist")
	case node.IsLeaf():
		return apperr.Validation("The path is not a directory")
	}
	s.workingDir = target
	return nil
}

// Refresh drops cached state after an external change and rebuilds the
// symlink projection.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.in.Invalidate()
	_, err := s.in.Execute(ctx, command.UpdateSymbolicLinks{})
	return err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
