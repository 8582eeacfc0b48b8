package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/gitnotes/internal/editor"
	"github.com/starford/gitnotes/internal/markdown"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/snippet"
	"github.com/starford/gitnotes/internal/storage"
	"github.com/starford/gitnotes/internal/tags"
	"github.com/starford/gitnotes/internal/vcs"
)

// Formatter finds runnable sections in note content and writes their
// output back.
type Formatter interface {
	Sections(content string) []markdown.Section
	ReplaceOutputs(content string, outputs map[int]string) string
}

// Tagger derives tags for notes added without any.
type Tagger interface {
	Suggest(content string) []string
}

// SnippetRunner executes one code block.
type SnippetRunner interface {
	Run(ctx context.Context, language, source string) (string, error)
}

type goldmarkFormatter struct{}

func (goldmarkFormatter) Sections(content string) []markdown.Section {
	return markdown.Sections(content)
}

func (goldmarkFormatter) ReplaceOutputs(content string, outputs map[int]string) string {
	return markdown.ReplaceOutputs(content, outputs)
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithEditor sets the editor used by AddNote and EditNoteContent.
func WithEditor(e editor.Editor) Option {
	return func(i *Interpreter) { i.editor = e }
}

// WithSnippetRunner sets the runner used by RunSnippet.
func WithSnippetRunner(r SnippetRunner) Option {
	return func(i *Interpreter) { i.runner = r }
}

// WithTagger sets the automatic tagger.
func WithTagger(t Tagger) Option {
	return func(i *Interpreter) { i.tagger = t }
}

// WithFormatter sets the content formatter.
func WithFormatter(f Formatter) Option {
	return func(i *Interpreter) { i.formatter = f }
}

// WithClock sets the time source for timestamps and commits.
func WithClock(now func() time.Time) Option {
	return func(i *Interpreter) { i.now = now }
}

// WithOutput sets where snippet output and commit summaries are written.
func WithOutput(w io.Writer) Option {
	return func(i *Interpreter) { i.out = w }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = l }
}

// Interpreter applies commands to a repository. It is not safe for
// concurrent use.
type Interpreter struct {
	repo *vcs.Repository
	fs   storage.Provider
	sig  vcs.Signature

	store    *notes.Store
	messages messageSet
	touched  []string

	editor    editor.Editor
	runner    SnippetRunner
	tagger    Tagger
	formatter Formatter
	now       func() time.Time
	out       io.Writer
	logger    *slog.Logger
}

// Result describes the effect of one Execute call.
type Result struct {
	Commits []vcs.Commit
}

// New creates an interpreter committing as sig.
func New(repo *vcs.Repository, sig vcs.Signature, opts ...Option) *Interpreter {
	i := &Interpreter{
		repo:      repo,
		fs:        repo.Files(),
		sig:       sig,
		editor:    editor.Command{Command: "vi"},
		runner:    snippet.NewManager(),
		tagger:    tags.Suggester{},
		formatter: goldmarkFormatter{},
		now:       time.Now,
		out:       io.Discard,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Store returns the note store, loading it on first use after any change.
func (i *Interpreter) Store() (*notes.Store, error) {
	if i.store == nil {
		s, err := notes.LoadStore(i.fs)
		if err != nil {
			return nil, err
		}
		i.store = s
	}
	return i.store, nil
}

// Invalidate drops the cached store so the next access reloads it.
func (i *Interpreter) Invalidate() {
	i.store = nil
}

// Pending returns the commit message lines recorded so far.
func (i *Interpreter) Pending() []string {
	return append([]string(nil), i.messages.items...)
}

// Execute runs cmds in order and stops at the first failure. The caller
// decides whether to Rollback.
func (i *Interpreter) Execute(ctx context.Context, cmds ...Command) (Result, error) {
	var res Result
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		i.logger.Debug("executing command", slog.String("command", cmd.Name()))

		if err := i.execute(ctx, cmd, &res); err != nil {
			return res, &Error{Command: cmd.Name(), Err: err}
		}
	}
	return res, nil
}

func (i *Interpreter) execute(ctx context.Context, cmd Command, res *Result) error {
	switch c := cmd.(type) {
	case UpdateSymbolicLinks:
		return i.updateLinks()
	case AddNote:
		return i.addNote(ctx, c)
	case AddNoteWithContent:
		return i.addNoteWithContent(c)
	case EditNoteContent:
		return i.editNote(ctx, c)
	case EditNoteSetContent:
		return i.setNoteContent(c)
	case MoveNote:
		return i.moveNote(c)
	case RemoveNote:
		return i.removeNote(c.Path)
	case UndoCommit:
		return i.undoCommit(c)
	case RunSnippet:
		return i.runSnippet(ctx, c)
	case AddResource:
		return i.addResource(c)
	case Commit:
		commit, created, err := i.commit()
		if created {
			res.Commits = append(res.Commits, commit)
		}
		return err
	default:
		return fmt.Errorf("command: unknown command %T", cmd)
	}
}

// NewTransaction discards the staged index and pending messages. The
// worktree is not touched.
func (i *Interpreter) NewTransaction() error {
	if err := i.repo.ResetIndex(); err != nil {
		return err
	}
	i.messages.clear()
	i.touched = nil
	return nil
}

// Rollback restores every path touched since the last commit to its HEAD
// version, removing files that HEAD does not have, and rebuilds the
// symlink projection.
func (i *Interpreter) Rollback() error {
	touched := i.touched
	i.touched = nil
	i.messages.clear()
	i.store = nil

	if len(touched) > 0 {
		if err := i.repo.Restore(touched...); err != nil {
			return fmt.Errorf("command: rollback: %w", err)
		}
		i.logger.Info("rolled back uncommitted changes", slog.Int("paths", len(touched)))
	}
	return i.updateLinks()
}

func (i *Interpreter) commit() (vcs.Commit, bool, error) {
	message := strings.Join(i.messages.items, "\n")
	if message == "" {
		message = "Update notes."
	}

	c, created, err := i.repo.Commit(message, i.sig, i.now())
	if err != nil {
		return vcs.Commit{}, false, err
	}
	i.messages.clear()
	i.touched = nil
	i.store = nil

	if !created {
		i.logger.Debug("nothing to commit")
		return vcs.Commit{}, false, nil
	}

	i.logger.Info("created commit", slog.String("commit", c.ShortID))
	fmt.Fprintln(i.out, "Created commit with message:")
	for _, line := range strings.Split(message, "\n") {
		fmt.Fprintf(i.out, "\t%s\n", line)
	}
	return c, true, nil
}

func (i *Interpreter) touch(paths ...string) {
	i.touched = append(i.touched, paths...)
}

func (i *Interpreter) stage(paths ...string) error {
	i.touch(paths...)
	return i.repo.Stage(paths...)
}

type messageSet struct {
	items []string
	seen  map[string]bool
}

func (m *messageSet) add(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[line] {
		return
	}
	m.seen[line] = true
	m.items = append(m.items, line)
}

func (m *messageSet) clear() {
	m.items = nil
	m.seen = nil
}
