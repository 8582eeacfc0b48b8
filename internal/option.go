package internal

import (
	"io"
	"log/slog"

	"github.com/starford/gitnotes/internal/editor"
	"github.com/starford/gitnotes/internal/noteservice"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	logger  *slog.Logger
	editor  editor.Editor
	output  io.Writer
	cwd     string
	version string
	service []noteservice.Option
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger sets the logger. Serve and ServeMCP install their own JSON
// logger when none is given.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithEditor replaces the configured editor command, for example with
// editor.Content when the note content comes from stdin.
func WithEditor(e editor.Editor) Option {
	return func(a *application) {
		a.editor = e
	}
}

// WithOutput sets where snippet output and commit summaries are written.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.output = w
	}
}

// WithCurrentDir sets the process directory used to pick the initial
// working directory when the repository is configured with use_working_dir.
func WithCurrentDir(dir string) Option {
	return func(a *application) {
		a.cwd = dir
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithServiceOptions passes extra options to the note service.
func WithServiceOptions(opts ...noteservice.Option) Option {
	return func(a *application) {
		a.service = append(a.service, opts...)
	}
}
