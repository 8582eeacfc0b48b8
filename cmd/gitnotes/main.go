package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/starford/gitnotes/internal"
	"github.com/starford/gitnotes/internal/noteservice"
	pkgconfig "github.com/starford/gitnotes/pkg/config"
)

var version = "dev"

// session holds what one-shot commands and the interactive shell share.
// In the shell the same session serves every line, so transactions and
// the working directory survive between commands.
type session struct {
	out   io.Writer
	in    io.Reader
	piped bool
	color bool

	interactive bool

	cfg *internal.Config
	svc *noteservice.Service
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newSession() *session {
	return &session{
		out:   os.Stdout,
		in:    os.Stdin,
		piped: !isTerminal(os.Stdin),
		color: isTerminal(os.Stdout),
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("config", "config.yaml")
	}
	return filepath.Join(dir, "gitnotes", "config.yaml")
}

// config loads the configuration once per session. A missing file leaves
// the defaults in place.
func (s *session) config(cmd *cli.Command) (*internal.Config, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if repo := cmd.String("repository"); repo != "" {
		cfg.Repository.Path = repo
	}
	if cmd.Bool("no-working-dir") {
		cfg.Repository.UseWorkingDir = false
	}
	if ed := os.Getenv("GITNOTES_EDITOR"); ed != "" {
		cfg.Editor.Command = ed
	}
	s.cfg = cfg
	return cfg, nil
}

func (s *session) options(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := s.config(cmd)
	if err != nil {
		return nil, err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithOutput(s.out),
		internal.WithVersion(version),
		internal.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))),
	}
	if cwd, err := os.Getwd(); err == nil {
		opts = append(opts, internal.WithCurrentDir(cwd))
	}
	return opts, nil
}

// service opens the repository on first use.
func (s *session) service(cmd *cli.Command) (*noteservice.Service, error) {
	if s.svc != nil {
		return s.svc, nil
	}
	opts, err := s.options(cmd)
	if err != nil {
		return nil, err
	}
	svc, err := internal.NewService(opts...)
	if err != nil {
		return nil, err
	}
	s.svc = svc
	return svc, nil
}

func newRootCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:    "gitnotes",
		Usage:   "Notes in a git repository, addressed by virtual paths",
		Version: version,
		Writer:  s.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (YAML or TOML)",
				Value:   defaultConfigPath(),
				Sources: cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "repository",
				Aliases: []string{"r"},
				Usage:   "Path to the notes repository, overriding the config",
				Sources: cli.EnvVars("GITNOTES_REPOSITORY"),
			},
			&cli.BoolFlag{
				Name:  "no-working-dir",
				Usage: "Resolve paths from the repository root instead of the current directory",
			},
		},
		Commands: s.commands(),
	}
}

func main() {
	s := newSession()
	if err := newRootCommand(s).Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
