// Package snippet runs the code blocks embedded in notes.
package snippet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/starford/gitnotes/internal/apperr"
)

// ExecutionError is a snippet that ran and exited unsuccessfully.
type ExecutionError struct {
	Status int
	Output string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Execution error: exit status %d", e.Status)
}

func (e *ExecutionError) Unwrap() error {
	return apperr.ErrExecution
}

// CompileError is a snippet whose compiler rejected it.
type CompileError struct {
	Output string
}

func (e *CompileError) Error() string {
	return "Failed to compile (see console output)"
}

func (e *CompileError) Unwrap() error {
	return apperr.ErrExecution
}

// ErrInvalidConfig is returned when a runner receives another language's
// configuration.
var ErrInvalidConfig = errors.New("the configuration type is not valid for this runner")

// Runner executes source code of one language and returns its combined
// stdout and stderr.
type Runner interface {
	Run(ctx context.Context, source string) (string, error)
	Configure(cfg LanguageConfig) error
}

// LanguageConfig is one of PythonConfig, CppConfig or RustConfig.
type LanguageConfig interface {
	Language() string
}

// PythonConfig configures the python runner.
type PythonConfig struct {
	Executable string `yaml:"executable" toml:"executable"`
}

func (PythonConfig) Language() string { return "python" }

// CppConfig configures the cpp runner.
type CppConfig struct {
	Compiler string   `yaml:"compiler" toml:"compiler"`
	Flags    []string `yaml:"flags" toml:"flags"`
}

func (CppConfig) Language() string { return "cpp" }

// RustConfig configures the rust runner.
type RustConfig struct {
	Compiler string   `yaml:"compiler" toml:"compiler"`
	Flags    []string `yaml:"flags" toml:"flags"`
}

func (RustConfig) Language() string { return "rust" }

// Manager dispatches snippets to runners by language.
type Manager struct {
	runners map[string]Runner
}

// NewManager returns a manager with the python, cpp and rust runners using
// their default toolchains.
func NewManager() *Manager {
	m := &Manager{runners: map[string]Runner{}}
	m.Register("python", &PythonRunner{cfg: PythonConfig{Executable: "python3"}})
	m.Register("cpp", &CppRunner{cfg: CppConfig{Compiler: "c++", Flags: []string{"-std=c++14"}}})
	m.Register("rust", &RustRunner{cfg: RustConfig{Compiler: "rustc", Flags: []string{"--edition", "2021"}}})
	return m
}

// Register adds or replaces the runner for language.
func (m *Manager) Register(language string, r Runner) {
	m.runners[language] = r
}

// Languages returns the registered languages in order.
func (m *Manager) Languages() []string {
	out := make([]string, 0, len(m.runners))
	for l := range m.runners {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Configure applies cfg to the runner of its language.
func (m *Manager) Configure(cfg LanguageConfig) error {
	r, ok := m.runners[cfg.Language()]
	if !ok {
		return apperr.Validation("No runner found for '%s'", cfg.Language())
	}
	return r.Configure(cfg)
}

// Run executes source with the runner registered for language.
func (m *Manager) Run(ctx context.Context, language, source string) (string, error) {
	r, ok := m.runners[language]
	if !ok {
		return "", apperr.Validation("No runner found for '%s'", language)
	}
	return r.Run(ctx, source)
}

// PythonRunner interprets snippets with a python executable.
type PythonRunner struct {
	cfg PythonConfig
}

func (r *PythonRunner) Configure(cfg LanguageConfig) error {
	c, ok := cfg.(PythonConfig)
	if !ok {
		return ErrInvalidConfig
	}
	r.cfg = c
	return nil
}

func (r *PythonRunner) Run(ctx context.Context, source string) (string, error) {
	dir, err := os.MkdirTemp("", "gitnotes-snippet-*")
	if err != nil {
		return "", fmt.Errorf("snippet: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "snippet.py")
	if err := os.WriteFile(file, []byte(source), 0o600); err != nil {
		return "", fmt.Errorf("snippet: write source: %w", err)
	}
	return runAndCapture(exec.CommandContext(ctx, r.cfg.Executable, file))
}

// CppRunner compiles snippets with a C++ compiler and runs the result.
type CppRunner struct {
	cfg CppConfig
}

func (r *CppRunner) Configure(cfg LanguageConfig) error {
	c, ok := cfg.(CppConfig)
	if !ok {
		return ErrInvalidConfig
	}
	r.cfg = c
	return nil
}

func (r *CppRunner) Run(ctx context.Context, source string) (string, error) {
	return compileAndRun(ctx, "snippet.cpp", source, func(src, out string) *exec.Cmd {
		args := append(append([]string{}, r.cfg.Flags...), src, "-o", out)
		return exec.CommandContext(ctx, r.cfg.Compiler, args...)
	})
}

// RustRunner compiles snippets with rustc and runs the result.
type RustRunner struct {
	cfg RustConfig
}

func (r *RustRunner) Configure(cfg LanguageConfig) error {
	c, ok := cfg.(RustConfig)
	if !ok {
		return ErrInvalidConfig
	}
	r.cfg = c
	return nil
}

func (r *RustRunner) Run(ctx context.Context, source string) (string, error) {
	return compileAndRun(ctx, "snippet.rs", source, func(src, out string) *exec.Cmd {
		args := append(append([]string{}, r.cfg.Flags...), src, "--crate-name", "snippet", "-o", out)
		return exec.CommandContext(ctx, r.cfg.Compiler, args...)
	})
}

func compileAndRun(ctx context.Context, name, source string, compile func(src, out string) *exec.Cmd) (string, error) {
	dir, err := os.MkdirTemp("", "gitnotes-snippet-*")
	if err != nil {
		return "", fmt.Errorf("snippet: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, name)
	if err := os.WriteFile(src, []byte(source), 0o600); err != nil {
		return "", fmt.Errorf("snippet: write source: %w", err)
	}
	bin := filepath.Join(dir, "snippet.out")

	var compilerOut bytes.Buffer
	cmd := compile(src, bin)
	cmd.Stdout = &compilerOut
	cmd.Stderr = &compilerOut
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CompileError{Output: compilerOut.String()}
		}
		return "", fmt.Errorf("snippet: run compiler: %w", err)
	}
	return runAndCapture(exec.CommandContext(ctx, bin))
}

// runAndCapture runs cmd with stderr merged into stdout.
func runAndCapture(cmd *exec.Cmd) (string, error) {
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExecutionError{Status: exitErr.ExitCode(), Output: out.String()}
		}
		return "", fmt.Errorf("snippet: run %s: %w", cmd.Path, err)
	}
	return out.String(), nil
}
