// Package editor launches an external editor on note content files.
package editor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Output reports what the editor session produced besides the edited file.
type Output struct {
	// AddedResources lists paths, relative to the resources directory,
	// that the editor wrote during the session.
	AddedResources []string
}

// Editor opens file for interactive editing and blocks until it is done.
// notePath is the virtual path shown to the user.
type Editor interface {
	Edit(ctx context.Context, file, notePath string) (Output, error)
}

// editors that fork and return immediately unless told to wait.
var waitFlags = map[string]string{
	"code":  "--wait",
	"gedit": "--wait",
	"xed":   "--wait",
}

// Command runs a configured editor command with the terminal attached.
type Command struct {
	// Command is the editor executable, optionally followed by arguments.
	Command string
}

// Edit implements Editor.
func (c Command) Edit(ctx context.Context, file, _ string) (Output, error) {
	fields := strings.Fields(c.Command)
	if len(fields) == 0 {
		return Output{}, fmt.Errorf("editor: no editor configured")
	}
	name, args := fields[0], fields[1:]
	if flag, ok := waitFlags[filepath.Base(name)]; ok && !contains(args, flag) {
		args = append(args, flag)
	}
	args = append(args, file)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return Output{}, fmt.Errorf("editor: %s: %w", name, err)
	}
	return Output{}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Func adapts a function to Editor.
type Func func(ctx context.Context, file, notePath string) (Output, error)

// Edit implements Editor.
func (f Func) Edit(ctx context.Context, file, notePath string) (Output, error) {
	return f(ctx, file, notePath)
}

// Content replaces the file with fixed text, for non-interactive sessions
// such as piped input.
func Content(text string) Editor {
	return Func(func(_ context.Context, file, _ string) (Output, error) {
		if err := os.WriteFile(file, []byte(text), 0o644); err != nil {
			return Output{}, fmt.Errorf("editor: write %s: %w", file, err)
		}
		return Output{}, nil
	})
}
