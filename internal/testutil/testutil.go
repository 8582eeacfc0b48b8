// Package testutil provides shared test helpers for setting up note
// repositories and interpreters.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/starford/gitnotes/internal/command"
	"github.com/starford/gitnotes/internal/editor"
	"github.com/starford/gitnotes/internal/vcs"
)

// Signature is the identity used for test commits.
var Signature = vcs.Signature{Name: "Test", Email: "test@example.com"}

// Repo creates a git repository in a temporary directory.
func Repo(t *testing.T) *vcs.Repository {
	t.Helper()
	repo, err := vcs.Init(t.TempDir())
	if err != nil {
		t.Fatalf("init repository: %v", err)
	}
	return repo
}

// Clock returns a time source that advances one second per call, starting
// at 2023-07-01 12:00 UTC.
func Clock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type noTags struct{}

func (noTags) Suggest(string) []string { return nil }

// Interpreter creates an interpreter over repo with a deterministic clock,
// an editor that leaves files unchanged and no automatic tags. opts are
// applied last.
func Interpreter(t *testing.T, repo *vcs.Repository, opts ...command.Option) *command.Interpreter {
	t.Helper()
	base := []command.Option{
		command.WithClock(Clock()),
		command.WithTagger(noTags{}),
		command.WithEditor(editor.Func(func(context.Context, string, string) (editor.Output, error) {
			return editor.Output{}, nil
		})),
	}
	return command.New(repo, Signature, append(base, opts...)...)
}
