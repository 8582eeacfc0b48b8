package planner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/command"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/vcs"
)

func metas(paths ...string) []notes.Metadata {
	out := make([]notes.Metadata, len(paths))
	for i, p := range paths {
		out[i] = notes.NewMetadata(notes.NoteID(fmt.Sprintf("%05d", i+1)), p, nil)
	}
	return out
}

func mv(src, dst string) command.Command {
	return command.MoveNote{Source: src, Destination: dst}
}

func rm(p string) command.Command {
	return command.RemoveNote{Path: p}
}

func checkPlan(t *testing.T, got []command.Command, err error, want ...command.Command) {
	t.Helper()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("plan = %v\nwant %v", got, want)
	}
}

func TestMoveSingleNote(t *testing.T) {
	p := New(metas("2023/07/sample", "2023/07/01/sample2"), "")

	got, err := p.Move("2023/07/sample", "2024/renamed", false)
	checkPlan(t, got, err, mv("2023/07/sample", "2024/renamed"))

	// An existing directory as destination receives the note.
	got, err = p.Move("2023/07/sample", "2023/07/01", false)
	checkPlan(t, got, err, mv("2023/07/sample", "2023/07/01/sample"))
}

func TestMoveDirectoryKeepsStructure(t *testing.T) {
	p := New(metas("2023/07/a", "2023/07/b", "2023/08/c", "2024/x"), "")

	got, err := p.Move("2023", "2024", false)
	checkPlan(t, got, err,
		mv("2023/07/a", "2024/07/a"),
		mv("2023/07/b", "2024/07/b"),
		mv("2023/08/c", "2024/08/c"),
	)
}

func TestMoveDirectoryIntoDirectoryDoesNotNest(t *testing.T) {
	p := New(metas("a/one", "b/two"), "")

	got, err := p.Move("a", "b", false)
	checkPlan(t, got, err, mv("a/one", "b/one"))
}

func TestMoveRelativeToWorkingDir(t *testing.T) {
	p := New(metas("work/a", "work/sub/b"), "work")

	got, err := p.Move("a", "sub", true)
	checkPlan(t, got, err, command.MoveNote{Source: "work/a", Destination: "work/sub/a", Force: true})

	got, err = p.Move("a", "/top", false)
	checkPlan(t, got, err, mv("work/a", "top"))
}

func TestMoveByID(t *testing.T) {
	p := New(metas("docs/a", "archive/b"), "")

	got, err := p.Move("00001", "archive", false)
	checkPlan(t, got, err, mv("docs/a", "archive/a"))
}

func TestMoveUnknownSourceIsPassedThrough(t *testing.T) {
	p := New(metas("a"), "")

	got, err := p.Move("missing", "b", false)
	checkPlan(t, got, err, mv("missing", "b"))
}

func TestMoveGlob(t *testing.T) {
	p := New(metas("2023/07/sample1", "2024/07/sample2", "notes-a", "notes-b", "other"), "")

	got, err := p.Move("202*", "2025", false)
	checkPlan(t, got, err,
		mv("2023/07/sample1", "2025/2023/07/sample1"),
		mv("2024/07/sample2", "2025/2024/07/sample2"),
	)

	got, err = p.Move("notes-*", "archive", false)
	checkPlan(t, got, err,
		mv("notes-a", "archive/notes-a"),
		mv("notes-b", "archive/notes-b"),
	)
}

func TestMoveGlobSingleMatchPlansLikePath(t *testing.T) {
	p := New(metas("inbox/todo", "2023/07/a", "done/x"), "")

	got, err := p.Move("inbox/t*", "todo-2024", false)
	checkPlan(t, got, err, mv("inbox/todo", "todo-2024"))

	got, err = p.Move("inbox/t*", "done", false)
	checkPlan(t, got, err, mv("inbox/todo", "done/todo"))

	got, err = p.Move("202*", "2025", false)
	checkPlan(t, got, err, mv("2023/07/a", "2025/07/a"))
}

func TestMoveGlobSkipsDestination(t *testing.T) {
	p := New(metas("2023/a", "2025/b"), "")

	got, err := p.Move("202*", "2025", false)
	checkPlan(t, got, err, mv("2023/a", "2025/a"))
}

func TestMoveGlobRefusesSharedDestination(t *testing.T) {
	p := New(metas("a/x", "b/x"), "")

	for _, force := range []bool{false, true} {
		got, err := p.Move("*/x", "out", force)
		if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("force=%v: plan = %v, err = %v", force, got, err)
		}
	}
}

func TestMoveRefusesLandingOnLaterSource(t *testing.T) {
	p := New(metas("a/x", "a/y/x"), "")

	if got, err := p.Move("a", "a/y", true); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("plan = %v, err = %v", got, err)
	}
}

func TestMoveGlobIntoMatch(t *testing.T) {
	p := New(metas("a/x", "b/y"), "")

	if _, err := p.Move("*", "a/sub", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestGlobScopedToWorkingDir(t *testing.T) {
	p := New(metas("x/a1", "x/a2", "y/a3"), "x")

	got, err := p.Remove("a*", false)
	checkPlan(t, got, err, rm("x/a1"), rm("x/a2"))

	got, err = p.Remove("**/a3", false)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("plan = %v, err = %v", got, err)
	}
}

func TestGlobErrors(t *testing.T) {
	p := New(metas("a"), "")

	if _, err := p.Move("[", "b", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("invalid pattern: %v", err)
	}
	if _, err := p.Remove("zz*", false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("no match: %v", err)
	}
}

func TestRemove(t *testing.T) {
	p := New(metas("d/a", "d/e/b", "f"), "")

	got, err := p.Remove("f", false)
	checkPlan(t, got, err, rm("f"))

	_, err = p.Remove("d", false)
	if !errors.Is(err, apperr.ErrValidation) || err.Error() != "'d' is a directory, use -r to remove recursively" {
		t.Fatalf("err = %v", err)
	}

	got, err = p.Remove("d", true)
	checkPlan(t, got, err, rm("d/a"), rm("d/e/b"))
}

func TestCollidingTreePlansLiterally(t *testing.T) {
	p := New(metas("a", "a/b"), "")
	if p.Tree != nil {
		t.Fatal("expected no tree")
	}
	got, err := p.Remove("a", false)
	checkPlan(t, got, err, rm("a"))
}

// Planner and interpreter together.

type session struct {
	repo *vcs.Repository
	in   *command.Interpreter
}

func newSession(t *testing.T) *session {
	t.Helper()
	repo, err := vcs.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &session{repo: repo, in: command.New(repo, vcs.Signature{Name: "Test", Email: "test@example.com"})}
}

func (s *session) planner(t *testing.T) *Planner {
	t.Helper()
	store, err := s.in.Store()
	if err != nil {
		t.Fatal(err)
	}
	return New(store.Notes(), "")
}

func (s *session) run(t *testing.T, cmds ...command.Command) command.Result {
	t.Helper()
	res, err := s.in.Execute(context.Background(), append(cmds, command.Commit{})...)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func (s *session) id(t *testing.T, p string) (notes.NoteID, bool) {
	t.Helper()
	store, err := s.in.Store()
	if err != nil {
		t.Fatal(err)
	}
	id, err := store.Resolve(p, nil)
	return id, err == nil
}

func (s *session) commits(t *testing.T) int {
	t.Helper()
	log, err := s.repo.Log(-1)
	if err != nil {
		t.Fatal(err)
	}
	return len(log)
}

func TestDirectoryMoveScenario(t *testing.T) {
	s := newSession(t)
	s.run(t,
		command.AddNoteWithContent{Path: "2023/07/a", Tags: []string{"t"}, Content: "a"},
		command.AddNoteWithContent{Path: "2023/07/b", Tags: []string{"t"}, Content: "b"},
	)
	a, _ := s.id(t, "2023/07/a")
	b, _ := s.id(t, "2023/07/b")

	cmds, err := s.planner(t).Move("2023", "2024", false)
	if err != nil {
		t.Fatal(err)
	}
	s.run(t, cmds...)

	if got, ok := s.id(t, "2024/07/a"); !ok || got != a {
		t.Fatalf("2024/07/a = %v %v", got, ok)
	}
	if got, ok := s.id(t, "2024/07/b"); !ok || got != b {
		t.Fatalf("2024/07/b = %v %v", got, ok)
	}
	if _, ok := s.id(t, "2023/07/a"); ok {
		t.Fatal("2023/07/a still resolves")
	}
	if s.repo.Files().Exists("2023") {
		t.Fatal("old link directory left behind")
	}
}

func TestGlobMoveScenario(t *testing.T) {
	s := newSession(t)
	s.run(t,
		command.AddNoteWithContent{Path: "2023/x", Tags: []string{"t"}, Content: "one"},
		command.AddNoteWithContent{Path: "2024/x", Tags: []string{"t"}, Content: "two"},
	)
	one, _ := s.id(t, "2023/x")
	two, _ := s.id(t, "2024/x")
	before := s.commits(t)

	cmds, err := s.planner(t).Move("202*", "2025", false)
	if err != nil {
		t.Fatal(err)
	}
	res := s.run(t, cmds...)
	if len(res.Commits) != 1 || s.commits(t) != before+1 {
		t.Fatalf("commits = %d (result %d)", s.commits(t), len(res.Commits))
	}
	if got, ok := s.id(t, "2025/2023/x"); !ok || got != one {
		t.Fatalf("2025/2023/x = %v %v", got, ok)
	}
	if got, ok := s.id(t, "2025/2024/x"); !ok || got != two {
		t.Fatalf("2025/2024/x = %v %v", got, ok)
	}
}

func TestForcedGlobMoveKeepsEveryNote(t *testing.T) {
	s := newSession(t)
	s.run(t,
		command.AddNoteWithContent{Path: "2023/x", Tags: []string{"t"}, Content: "one"},
		command.AddNoteWithContent{Path: "2024/x", Tags: []string{"t"}, Content: "two"},
		command.AddNoteWithContent{Path: "2025/2024/x", Tags: []string{"t"}, Content: "old"},
	)

	cmds, err := s.planner(t).Move("202[34]", "2025", true)
	if err != nil {
		t.Fatal(err)
	}
	s.run(t, cmds...)

	store, err := s.in.Store()
	if err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Fatalf("notes = %d, want 2", store.Len())
	}
	for p, want := range map[string]string{"2025/2023/x": "one", "2025/2024/x": "two"} {
		id, ok := s.id(t, p)
		if !ok {
			t.Fatalf("%s does not resolve", p)
		}
		if content, err := store.ReadContent(id); err != nil || content != want {
			t.Fatalf("%s = %q, %v", p, content, err)
		}
	}
}

func TestRecursiveRemoveScenario(t *testing.T) {
	s := newSession(t)
	s.run(t,
		command.AddNoteWithContent{Path: "d/a", Tags: []string{"t"}, Content: "a"},
		command.AddNoteWithContent{Path: "d/e/b", Tags: []string{"t"}, Content: "b"},
		command.AddNoteWithContent{Path: "keep", Tags: []string{"t"}, Content: "k"},
	)

	if _, err := s.planner(t).Remove("d", false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := s.id(t, "d/a"); !ok {
		t.Fatal("failed remove touched notes")
	}

	cmds, err := s.planner(t).Remove("d", true)
	if err != nil {
		t.Fatal(err)
	}
	s.run(t, cmds...)
	for _, p := range []string{"d/a", "d/e/b"} {
		if _, ok := s.id(t, p); ok {
			t.Fatalf("%s still resolves", p)
		}
	}
	if _, ok := s.id(t, "keep"); !ok {
		t.Fatal("unrelated note removed")
	}
}
