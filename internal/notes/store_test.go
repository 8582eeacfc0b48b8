package notes

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/storage"
)

func tempStore(t *testing.T) (*storage.FS, *Store) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s, err := LoadStore(fs)
	if err != nil {
		t.Fatal(err)
	}
	return fs, s
}

func addNote(t *testing.T, fs storage.Provider, s *Store, id NoteID, p, content string) {
	t.Helper()
	if err := fs.Write(ContentPath(id), []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(NewMetadata(id, p, nil)); err != nil {
		t.Fatal(err)
	}
}

func TestLoadStoreEmpty(t *testing.T) {
	_, s := tempStore(t)
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestStoreInsertReloadResolve(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "2023/07/sample", "Hello")

	reloaded, err := LoadStore(fs)
	if err != nil {
		t.Fatal(err)
	}

	id, err := reloaded.Resolve("2023/07/sample", VirtualResolver{})
	if err != nil {
		t.Fatal(err)
	}
	if id != "12345" {
		t.Fatalf("resolved %q", id)
	}
	content, err := reloaded.ReadContent(id)
	if err != nil {
		t.Fatal(err)
	}
	if content != "Hello" {
		t.Fatalf("content = %q", content)
	}
}

func TestResolveByIDWinsOverResolver(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "deep/inside/note", "x")

	id, err := s.Resolve("12345", VirtualResolver{WorkingDir: "somewhere/else"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "12345" {
		t.Fatalf("resolved %q", id)
	}
}

func TestResolveRelativeToWorkingDir(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "2023/07/sample", "x")

	id, err := s.Resolve("sample", VirtualResolver{WorkingDir: "2023/07"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "12345" {
		t.Fatalf("resolved %q", id)
	}

	if _, err := s.Resolve("sample", VirtualResolver{WorkingDir: "2024"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveValidButUnknownIDFallsBackToPath(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "99999", "a note whose path looks like an id")

	id, err := s.Resolve("99999", VirtualResolver{})
	if err != nil {
		t.Fatal(err)
	}
	if id != "12345" {
		t.Fatalf("resolved %q", id)
	}
}

func TestLoadStoreFailsOnMalformedFile(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "a", "x")
	if err := fs.Write(MetadataPath("54321"), []byte("garbage = [")); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadStore(fs); err == nil {
		t.Fatal("expected load to fail")
	}
}

func TestInsertRejectsOccupiedPath(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "a/b", "x")

	err := s.Insert(NewMetadata("54321", "a/b", nil))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestSaveReindexesPath(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "old/place", "x")

	m, ok := s.GetByIDMut("12345")
	if !ok {
		t.Fatal("missing note")
	}
	m.Path = "new/place"
	if err := s.Save("12345"); err != nil {
		t.Fatal(err)
	}

	if s.ContainsPath("old/place") {
		t.Fatal("old path still indexed")
	}
	if !s.ContainsPath("new/place") {
		t.Fatal("new path not indexed")
	}

	reloaded, err := LoadStore(fs)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Get("new/place")
	if !ok || got.ID != "12345" {
		t.Fatalf("reloaded = %+v", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "a", "x")

	m, _ := s.Get("a")
	m.Path = "changed"
	m.Tags = append(m.Tags, "leak")

	again, _ := s.Get("a")
	if again.Path != "a" || len(again.Tags) != 0 {
		t.Fatalf("store was mutated through a copy: %+v", again)
	}
}

func TestEachContentLine(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "a", "one\ntwo\nthree\n")

	var lines []string
	err := s.EachContentLine("12345", func(n int, line string) bool {
		lines = append(lines, line)
		return n < 2
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[1] != "two" {
		t.Fatalf("lines = %v", lines)
	}

	count := 0
	if err := s.EachContentLine("12345", func(int, string) bool { count++; return true }); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("second pass saw %d lines", count)
	}
}

func TestNotesSortedByPath(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "22222", "b", "x")
	addNote(t, fs, s, "11111", "a", "x")

	got := s.Notes()
	if len(got) != 2 || got[0].Path != "a" || got[1].Path != "b" {
		t.Fatalf("notes = %+v", got)
	}
}

func TestStoragePaths(t *testing.T) {
	fs, s := tempStore(t)
	rel, abs := s.StoragePath("12345")
	if rel != "notes/12345.md" {
		t.Fatalf("rel = %q", rel)
	}
	want, _ := fs.Abs("notes/12345.md")
	if abs != want {
		t.Fatalf("abs = %q, want %q", abs, want)
	}
	rel, _ = s.MetadataPath("12345")
	if rel != "notes/12345.metadata" {
		t.Fatalf("metadata rel = %q", rel)
	}
}

func TestForget(t *testing.T) {
	fs, s := tempStore(t)
	addNote(t, fs, s, "12345", "a", "x")
	s.Forget("12345")
	if s.Has("12345") || s.ContainsPath("a") {
		t.Fatal("note still present")
	}
}

func TestLoadStoreRejectsDuplicatePath(t *testing.T) {
	fs, _ := tempStore(t)
	for _, id := range []NoteID{"00001", "00002"} {
		data, err := EncodeMetadata(NewMetadata(id, "work/todo", nil))
		if err != nil {
			t.Fatal(err)
		}
		if err := fs.Write(MetadataPath(id), data); err != nil {
			t.Fatal(err)
		}
	}

	_, err := LoadStore(fs)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v", err)
	}
	for _, id := range []string{"00001", "00002", "work/todo"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("error %q does not name %s", err, id)
		}
	}
}
