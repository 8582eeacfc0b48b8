package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempRepo(t *testing.T) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return fs, dir
}

func TestWriteAndRead(t *testing.T) {
	fs, _ := tempRepo(t)

	content := []byte("# Hello\nWorld")
	if err := fs.Write("notes/12345.md", content); err != nil {
		t.Fatal(err)
	}

	got, err := fs.Read("notes/12345.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	fs, dir := tempRepo(t)

	if err := fs.Write("notes/a.md", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Write("notes/a.md", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "notes"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}
	info, err := os.Stat(filepath.Join(dir, "notes", "a.md"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestDelete(t *testing.T) {
	fs, _ := tempRepo(t)

	if err := fs.Write("del.md", []byte("bye")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete("del.md"); err != nil {
		t.Fatal(err)
	}
	if fs.Exists("del.md") {
		t.Fatal("expected file to be deleted")
	}
	if err := fs.Delete("del.md"); err == nil {
		t.Fatal("expected error deleting missing file")
	}
}

func TestListFiltersByExtension(t *testing.T) {
	fs, _ := tempRepo(t)

	for _, p := range []string{"notes/b.metadata", "notes/a.metadata", "notes/a.md", "notes/sub/c.metadata"} {
		if err := fs.Write(p, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := fs.List("notes", ".metadata")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"notes/a.metadata", "notes/b.metadata"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestListMissingDir(t *testing.T) {
	fs, _ := tempRepo(t)

	got, err := fs.List("notes", ".metadata")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestPathTraversal(t *testing.T) {
	fs, _ := tempRepo(t)

	if _, err := fs.Read("../../etc/passwd"); err == nil {
		t.Fatal("expected traversal error")
	}
	if err := fs.Write("../escape.md", []byte("bad")); err == nil {
		t.Fatal("expected traversal error on write")
	}
	if _, err := fs.Abs("/etc/passwd"); err == nil {
		t.Fatal("expected absolute path error")
	}
}

func TestLinkReplacesExisting(t *testing.T) {
	fs, dir := tempRepo(t)

	if err := fs.Write("notes/12345.md", []byte("body")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Link("../notes/12345.md", "2023/a.md"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Link("../notes/12345.md", "2023/a.md"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "2023", "a.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "body" {
		t.Fatalf("link resolves to %q", data)
	}
}

func TestCopyFrom(t *testing.T) {
	fs, _ := tempRepo(t)

	src := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(src, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fs.CopyFrom(src, "resources/img/image.png"); err != nil {
		t.Fatal(err)
	}
	got, err := fs.Read("resources/img/image.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "png" {
		t.Fatalf("got %q", got)
	}
	if err := fs.CopyFrom(filepath.Join(t.TempDir(), "missing"), "resources/x"); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestNewFSErrors(t *testing.T) {
	if _, err := NewFS("/nonexistent/path/that/does/not/exist"); err == nil {
		t.Fatal("expected error for nonexistent dir")
	}

	f, err := os.CreateTemp("", "gitnotes-test-*")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := NewFS(f.Name()); err == nil {
		t.Fatal("expected error for file root")
	}
}
