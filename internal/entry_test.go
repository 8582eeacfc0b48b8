package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/gitnotes/internal/editor"
	"github.com/starford/gitnotes/internal/noteservice"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Repository.Path = filepath.Join(t.TempDir(), "repo")
	cfg.Repository.UserName = "Test"
	cfg.Repository.UserEmail = "test@example.com"
	return cfg
}

func TestNewServiceRequiresInit(t *testing.T) {
	cfg := testConfig(t)
	if _, err := NewService(WithConfig(cfg)); err == nil {
		t.Fatal("opened a repository that does not exist")
	}
	if _, err := NewService(); err == nil {
		t.Fatal("missing config accepted")
	}
}

func TestInitAndAdd(t *testing.T) {
	cfg := testConfig(t)
	repo, err := InitRepository(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{"notes", "resources"} {
		if info, err := os.Stat(filepath.Join(repo.Root(), dir)); err != nil || !info.IsDir() {
			t.Fatalf("%s: %v", dir, err)
		}
	}
	if _, err := InitRepository(cfg); err != nil {
		t.Fatalf("second init: %v", err)
	}

	svc, err := NewService(WithConfig(cfg), WithEditor(editor.Content("from editor\n")))
	if err != nil {
		t.Fatal(err)
	}
	m, err := svc.Add(context.Background(), noteservice.AddRequest{Path: "a", Tags: []string{"t"}})
	if err != nil {
		t.Fatal(err)
	}
	content, err := svc.Content(string(m.ID), noteservice.ContentOptions{})
	if err != nil || content != "from editor\n" {
		t.Fatalf("content = %q, %v", content, err)
	}
	log, err := svc.Log(-1)
	if err != nil || len(log) != 1 || log[0].Author != "Test" {
		t.Fatalf("log = %+v, %v", log, err)
	}
}

func TestUseWorkingDir(t *testing.T) {
	cfg := testConfig(t)
	if _, err := InitRepository(cfg); err != nil {
		t.Fatal(err)
	}
	base := t.TempDir()
	cfg.Repository.UseWorkingDir = true
	cfg.Repository.BaseDir = base

	svc, err := NewService(WithConfig(cfg), WithCurrentDir(filepath.Join(base, "work", "sub")))
	if err != nil {
		t.Fatal(err)
	}
	if svc.WorkingDir() != "work/sub" {
		t.Errorf("working dir = %q", svc.WorkingDir())
	}
}
