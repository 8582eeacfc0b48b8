package main

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func testSession(stdin string) (*session, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &session{out: out, in: strings.NewReader(stdin), piped: stdin != ""}, out
}

func run(t *testing.T, s *session, repo string, args ...string) error {
	t.Helper()
	base := []string{"gitnotes", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--repository", repo}
	return newRootCommand(s).Run(context.Background(), append(base, args...))
}

func initRepo(t *testing.T) string {
	t.Helper()
	repo := filepath.Join(t.TempDir(), "notes")
	s, out := testSession("")
	if err := run(t, s, repo, "init"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Initialized notes repository") {
		t.Fatalf("init output = %q", out.String())
	}
	return repo
}

func TestAddAndCat(t *testing.T) {
	repo := initRepo(t)

	s, _ := testSession("hello\n")
	if err := run(t, s, repo, "add", "-t", "x", "work/a"); err != nil {
		t.Fatal(err)
	}

	s, out := testSession("")
	if err := run(t, s, repo, "cat", "work/a"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\n" {
		t.Fatalf("cat = %q", out.String())
	}

	s, out = testSession("")
	if err := run(t, s, repo, "info", "work/a"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "work/a (id: ") {
		t.Fatalf("info = %q", out.String())
	}
}

func TestShellOnlyCommands(t *testing.T) {
	repo := initRepo(t)
	s, _ := testSession("")
	if err := run(t, s, repo, "begin"); err == nil {
		t.Fatal("begin outside the shell succeeded")
	}
}

func TestShellSession(t *testing.T) {
	repo := initRepo(t)
	s, _ := testSession("hello\n")
	if err := run(t, s, repo, "add", "-t", "x", "a"); err != nil {
		t.Fatal(err)
	}

	script := "begin\nmv a b\ncommit\ncat b\npwd\nbogus-command\nexit\n"
	s, out := testSession(script)
	if err := run(t, s, repo, "shell"); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "hello\n") {
		t.Fatalf("shell output missing note content: %q", got)
	}
	if !strings.Contains(got, prompt+"/\n") {
		t.Fatalf("shell output missing pwd: %q", got)
	}
	if strings.Count(got, prompt) < 7 {
		t.Fatalf("prompts = %d in %q", strings.Count(got, prompt), got)
	}
	if s.interactive {
		t.Fatal("session still interactive")
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"ls", []string{"ls"}},
		{"  mv  a   b ", []string{"mv", "a", "b"}},
		{`add "my note"`, []string{"add", "my note"}},
		{`add 'it\s'`, []string{"add", `it\s`}},
		{`add a\ b`, []string{"add", "a b"}},
		{`grep "say \"hi\""`, []string{"grep", `say "hi"`}},
		{`rm ""`, []string{"rm", ""}},
	}
	for _, tt := range tests {
		got, err := splitArgs(tt.line)
		if err != nil {
			t.Errorf("splitArgs(%q): %v", tt.line, err)
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}

	for _, bad := range []string{`add "open`, `x\`, "   "} {
		if _, err := splitArgs(bad); err == nil {
			t.Errorf("splitArgs(%q) succeeded", bad)
		}
	}
}

func TestDateParts(t *testing.T) {
	parts, err := dateParts([]string{"2024", "3"})
	if err != nil || !slices.Equal(parts, []int{2024, 3}) {
		t.Fatalf("parts = %v, %v", parts, err)
	}
	if _, err := dateParts([]string{"march"}); err == nil {
		t.Fatal("non-numeric part accepted")
	}
}
