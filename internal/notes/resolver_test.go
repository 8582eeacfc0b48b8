package notes

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/gitnotes/internal/apperr"
)

func TestChangeWorkingDir(t *testing.T) {
	cases := []struct {
		current, path, want string
	}{
		{"Code/gitnotes-cli", "..", "Code"},
		{"Code/gitnotes-cli", "../..", ""},
		{"Code/gitnotes-cli", "../../..", ""},
		{"Code/gitnotes-cli", "../test", "Code/test"},
		{"Code/gitnotes-cli", "test", "Code/gitnotes-cli/test"},
		{"Code/gitnotes-cli", "test1/test2", "Code/gitnotes-cli/test1/test2"},
		{"", "Code", "Code"},
		{"", "Code/gitnotes-cli", "Code/gitnotes-cli"},
		{"Code/gitnotes-cli", "/", ""},
		{"Code/gitnotes-cli", "/projects", "projects"},
		{"Code", "./a/./b/", "Code/a/b"},
	}
	for _, tc := range cases {
		if got := ChangeWorkingDir(tc.current, tc.path); got != tc.want {
			t.Errorf("ChangeWorkingDir(%q, %q) = %q, want %q", tc.current, tc.path, got, tc.want)
		}
	}
}

func TestRealResolver(t *testing.T) {
	base := filepath.Join(t.TempDir(), "repo")
	r := RealResolver{BaseDir: base, Cwd: filepath.Join(base, "2023")}

	got, err := r.Resolve("07/sample.md")
	if err != nil {
		t.Fatal(err)
	}
	if got != "2023/07/sample" {
		t.Fatalf("got %q", got)
	}

	got, err = r.Resolve(filepath.Join(base, "top"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "top" {
		t.Fatalf("absolute token resolved to %q", got)
	}

	if _, err := r.Resolve("../../elsewhere"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
