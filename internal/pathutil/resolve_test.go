package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAbsolutePath_Existing(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	got, err := ResolveAbsolutePath(dir)
	if err != nil {
		t.Fatalf("ResolveAbsolutePath() error: %v", err)
	}
	if got != dir {
		t.Errorf("ResolveAbsolutePath(%q) = %q", dir, got)
	}
}

func TestResolveAbsolutePath_MissingTail(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(dir, "plots", "iris")
	got, err := ResolveAbsolutePath(want)
	if err != nil {
		t.Fatalf("ResolveAbsolutePath() error: %v", err)
	}
	if got != want {
		t.Errorf("ResolveAbsolutePath(%q) = %q", want, got)
	}
}

func TestResolveAbsolutePath_Symlink(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	if err := os.Mkdir(target, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	got, err := ResolveAbsolutePath(filepath.Join(link, "out"))
	if err != nil {
		t.Fatalf("ResolveAbsolutePath() error: %v", err)
	}
	if want := filepath.Join(target, "out"); got != want {
		t.Errorf("ResolveAbsolutePath() = %q, want %q", got, want)
	}
}

func TestResolveAbsolutePath_Empty(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ResolveAbsolutePath("")
	if err != nil {
		t.Fatalf("ResolveAbsolutePath() error: %v", err)
	}
	if got != wd {
		t.Errorf("ResolveAbsolutePath(\"\") = %q, want %q", got, wd)
	}
}
