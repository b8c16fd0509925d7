package fileutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.m4a")
	dst := filepath.Join(dir, "dst.m4a")

	content := []byte("audio bytes")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestNewestWithExtPrefersNewestNonEmpty(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "old.m4a")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	newest := filepath.Join(dir, "new.m4a")
	if err := os.WriteFile(newest, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Empty files and other extensions never win.
	if err := os.WriteFile(filepath.Join(dir, "empty.m4a"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewestWithExt(dir, ".m4a")
	if err != nil {
		t.Fatalf("NewestWithExt returned error: %v", err)
	}
	if got != newest {
		t.Fatalf("expected %q, got %q", newest, got)
	}
}

func TestNewestWithExtMissingDir(t *testing.T) {
	got, err := NewestWithExt(filepath.Join(t.TempDir(), "absent"), ".mp3")
	if err != nil {
		t.Fatalf("expected nil error for missing dir, got %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestRemoveIfExistsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wav.wav")
	if err := os.WriteFile(path, []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("second remove should succeed: %v", err)
	}
}
