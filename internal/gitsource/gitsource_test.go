package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
)

func TestIsURL(t *testing.T) {
	testCases := map[string]bool{
		"https://github.com/u/cards.git": true,
		"git@github.com:u/cards.git":     true,
		"http://example.com/cards":       true,
		"/home/u/notes":                  false,
		"notes/spanish":                  false,
	}
	for source, expected := range testCases {
		if got := IsURL(source); got != expected {
			t.Errorf("IsURL(%q): expected %v, but got %v", source, expected, got)
		}
	}
}

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{name: "https", url: "https://github.com/u/cards.git", expected: filepath.Join("repos", "github.com", "u", "cards")},
		{name: "ssh", url: "git@github.com:u/cards.git", expected: filepath.Join("repos", "github.com", "u", "cards")},
		{name: "garbage", url: "not a url", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected an error, but got path '%s'", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LocalPath() returned an unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected '%s', but got '%s'", tc.expected, got)
			}
		})
	}
}

func TestSyncOpensExistingRepository(t *testing.T) {
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatal(err)
	}

	// No origin remote: the pull must fail after the repository was opened.
	err := Sync(context.Background(), "https://example.invalid/cards.git", dir, nil)
	if err == nil {
		t.Fatal("Expected pull without an origin remote to fail")
	}
}

func TestSyncRejectsNonRepository(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cards.md"), []byte("Q: a\nA: b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Sync(context.Background(), "https://example.invalid/cards.git", dir, nil); err == nil {
		t.Fatal("Expected an error for a directory that is not a git repository")
	}
}
