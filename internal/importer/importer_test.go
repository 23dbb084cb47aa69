package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/conorfennell/ankistore/internal/domain"
)

// fakeWriter records batches in memory and can fail on a given front.
type fakeWriter struct {
	existing map[string]bool
	added    []domain.Record
	failOn   string
}

func (f *fakeWriter) FindNoteByFront(_ context.Context, front string) (*domain.Note, error) {
	if f.existing[front] {
		return &domain.Note{ID: 1, SortField: front}, nil
	}
	return nil, nil
}

func (f *fakeWriter) AddNotesBatch(_ context.Context, records []domain.Record) ([]int64, error) {
	var ids []int64
	for i, rec := range records {
		if rec.Front == f.failOn {
			return ids, errors.New("deck resolution failed")
		}
		f.added = append(f.added, rec)
		ids = append(ids, int64(100+i))
	}
	return ids, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("imports markdown and json, skipping known fronts", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "spanish.md"), "Q: Hola\nA: Hello\nD: Spanish\n\nQ: Adiós\nA: Goodbye\n")
		writeFile(t, filepath.Join(dir, "nested", "algo.json"), `[{"front": "Binary search?", "back": "O(log n)", "tags": ["algorithm"]}]`)
		writeFile(t, filepath.Join(dir, "README.txt"), "Q: Ignored\nA: Not a card file\n")
		writeFile(t, filepath.Join(dir, ".git", "notes.md"), "Q: Hidden\nA: Inside .git\n")

		w := &fakeWriter{existing: map[string]bool{"Adiós": true}}
		report, err := Run(ctx, w, []string{dir}, Options{DefaultDeck: "Inbox"})
		if err != nil {
			t.Fatalf("Run() returned an unexpected error: %v", err)
		}

		if report.Files != 2 {
			t.Errorf("Expected 2 files, but got %d", report.Files)
		}
		if report.Parsed != 3 || report.Added != 2 || report.Skipped != 1 {
			t.Errorf("Expected parsed=3 added=2 skipped=1, but got %+v", report)
		}
		if len(report.Errors) != 0 {
			t.Errorf("Expected no errors, but got %v", report.Errors)
		}

		decks := map[string]string{}
		for _, rec := range w.added {
			decks[rec.Front] = rec.DeckName
		}
		if decks["Hola"] != "Spanish" {
			t.Errorf("Expected 'Hola' in Spanish, but got '%s'", decks["Hola"])
		}
		if decks["Binary search?"] != "Inbox" {
			t.Errorf("Expected default deck 'Inbox', but got '%s'", decks["Binary search?"])
		}
	})

	t.Run("repeated fronts within a file are added once", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "dupes.md"), "Q: Same\nA: One\n---\nQ: Same\nA: Two\n")

		w := &fakeWriter{}
		report, err := Run(ctx, w, []string{dir}, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if report.Added != 1 || report.Skipped != 1 {
			t.Errorf("Expected added=1 skipped=1, but got %+v", report)
		}
	})

	t.Run("a failing file is reported and others continue", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.md"), "Q: Good\nA: Yes\n---\nQ: Bad\nA: No\n---\nQ: Never\nA: Reached\n")
		writeFile(t, filepath.Join(dir, "b.md"), "Q: Other\nA: File\n")

		w := &fakeWriter{failOn: "Bad"}
		report, err := Run(ctx, w, []string{dir}, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Errors) != 1 {
			t.Fatalf("Expected 1 error, but got %v", report.Errors)
		}
		if report.Added != 2 {
			t.Errorf("Expected 'Good' and 'Other' to be added, but got %d", report.Added)
		}
	})

	t.Run("json files without records are skipped", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "package.json"), `{"name": "cards", "version": "1.0.0"}`)
		writeFile(t, filepath.Join(dir, ".vscode", "settings.json"), `{"editor.tabSize": 2}`)
		writeFile(t, filepath.Join(dir, "cards.md"), "Q: Hola\nA: Hello\n")

		w := &fakeWriter{}
		report, err := Run(ctx, w, []string{dir}, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Errors) != 0 {
			t.Errorf("Expected no errors, but got %v", report.Errors)
		}
		if report.Files != 1 || report.Added != 1 {
			t.Errorf("Expected files=1 added=1, but got %+v", report)
		}
	})

	t.Run("malformed json is reported", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "broken.json"), `[{"front": "unterminated"`)

		report, err := Run(ctx, &fakeWriter{}, []string{dir}, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Errors) != 1 {
			t.Errorf("Expected 1 error, but got %v", report.Errors)
		}
	})

	t.Run("missing source is reported", func(t *testing.T) {
		w := &fakeWriter{}
		report, err := Run(ctx, w, []string{filepath.Join(t.TempDir(), "missing")}, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Errors) != 1 {
			t.Errorf("Expected 1 error, but got %v", report.Errors)
		}
	})

	t.Run("cancelled context stops the run", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Run(cancelled, &fakeWriter{}, []string{t.TempDir()}, Options{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, but got %v", err)
		}
	})

	t.Run("renders markdown when asked", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "go.md"), "Q: What is *Go*?\nA: A **compiled** language\n")

		w := &fakeWriter{}
		if _, err := Run(ctx, w, []string{dir}, Options{RenderMarkdown: true}); err != nil {
			t.Fatal(err)
		}
		if len(w.added) != 1 {
			t.Fatalf("Expected 1 record, but got %d", len(w.added))
		}
		if w.added[0].Front != "<p>What is <em>Go</em>?</p>" {
			t.Errorf("Expected rendered front, but got '%s'", w.added[0].Front)
		}
		if w.added[0].Back != "<p>A <strong>compiled</strong> language</p>" {
			t.Errorf("Expected rendered back, but got '%s'", w.added[0].Back)
		}
	})
}
