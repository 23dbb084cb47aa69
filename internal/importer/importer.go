// Package importer loads candidate flashcards from local directories and
// git repositories into a collection.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/conorfennell/ankistore/internal/domain"
	"github.com/conorfennell/ankistore/internal/gitsource"
	"github.com/conorfennell/ankistore/internal/notehash"
	"github.com/conorfennell/ankistore/internal/parser"
)

// Writer is the part of the collection the importer needs.
type Writer interface {
	FindNoteByFront(ctx context.Context, front string) (*domain.Note, error)
	AddNotesBatch(ctx context.Context, records []domain.Record) ([]int64, error)
}

// Options controls an import run.
type Options struct {
	// ReposDir holds checkouts of git sources.
	ReposDir string
	// DefaultDeck is used for records that name no deck.
	DefaultDeck string
	// Progress receives git clone/pull output; nil discards it.
	Progress io.Writer
	// RenderMarkdown converts card text to HTML before it is written.
	RenderMarkdown bool
}

// Report summarizes an import run.
type Report struct {
	Files   int
	Parsed  int
	Added   int
	Skipped int
	Errors  []error
}

// Run imports every source in order. A source or file that fails is
// recorded in the report and the run moves on; only context cancellation
// stops it early.
func Run(ctx context.Context, w Writer, sources []string, opts Options) (*Report, error) {
	if opts.ReposDir == "" {
		opts.ReposDir = "repos"
	}
	report := &Report{}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dir := source
		if gitsource.IsURL(source) {
			localPath, err := gitsource.LocalPath(opts.ReposDir, source)
			if err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("creating %s: %w", filepath.Dir(localPath), err))
				continue
			}
			if err := gitsource.Sync(ctx, source, localPath, opts.Progress); err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			dir = localPath
		}

		slog.Info("Importing source", "source", source, "path", dir)
		if err := importPath(ctx, w, dir, opts, report); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("walking %s: %w", dir, err))
		}
	}

	slog.Info("Import complete",
		"files", report.Files,
		"parsed", report.Parsed,
		"added", report.Added,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

func importPath(ctx context.Context, w Writer, root string, opts Options, report *Report) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isCardFile(d.Name()) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := importFile(ctx, w, path, opts, report); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("importing %s: %w", path, err))
		}
		return nil
	})
}

func isCardFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".json"
}

// importFile writes the file's new records as one batch. Records whose
// front matches an existing note are skipped, as are repeats within the file.
func importFile(ctx context.Context, w Writer, path string, opts Options, report *Report) error {
	records, err := parser.ParseFile(path)
	if errors.Is(err, parser.ErrNotRecordArray) {
		slog.Debug("Skipping JSON file without records", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	report.Files++
	report.Parsed += len(records)

	seen := make(map[string]bool)
	var fresh []domain.Record
	for _, rec := range records {
		if rec.DeckName == "" && opts.DefaultDeck != "" {
			rec.DeckName = opts.DefaultDeck
		}
		if opts.RenderMarkdown {
			if rec.Front, err = renderMarkdown(rec.Front); err != nil {
				return err
			}
			if rec.Back, err = renderMarkdown(rec.Back); err != nil {
				return err
			}
		}
		key := notehash.SortField(rec.Front)
		if seen[key] {
			report.Skipped++
			continue
		}
		seen[key] = true

		existing, err := w.FindNoteByFront(ctx, rec.Front)
		if err != nil {
			return err
		}
		if existing != nil {
			slog.Debug("Note already present, skipping", "note_id", existing.ID, "path", path)
			report.Skipped++
			continue
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return nil
	}

	ids, err := w.AddNotesBatch(ctx, fresh)
	report.Added += len(ids)
	return err
}

// renderMarkdown returns src as an HTML fragment without the trailing newline.
func renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
