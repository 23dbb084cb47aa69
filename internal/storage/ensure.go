package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/conorfennell/ankistore/internal/domain"
)

// Ensure guarantees a collection exists at path, creating the parent
// directories and a bootstrapped collection when the file is absent. An
// existing collection is trusted as-is and no migration is attempted.
func Ensure(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve %s: %w", ErrStorageUnavailable, path, err)
	}
	lock := writeLockFor(abs)
	if err := lock.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for collection lock: %w", ErrStorageTimeout, err)
	}
	defer lock.Release(1)

	_, err = ensure(ctx, abs, defaultBusyTimeout, time.Now)
	return err
}

// ensure reports whether it bootstrapped the collection. Callers in other
// processes may run it on the same path at the same time.
func ensure(ctx context.Context, path string, busyTimeout time.Duration, now func() time.Time) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("%w: failed to create directory for %s: %w", ErrStorageUnavailable, path, err)
	}

	claimed, err := claimFile(path)
	if err != nil {
		return false, err
	}

	created, err := bootstrapCollection(ctx, path, busyTimeout, now())
	if err != nil {
		// Only a file this call created, still holding no data, is removed.
		if claimed {
			if info, statErr := os.Stat(path); statErr == nil && info.Size() == 0 {
				if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
					err = errors.Join(err, rmErr)
				}
			}
		}
		return false, classify(ctx, ErrStorageUnavailable, err)
	}
	return created, nil
}

// claimFile creates path exclusively. It reports false when the file
// already existed.
func claimFile(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		return true, f.Close()
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, fmt.Errorf("%w: failed to create %s: %w", ErrStorageUnavailable, path, err)
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return false, fmt.Errorf("%w: failed to stat %s: %w", ErrStorageUnavailable, path, statErr)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%w: %s is a directory", ErrStorageUnavailable, path)
	}
	return false, nil
}

// bootstrapCollection writes the schema and collection row into a database
// that holds no tables yet. The check and the write share one immediate
// transaction, so only one of several concurrent callers bootstraps and the
// rest see its result. A database that already has tables is left alone.
func bootstrapCollection(ctx context.Context, path string, busyTimeout time.Duration, now time.Time) (bool, error) {
	db, err := openDBMode(ctx, path, busyTimeout, true)
	if err != nil {
		return false, err
	}
	defer db.Close()

	ms := now.UnixMilli()
	var created bool
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var tables int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'
		`).Scan(&tables); err != nil {
			return fmt.Errorf("failed to inspect database: %w", err)
		}
		if tables > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
			VALUES (?, ?, ?, 0, ?, 0, 0, 0, '{}', ?, ?, '{}', '{}')
		`,
			collectionRowID,
			ms,
			ms,
			schemaVersion,
			mustJSON(bootstrapNoteTypes()),
			mustJSON(bootstrapDecks(ms)),
		)
		if err != nil {
			return fmt.Errorf("failed to insert collection row: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

func bootstrapNoteTypes() map[string]domain.NoteType {
	basic := domain.NoteType{
		ID:   basicNoteTypeID,
		Name: "Basic",
		Fields: []domain.Field{
			{Name: "Front", Ordinal: 0},
			{Name: "Back", Ordinal: 1},
		},
		Templates: []domain.Template{{
			Name:           "Card 1",
			QuestionFormat: "{{Front}}",
			AnswerFormat:   "{{FrontSide}}\n\n<hr id=answer>\n\n{{Back}}",
			Ordinal:        0,
		}},
		CSS: basicNoteTypeCSS,
	}
	return map[string]domain.NoteType{fmt.Sprint(basic.ID): basic}
}

func bootstrapDecks(now int64) map[string]domain.Deck {
	return map[string]domain.Deck{
		fmt.Sprint(defaultDeckID): {ID: defaultDeckID, Name: domain.DefaultDeckName, Modified: now},
	}
}
