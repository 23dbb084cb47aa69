package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/conorfennell/ankistore/internal/domain"
)

const (
	defaultOpTimeout   = 5 * time.Second
	defaultBusyTimeout = 2 * time.Second
)

// Options tunes a Repository. Zero values select the defaults.
type Options struct {
	// NoteTypeID selects the note type new notes are created with.
	NoteTypeID int64
	// OpTimeout bounds every operation, including the wait for the write lock.
	OpTimeout time.Duration
	// BusyTimeout is how long SQLite waits on a file locked by another process.
	BusyTimeout time.Duration
	Logger      *slog.Logger
	// Now overrides the clock used for timestamps and ids.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.NoteTypeID == 0 {
		o.NoteTypeID = basicNoteTypeID
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = defaultOpTimeout
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = defaultBusyTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// writeLocks holds one single-writer lock per collection file, shared by
// every Repository opened on that path in this process.
var writeLocks sync.Map // absolute path -> *semaphore.Weighted

func writeLockFor(path string) *semaphore.Weighted {
	lock, _ := writeLocks.LoadOrStore(path, semaphore.NewWeighted(1))
	return lock.(*semaphore.Weighted)
}

// Repository is the entry point to a collection file. It holds no open
// connection: each operation opens the file, does its work, and closes it.
// Writers are serialized per path; readers are not.
type Repository struct {
	path  string
	opts  Options
	lock  *semaphore.Weighted
	clock *idClock
	log   *slog.Logger
}

// Open prepares a Repository for the collection at path, creating the
// collection when it does not exist yet.
func Open(ctx context.Context, path string, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve %s: %w", ErrStorageUnavailable, path, err)
	}
	opts = opts.withDefaults()
	r := &Repository{
		path:  abs,
		opts:  opts,
		lock:  writeLockFor(abs),
		clock: newIDClock(opts.Now),
		log:   opts.Logger.With("collection", abs),
	}

	err = r.withWriteLock(ctx, func(ctx context.Context) error {
		created, err := ensure(ctx, r.path, r.opts.BusyTimeout, r.opts.Now)
		if created {
			r.log.Info("Created new collection")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the absolute path of the collection file.
func (r *Repository) Path() string {
	return r.path
}

// ListDecks returns deck names sorted lexicographically. Read failures are
// logged and answered with the default deck alone, so the result may not
// reflect the file when storage is unhealthy. Use Decks to see errors.
func (r *Repository) ListDecks(ctx context.Context) []string {
	decks, err := r.Decks(ctx)
	if err != nil {
		r.log.Warn("Failed to read decks, falling back to default", "error", err)
		return []string{domain.DefaultDeckName}
	}
	names := make([]string, 0, len(decks))
	for _, d := range decks {
		names = append(names, d.Name)
	}
	return names
}

// Decks returns every deck ordered by name.
func (r *Repository) Decks(ctx context.Context) ([]domain.Deck, error) {
	var decks []domain.Deck
	err := r.withDB(ctx, func(ctx context.Context, db *DB) error {
		var err error
		decks, err = readDecks(ctx, db)
		return classify(ctx, ErrSchemaCorrupt, err)
	})
	return decks, err
}

// ResolveOrCreateDeck returns the id of the deck named name, creating it
// when no deck has exactly that name.
func (r *Repository) ResolveOrCreateDeck(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.write(ctx, func(ctx context.Context, tx *sql.Tx, now int64) error {
		deck, created, err := resolveOrCreateDeck(ctx, tx, name, now)
		if err != nil {
			return classify(ctx, ErrDeckResolution, err)
		}
		if created {
			r.log.Info("Created deck", "deck", deck.Name, "deck_id", deck.ID)
		}
		id = deck.ID
		return nil
	})
	return id, err
}

// AddNote creates a note and its card in deckName, creating the deck when
// needed, and returns the note id.
func (r *Repository) AddNote(ctx context.Context, front, back, deckName string, tags []string) (int64, error) {
	return r.addRecord(ctx, domain.Record{Front: front, Back: back, DeckName: deckName, Tags: tags})
}

// AddNotesBatch adds records in order, each in its own transaction. It
// stops at the first failure and returns the ids committed so far together
// with a *BatchError naming the failed record.
func (r *Repository) AddNotesBatch(ctx context.Context, records []domain.Record) ([]int64, error) {
	ids := make([]int64, 0, len(records))
	for i, rec := range records {
		id, err := r.addRecord(ctx, rec)
		if err != nil {
			return ids, &BatchError{Index: i, Err: err}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Repository) addRecord(ctx context.Context, rec domain.Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	var w *written
	err := r.write(ctx, func(ctx context.Context, tx *sql.Tx, now int64) error {
		var err error
		w, err = insertNote(ctx, tx, r.clock, r.opts.NoteTypeID, rec, now)
		return classify(ctx, ErrWriteFailed, err)
	})
	if err != nil {
		return 0, err
	}

	if w.DeckCreated {
		r.log.Info("Created deck", "deck", w.DeckName, "deck_id", w.DeckID)
	}
	r.log.Debug("Added note", "note_id", w.NoteID, "deck", w.DeckName, "cards", len(w.CardIDs), "front", truncate(rec.Front, 50))
	return w.NoteID, nil
}

// FindNoteByFront returns the note a new record with this front would
// duplicate, or nil.
func (r *Repository) FindNoteByFront(ctx context.Context, front string) (*domain.Note, error) {
	var note *domain.Note
	err := r.withDB(ctx, func(ctx context.Context, db *DB) error {
		var err error
		note, err = findNoteByFront(ctx, db, front)
		return classify(ctx, ErrStorageUnavailable, err)
	})
	return note, err
}

// CardsForNote returns the cards generated for a note.
func (r *Repository) CardsForNote(ctx context.Context, noteID int64) ([]domain.Card, error) {
	var cards []domain.Card
	err := r.withDB(ctx, func(ctx context.Context, db *DB) error {
		var err error
		cards, err = cardsForNote(ctx, db, noteID)
		return classify(ctx, ErrStorageUnavailable, err)
	})
	return cards, err
}

// withDB opens the collection for the duration of fn under the operation
// timeout. The handle is closed on every path.
func (r *Repository) withDB(ctx context.Context, fn func(context.Context, *DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.OpTimeout)
	defer cancel()

	db, err := openDB(ctx, r.path, r.opts.BusyTimeout)
	if err != nil {
		return classify(ctx, ErrStorageUnavailable, err)
	}
	defer db.Close()

	return fn(ctx, db)
}

// withWriteLock runs fn while holding the collection's single-writer lock.
func (r *Repository) withWriteLock(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.OpTimeout)
	defer cancel()

	if err := r.lock.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for collection lock: %w", ErrStorageTimeout, err)
	}
	defer r.lock.Release(1)

	return fn(ctx)
}

// write runs fn in a write transaction on a fresh handle.
func (r *Repository) write(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx, now int64) error) error {
	return r.withWriteLock(ctx, func(ctx context.Context) error {
		db, err := openDB(ctx, r.path, r.opts.BusyTimeout)
		if err != nil {
			return classify(ctx, ErrStorageUnavailable, err)
		}
		defer db.Close()

		now := r.opts.Now().UnixMilli()
		err = db.withTx(ctx, func(tx *sql.Tx) error {
			return fn(ctx, tx, now)
		})
		return classify(ctx, ErrWriteFailed, err)
	})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
