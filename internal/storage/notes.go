package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/ankistore/internal/domain"
	"github.com/conorfennell/ankistore/internal/notehash"
)

// maxGUIDAttempts bounds the retries when a generated guid is already taken.
const maxGUIDAttempts = 8

// written describes the rows created for one record.
type written struct {
	NoteID      int64
	DeckID      int64
	DeckName    string
	CardIDs     []int64
	DeckCreated bool
}

// insertNote resolves the record's deck and writes its note, one card per
// template of the note type, and the collection timestamp, all within tx.
func insertNote(ctx context.Context, tx *sql.Tx, clock *idClock, noteTypeID int64, rec domain.Record, now int64) (*written, error) {
	deck, created, err := resolveOrCreateDeck(ctx, tx, rec.Deck(), now)
	if err != nil {
		if errors.Is(err, ErrDeckResolution) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDeckResolution, err)
	}

	w, err := insertNoteRows(ctx, tx, clock, noteTypeID, deck.ID, rec, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	w.DeckName = deck.Name
	w.DeckCreated = created
	return w, nil
}

func insertNoteRows(ctx context.Context, tx *sql.Tx, clock *idClock, noteTypeID, deckID int64, rec domain.Record, now int64) (*written, error) {
	cs, err := loadCollection(ctx, tx)
	if err != nil {
		return nil, err
	}
	nt, err := lookupNoteType(cs.Models, noteTypeID)
	if err != nil {
		return nil, err
	}

	floor, err := maxRowID(ctx, tx)
	if err != nil {
		return nil, err
	}

	// One id for the note, then one per template.
	block := 1 + len(nt.Templates)
	var noteID int64
	var guid string
	for attempt := 0; ; attempt++ {
		if attempt == maxGUIDAttempts {
			return nil, fmt.Errorf("no free guid after %d attempts", maxGUIDAttempts)
		}
		noteID = clock.reserve(block, floor)
		guid = notehash.GUID(noteID, rec.Front, rec.Back)
		taken, err := guidExists(ctx, tx, guid)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		floor = noteID + int64(block) - 1
	}

	sortField := notehash.SortField(rec.Front)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, 0, '')
	`,
		noteID,
		guid,
		nt.ID,
		now,
		notehash.JoinTags(rec.Tags),
		notehash.JoinFields(fieldValues(nt, rec.Front, rec.Back)...),
		sortField,
		notehash.Checksum(sortField),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert note %d: %w", noteID, err)
	}

	w := &written{NoteID: noteID, DeckID: deckID}
	for i, tmpl := range nt.Templates {
		cardID := noteID + 1 + int64(i)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
			VALUES (?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, '')
		`, cardID, noteID, deckID, tmpl.Ordinal, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert card %d for note %d: %w", cardID, noteID, err)
		}
		w.CardIDs = append(w.CardIDs, cardID)
	}

	if err := touchCollection(ctx, tx, now); err != nil {
		return nil, err
	}
	return w, nil
}

func guidExists(ctx context.Context, tx *sql.Tx, guid string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE guid = ?`, guid).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check guid %s: %w", guid, err)
	}
	return n > 0, nil
}

// findNoteByFront returns the note whose sort field matches front, using the
// same checksum the external application uses for duplicate detection.
func findNoteByFront(ctx context.Context, db *DB, front string) (*domain.Note, error) {
	sortField := notehash.SortField(front)
	var n domain.Note
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data
		FROM notes WHERE csum = ? AND sfld = ?
		ORDER BY id LIMIT 1
	`, notehash.Checksum(sortField), sortField).Scan(
		&n.ID,
		&n.GUID,
		&n.NoteTypeID,
		&n.Modified,
		&n.USN,
		&n.Tags,
		&n.Fields,
		&n.SortField,
		&n.Checksum,
		&n.Flags,
		&n.Data,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Note not found
		}
		return nil, fmt.Errorf("failed to find note by front: %w", err)
	}
	return &n, nil
}

// cardsForNote returns the cards of a note ordered by template.
func cardsForNote(ctx context.Context, db *DB, noteID int64) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data
		FROM cards WHERE nid = ? ORDER BY ord
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for note %d: %w", noteID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(
			&c.ID,
			&c.NoteID,
			&c.DeckID,
			&c.Ordinal,
			&c.Modified,
			&c.USN,
			&c.Type,
			&c.Queue,
			&c.Due,
			&c.Interval,
			&c.Factor,
			&c.Reps,
			&c.Lapses,
			&c.Left,
			&c.OriginalDue,
			&c.OriginalDeckID,
			&c.Flags,
			&c.Data,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card row for note %d: %w", noteID, err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
