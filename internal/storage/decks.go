package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/conorfennell/ankistore/internal/domain"
)

// deckDocument is the col.decks JSON object keyed by deck id. Entries stay
// raw so fields this store does not model are written back untouched.
type deckDocument map[string]json.RawMessage

func parseDeckDocument(raw string) (deckDocument, error) {
	var doc deckDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse deck document: %w", ErrSchemaCorrupt, err)
	}
	return doc, nil
}

// decks decodes every entry, ordered by name.
func (doc deckDocument) decks() ([]domain.Deck, error) {
	decks := make([]domain.Deck, 0, len(doc))
	for key, raw := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: deck key %q is not an id", ErrSchemaCorrupt, key)
		}
		var d domain.Deck
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: failed to parse deck %s: %w", ErrSchemaCorrupt, key, err)
		}
		d.ID = id
		decks = append(decks, d)
	}
	sort.Slice(decks, func(i, j int) bool {
		if decks[i].Name == decks[j].Name {
			return decks[i].ID < decks[j].ID
		}
		return decks[i].Name < decks[j].Name
	})
	return decks, nil
}

// lookup returns the id of the deck named exactly name.
func (doc deckDocument) lookup(name string) (int64, bool, error) {
	decks, err := doc.decks()
	if err != nil {
		return 0, false, err
	}
	for _, d := range decks {
		if d.Name == name {
			return d.ID, true, nil
		}
	}
	return 0, false, nil
}

func (doc deckDocument) maxID() (int64, error) {
	var maxID int64
	for key := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: deck key %q is not an id", ErrSchemaCorrupt, key)
		}
		if id > maxID {
			maxID = id
		}
	}
	return maxID, nil
}

// validateDeckName rejects names the external application cannot represent.
// "::" separates nesting levels, so no level may be empty.
func validateDeckName(name string) error {
	if name == "" {
		return fmt.Errorf("deck name is empty")
	}
	for _, part := range strings.Split(name, "::") {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("deck name %q has an empty component", name)
		}
	}
	return nil
}

// readDecks loads the deck list without taking the write lock.
func readDecks(ctx context.Context, db *DB) ([]domain.Deck, error) {
	cs, err := loadCollection(ctx, db.conn)
	if err != nil {
		return nil, err
	}
	doc, err := parseDeckDocument(cs.Decks)
	if err != nil {
		return nil, err
	}
	return doc.decks()
}

// resolveOrCreateDeck returns the deck named name, inserting it with id
// max(existing)+1 when absent. The read and the write happen in tx, which
// callers hold under the collection's write lock.
func resolveOrCreateDeck(ctx context.Context, tx *sql.Tx, name string, now int64) (deck domain.Deck, created bool, err error) {
	name = strings.TrimSpace(name)
	if err := validateDeckName(name); err != nil {
		return deck, false, fmt.Errorf("%w: %w", ErrDeckResolution, err)
	}

	cs, err := loadCollection(ctx, tx)
	if err != nil {
		return deck, false, err
	}
	doc, err := parseDeckDocument(cs.Decks)
	if err != nil {
		return deck, false, err
	}

	id, ok, err := doc.lookup(name)
	if err != nil {
		return deck, false, err
	}
	if ok {
		return domain.Deck{ID: id, Name: name}, false, nil
	}

	maxID, err := doc.maxID()
	if err != nil {
		return deck, false, err
	}
	deck = domain.Deck{ID: maxID + 1, Name: name, Modified: now}
	entry, err := json.Marshal(deck)
	if err != nil {
		return deck, false, fmt.Errorf("failed to encode deck %q: %w", name, err)
	}
	doc[strconv.FormatInt(deck.ID, 10)] = entry

	encoded, err := json.Marshal(doc)
	if err != nil {
		return deck, false, fmt.Errorf("failed to encode deck document: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE col SET decks = ?, mod = MAX(mod + 1, ?) WHERE id = ?
	`, string(encoded), now, collectionRowID)
	if err != nil {
		return deck, false, fmt.Errorf("failed to save deck %q: %w", name, err)
	}
	return deck, true, nil
}
