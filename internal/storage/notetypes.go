package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/conorfennell/ankistore/internal/domain"
)

// minNoteFields is the number of values a record provides: front and back.
const minNoteFields = 2

// lookupNoteType decodes note type id from the col.models document.
func lookupNoteType(models string, id int64) (*domain.NoteType, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(models), &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse note types: %w", ErrSchemaCorrupt, err)
	}
	raw, ok := doc[strconv.FormatInt(id, 10)]
	if !ok {
		return nil, fmt.Errorf("%w: note type %d not found", ErrSchemaCorrupt, id)
	}

	var nt domain.NoteType
	if err := json.Unmarshal(raw, &nt); err != nil {
		return nil, fmt.Errorf("%w: failed to parse note type %d: %w", ErrSchemaCorrupt, id, err)
	}
	if len(nt.Fields) < minNoteFields {
		return nil, fmt.Errorf("%w: note type %d has %d fields, need %d", ErrSchemaCorrupt, id, len(nt.Fields), minNoteFields)
	}
	if len(nt.Templates) == 0 {
		return nil, fmt.Errorf("%w: note type %d has no templates", ErrSchemaCorrupt, id)
	}
	nt.ID = id
	sort.Slice(nt.Templates, func(i, j int) bool {
		return nt.Templates[i].Ordinal < nt.Templates[j].Ordinal
	})
	return &nt, nil
}

// fieldValues lays front and back into the note type's field slots.
func fieldValues(nt *domain.NoteType, front, back string) []string {
	values := make([]string, len(nt.Fields))
	values[0] = front
	values[1] = back
	return values
}
