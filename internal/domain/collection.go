package domain

// Deck is an entry of the collection's deck document.
type Deck struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Modified int64  `json:"mod"`
}

// NoteType describes the fields and card templates of a note.
// The built-in type is "Basic": two fields and a single template.
type NoteType struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      int        `json:"type"`
	Fields    []Field    `json:"flds"`
	Templates []Template `json:"tmpls"`
	CSS       string     `json:"css"`
}

// Field is a named slot of a note type.
type Field struct {
	Name    string `json:"name"`
	Ordinal int    `json:"ord"`
}

// Template renders one card of a note.
type Template struct {
	Name           string `json:"name"`
	QuestionFormat string `json:"qfmt"`
	AnswerFormat   string `json:"afmt"`
	Ordinal        int    `json:"ord"`
}

// Note is a row of the notes table.
type Note struct {
	ID         int64
	GUID       string
	NoteTypeID int64
	Modified   int64
	USN        int64
	Tags       string
	Fields     string
	SortField  string
	Checksum   int64
	Flags      int64
	Data       string
}

// Card is a row of the cards table. Scheduling columns are stored as
// written and never computed here.
type Card struct {
	ID             int64
	NoteID         int64
	DeckID         int64
	Ordinal        int
	Modified       int64
	USN            int64
	Type           int
	Queue          int
	Due            int64
	Interval       int64
	Factor         int64
	Reps           int64
	Lapses         int64
	Left           int64
	OriginalDue    int64
	OriginalDeckID int64
	Flags          int64
	Data           string
}
