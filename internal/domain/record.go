package domain

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

// DefaultDeckName is the deck every collection is bootstrapped with.
const DefaultDeckName = "Default"

// Record is a candidate flashcard produced by a generator or an importer.
// The JSON shape matches the generator's output.
type Record struct {
	Front    string   `json:"front" validate:"required"`
	Back     string   `json:"back" validate:"required"`
	DeckName string   `json:"deck_name"`
	Tags     []string `json:"tags"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate reports whether the record carries the fields a note needs.
func (r Record) Validate() error {
	return recordValidator().Struct(r)
}

// Deck returns the record's deck name, falling back to the default deck.
func (r Record) Deck() string {
	if r.DeckName == "" {
		return DefaultDeckName
	}
	return r.DeckName
}
