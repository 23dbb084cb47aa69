package domain

import "testing"

func TestRecordValidate(t *testing.T) {
	testCases := []struct {
		name    string
		record  Record
		wantErr bool
	}{
		{name: "complete", record: Record{Front: "Q", Back: "A", DeckName: "Math", Tags: []string{"x"}}},
		{name: "no deck or tags", record: Record{Front: "Q", Back: "A"}},
		{name: "missing front", record: Record{Back: "A"}, wantErr: true},
		{name: "missing back", record: Record{Front: "Q"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.record.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected a validation error, but got none")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error, but got %v", err)
			}
		})
	}
}

func TestRecordDeck(t *testing.T) {
	if got := (Record{}).Deck(); got != DefaultDeckName {
		t.Errorf("Expected '%s', but got '%s'", DefaultDeckName, got)
	}
	if got := (Record{DeckName: "Math"}).Deck(); got != "Math" {
		t.Errorf("Expected 'Math', but got '%s'", got)
	}
}
