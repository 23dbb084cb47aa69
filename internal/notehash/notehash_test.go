package notehash

import (
	"strings"
	"testing"
)

func TestChecksum(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected int64
	}{
		{name: "ascii question", input: "What is 2+2?", expected: 1504862567},
		{name: "empty string", input: "", expected: 3661210606},
		{name: "multibyte", input: "héllo", expected: 901114437},
		{name: "word", input: "Bonjour", expected: 4077833205},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Checksum(tc.input)
			if got != tc.expected {
				t.Errorf("Expected checksum %d, but got %d", tc.expected, got)
			}
		})
	}
}

func TestSortField(t *testing.T) {
	t.Run("short front is unchanged", func(t *testing.T) {
		if got := SortField("What is 2+2?"); got != "What is 2+2?" {
			t.Errorf("Expected unchanged front, but got '%s'", got)
		}
	})

	t.Run("long front is truncated to 64 characters", func(t *testing.T) {
		got := SortField(strings.Repeat("a", 70))
		if len(got) != SortFieldLength {
			t.Errorf("Expected %d characters, but got %d", SortFieldLength, len(got))
		}
	})

	t.Run("truncation counts characters not bytes", func(t *testing.T) {
		got := SortField(strings.Repeat("é", 70))
		if n := len([]rune(got)); n != SortFieldLength {
			t.Errorf("Expected %d runes, but got %d", SortFieldLength, n)
		}
	})

	t.Run("fronts sharing a 64 character prefix share a checksum", func(t *testing.T) {
		prefix := strings.Repeat("a", 64)
		a := Checksum(SortField(prefix + "first"))
		b := Checksum(SortField(prefix + "second"))
		if a != b || a != 10009218 {
			t.Errorf("Expected both checksums to be 10009218, but got %d and %d", a, b)
		}
	})
}

func TestGUID(t *testing.T) {
	got := GUID(1700000000000, "What is 2+2?", "4")
	if got != "394b79c5" {
		t.Errorf("Expected guid '394b79c5', but got '%s'", got)
	}
	if GUID(1700000000001, "What is 2+2?", "4") == got {
		t.Error("Expected different note ids to produce different guids")
	}
}

func TestJoinTags(t *testing.T) {
	testCases := []struct {
		name     string
		tags     []string
		expected string
	}{
		{name: "two tags", tags: []string{"algorithm", "complexity"}, expected: " algorithm complexity "},
		{name: "no tags", tags: nil, expected: "  "},
		{name: "blank tags dropped", tags: []string{"", "  "}, expected: "  "},
		{name: "inner whitespace", tags: []string{" big  o "}, expected: " big_o "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := JoinTags(tc.tags)
			if got != tc.expected {
				t.Errorf("Expected tags %q, but got %q", tc.expected, got)
			}
		})
	}

	t.Run("round trip", func(t *testing.T) {
		tags := SplitTags(JoinTags([]string{"algorithm", "complexity"}))
		if len(tags) != 2 || tags[0] != "algorithm" || tags[1] != "complexity" {
			t.Errorf("Expected [algorithm complexity], but got %v", tags)
		}
	})
}

func TestJoinFields(t *testing.T) {
	flds := JoinFields("front", "back")
	if flds != "front\x1fback" {
		t.Errorf("Expected unit separator between fields, but got %q", flds)
	}
	if parts := SplitFields(flds); len(parts) != 2 || parts[1] != "back" {
		t.Errorf("Expected [front back], but got %q", parts)
	}
}
