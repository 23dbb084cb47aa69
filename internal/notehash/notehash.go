// Package notehash derives the duplicate-detection and identity values the
// external flashcard application stores alongside every note.
package notehash

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// FieldSeparator joins field values inside the flds column.
	FieldSeparator = "\x1f"

	// SortFieldLength is the number of characters of the first field kept as
	// the sort field.
	SortFieldLength = 64
)

// SortField returns front truncated to SortFieldLength characters.
func SortField(front string) string {
	runes := []rune(front)
	if len(runes) <= SortFieldLength {
		return front
	}
	return string(runes[:SortFieldLength])
}

// Checksum reproduces the external application's duplicate checksum: the
// first 8 hex digits of the SHA-1 of the UTF-8 sort field, read as an
// unsigned integer.
func Checksum(sortField string) int64 {
	sum := sha1.Sum([]byte(sortField))
	prefix := hex.EncodeToString(sum[:])[:8]
	v, _ := strconv.ParseUint(prefix, 16, 32)
	return int64(v)
}

// GUID returns a short digest identifying a note's content at a given id.
func GUID(noteID int64, front, back string) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(noteID, 10) + front + back))
	return hex.EncodeToString(sum[:])[:8]
}

// JoinFields packs field values into the flds column format.
func JoinFields(fields ...string) string {
	return strings.Join(fields, FieldSeparator)
}

// SplitFields is the inverse of JoinFields.
func SplitFields(flds string) []string {
	return strings.Split(flds, FieldSeparator)
}

// JoinTags serializes tags with a single space on either side of each tag,
// so " tag " substring searches match. Whitespace inside a tag becomes an
// underscore since the external application splits tags on spaces.
// An empty list yields two spaces.
func JoinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts := strings.Fields(tag)
		if len(parts) == 0 {
			continue
		}
		cleaned = append(cleaned, strings.Join(parts, "_"))
	}
	return " " + strings.Join(cleaned, " ") + " "
}

// SplitTags parses a tags column back into individual tags.
func SplitTags(tags string) []string {
	return strings.Fields(tags)
}
