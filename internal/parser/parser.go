package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/ankistore/internal/domain"
)

const (
	frontPrefix = "Q:"
	backPrefix  = "A:"
	deckPrefix  = "D:"
	tagsPrefix  = "T:"
	separator   = "---"
)

// ErrNotRecordArray is returned for JSON whose top-level value is not an
// array, such as package manifests or editor settings.
var ErrNotRecordArray = errors.New("not a record array")

type state int

const (
	seeking state = iota
	readingFront
	readingBack
	readingMeta // after D: or T:, until the next prefix
)

// ParseFile reads a file from the given path and extracts all records.
// Markdown files use the Q:/A:/D:/T: card format; JSON files hold an array
// of records.
func ParseFile(path string) ([]domain.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(file)
	}
	return Parse(file)
}

// ParseJSON decodes an array of records, dropping entries without a front
// or back.
func ParseJSON(r io.Reader) ([]domain.Record, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, ErrNotRecordArray
	}

	var records []domain.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	valid := records[:0]
	for _, rec := range records {
		if rec.Validate() == nil {
			valid = append(valid, rec)
		}
	}
	return valid, nil
}

// Parse reads from an io.Reader and extracts all records.
//
//	Q: What is the capital of France?
//	A: Paris
//	D: Geography
//	T: capital, europe
//
// Q: and A: blocks may span lines. D: and T: are single lines. A new Q:
// or a "---" line ends the current card.
func Parse(r io.Reader) ([]domain.Record, error) {
	scanner := bufio.NewScanner(r)
	var records []domain.Record
	var current domain.Record
	var block []string
	currentState := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(block, "\n"), "\n")
		switch currentState {
		case readingFront:
			current.Front = content
		case readingBack:
			current.Back = content
		}
		block = nil
	}

	finishRecord := func() {
		flushBlock()
		if current.Front != "" && current.Back != "" {
			records = append(records, current)
		}
		current = domain.Record{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == separator:
			finishRecord()
		case strings.HasPrefix(line, frontPrefix):
			if currentState != seeking {
				finishRecord()
			}
			currentState = readingFront
			block = append(block, afterPrefix(line, frontPrefix))
		case strings.HasPrefix(line, backPrefix):
			flushBlock()
			currentState = readingBack
			block = append(block, afterPrefix(line, backPrefix))
		case strings.HasPrefix(line, deckPrefix) && currentState != seeking:
			flushBlock()
			currentState = readingMeta
			current.DeckName = strings.TrimSpace(afterPrefix(line, deckPrefix))
		case strings.HasPrefix(line, tagsPrefix) && currentState != seeking:
			flushBlock()
			currentState = readingMeta
			current.Tags = append(current.Tags, splitTags(afterPrefix(line, tagsPrefix))...)
		case currentState == readingFront || currentState == readingBack:
			block = append(block, line)
		}
	}

	finishRecord() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func afterPrefix(line, prefix string) string {
	return strings.TrimPrefix(line[len(prefix):], " ")
}

// splitTags accepts comma or whitespace separated tags.
func splitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
