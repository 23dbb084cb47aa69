package storage

import (
	"context"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Error categories returned by the store. Returned errors wrap one of these
// together with the underlying cause, so both match with errors.Is.
var (
	// ErrStorageUnavailable is returned when the collection file or its
	// directory cannot be created or opened.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSchemaCorrupt is returned when the collection row or one of its
	// embedded documents is missing or unreadable.
	ErrSchemaCorrupt = errors.New("collection schema corrupt")

	// ErrDeckResolution is returned when a deck cannot be found or created.
	ErrDeckResolution = errors.New("deck resolution failed")

	// ErrWriteFailed is returned when a note, card, or collection update fails.
	ErrWriteFailed = errors.New("write failed")

	// ErrInvalidRecord is returned for records missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrStorageTimeout is returned when an operation could not acquire the
	// collection within its deadline.
	ErrStorageTimeout = errors.New("storage timeout")
)

// BatchError reports the record at which AddNotesBatch stopped. Records
// before Index were committed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

// Unwrap returns the failing record's error.
func (e *BatchError) Unwrap() error {
	return e.Err
}

// operationErrors are the categories an operation reports; an error already
// carrying one keeps it.
var operationErrors = []error{ErrStorageUnavailable, ErrDeckResolution, ErrWriteFailed, ErrInvalidRecord}

// classify wraps err with kind, or with ErrStorageTimeout when the failure
// came from lock contention or an expired deadline.
func classify(ctx context.Context, kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageTimeout) {
		return err
	}
	if isTimeout(ctx, err) {
		return fmt.Errorf("%w: %w", ErrStorageTimeout, err)
	}
	if errors.Is(err, kind) {
		return err
	}
	for _, category := range operationErrors {
		if errors.Is(err, category) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
