package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DB wraps a single connection to a collection file. It is opened for one
// logical operation and closed when that operation returns.
type DB struct {
	conn *sql.DB
}

// dsn builds a connection string that waits busyTimeout on a locked file
// and takes the write lock when a transaction begins. Without create, a
// missing file fails to open instead of appearing empty.
func dsn(path string, busyTimeout time.Duration, create bool) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	if create {
		q.Set("mode", "rwc")
	} else {
		q.Set("mode", "rw")
	}
	return "file:" + path + "?" + q.Encode()
}

// openDB connects to an existing collection at path. It never creates the
// file or the schema; see Ensure.
func openDB(ctx context.Context, path string, busyTimeout time.Duration) (*DB, error) {
	return openDBMode(ctx, path, busyTimeout, false)
}

func openDBMode(ctx context.Context, path string, busyTimeout time.Duration, create bool) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(path, busyTimeout, create))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// collectionState is the part of the col row read before a mutation.
type collectionState struct {
	Modified int64
	Decks    string
	Models   string
}

// loadCollection reads the singleton col row.
func loadCollection(ctx context.Context, q queryer) (*collectionState, error) {
	var cs collectionState
	err := q.QueryRowContext(ctx, `
		SELECT mod, decks, models FROM col WHERE id = ?
	`, collectionRowID).Scan(&cs.Modified, &cs.Decks, &cs.Models)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: collection row missing", ErrSchemaCorrupt)
		}
		if isMissingTable(err) {
			return nil, fmt.Errorf("%w: failed to read collection: %w", ErrSchemaCorrupt, err)
		}
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	return &cs, nil
}

// isMissingTable reports whether err comes from a file without the
// collection tables. SQLite gives this only a generic result code.
func isMissingTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}

// touchCollection advances col.mod to now, or one past its current value
// when the stored time is already ahead of the clock.
func touchCollection(ctx context.Context, tx *sql.Tx, now int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE col SET mod = MAX(mod + 1, ?) WHERE id = ?
	`, now, collectionRowID)
	if err != nil {
		return fmt.Errorf("failed to update collection modified time: %w", err)
	}
	return nil
}

// mustJSON encodes bootstrap documents, which are static and always encodable.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encoding %T: %v", v, err))
	}
	return string(b)
}
