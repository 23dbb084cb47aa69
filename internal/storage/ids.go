package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// idClock hands out note and card ids. Ids are millisecond timestamps so
// the external application's sync sorts them by creation, bumped forward
// whenever the clock has not moved or the file already holds larger ids.
type idClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newIDClock(now func() time.Time) *idClock {
	return &idClock{now: now}
}

// reserve returns the first of n consecutive unused ids, none of which is
// at or below floor.
func (c *idClock) reserve(n int, floor int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.now().UnixMilli()
	if start <= c.last {
		start = c.last + 1
	}
	if start <= floor {
		start = floor + 1
	}
	c.last = start + int64(n) - 1
	return start
}

// maxRowID is the largest id in either notes or cards, so reserved blocks
// stay clear of rows written by other processes or earlier runs.
func maxRowID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var maxID int64
	err := tx.QueryRowContext(ctx, `
		SELECT MAX(COALESCE((SELECT MAX(id) FROM notes), 0), COALESCE((SELECT MAX(id) FROM cards), 0))
	`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to read largest row id: %w", err)
	}
	return maxID, nil
}
