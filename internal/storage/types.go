package storage

import (
	"context"
	"time"

	"autolike/internal/task"
)

// Store is the persistence API used by the run engine and the front ends.
//
// The store exclusively owns the active flag: PruneExpired is the only path
// that flips it, and only from true to false.
type Store interface {
	Add(ctx context.Context, region, uid string, days int, addedBy string) (task.Task, error)
	ListActive(ctx context.Context) ([]task.Task, error)
	ListAll(ctx context.Context) ([]task.Task, error)
	PruneExpired(ctx context.Context) (int64, error)
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path (default)
//   - "postgres": PostgreSQL at DSN
type Config struct {
	Driver      string
	Path        string        // sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only; 0 means default

	// Now overrides the clock used for expiry stamping and pruning.
	Now func() time.Time
}

func (c Config) clock() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}
