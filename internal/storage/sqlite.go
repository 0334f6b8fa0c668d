package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"autolike/internal/task"
	logx "autolike/pkg/logx"
)

// sqliteTimeLayout is fixed-width so lexical order equals time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

const taskColumns = `id, region, uid, days, expiry_utc, added_by, added_at_utc, active`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; the pool serializes concurrent callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := migrateSQLite(db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log, now: cfg.clock()}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Add(ctx context.Context, region, uid string, days int, addedBy string) (task.Task, error) {
	d, err := task.NewDraft(region, uid, days, addedBy)
	if err != nil {
		return task.Task{}, err
	}
	// The text layout keeps microseconds; truncate so the returned value
	// equals what a later list yields.
	t := d.Materialize(s.now().Truncate(time.Microsecond))

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(region, uid, days, expiry_utc, added_by, added_at_utc, active) VALUES(?,?,?,?,?,?,1)`,
		t.Region, t.UID, t.Days, fmtSQLiteTime(t.ExpiryUTC), t.AddedBy, fmtSQLiteTime(t.AddedAtUTC),
	)
	if err != nil {
		return task.Task{}, task.WrapStorage("add", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return task.Task{}, task.WrapStorage("add", err)
	}
	t.ID = id
	s.log.Debug("task added", logx.Int64("id", id), logx.String("region", t.Region), logx.String("uid", t.UID))
	return t, nil
}

func (s *sqliteStore) ListActive(ctx context.Context) ([]task.Task, error) {
	return s.list(ctx, "list active", `SELECT `+taskColumns+` FROM tasks WHERE active = 1 ORDER BY id DESC`)
}

func (s *sqliteStore) ListAll(ctx context.Context) ([]task.Task, error) {
	return s.list(ctx, "list all", `SELECT `+taskColumns+` FROM tasks ORDER BY id DESC`)
}

func (s *sqliteStore) list(ctx context.Context, op, query string) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, task.WrapStorage(op, err)
	}
	defer rows.Close()

	out := make([]task.Task, 0, 16)
	for rows.Next() {
		var (
			t               task.Task
			expiry, addedAt string
			active          int
		)
		if err := rows.Scan(&t.ID, &t.Region, &t.UID, &t.Days, &expiry, &t.AddedBy, &addedAt, &active); err != nil {
			return nil, task.WrapStorage(op, err)
		}
		if t.ExpiryUTC, err = parseSQLiteTime(expiry); err != nil {
			return nil, task.WrapStorage(op, fmt.Errorf("task %d expiry_utc: %w", t.ID, err))
		}
		if t.AddedAtUTC, err = parseSQLiteTime(addedAt); err != nil {
			return nil, task.WrapStorage(op, fmt.Errorf("task %d added_at_utc: %w", t.ID, err))
		}
		t.Active = active != 0
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, task.WrapStorage(op, err)
	}
	return out, nil
}

func (s *sqliteStore) PruneExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET active = 0 WHERE active = 1 AND expiry_utc < ?`,
		fmtSQLiteTime(s.now()),
	)
	if err != nil {
		return 0, task.WrapStorage("prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, task.WrapStorage("prune", err)
	}
	if n > 0 {
		s.log.Info("expired tasks deactivated", logx.Int64("count", n))
	}
	return n, nil
}

func fmtSQLiteTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseSQLiteTime(v string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, v)
	if err == nil {
		return t.UTC(), nil
	}
	// Rows written by older tools may carry an offset-style ISO timestamp.
	t, err2 := time.Parse(time.RFC3339Nano, v)
	if err2 != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
