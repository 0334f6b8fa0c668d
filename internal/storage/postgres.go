package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"autolike/internal/task"
	logx "autolike/pkg/logx"
)

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
	now  func() time.Time
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	if err := migratePostgres(dsn, log); err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info("postgres store opened", logx.Int("max_conns", int(pcfg.MaxConns)))
	return &pgStore{pool: pool, log: log, now: cfg.clock()}, nil
}

func (s *pgStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *pgStore) Add(ctx context.Context, region, uid string, days int, addedBy string) (task.Task, error) {
	d, err := task.NewDraft(region, uid, days, addedBy)
	if err != nil {
		return task.Task{}, err
	}
	// Postgres keeps microseconds.
	t := d.Materialize(s.now().Truncate(time.Microsecond))

	err = s.pool.QueryRow(ctx, `
		INSERT INTO tasks (region, uid, days, expiry_utc, added_by, added_at_utc, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id`,
		t.Region, t.UID, t.Days, t.ExpiryUTC, t.AddedBy, t.AddedAtUTC).Scan(&t.ID)
	if err != nil {
		return task.Task{}, task.WrapStorage("add", err)
	}
	s.log.Debug("task added", logx.Int64("id", t.ID), logx.String("region", t.Region), logx.String("uid", t.UID))
	return t, nil
}

func (s *pgStore) ListActive(ctx context.Context) ([]task.Task, error) {
	return s.list(ctx, "list active", `SELECT `+taskColumns+` FROM tasks WHERE active ORDER BY id DESC`)
}

func (s *pgStore) ListAll(ctx context.Context) ([]task.Task, error) {
	return s.list(ctx, "list all", `SELECT `+taskColumns+` FROM tasks ORDER BY id DESC`)
}

func (s *pgStore) list(ctx context.Context, op, query string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, task.WrapStorage(op, err)
	}
	defer rows.Close()

	out := make([]task.Task, 0, 16)
	for rows.Next() {
		var t task.Task
		if err := rows.Scan(&t.ID, &t.Region, &t.UID, &t.Days, &t.ExpiryUTC, &t.AddedBy, &t.AddedAtUTC, &t.Active); err != nil {
			return nil, task.WrapStorage(op, err)
		}
		t.ExpiryUTC = t.ExpiryUTC.UTC()
		t.AddedAtUTC = t.AddedAtUTC.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, task.WrapStorage(op, err)
	}
	return out, nil
}

func (s *pgStore) PruneExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET active = FALSE WHERE active AND expiry_utc < $1`, s.now().UTC())
	if err != nil {
		return 0, task.WrapStorage("prune", err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		s.log.Info("expired tasks deactivated", logx.Int64("count", n))
	}
	return n, nil
}
