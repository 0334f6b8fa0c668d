package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"autolike/internal/task"
	logx "autolike/pkg/logx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestStore(t *testing.T, clk *fakeClock) Store {
	t.Helper()
	st, err := Open(Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "tasks.db"),
		Now:    clk.Now,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)}
}

func TestAddThenListActive(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := openTestStore(t, clk)

	added, err := st.Add(ctx, "ME", "12345", 1, "panel")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == 0 {
		t.Fatal("expected assigned id")
	}

	active, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	got := active[0]
	if got.Region != "ME" || got.UID != "12345" || got.Days != 1 || got.AddedBy != "panel" || !got.Active {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.ExpiryUTC.Sub(got.AddedAtUTC) != 24*time.Hour {
		t.Fatalf("expiry - added = %v, want 24h", got.ExpiryUTC.Sub(got.AddedAtUTC))
	}
	if d := got.AddedAtUTC.Sub(clk.Now()); d > time.Millisecond || d < -time.Millisecond {
		t.Fatalf("added_at %v not within tolerance of %v", got.AddedAtUTC, clk.Now())
	}
	if !got.ExpiryUTC.Equal(added.ExpiryUTC) || got.ID != added.ID {
		t.Fatalf("listed task %+v differs from added %+v", got, added)
	}
}

func TestAddTrimsAndValidates(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t, newClock())

	tk, err := st.Add(ctx, "  BD ", " 99 ", 3, task.AddedByTelegram(7))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if tk.Region != "BD" || tk.UID != "99" || tk.AddedBy != "tg:7" {
		t.Fatalf("unexpected task: %+v", tk)
	}

	for _, bad := range []struct {
		region, uid string
		days        int
	}{
		{"", "1", 1},
		{"ME", " ", 1},
		{"ME", "1", 0},
	} {
		if _, err := st.Add(ctx, bad.region, bad.uid, bad.days, "panel"); !errors.Is(err, task.ErrValidation) {
			t.Fatalf("Add(%q,%q,%d) err = %v, want validation error", bad.region, bad.uid, bad.days, err)
		}
	}

	all, err := st.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("invalid input created rows: %d", len(all))
	}
}

func TestLongLivedTaskSurvivesPrune(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := openTestStore(t, clk)

	if _, err := st.Add(ctx, "ME", "1", 200000, "panel"); !errors.Is(err, task.ErrValidation) {
		t.Fatalf("Add(200000 days) err = %v, want validation error", err)
	}
	added, err := st.Add(ctx, "ME", "1", task.MaxDays, "panel")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if y := added.ExpiryUTC.Year(); y != 2126 {
		t.Fatalf("expiry year = %d, want 2126", y)
	}

	clk.Advance(365 * 24 * time.Hour)
	n, err := st.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if n != 0 {
		t.Fatalf("pruned = %d, want 0", n)
	}
	active, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || !active[0].ExpiryUTC.Equal(added.ExpiryUTC) {
		t.Fatalf("active = %+v, want the long-lived task", active)
	}
}

func TestListOrderingNewestFirst(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := openTestStore(t, clk)

	for _, uid := range []string{"a", "b", "c"} {
		if _, err := st.Add(ctx, "ME", uid, 5, "panel"); err != nil {
			t.Fatalf("Add: %v", err)
		}
		clk.Advance(time.Second)
	}
	active, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 3 || active[0].UID != "c" || active[2].UID != "a" {
		t.Fatalf("unexpected order: %+v", active)
	}
	if active[0].ID <= active[1].ID {
		t.Fatalf("ids not descending: %d, %d", active[0].ID, active[1].ID)
	}
}

func TestPruneExpiredScenario(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := openTestStore(t, clk)

	if _, err := st.Add(ctx, "ME", "12345", 1, "panel"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	clk.Advance(24*time.Hour + time.Second)

	n, err := st.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}

	active, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active = %d, want 0", len(active))
	}
	all, err := st.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 || all[0].Active {
		t.Fatalf("expected one inactive task, got %+v", all)
	}

	// Idempotent: no time elapsed, nothing left to prune.
	n, err = st.PruneExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second prune = (%d, %v), want (0, nil)", n, err)
	}
}

func TestPruneKeepsUnexpired(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	st := openTestStore(t, clk)

	if _, err := st.Add(ctx, "ME", "short", 1, "panel"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := st.Add(ctx, "ME", "long", 30, "panel"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Exactly at expiry is not yet expired (strictly-before comparison).
	clk.Advance(24 * time.Hour)
	if n, _ := st.PruneExpired(ctx); n != 0 {
		t.Fatalf("pruned at exact expiry: %d", n)
	}
	clk.Advance(time.Microsecond)
	if n, _ := st.PruneExpired(ctx); n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	active, _ := st.ListActive(ctx)
	if len(active) != 1 || active[0].UID != "long" {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first, err := st.Add(ctx, "ME", "1", 2, "panel")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_ = st.Close()

	st, err = Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	second, err := st.Add(ctx, "ME", "2", 2, "panel")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("id reused or not monotonic: %d after %d", second.ID, first.ID)
	}
	all, err := st.ListAll(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListAll = (%d, %v), want 2 rows", len(all), err)
	}
}

func TestStorageErrorsSurface(t *testing.T) {
	st := openTestStore(t, newClock())
	_ = st.Close()
	if _, err := st.ListActive(context.Background()); !errors.Is(err, task.ErrStorage) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if _, err := st.PruneExpired(context.Background()); !errors.Is(err, task.ErrStorage) {
		t.Fatalf("err = %v, want storage error", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing sqlite path")
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("AUTOLIKE_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("AUTOLIKE_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	clk := newClock()
	st, err := Open(Config{Driver: "postgres", DSN: dsn, Now: clk.Now}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	added, err := st.Add(ctx, "ME", "pg-"+time.Now().Format("150405.000000"), 1, "panel")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	clk.Advance(48 * time.Hour)
	if _, err := st.PruneExpired(ctx); err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	all, err := st.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	for _, tk := range all {
		if tk.ID == added.ID {
			if tk.Active {
				t.Fatalf("task %d still active after prune", tk.ID)
			}
			return
		}
	}
	t.Fatalf("task %d not found", added.ID)
}
