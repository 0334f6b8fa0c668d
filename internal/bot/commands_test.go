package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"autolike/internal/storage"
	"autolike/internal/task"
	"autolike/internal/task/engine"
	kit "autolike/internal/transport"
	"autolike/internal/transport/telegram/router"
	logx "autolike/pkg/logx"
)

const adminID = 777

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeRunner struct {
	n     int
	err   error
	calls []engine.Trigger
	snap  engine.Snapshot
}

func (r *fakeRunner) Run(_ context.Context, trigger engine.Trigger) (int, error) {
	r.calls = append(r.calls, trigger)
	return r.n, r.err
}

func (r *fakeRunner) Snapshot() engine.Snapshot { return r.snap }

type harness struct {
	store  storage.Store
	runner *fakeRunner
	sender *fakeSender
	mgr    *router.CommandManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{store: st, runner: &fakeRunner{}, sender: &fakeSender{}}
	h.mgr = router.NewCommandManager(logx.Nop(), h.sender, []int64{adminID})
	h.mgr.SetRegistry(Commands(Deps{Store: st, Runner: h.runner}))
	return h
}

func (h *harness) send(from int64, text string) string {
	h.mgr.HandleUpdate(context.Background(), kit.Update{Message: &kit.Message{ChatID: 1, FromID: from, Text: text}})
	return h.sender.last()
}

func TestStart(t *testing.T) {
	h := newHarness(t)
	if got := h.send(1, "/start"); got != "👋 Welcome! Use /help for commands." {
		t.Fatalf("reply = %q", got)
	}
}

func TestAutolikeAddsTask(t *testing.T) {
	h := newHarness(t)
	if got := h.send(adminID, "/autolike IND 123 3"); got != "✅ Task added: IND / 123 / 3 day(s)" {
		t.Fatalf("reply = %q", got)
	}
	list, err := h.store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || list[0].AddedBy != fmt.Sprintf("tg:%d", adminID) {
		t.Fatalf("stored = %+v", list)
	}
}

func TestAutolikeArgumentErrors(t *testing.T) {
	h := newHarness(t)
	cases := map[string]string{
		"/autolike IND 123":       "Usage: /autolike <region> <uid> <days>",
		"/autolike IND 123 3 4":   "Usage: /autolike <region> <uid> <days>",
		"/autolike IND 123 three": "Days must be a number.",
		"/autolike IND 123 0":     "❌ days must be a positive number",
		`/autolike "" 123 1`:      "❌ region is required",
	}
	for in, want := range cases {
		if got := h.send(adminID, in); got != want {
			t.Fatalf("%s: reply = %q, want %q", in, got, want)
		}
	}
	if list, _ := h.store.ListActive(context.Background()); len(list) != 0 {
		t.Fatalf("invalid input stored %d tasks", len(list))
	}
}

func TestAdminOnlyCommands(t *testing.T) {
	h := newHarness(t)
	if got := h.send(1, "/autolike IND 123 3"); got != "❌ Only admin can add tasks." {
		t.Fatalf("reply = %q", got)
	}
	if got := h.send(1, "/run"); got != "❌ Only admin can run tasks." {
		t.Fatalf("reply = %q", got)
	}
	if len(h.runner.calls) != 0 {
		t.Fatalf("non-admin triggered a run")
	}
}

func TestTasksListing(t *testing.T) {
	h := newHarness(t)
	if got := h.send(1, "/tasks"); got != "No active tasks." {
		t.Fatalf("reply = %q", got)
	}
	h.send(adminID, "/autolike IND 111 1")
	h.send(adminID, "/autolike BR 222 2")

	got := h.send(1, "/tasks")
	lines := strings.Split(got, "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "#2 • BR • 222 • exp: ") || !strings.HasPrefix(lines[1], "#1 • IND • 111 • exp: ") {
		t.Fatalf("reply = %q", got)
	}
}

func TestFormatTaskListCaps(t *testing.T) {
	list := make([]task.Task, maxListed+5)
	for i := range list {
		list[i] = task.Task{ID: int64(i + 1), Region: "X", UID: "1", ExpiryUTC: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	}
	out := FormatTaskList(list)
	if n := len(strings.Split(out, "\n")); n != maxListed {
		t.Fatalf("lines = %d, want %d", n, maxListed)
	}
	if !strings.HasSuffix(strings.Split(out, "\n")[0], "exp: 2026-01-02T03:04:05Z") {
		t.Fatalf("first line = %q", strings.Split(out, "\n")[0])
	}
}

func TestRun(t *testing.T) {
	h := newHarness(t)
	h.runner.n = 2
	if got := h.send(adminID, "/run"); got != "✅ Run complete. 2 task result(s) sent to group." {
		t.Fatalf("reply = %q", got)
	}
	if len(h.runner.calls) != 1 || h.runner.calls[0] != engine.TriggerTelegram {
		t.Fatalf("calls = %v", h.runner.calls)
	}

	h.runner.err = engine.ErrRunInProgress
	if got := h.send(adminID, "/run"); got != "⏳ A run is already in progress." {
		t.Fatalf("reply = %q", got)
	}
	h.runner.err = task.WrapStorage("list", errors.New("locked"))
	if got := h.send(adminID, "/run"); got != "❌ run failed" {
		t.Fatalf("reply = %q", got)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	started := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	h.runner.snap = engine.Snapshot{
		TotalRuns: 3,
		Last:      &engine.RunRecord{Trigger: engine.TriggerSchedule, Started: started, Duration: 1500 * time.Millisecond, Active: 4, Sent: 2},
	}
	got := h.send(adminID, "/status")
	for _, want := range []string{"Running: no", "Runs: 3", "Last run: 2026-05-01T08:00:00Z by schedule, 2 of 4 sent in 1.5s", "Auto-run: off"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status %q missing %q", got, want)
		}
	}
}
