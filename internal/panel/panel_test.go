package panel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"autolike/internal/notifier"
	"autolike/internal/storage"
	"autolike/internal/task"
	"autolike/internal/task/engine"
	logx "autolike/pkg/logx"
)

type fakeRunner struct {
	mu    sync.Mutex
	n     int
	err   error
	calls []engine.Trigger
	snap  engine.Snapshot
}

func (r *fakeRunner) Run(_ context.Context, trigger engine.Trigger) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, trigger)
	return r.n, r.err
}

func (r *fakeRunner) Snapshot() engine.Snapshot { return r.snap }

type fakeStats struct{ st notifier.Stats }

func (f fakeStats) Stats() notifier.Stats { return f.st }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	srv    *httptest.Server
	store  storage.Store
	runner *fakeRunner
	clock  *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "panel.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := &clock{now: time.Now()}
	runner := &fakeRunner{}
	p, err := New(Config{
		Secret:        []byte("0123456789abcdef0123"),
		SessionTTL:    time.Hour,
		HasToken:      true,
		OutputGroupID: -100123,
	}, Deps{
		Store:    store,
		Runner:   runner,
		Auth:     StaticCredentials{Username: "admin", Password: "secret"},
		Notifier: fakeStats{st: notifier.Stats{Sent: 4, Failed: 1}},
		Now:      clk.Now,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(p.Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, store: store, runner: runner, clock: clk}
}

// client follows redirects and keeps cookies.
func (h *harness) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func noRedirect(c *http.Client) *http.Client {
	cp := *c
	cp.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &cp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func (h *harness) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(h.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (h *harness) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(h.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (h *harness) login(t *testing.T, c *http.Client) {
	t.Helper()
	resp, body := h.post(t, c, "/", url.Values{"username": {" admin "}, "password": {"secret"}})
	if resp.Request.URL.Path != "/dashboard" || !strings.Contains(body, "Tasks (") {
		t.Fatalf("login landed on %s: %s", resp.Request.URL.Path, body)
	}
}

func TestSessionRoutesRequireLogin(t *testing.T) {
	h := newHarness(t)
	c := noRedirect(h.client(t))

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/dashboard"},
		{http.MethodPost, "/add_task"},
		{http.MethodPost, "/run_tasks"},
	} {
		req, _ := http.NewRequest(tc.method, h.srv.URL+tc.path, nil)
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
			t.Fatalf("%s %s = %d %q", tc.method, tc.path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}

	resp, _ := h.get(t, c, "/api/tasks")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/api/tasks = %d", resp.StatusCode)
	}
	if len(h.runner.calls) != 0 {
		t.Fatalf("runner called without a session")
	}
}

func TestInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	resp, body := h.post(t, c, "/", url.Values{"username": {"admin"}, "password": {"nope"}})
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Invalid credentials.") {
		t.Fatalf("status %d body %s", resp.StatusCode, body)
	}
	resp, _ = h.get(t, noRedirect(c), "/dashboard")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("dashboard after failed login = %d", resp.StatusCode)
	}
}

func TestAddListRunFlow(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c)

	_, body := h.post(t, c, "/add_task", url.Values{"region": {" ME "}, "uid": {"12345"}, "days": {"1"}})
	if !strings.Contains(body, "Task added.") || !strings.Contains(body, "12345") || !strings.Contains(body, "Tasks (1)") {
		t.Fatalf("after add: %s", body)
	}

	// Flash is shown once.
	_, body = h.get(t, c, "/dashboard")
	if strings.Contains(body, "Task added.") {
		t.Fatalf("flash shown twice")
	}

	_, body = h.post(t, c, "/add_task", url.Values{"region": {""}, "uid": {"1"}})
	if !strings.Contains(body, "Region and UID are required.") {
		t.Fatalf("missing region: %s", body)
	}
	_, body = h.post(t, c, "/add_task", url.Values{"region": {"ME"}, "uid": {"1"}, "days": {"0"}})
	if !strings.Contains(body, "days must be a positive number") {
		t.Fatalf("zero days: %s", body)
	}
	_, body = h.post(t, c, "/add_task", url.Values{"region": {"ME"}, "uid": {"1"}, "days": {"two"}})
	if !strings.Contains(body, "Days must be a number.") {
		t.Fatalf("bad days: %s", body)
	}

	// Omitted days default to one.
	h.post(t, c, "/add_task", url.Values{"region": {"BR"}, "uid": {"999"}})

	resp, raw := h.get(t, c, "/api/tasks")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/tasks = %d", resp.StatusCode)
	}
	var tasks []task.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		t.Fatalf("decode: %v (%s)", err, raw)
	}
	if len(tasks) != 2 || tasks[0].UID != "999" || tasks[0].Days != 1 || tasks[1].Region != "ME" || tasks[1].AddedBy != task.AddedByPanel {
		t.Fatalf("tasks = %+v", tasks)
	}

	h.runner.n = 3
	_, body = h.post(t, c, "/run_tasks", nil)
	if !strings.Contains(body, "Run finished. 3 result(s) sent to group.") {
		t.Fatalf("run: %s", body)
	}
	if len(h.runner.calls) != 1 || h.runner.calls[0] != engine.TriggerPanel {
		t.Fatalf("runner calls = %v", h.runner.calls)
	}

	h.runner.err = engine.ErrRunInProgress
	_, body = h.post(t, c, "/run_tasks", nil)
	if !strings.Contains(body, "A run is already in progress.") {
		t.Fatalf("busy run: %s", body)
	}

	_, _ = h.get(t, c, "/logout")
	resp, _ = h.get(t, c, "/api/tasks")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/api/tasks after logout = %d", resp.StatusCode)
	}
}

func TestAPITasksEmptyArray(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c)
	_, raw := h.get(t, c, "/api/tasks")
	if strings.TrimSpace(raw) != "[]" {
		t.Fatalf("body = %q", raw)
	}
}

func TestSessionExpires(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c)

	h.clock.Advance(2 * time.Hour)
	resp, _ := h.get(t, noRedirect(c), "/dashboard")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expired session status = %d", resp.StatusCode)
	}
}

func TestForgedSessionRejected(t *testing.T) {
	h := newHarness(t)
	other := sessions{secret: []byte("another-secret-value"), ttl: time.Hour, now: time.Now}
	rec := httptest.NewRecorder()
	if err := other.issue(rec, "admin"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/tasks", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token status = %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	h.runner.snap = engine.Snapshot{TotalRuns: 2, Last: &engine.RunRecord{Trigger: engine.TriggerSchedule, Started: started, Sent: 1, Active: 2}}

	resp, raw := h.get(t, http.DefaultClient, "/status")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("status %d headers %v", resp.StatusCode, resp.Header)
	}
	var got struct {
		Status        string `json:"status"`
		TimeUTC       string `json:"time_utc"`
		HasToken      bool   `json:"has_token"`
		OutputGroupID int64  `json:"output_group_id"`
		TotalRuns     int64  `json:"total_runs"`
		LastRun       *struct {
			Trigger string `json:"trigger"`
			Sent    int    `json:"sent"`
		} `json:"last_run"`
		Notifications *notifier.Stats `json:"notifications"`
	}
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || !got.HasToken || got.OutputGroupID != -100123 || got.TotalRuns != 2 {
		t.Fatalf("status = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, got.TimeUTC); err != nil {
		t.Fatalf("time_utc %q: %v", got.TimeUTC, err)
	}
	if got.LastRun == nil || got.LastRun.Trigger != "schedule" || got.LastRun.Sent != 1 {
		t.Fatalf("last_run = %+v", got.LastRun)
	}
	if got.Notifications == nil || got.Notifications.Sent != 4 || got.Notifications.Failed != 1 {
		t.Fatalf("notifications = %+v", got.Notifications)
	}
}

func TestStaticCredentials(t *testing.T) {
	c := StaticCredentials{Username: "admin", Password: "pw"}
	cases := []struct {
		u, p string
		want bool
	}{
		{"admin", "pw", true},
		{"admin", "PW", false},
		{"Admin", "pw", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := c.Authenticate(tc.u, tc.p); got != tc.want {
			t.Fatalf("Authenticate(%q,%q) = %v", tc.u, tc.p, got)
		}
	}
	if (StaticCredentials{}).Authenticate("", "") {
		t.Fatalf("empty credentials must never authenticate")
	}
}

func TestStartStop(t *testing.T) {
	store, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "s.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	p, err := New(Config{Addr: "127.0.0.1:0", Secret: []byte("0123456789abcdef")}, Deps{
		Store: store, Runner: &fakeRunner{}, Auth: StaticCredentials{Username: "a", Password: "b"},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + p.Addr() + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Addr() != "" {
		t.Fatalf("Addr after Stop = %q", p.Addr())
	}
}
