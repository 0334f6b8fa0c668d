package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autolike/internal/notifier"
	"autolike/internal/task"
	"autolike/internal/task/engine"
	logx "autolike/pkg/logx"
)

type pageData struct {
	Title    string
	Flash    *flash
	Tasks    []task.Task
	Total    int
	Snapshot engine.Snapshot
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render failed", logx.String("template", name), logx.Err(err))
	}
}

func (s *Server) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, category, msg string) {
	setFlash(w, category, msg, s.cfg.SecureCookie)
	http.Redirect(w, r, to, http.StatusFound)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login.html", pageData{Title: "Login", Flash: popFlash(w, r)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := strings.TrimSpace(r.PostFormValue("password"))
	if !s.d.Auth.Authenticate(username, password) {
		s.log.Warn("panel login failed", logx.String("username", username), logx.String("remote", r.RemoteAddr))
		s.render(w, http.StatusOK, "login.html", pageData{
			Title: "Login",
			Flash: &flash{Category: flashDanger, Message: "Invalid credentials."},
		})
		return
	}
	if err := s.sess.issue(w, username); err != nil {
		s.log.Error("issue session failed", logx.Err(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.log.Info("panel login", logx.String("username", username))
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sess.clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// activeTasks prunes first so expired rows never show as active.
func (s *Server) activeTasks(ctx context.Context) ([]task.Task, error) {
	if _, err := s.d.Store.PruneExpired(ctx); err != nil {
		return nil, err
	}
	return s.d.Store.ListActive(ctx)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.activeTasks(r.Context())
	if err != nil {
		s.log.Error("dashboard: list tasks failed", logx.Err(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "dashboard.html", pageData{
		Title:    "Dashboard",
		Flash:    popFlash(w, r),
		Tasks:    tasks,
		Total:    len(tasks),
		Snapshot: s.d.Runner.Snapshot(),
	})
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	region := strings.TrimSpace(r.PostFormValue("region"))
	uid := strings.TrimSpace(r.PostFormValue("uid"))
	if region == "" || uid == "" {
		s.redirectWithFlash(w, r, "/dashboard", flashWarning, "Region and UID are required.")
		return
	}
	rawDays := strings.TrimSpace(r.PostFormValue("days"))
	if rawDays == "" {
		rawDays = "1"
	}
	days, err := strconv.Atoi(rawDays)
	if err != nil {
		s.redirectWithFlash(w, r, "/dashboard", flashWarning, "Days must be a number.")
		return
	}

	t, err := s.d.Store.Add(r.Context(), region, uid, days, task.AddedByPanel)
	if err != nil {
		var ve *task.ValidationError
		if errors.As(err, &ve) {
			s.redirectWithFlash(w, r, "/dashboard", flashWarning, ve.Error())
			return
		}
		s.log.Error("add task failed", logx.Err(err))
		s.redirectWithFlash(w, r, "/dashboard", flashDanger, "Failed to add task.")
		return
	}
	s.log.Info("task added", logx.Int64("id", t.ID), logx.String("region", t.Region), logx.String("uid", t.UID), logx.Int("days", t.Days))
	s.redirectWithFlash(w, r, "/dashboard", flashSuccess, "Task added.")
}

func (s *Server) handleRunTasks(w http.ResponseWriter, r *http.Request) {
	// A client hanging up must not cut the run short.
	ctx := context.WithoutCancel(r.Context())
	n, err := s.d.Runner.Run(ctx, engine.TriggerPanel)
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		s.redirectWithFlash(w, r, "/dashboard", flashWarning, "A run is already in progress.")
	case err != nil:
		s.log.Error("panel run failed", logx.Err(err))
		s.redirectWithFlash(w, r, "/dashboard", flashDanger, "Run failed.")
	default:
		s.redirectWithFlash(w, r, "/dashboard", flashSuccess, fmt.Sprintf("Run finished. %d result(s) sent to group.", n))
	}
}

func (s *Server) handleAPITasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.activeTasks(r.Context())
	if err != nil {
		s.log.Error("api: list tasks failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type statusResponse struct {
	Status        string            `json:"status"`
	TimeUTC       string            `json:"time_utc"`
	HasToken      bool              `json:"has_token"`
	OutputGroupID int64             `json:"output_group_id"`
	Running       bool              `json:"running"`
	TotalRuns     int64             `json:"total_runs"`
	LastRun       *engine.RunRecord `json:"last_run,omitempty"`
	Notifications *notifier.Stats   `json:"notifications,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.d.Runner.Snapshot()
	resp := statusResponse{
		Status:        "ok",
		TimeUTC:       s.d.Now().UTC().Format(time.RFC3339),
		HasToken:      s.cfg.HasToken,
		OutputGroupID: s.cfg.OutputGroupID,
		Running:       snap.Running,
		TotalRuns:     snap.TotalRuns,
		LastRun:       snap.Last,
	}
	if s.d.Notifier != nil {
		st := s.d.Notifier.Stats()
		resp.Notifications = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
