package panel

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"autolike/internal/notifier"
	"autolike/internal/task"
	"autolike/internal/task/engine"
	logx "autolike/pkg/logx"
)

//go:embed templates/*.html
var templateFS embed.FS

const requestIDHeader = "X-Request-ID"

type Config struct {
	Addr         string
	Secret       []byte
	SessionTTL   time.Duration
	SecureCookie bool

	// Reported by /status.
	HasToken      bool
	OutputGroupID int64
}

type Store interface {
	Add(ctx context.Context, region, uid string, days int, addedBy string) (task.Task, error)
	ListActive(ctx context.Context) ([]task.Task, error)
	PruneExpired(ctx context.Context) (int64, error)
}

type Runner interface {
	Run(ctx context.Context, trigger engine.Trigger) (int, error)
	Snapshot() engine.Snapshot
}

// StatsSource reports notifier delivery counters. Optional.
type StatsSource interface {
	Stats() notifier.Stats
}

type Deps struct {
	Store    Store
	Runner   Runner
	Auth     Authenticator
	Notifier StatsSource
	Now      func() time.Time
}

// Server owns the panel handler and its listener.
type Server struct {
	cfg  Config
	d    Deps
	log  logx.Logger
	tmpl *template.Template
	sess sessions

	handler http.Handler

	mu   sync.Mutex
	srv  *http.Server
	addr string
	done chan struct{}
}

func New(cfg Config, d Deps, log logx.Logger) (*Server, error) {
	if d.Store == nil || d.Runner == nil || d.Auth == nil {
		return nil, errors.New("panel: store, runner and authenticator are required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("panel: session secret is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"fmtTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("panel: parse templates: %w", err)
	}
	s := &Server{
		cfg:  cfg,
		d:    d,
		log:  log.With(logx.String("comp", "panel")),
		tmpl: tmpl,
		sess: sessions{secret: cfg.Secret, ttl: cfg.SessionTTL, secure: cfg.SecureCookie, now: d.Now},
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	pages := r.NewRoute().Subrouter()
	pages.Use(s.requirePage)
	pages.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	pages.HandleFunc("/add_task", s.handleAddTask).Methods(http.MethodPost)
	pages.HandleFunc("/run_tasks", s.handleRunTasks).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAPI)
	api.HandleFunc("/tasks", s.handleAPITasks).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = requestID(h)
	h = handlers.ProxyHeaders(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: s.log}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

func (s *Server) requirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.sess.verify(r); err != nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.sess.verify(r); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
			r.Header.Set(requestIDHeader, rid)
		}
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	fields := []logx.Field{
		logx.String("method", p.Request.Method),
		logx.String("path", p.URL.Path),
		logx.Int("status", p.StatusCode),
		logx.Int("size", p.Size),
		logx.Duration("took", time.Since(p.TimeStamp)),
		logx.String("remote", p.Request.RemoteAddr),
		logx.String("req_id", p.Request.Header.Get(requestIDHeader)),
	}
	if p.StatusCode >= http.StatusInternalServerError {
		s.log.Warn("http request", fields...)
		return
	}
	s.log.Debug("http request", fields...)
}

type recoveryLogger struct{ log logx.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("panic in http handler", logx.String("panic", fmt.Sprint(v...)))
}

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("panel: listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.srv = srv
	s.addr = ln.Addr().String()
	s.done = make(chan struct{})

	done := s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("panel server error", logx.String("addr", ln.Addr().String()), logx.Err(err))
		}
	}()
	s.log.Info("panel listening", logx.String("addr", s.addr))
	return nil
}

// Addr returns the bound address, or "" when not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the listener down. In-flight runs started from the
// panel are not cancelled.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.addr, s.done = nil, "", nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = srv.Close()
	} else {
		err = nil
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("panel stopped")
	return err
}
