package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"autolike/internal/task/engine"
	logx "autolike/pkg/logx"
)

type Config struct {
	Enabled bool
	AutoRun string
	// Timezone is an IANA name such as "Asia/Jakarta". Empty means UTC.
	Timezone string
	// RunTimeout bounds one automatic run. 0 means no bound.
	RunTimeout time.Duration
}

// Runner is the engine entry point the scheduler triggers.
type Runner interface {
	Run(ctx context.Context, trigger engine.Trigger) (int, error)
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	spec   ParsedSpec
	loc    *time.Location
	runner Runner
	log    logx.Logger

	parser  cron.Parser
	c       *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc
}

// New validates cfg. A disabled config yields a Service whose Start is a no-op.
func New(cfg Config, runner Runner, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		runner: runner,
		log:    log,
		loc:    time.UTC,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	if !cfg.Enabled {
		return s, nil
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone %q: %w", tz, err)
		}
		s.loc = loc
	}
	spec, err := ParseSchedule(cfg.AutoRun)
	if err != nil {
		return nil, fmt.Errorf("scheduler auto_run: %w", err)
	}
	if _, err := s.parser.Parse(spec.CronSpec()); err != nil {
		return nil, fmt.Errorf("scheduler auto_run %q: %w", cfg.AutoRun, err)
	}
	s.spec = spec
	return s, nil
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Start registers the auto-run job. Runs triggered after ctx ends are
// canceled immediately.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.c != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := s.c.AddFunc(s.spec.CronSpec(), func() { s.fire(runCtx) })
	if err != nil {
		// New already validated the schedule.
		s.log.Error("auto-run register failed", logx.String("spec", s.spec.CronSpec()), logx.Err(err))
		return
	}
	s.entryID = id
	s.c.Start()
	s.log.Info("auto-run scheduled",
		logx.String("spec", s.spec.CronSpec()),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.c.Entry(id).Next),
	)
}

func (s *Service) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	n, err := s.runner.Run(ctx, engine.TriggerSchedule)
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		s.log.Info("auto-run skipped, a run is already in progress")
	case err != nil:
		s.log.Warn("auto-run failed", logx.Int("sent", n), logx.Err(err))
	default:
		s.log.Info("auto-run finished", logx.Int("sent", n))
	}
}

// Next returns the next trigger time, or zero when not running.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entryID).Next
}

// Stop stops triggering and waits for a running job until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("auto-run stopped")
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
