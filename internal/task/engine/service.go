// Package engine executes a run: prune expired tasks, call the like API for
// every active task and announce each success in the output group.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autolike/internal/likeapi"
	"autolike/internal/task"
	logx "autolike/pkg/logx"
	"autolike/pkg/tgui"
)

const historySize = 50

type Service struct {
	store    Store
	like     LikeCaller
	notifier Notifier
	log      logx.Logger
	now      func() time.Time

	// runMu is the run lock. TryLock keeps a second trigger from queueing
	// behind the first and duplicating notifications.
	runMu sync.Mutex

	smu          sync.Mutex
	runningSince time.Time
	running      bool
	totalRuns    int64
	history      []RunRecord
}

func New(store Store, like LikeCaller, notifier Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    store,
		like:     like,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// RunAll runs every active task once, newest first, and returns how many
// results were sent to the group.
//
// Storage errors abort the run. Like-API misses skip the task. A canceled ctx
// stops the loop between tasks and returns the count so far with ctx.Err().
func (s *Service) RunAll(ctx context.Context) (int, error) {
	return s.Run(ctx, TriggerManual)
}

// Run is RunAll with the trigger recorded in logs and the snapshot.
func (s *Service) Run(ctx context.Context, trigger Trigger) (int, error) {
	if !s.runMu.TryLock() {
		return 0, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	rec := RunRecord{Trigger: trigger, Started: s.now().UTC()}
	s.markRunning(rec.Started)
	log := s.log.With(logx.String("trigger", string(trigger)))

	sent, err := s.run(ctx, log, &rec)

	rec.Sent = sent
	rec.Duration = s.now().Sub(rec.Started)
	if err != nil {
		rec.Error = err.Error()
	}
	s.finish(rec)

	switch {
	case err == nil:
		log.Info("run finished", logx.Int("active", rec.Active), logx.Int("sent", sent), logx.Duration("took", rec.Duration))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Warn("run interrupted", logx.Int("sent", sent), logx.Err(err))
	default:
		log.Error("run failed", logx.Int("sent", sent), logx.Err(err))
	}
	return sent, err
}

func (s *Service) run(ctx context.Context, log logx.Logger, rec *RunRecord) (int, error) {
	pruned, err := s.store.PruneExpired(ctx)
	if err != nil {
		return 0, err
	}
	rec.Pruned = pruned
	if pruned > 0 {
		log.Info("expired tasks deactivated", logx.Int64("count", pruned))
	}

	tasks, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	rec.Active = len(tasks)

	sent := 0
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		res, ok := s.like.Call(ctx, t.Region, t.UID)
		if !ok {
			log.Debug("task skipped", logx.Int64("task_id", t.ID), logx.String("uid", t.UID))
			continue
		}
		s.notifier.Send(ctx, FormatResult(t, res))
		sent++
	}
	return sent, nil
}

// maxNameRunes keeps a hostile player name from dominating the message.
const maxNameRunes = 64

// FormatResult renders the group message for one successful like call.
// Free-text fields are escaped for Markdown.
func FormatResult(t task.Task, r *likeapi.Result) string {
	return fmt.Sprintf(
		"✅ *Likes Sent Successfully*\n"+
			"*Player:* %s\n"+
			"*UID:* `%s`\n"+
			"*Region:* %s\n"+
			"*Level:* %s\n"+
			"*Before:* %d\n"+
			"*After:* %d\n"+
			"*Given:* %d",
		tgui.EscMarkdown(tgui.TruncRunes(r.PlayerName, maxNameRunes)),
		tgui.CodeSafe(t.UID),
		tgui.EscMarkdown(t.Region),
		tgui.EscMarkdown(r.Level),
		r.LikesBefore, r.LikesAfter, r.LikesGiven,
	)
}

func (s *Service) markRunning(at time.Time) {
	s.smu.Lock()
	s.running = true
	s.runningSince = at
	s.smu.Unlock()
}

func (s *Service) finish(rec RunRecord) {
	s.smu.Lock()
	s.running = false
	s.runningSince = time.Time{}
	s.totalRuns++
	s.history = append(s.history, rec)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.smu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.smu.Lock()
	defer s.smu.Unlock()
	snap := Snapshot{
		Running:   s.running,
		TotalRuns: s.totalRuns,
		History:   append([]RunRecord(nil), s.history...),
	}
	if s.running {
		at := s.runningSince
		snap.RunningSince = &at
	}
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		snap.Last = &last
	}
	return snap
}
