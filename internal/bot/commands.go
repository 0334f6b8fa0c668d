// Package bot defines the chat commands of the autolike bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"autolike/internal/task"
	"autolike/internal/task/engine"
	"autolike/internal/transport/telegram/router"
	logx "autolike/pkg/logx"
)

// maxListed caps /tasks output to keep the reply under one message.
const maxListed = 50

type Store interface {
	Add(ctx context.Context, region, uid string, days int, addedBy string) (task.Task, error)
	ListActive(ctx context.Context) ([]task.Task, error)
	PruneExpired(ctx context.Context) (int64, error)
}

type Runner interface {
	Run(ctx context.Context, trigger engine.Trigger) (int, error)
	Snapshot() engine.Snapshot
}

type Deps struct {
	Store  Store
	Runner Runner
	// NextAutoRun reports the next scheduled run; nil or zero means none.
	NextAutoRun func() time.Time
}

// Commands returns the command set registered with the router.
func Commands(d Deps) []router.Command {
	h := &handlers{d: d}
	return []router.Command{
		{
			Name:        "start",
			Description: "welcome message",
			Access:      router.AccessEveryone,
			Handle:      h.start,
		},
		{
			Name:        "autolike",
			Usage:       "/autolike <region> <uid> <days>",
			Description: "add a task",
			Access:      router.AccessAdminOnly,
			DeniedText:  "❌ Only admin can add tasks.",
			Timeout:     15 * time.Second,
			Handle:      h.autolike,
		},
		{
			Name:        "tasks",
			Description: "list active tasks",
			Access:      router.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      h.tasks,
		},
		{
			Name:        "run",
			Description: "run all active tasks now",
			Access:      router.AccessAdminOnly,
			DeniedText:  "❌ Only admin can run tasks.",
			Handle:      h.run,
		},
		{
			Name:        "status",
			Description: "last run and schedule",
			Access:      router.AccessAdminOnly,
			Handle:      h.status,
		},
	}
}

type handlers struct{ d Deps }

func (h *handlers) start(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, "👋 Welcome! Use /help for commands.")
}

func (h *handlers) autolike(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 3 {
		return req.Reply(ctx, "Usage: /autolike <region> <uid> <days>")
	}
	days, err := strconv.Atoi(strings.TrimSpace(req.Args[2]))
	if err != nil {
		return req.Reply(ctx, "Days must be a number.")
	}

	t, err := h.d.Store.Add(ctx, req.Args[0], req.Args[1], days, task.AddedByTelegram(req.FromID))
	if err != nil {
		var ve *task.ValidationError
		if errors.As(err, &ve) {
			return req.Reply(ctx, "❌ "+ve.Msg)
		}
		req.Logger.Error("add task failed", logx.Err(err))
		return req.Reply(ctx, "❌ failed to add task")
	}
	req.Logger.Info("task added", logx.Int64("task_id", t.ID), logx.String("region", t.Region), logx.String("uid", t.UID), logx.Int("days", t.Days))
	return req.Reply(ctx, fmt.Sprintf("✅ Task added: %s / %s / %d day(s)", t.Region, t.UID, t.Days))
}

func (h *handlers) tasks(ctx context.Context, req *router.Request) error {
	if _, err := h.d.Store.PruneExpired(ctx); err != nil {
		req.Logger.Error("prune failed", logx.Err(err))
		return req.Reply(ctx, "❌ failed to load tasks")
	}
	list, err := h.d.Store.ListActive(ctx)
	if err != nil {
		req.Logger.Error("list failed", logx.Err(err))
		return req.Reply(ctx, "❌ failed to load tasks")
	}
	return req.Reply(ctx, FormatTaskList(list))
}

// FormatTaskList renders the /tasks reply.
func FormatTaskList(list []task.Task) string {
	if len(list) == 0 {
		return "No active tasks."
	}
	lines := make([]string, 0, min(len(list), maxListed))
	for i, t := range list {
		if i == maxListed {
			break
		}
		lines = append(lines, fmt.Sprintf("#%d • %s • %s • exp: %s", t.ID, t.Region, t.UID, t.ExpiryUTC.UTC().Format(time.RFC3339)))
	}
	return strings.Join(lines, "\n")
}

func (h *handlers) run(ctx context.Context, req *router.Request) error {
	n, err := h.d.Runner.Run(ctx, engine.TriggerTelegram)
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		return req.Reply(ctx, "⏳ A run is already in progress.")
	case err != nil:
		req.Logger.Error("run failed", logx.Err(err))
		return req.Reply(ctx, "❌ run failed")
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Run complete. %d task result(s) sent to group.", n))
}

func (h *handlers) status(ctx context.Context, req *router.Request) error {
	var next time.Time
	if h.d.NextAutoRun != nil {
		next = h.d.NextAutoRun()
	}
	return req.Reply(ctx, FormatStatus(h.d.Runner.Snapshot(), next))
}

func FormatStatus(s engine.Snapshot, next time.Time) string {
	var b strings.Builder
	b.WriteString("📊 Status\n")
	if s.Running && s.RunningSince != nil {
		fmt.Fprintf(&b, "Running: yes, since %s\n", s.RunningSince.UTC().Format(time.RFC3339))
	} else {
		b.WriteString("Running: no\n")
	}
	fmt.Fprintf(&b, "Runs: %d\n", s.TotalRuns)
	if last := s.Last; last != nil {
		fmt.Fprintf(&b, "Last run: %s by %s, %d of %d sent in %s\n",
			last.Started.UTC().Format(time.RFC3339), last.Trigger, last.Sent, last.Active, last.Duration.Round(time.Millisecond))
		if last.Error != "" {
			fmt.Fprintf(&b, "Last error: %s\n", last.Error)
		}
	} else {
		b.WriteString("Last run: never\n")
	}
	if next.IsZero() {
		b.WriteString("Auto-run: off")
	} else {
		fmt.Fprintf(&b, "Next auto-run: %s", next.UTC().Format(time.RFC3339))
	}
	return b.String()
}
