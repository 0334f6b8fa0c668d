package engine

import (
	"context"
	"time"

	"autolike/internal/likeapi"
	"autolike/internal/task"
)

// Store is the part of the task store a run needs.
type Store interface {
	PruneExpired(ctx context.Context) (int64, error)
	ListActive(ctx context.Context) ([]task.Task, error)
}

// LikeCaller performs the external like call. ok=false means skip the task.
type LikeCaller interface {
	Call(ctx context.Context, region, uid string) (*likeapi.Result, bool)
}

// Notifier delivers one formatted result. Failures are its own business.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// Trigger names who started a run. It only shows up in logs and snapshots.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerPanel    Trigger = "panel"
	TriggerTelegram Trigger = "telegram"
	TriggerSchedule Trigger = "schedule"
)

// RunRecord describes one finished run.
type RunRecord struct {
	Trigger  Trigger       `json:"trigger"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Pruned   int64         `json:"pruned"`
	Active   int           `json:"active"`
	Sent     int           `json:"sent"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for the status endpoint and /status.
type Snapshot struct {
	Running      bool        `json:"running"`
	RunningSince *time.Time  `json:"running_since,omitempty"`
	TotalRuns    int64       `json:"total_runs"`
	Last         *RunRecord  `json:"last,omitempty"`
	History      []RunRecord `json:"-"`
}
