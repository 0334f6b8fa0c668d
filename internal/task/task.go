// Package task holds the likeboost task model shared by the store, the run
// engine and the front ends.
package task

import (
	"strconv"
	"strings"
	"time"
)

// MaxDays caps a task's lifetime at roughly a century.
const MaxDays = 36500

// Provenance prefixes for Task.AddedBy.
const (
	AddedByPanel    = "panel"
	addedByTelegram = "tg:"
)

// Task is a stored request to boost UID in Region until ExpiryUTC.
type Task struct {
	ID         int64     `json:"id"`
	Region     string    `json:"region"`
	UID        string    `json:"uid"`
	Days       int       `json:"days"`
	ExpiryUTC  time.Time `json:"expiry_utc"`
	AddedBy    string    `json:"added_by"`
	AddedAtUTC time.Time `json:"added_at_utc"`
	Active     bool      `json:"active"`
}

// Expired reports whether the task's expiry lies strictly before now.
func (t Task) Expired(now time.Time) bool { return t.ExpiryUTC.Before(now) }

// AddedByTelegram returns the provenance string for a chat user.
func AddedByTelegram(userID int64) string {
	return addedByTelegram + strconv.FormatInt(userID, 10)
}

// Draft is the validated input of an add operation.
type Draft struct {
	Region  string
	UID     string
	Days    int
	AddedBy string
}

// NewDraft trims and validates add input.
func NewDraft(region, uid string, days int, addedBy string) (Draft, error) {
	d := Draft{
		Region:  strings.TrimSpace(region),
		UID:     strings.TrimSpace(uid),
		Days:    days,
		AddedBy: strings.TrimSpace(addedBy),
	}
	if d.Region == "" {
		return Draft{}, &ValidationError{Field: "region", Msg: "region is required"}
	}
	if d.UID == "" {
		return Draft{}, &ValidationError{Field: "uid", Msg: "uid is required"}
	}
	if d.Days <= 0 {
		return Draft{}, &ValidationError{Field: "days", Msg: "days must be a positive number"}
	}
	if d.Days > MaxDays {
		return Draft{}, &ValidationError{Field: "days", Msg: "days must be at most " + strconv.Itoa(MaxDays)}
	}
	if d.AddedBy == "" {
		d.AddedBy = AddedByPanel
	}
	return d, nil
}

// Materialize stamps the draft with its creation time. Expiry is calendar
// arithmetic in UTC so long lifetimes never overflow a Duration.
func (d Draft) Materialize(now time.Time) Task {
	now = now.UTC()
	return Task{
		Region:     d.Region,
		UID:        d.UID,
		Days:       d.Days,
		ExpiryUTC:  now.AddDate(0, 0, d.Days),
		AddedBy:    d.AddedBy,
		AddedAtUTC: now,
		Active:     true,
	}
}
