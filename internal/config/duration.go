package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration; empty means 0. path names the key
// in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// mustDuration is for values already checked by Validate.
func mustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c TelegramConfig) PollTimeoutDuration() time.Duration {
	return mustDuration(c.PollTimeout, 10*time.Second)
}

func (c PanelConfig) SessionTTLDuration() time.Duration {
	return mustDuration(c.SessionTTL, 12*time.Hour)
}

func (c LikeAPIConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout, 25*time.Second)
}

func (c NotifierConfig) SendTimeoutDuration() time.Duration {
	return mustDuration(c.SendTimeout, 0)
}

func (c StorageConfig) BusyTimeoutDuration() time.Duration {
	return mustDuration(c.BusyTimeout, 0)
}

func (c SchedulerConfig) RunTimeoutDuration() time.Duration {
	return mustDuration(c.RunTimeout, 0)
}
