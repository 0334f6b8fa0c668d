package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.LikeAPI.URL) == "" {
		add("like_api.url is required")
	} else if u, err := url.Parse(strings.TrimSpace(c.LikeAPI.URL)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("like_api.url must be an http(s) URL")
	}
	if c.LikeAPI.RatePerSec < 0 {
		add("like_api.rate_per_sec must be >= 0")
	}
	if c.Notifier.RatePerSec < 0 {
		add("notifier.rate_per_sec must be >= 0")
	}

	if c.Panel.Enabled {
		if strings.TrimSpace(c.Panel.Username) == "" || c.Panel.Password == "" {
			add("panel.username and panel.password are required when the panel is enabled")
		}
		if len(c.Panel.Secret) < 16 {
			add("panel.secret must be at least 16 characters when the panel is enabled")
		}
		if c.Panel.Port <= 0 || c.Panel.Port > 65535 {
			add("panel.port %d out of range", c.Panel.Port)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path is required for sqlite")
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn is required for postgres")
		}
	default:
		add("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
	}

	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.AutoRun) == "" {
		add("scheduler.auto_run is required when the scheduler is enabled")
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("scheduler.timezone: %v", err)
		}
	}

	if c.Logging.Telegram.Enabled && c.Logging.Telegram.ChatID == 0 {
		add("logging.telegram.chat_id is required when telegram logging is enabled")
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"panel.session_ttl", c.Panel.SessionTTL},
		{"like_api.timeout", c.LikeAPI.Timeout},
		{"notifier.send_timeout", c.Notifier.SendTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.run_timeout", c.Scheduler.RunTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
