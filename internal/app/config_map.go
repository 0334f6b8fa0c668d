package app

import (
	"net"
	"strconv"
	"strings"

	"autolike/internal/config"
	"autolike/internal/likeapi"
	"autolike/internal/notifier"
	"autolike/internal/storage"
	"autolike/internal/task/scheduler"
	logx "autolike/pkg/logx"
)

// The mappers below assume cfg passed Validate.

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: sc.BusyTimeoutDuration(),
		MaxConns:    sc.MaxConns,
	}
}

func mapLikeAPIConfig(cfg *config.Config) likeapi.Config {
	return likeapi.Config{
		Endpoint:   strings.TrimSpace(cfg.LikeAPI.URL),
		Timeout:    cfg.LikeAPI.TimeoutDuration(),
		RatePerSec: cfg.LikeAPI.RatePerSec,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		ChatID:      cfg.Telegram.OutputGroupID,
		ThreadID:    cfg.Telegram.OutputThreadID,
		RatePerSec:  cfg.Notifier.RatePerSec,
		SendTimeout: cfg.Notifier.SendTimeoutDuration(),
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:    cfg.Scheduler.Enabled,
		AutoRun:    cfg.Scheduler.AutoRun,
		Timezone:   cfg.Scheduler.Timezone,
		RunTimeout: cfg.Scheduler.RunTimeoutDuration(),
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func panelAddr(cfg *config.Config) string {
	host := strings.TrimSpace(cfg.Panel.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Panel.Port))
}

// hotSections are config sections applied without a restart.
var hotSections = map[string]bool{"logging": true}

func restartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}
