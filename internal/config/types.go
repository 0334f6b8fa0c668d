package config

// Config is the whole process configuration.
//
// Sources, later wins: built-in defaults, the config file (YAML or JSON),
// a .env file, process environment. Durations are Go duration strings.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Panel     PanelConfig     `json:"panel"`
	LikeAPI   LikeAPIConfig   `json:"like_api"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
}

// TelegramConfig: an empty token disables the bot. Results then have no way
// to reach the group and the notifier logs each attempt as an error.
type TelegramConfig struct {
	Token          string  `json:"token" env:"AUTOLIKE_BOT_TOKEN"`
	AdminIDs       []int64 `json:"admin_ids" env:"AUTOLIKE_ADMIN_IDS" envSeparator:","`
	OutputGroupID  int64   `json:"output_group_id" env:"AUTOLIKE_OUTPUT_GROUP_ID"`
	OutputThreadID int     `json:"output_thread_id,omitempty"`
	PollTimeout    string  `json:"poll_timeout"`
}

type PanelConfig struct {
	Enabled  bool   `json:"enabled" env:"AUTOLIKE_PANEL_ENABLED"`
	Host     string `json:"host" env:"AUTOLIKE_PANEL_HOST"`
	Port     int    `json:"port" env:"PORT"`
	Username string `json:"username" env:"AUTOLIKE_PANEL_USERNAME"`
	Password string `json:"password" env:"AUTOLIKE_PANEL_PASSWORD"`
	// Secret signs session tokens (HS256).
	Secret     string `json:"secret" env:"AUTOLIKE_PANEL_SECRET"`
	SessionTTL string `json:"session_ttl"`
	// SecureCookie marks cookies Secure; enable behind HTTPS.
	SecureCookie bool `json:"secure_cookie,omitempty"`
}

type LikeAPIConfig struct {
	URL        string  `json:"url" env:"AUTOLIKE_LIKE_API"`
	Timeout    string  `json:"timeout"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type NotifierConfig struct {
	RatePerSec  float64 `json:"rate_per_sec"`
	SendTimeout string  `json:"send_timeout,omitempty"`
}

// StorageConfig selects the task store.
//
// Example:
//
//	storage: { driver: sqlite, path: ./autolike.db }
type StorageConfig struct {
	Driver      string `json:"driver" env:"AUTOLIKE_DB_DRIVER"`
	Path        string `json:"path" env:"AUTOLIKE_DB_PATH"`
	DSN         string `json:"dsn,omitempty" env:"AUTOLIKE_DATABASE_URL"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	MaxConns    int32  `json:"max_conns,omitempty"`
}

type SchedulerConfig struct {
	Enabled    bool   `json:"enabled"`
	AutoRun    string `json:"auto_run,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	RunTimeout string `json:"run_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" env:"AUTOLIKE_LOG_LEVEL"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Default returns the configuration used for omitted keys.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Panel: PanelConfig{
			Enabled:    true,
			Host:       "0.0.0.0",
			Port:       10000,
			SessionTTL: "12h",
		},
		LikeAPI:  LikeAPIConfig{Timeout: "25s"},
		Notifier: NotifierConfig{RatePerSec: 1},
		Storage:  StorageConfig{Driver: "sqlite", Path: "./autolike.db"},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			File:     LoggingFile{Path: "./autolike.log"},
			Telegram: LoggingTelegram{MinLevel: "warn", RatePerSec: 1},
		},
	}
}
