package config

// Config is the root configuration. All durations are Go duration strings
// (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Store is the notification record store.
	Store StoreConfig `json:"store"`

	// Checkpoint is the local snapshot of periodic-check markers.
	Checkpoint CheckpointConfig `json:"checkpoint"`

	Scheduler     SchedulerConfig     `json:"scheduler"`
	Notifications NotificationsConfig `json:"notifications"`
	Stats         StatsConfig         `json:"stats"`
	Web           WebConfig           `json:"web"`

	// Mailer relays contact submissions to a transactional email API.
	// Omitted means disabled.
	Mailer *MailerConfig `json:"mailer,omitempty"`

	// Projects declares the portfolio projects the site serves.
	Projects []ProjectConfig `json:"projects"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the record store driver.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./data/folionotify.db" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type CheckpointConfig struct {
	Path string `json:"path"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	StartDelay        string `json:"start_delay,omitempty"`
	SummaryPeriod     string `json:"summary_period,omitempty"`
	PerformancePeriod string `json:"performance_period,omitempty"`
}

type NotificationsConfig struct {
	// FeedLimit bounds the live feed (default 10).
	FeedLimit int `json:"feed_limit,omitempty"`
	// Milestones overrides the default view-count milestone set.
	Milestones []int `json:"milestones,omitempty"`
}

type StatsConfig struct {
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`
	ErrorRatePct   float64 `json:"error_rate_pct,omitempty"`
}

type WebConfig struct {
	Addr string `json:"addr"` // default "127.0.0.1:8080"

	// Single-admin credentials. The dashboard logs in with the password and
	// receives a JWT signed with the secret.
	AdminPassword string `json:"admin_password"`
	JWTSecret     string `json:"jwt_secret"`
	TokenTTL      string `json:"token_ttl,omitempty"` // default "12h"

	CORSOrigin string `json:"cors_origin,omitempty"`
}

type MailerConfig struct {
	Enabled    bool   `json:"enabled"`
	Endpoint   string `json:"endpoint"`
	APIKey     string `json:"api_key"` // do not log
	From       string `json:"from"`
	To         string `json:"to"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
}

type ProjectConfig struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Published bool   `json:"published"`
	Featured  bool   `json:"featured,omitempty"`
}
