package config

// Config is the on-disk configuration. All durations are Go duration
// strings (e.g. "500ms", "10s", "1m"); parsing into runtime types happens
// when the app wires services.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Notify    NotifyConfig    `json:"notify"`
	Chat      ChatConfig      `json:"chat"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig controls the REST listener.
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Addr            string `json:"addr,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// NotifyConfig selects the outbound delivery channel.
//
// Channel is "smtp" (default), "telegram" or "log".
type NotifyConfig struct {
	Channel    string               `json:"channel,omitempty"`
	RatePerMin int                  `json:"rate_per_min,omitempty"`
	SMTP       SMTPConfig           `json:"smtp,omitempty"`
	Telegram   TelegramNotifyConfig `json:"telegram,omitempty"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	From     string `json:"from"`
	Timeout  string `json:"timeout,omitempty"`
}

type TelegramNotifyConfig struct {
	Token         string `json:"token,omitempty"` // do not log
	DefaultChatID int64  `json:"default_chat_id,omitempty"`
}

// ChatConfig controls the conversational front-ends.
type ChatConfig struct {
	// Timezone for clock times in chat messages ("2pm"). Defaults to the
	// service reference timezone.
	Timezone string             `json:"timezone,omitempty"`
	Telegram ChatTelegramConfig `json:"telegram,omitempty"`
}

type ChatTelegramConfig struct {
	Enabled         bool   `json:"enabled"`
	Token           string `json:"token,omitempty"` // do not log
	PollTimeout     string `json:"poll_timeout,omitempty"`
	ReplyRatePerSec int    `json:"reply_rate_per_sec,omitempty"`
}

// SchedulerConfig controls the delivery dispatcher.
type SchedulerConfig struct {
	Enabled        bool   `json:"enabled"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	SweepEvery     string `json:"sweep_every,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./mailsched.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
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
