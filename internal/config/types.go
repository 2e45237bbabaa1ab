package config

import "time"

// Config is the complete application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Persona   PersonaConfig   `mapstructure:"persona"`
	AutoReply AutoReplyConfig `mapstructure:"autoreply"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Matrix    MatrixConfig    `mapstructure:"matrix"`
	Web       WebConfig       `mapstructure:"web"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// AIConfig configures the completion backend. An empty APIKey is allowed and
// puts the responder in degraded mode, where every reply is the fallback text.
type AIConfig struct {
	Provider        string        `mapstructure:"provider"         validate:"oneof=openai gemini"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"         validate:"omitempty,url"`
	Model           string        `mapstructure:"model"            validate:"required"`
	Temperature     float64       `mapstructure:"temperature"      validate:"min=0,max=2"`
	MaxTokens       int           `mapstructure:"max_tokens"       validate:"min=1,max=32768"`
	Timeout         time.Duration `mapstructure:"timeout"          validate:"min=1s,max=10m"`
	FallbackMessage string        `mapstructure:"fallback_message" validate:"required"`
}

// PersonaConfig selects the persona prompt.
type PersonaConfig struct {
	OwnerName string `mapstructure:"owner_name" validate:"required"`
	Path      string `mapstructure:"path"`
}

// AutoReplyConfig holds the reply gating policy.
type AutoReplyConfig struct {
	QuietPeriod          time.Duration `mapstructure:"quiet_period"           validate:"gte=0"`
	SkipGroups           bool          `mapstructure:"skip_groups"`
	TypingPerChar        time.Duration `mapstructure:"typing_per_char"        validate:"gte=0"`
	TypingMaxDelay       time.Duration `mapstructure:"typing_max_delay"       validate:"gte=0"`
	MaxConcurrentReplies int           `mapstructure:"max_concurrent_replies" validate:"min=1,max=1000"`
	IgnoreConversations  []string      `mapstructure:"ignore_conversations"`
}

// TelegramConfig configures the Telegram Business connection. OwnerID may be
// left at zero, in which case it is learned from the business connection.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	OwnerID int64  `mapstructure:"owner_id" validate:"gte=0"`
}

// MatrixConfig configures the Matrix connection, logged in as the owner.
type MatrixConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Homeserver    string        `mapstructure:"homeserver"     validate:"omitempty,url"`
	UserID        string        `mapstructure:"user_id"`
	AccessToken   string        `mapstructure:"access_token"`
	TypingTimeout time.Duration `mapstructure:"typing_timeout" validate:"gte=0"`
}

// WebConfig configures the HTTP surface.
type WebConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Addr         string `mapstructure:"addr"          validate:"required"`
	HistoryMode  string `mapstructure:"history_mode"  validate:"oneof=memory stateless"`
	HistoryLimit int    `mapstructure:"history_limit" validate:"min=1"`
	SenderName   string `mapstructure:"sender_name"`
}

// DatabaseConfig configures the optional snapshot store. An empty Path
// disables persistence.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig lists scheduled tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// MessagesConfig holds texts sent to the owner by bot commands.
type MessagesConfig struct {
	Welcome      string `mapstructure:"welcome"       validate:"required"`
	Help         string `mapstructure:"help"          validate:"required"`
	Unauthorized string `mapstructure:"unauthorized"  validate:"required"`
	ResetDone    string `mapstructure:"reset_done"    validate:"required"`
	StatusEmpty  string `mapstructure:"status_empty"  validate:"required"`
	StatusHeader string `mapstructure:"status_header" validate:"required"`
	ForgetUsage  string `mapstructure:"forget_usage"  validate:"required"`
	ForgetDone   string `mapstructure:"forget_done"   validate:"required"`
	ForgetAbsent string `mapstructure:"forget_absent" validate:"required"`
}
