package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultAIProvider        = "openai"
	DefaultAIModel           = "gpt-4o-mini"
	DefaultAITemperature     = 0.9
	DefaultAIMaxTokens       = 150
	DefaultAITimeout         = 30 * time.Second
	DefaultAIFallbackMessage = "Hey, I'm a bit busy right now. Will get back to you soon! 👍"

	DefaultPersonaOwnerName = "Alex"

	DefaultQuietPeriod          = 5 * time.Minute
	DefaultTypingPerChar        = 50 * time.Millisecond
	DefaultTypingMaxDelay       = 5 * time.Second
	DefaultMaxConcurrentReplies = 16

	DefaultMatrixTypingTimeout = 30 * time.Second

	DefaultWebAddr         = ":3000"
	DefaultWebHistoryMode  = "memory"
	DefaultWebHistoryLimit = 500
)

// Default scheduled tasks. Schedules use the six-field cron format (with seconds).
var defaultTasks = map[string]TaskConfig{
	"activity_sweep":    {Enabled: true, Schedule: "0 */10 * * * *"},
	"activity_snapshot": {Enabled: true, Schedule: "30 * * * * *"},
	"sql_maintenance":   {Enabled: true, Schedule: "0 0 3 * * *"},
}

// Default owner command messages
var defaultMessages = MessagesConfig{
	Welcome:      "👋 Auto-reply is running. I answer for you after you have been quiet in a chat for a while. Use /help to see the commands.",
	Help:         "/status - show tracked conversations\n/forget <conversation> - make one conversation eligible again\n/reset - forget all tracked activity\n/help - show this message",
	Unauthorized: "🚫 Only the owner can use this bot.",
	ResetDone:    "🔄 Forgot activity for %d conversations.",
	StatusEmpty:  "No conversations tracked yet.",
	StatusHeader: "Quiet period: %s\n\n",
	ForgetUsage:  "Usage: /forget <conversation>, e.g. /forget tg:12345",
	ForgetDone:   "🔄 Forgot activity for %s.",
	ForgetAbsent: "%s has no tracked activity.",
}
