// Package config loads and validates the awaybot configuration. Values come
// from built-in defaults, an optional YAML file and the environment, in that
// order of increasing precedence.
package config

import (
	"errors"
	"log/slog"
	"strings"
)

var (
	// ErrConfiguration is returned when the configuration cannot be read or parsed.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation is returned when the configuration is well-formed but invalid.
	ErrValidation = errors.New("configuration validation failed")
)

// PlaceholderAPIKey is the sample key shipped in example env files. It is
// treated as no key at all.
const PlaceholderAPIKey = "your_groq_api_key_here"

// HasAIKey reports whether a completion backend credential is configured.
func (c *Config) HasAIKey() bool {
	return strings.TrimSpace(c.AI.APIKey) != ""
}

// LogValue implements slog.LogValuer. Secrets are reported only as present or absent.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("log_level", c.Log.Level),
		slog.String("ai_provider", c.AI.Provider),
		slog.String("ai_model", c.AI.Model),
		slog.Bool("ai_key_set", c.HasAIKey()),
		slog.Duration("quiet_period", c.AutoReply.QuietPeriod),
		slog.Bool("skip_groups", c.AutoReply.SkipGroups),
		slog.Bool("telegram", c.Telegram.Enabled),
		slog.Bool("matrix", c.Matrix.Enabled),
		slog.Bool("web", c.Web.Enabled),
		slog.String("web_addr", c.Web.Addr),
		slog.String("db_path", c.Database.Path),
	)
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	if c.AI.APIKey == PlaceholderAPIKey {
		c.AI.APIKey = ""
	}
	c.Web.HistoryMode = strings.ToLower(strings.TrimSpace(c.Web.HistoryMode))
	if c.Web.SenderName == "" {
		c.Web.SenderName = c.Persona.OwnerName
	}

	ids := c.AutoReply.IgnoreConversations[:0]
	for _, id := range c.AutoReply.IgnoreConversations {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	c.AutoReply.IgnoreConversations = ids
}
