package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, DefaultQuietPeriod, cfg.AutoReply.QuietPeriod)
	require.False(t, cfg.AutoReply.SkipGroups)
	require.Equal(t, DefaultAIModel, cfg.AI.Model)
	require.Equal(t, DefaultAIFallbackMessage, cfg.AI.FallbackMessage)
	require.Equal(t, DefaultAITemperature, cfg.AI.Temperature)
	require.Equal(t, DefaultAIMaxTokens, cfg.AI.MaxTokens)
	require.Equal(t, DefaultWebAddr, cfg.Web.Addr)
	require.True(t, cfg.Web.Enabled)
	require.False(t, cfg.HasAIKey())
	require.Equal(t, cfg.Persona.OwnerName, cfg.Web.SenderName)
	require.Len(t, cfg.Scheduler.Tasks, len(defaultTasks))
	require.True(t, cfg.Scheduler.Tasks["activity_sweep"].Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
ai:
  api_key: file-key
  model: llama-3.1-8b-instant
autoreply:
  quiet_period: 90s
  skip_groups: true
  ignore_conversations: ["tg:1", " ", "mx:!room:example.org"]
web:
  addr: ":8080"
  history_mode: stateless
scheduler:
  tasks:
    sql_maintenance:
      enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "file-key", cfg.AI.APIKey)
	require.Equal(t, "llama-3.1-8b-instant", cfg.AI.Model)
	require.Equal(t, 90*time.Second, cfg.AutoReply.QuietPeriod)
	require.True(t, cfg.AutoReply.SkipGroups)
	require.Equal(t, []string{"tg:1", "mx:!room:example.org"}, cfg.AutoReply.IgnoreConversations)
	require.Equal(t, ":8080", cfg.Web.Addr)
	require.Equal(t, "stateless", cfg.Web.HistoryMode)
	require.False(t, cfg.Scheduler.Tasks["sql_maintenance"].Enabled)
	require.True(t, cfg.Scheduler.Tasks["activity_snapshot"].Enabled)
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("AWAYBOT_AI_API_KEY", "env-key")
	t.Setenv("AWAYBOT_AUTOREPLY_QUIET_PERIOD", "2m")
	t.Setenv("AWAYBOT_WEB_ADDR", ":9000")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.AI.APIKey)
	require.Equal(t, 2*time.Minute, cfg.AutoReply.QuietPeriod)
	require.Equal(t, ":9000", cfg.Web.Addr)
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_legacy")
	t.Setenv("GROQ_MODEL", "mixtral")
	t.Setenv("AUTO_REPLY_DELAY", "60000")
	t.Setenv("SKIP_GROUPS", "true")
	t.Setenv("FALLBACK_MESSAGE", "brb")
	t.Setenv("PORT", "4000")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "gsk_legacy", cfg.AI.APIKey)
	require.Equal(t, "mixtral", cfg.AI.Model)
	require.Equal(t, GroqBaseURL, cfg.AI.BaseURL)
	require.Equal(t, "openai", cfg.AI.Provider)
	require.Equal(t, time.Minute, cfg.AutoReply.QuietPeriod)
	require.True(t, cfg.AutoReply.SkipGroups)
	require.Equal(t, "brb", cfg.AI.FallbackMessage)
	require.Equal(t, ":4000", cfg.Web.Addr)
}

func TestLoad_LegacyKeyDefaultsToGroq(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_legacy")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, GroqBaseURL, cfg.AI.BaseURL)
	require.Equal(t, GroqModel, cfg.AI.Model)
}

func TestLoad_LegacyKeyKeepsExplicitBackend(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_legacy")
	path := writeConfig(t, `
ai:
  base_url: https://llm.internal/v1
  model: local-model
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://llm.internal/v1", cfg.AI.BaseURL)
	require.Equal(t, "local-model", cfg.AI.Model)
}

func TestLoad_PlaceholderKeyIsMissing(t *testing.T) {
	t.Setenv("GROQ_API_KEY", PlaceholderAPIKey)

	cfg, err := Load("")
	require.NoError(t, err)
	require.False(t, cfg.HasAIKey())
}

func TestLoad_PrefixedWinsOverLegacy(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "legacy")
	t.Setenv("AWAYBOT_AI_API_KEY", "prefixed")
	t.Setenv("AUTO_REPLY_DELAY", "1000")
	t.Setenv("AWAYBOT_AUTOREPLY_QUIET_PERIOD", "10m")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prefixed", cfg.AI.APIKey)
	require.Empty(t, cfg.AI.BaseURL)
	require.Equal(t, DefaultAIModel, cfg.AI.Model)
	require.Equal(t, 10*time.Minute, cfg.AutoReply.QuietPeriod)
}

func TestLoad_InvalidLegacyDelay(t *testing.T) {
	t.Setenv("AUTO_REPLY_DELAY", "five minutes")

	_, err := Load("")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "ai: [unterminated")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "no surfaces", mutate: func(c *Config) { c.Web.Enabled = false }},
		{name: "telegram without token", mutate: func(c *Config) { c.Telegram.Enabled = true }},
		{name: "telegram with token", mutate: func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.Token = "123:abc"
		}, ok: true},
		{name: "matrix missing fields", mutate: func(c *Config) { c.Matrix.Enabled = true }},
		{name: "matrix complete", mutate: func(c *Config) {
			c.Matrix.Enabled = true
			c.Matrix.Homeserver = "https://matrix.example.org"
			c.Matrix.UserID = "@alex:example.org"
			c.Matrix.AccessToken = "syt_token"
		}, ok: true},
		{name: "bad provider", mutate: func(c *Config) { c.AI.Provider = "anthropic" }},
		{name: "bad history mode", mutate: func(c *Config) { c.Web.HistoryMode = "disk" }},
		{name: "negative quiet period", mutate: func(c *Config) { c.AutoReply.QuietPeriod = -time.Second }},
		{name: "zero quiet period", mutate: func(c *Config) { c.AutoReply.QuietPeriod = 0 }, ok: true},
		{name: "enabled task without schedule", mutate: func(c *Config) {
			c.Scheduler.Tasks["activity_sweep"] = TaskConfig{Enabled: true}
		}},
		{name: "reset message without count", mutate: func(c *Config) { c.Messages.ResetDone = "done" }},
		{name: "forget message without conversation", mutate: func(c *Config) { c.Messages.ForgetDone = "done" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(cfg)

			err = cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}
