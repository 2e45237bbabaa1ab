package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key when read from the
// environment, e.g. AWAYBOT_AI_API_KEY for ai.api_key.
const EnvPrefix = "AWAYBOT"

// Environment variable names accepted for compatibility with existing
// deployments. The prefixed name always wins when both are set.
const (
	legacyEnvAPIKey          = "GROQ_API_KEY"
	legacyEnvModel           = "GROQ_MODEL"
	legacyEnvAutoReplyDelay  = "AUTO_REPLY_DELAY" // milliseconds
	legacyEnvSkipGroups      = "SKIP_GROUPS"
	legacyEnvFallbackMessage = "FALLBACK_MESSAGE"
	legacyEnvPort            = "PORT"
)

// Backend defaults applied when the key comes from GROQ_API_KEY.
const (
	GroqBaseURL = "https://api.groq.com/openai/v1"
	GroqModel   = "llama-3.3-70b-versatile"
)

// Load builds the configuration from defaults, the optional YAML file at path
// and the environment, then validates it. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("%w: failed to bind environment: %v", ErrConfiguration, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		} else {
			slog.Debug("Configuration file loaded", "path", path)
		}
	}

	if err := applyLegacyEnv(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", false)

	v.SetDefault("ai.provider", DefaultAIProvider)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", DefaultAIModel)
	v.SetDefault("ai.temperature", DefaultAITemperature)
	v.SetDefault("ai.max_tokens", DefaultAIMaxTokens)
	v.SetDefault("ai.timeout", DefaultAITimeout)
	v.SetDefault("ai.fallback_message", DefaultAIFallbackMessage)

	v.SetDefault("persona.owner_name", DefaultPersonaOwnerName)
	v.SetDefault("persona.path", "")

	v.SetDefault("autoreply.quiet_period", DefaultQuietPeriod)
	v.SetDefault("autoreply.skip_groups", false)
	v.SetDefault("autoreply.typing_per_char", DefaultTypingPerChar)
	v.SetDefault("autoreply.typing_max_delay", DefaultTypingMaxDelay)
	v.SetDefault("autoreply.max_concurrent_replies", DefaultMaxConcurrentReplies)
	v.SetDefault("autoreply.ignore_conversations", []string{})

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.owner_id", 0)

	v.SetDefault("matrix.enabled", false)
	v.SetDefault("matrix.homeserver", "")
	v.SetDefault("matrix.user_id", "")
	v.SetDefault("matrix.access_token", "")
	v.SetDefault("matrix.typing_timeout", DefaultMatrixTypingTimeout)

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.addr", DefaultWebAddr)
	v.SetDefault("web.history_mode", DefaultWebHistoryMode)
	v.SetDefault("web.history_limit", DefaultWebHistoryLimit)
	v.SetDefault("web.sender_name", "")

	v.SetDefault("database.path", "")

	for name, task := range defaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}

	v.SetDefault("messages.welcome", defaultMessages.Welcome)
	v.SetDefault("messages.help", defaultMessages.Help)
	v.SetDefault("messages.unauthorized", defaultMessages.Unauthorized)
	v.SetDefault("messages.reset_done", defaultMessages.ResetDone)
	v.SetDefault("messages.status_empty", defaultMessages.StatusEmpty)
	v.SetDefault("messages.status_header", defaultMessages.StatusHeader)
	v.SetDefault("messages.forget_usage", defaultMessages.ForgetUsage)
	v.SetDefault("messages.forget_done", defaultMessages.ForgetDone)
	v.SetDefault("messages.forget_absent", defaultMessages.ForgetAbsent)
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys with a legacy alias need explicit bindings; the first non-empty
	// variable wins.
	aliases := map[string]string{
		"ai.api_key":            legacyEnvAPIKey,
		"ai.model":              legacyEnvModel,
		"autoreply.skip_groups": legacyEnvSkipGroups,
		"ai.fallback_message":   legacyEnvFallbackMessage,
	}
	for key, legacy := range aliases {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return err
		}
	}
	return nil
}

// applyLegacyEnv maps legacy variables whose format differs from the native key.
func applyLegacyEnv(v *viper.Viper) error {
	if raw, ok := os.LookupEnv(legacyEnvAutoReplyDelay); ok && !envSet("autoreply.quiet_period") {
		ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid %s %q: want non-negative milliseconds", legacyEnvAutoReplyDelay, raw)
		}
		v.Set("autoreply.quiet_period", time.Duration(ms)*time.Millisecond)
	}

	if port, ok := os.LookupEnv(legacyEnvPort); ok && strings.TrimSpace(port) != "" && !envSet("web.addr") {
		if _, err := strconv.Atoi(strings.TrimSpace(port)); err != nil {
			return fmt.Errorf("invalid %s %q: want a port number", legacyEnvPort, port)
		}
		v.Set("web.addr", ":"+strings.TrimSpace(port))
	}

	if groqKeyInUse() && strings.EqualFold(strings.TrimSpace(v.GetString("ai.provider")), "openai") {
		if strings.TrimSpace(v.GetString("ai.base_url")) == "" {
			v.Set("ai.base_url", GroqBaseURL)
		}
		if !v.InConfig("ai.model") && !envSet("ai.model") && strings.TrimSpace(os.Getenv(legacyEnvModel)) == "" {
			v.Set("ai.model", GroqModel)
		}
	}
	return nil
}

// groqKeyInUse reports whether ai.api_key resolves to GROQ_API_KEY.
func groqKeyInUse() bool {
	if strings.TrimSpace(os.Getenv(legacyEnvAPIKey)) == "" {
		return false
	}
	return strings.TrimSpace(os.Getenv(envName("ai.api_key"))) == ""
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(envName(key))
	return ok
}
