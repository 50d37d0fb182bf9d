package config

import (
	"log/slog"
	"time"

	pkgconfig "newsreel/internal/pkg/config"
)

// NotifyConfig holds the broadcast-channel configuration for breaking-news
// dispatch (§6's "Notification transport"). Both channels can be
// enabled together; an unset webhook URL disables its channel regardless of
// the Enabled flag.
type NotifyConfig struct {
	DiscordEnabled    bool
	DiscordWebhookURL string
	DiscordTimeout    time.Duration

	SlackEnabled    bool
	SlackWebhookURL string
	SlackTimeout    time.Duration
}

// DefaultNotifyConfig returns both channels disabled; a deployment opts in
// by setting its webhook URL and the matching *_ENABLED flag.
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		DiscordTimeout: 10 * time.Second,
		SlackTimeout:   10 * time.Second,
	}
}

var notifyConfigMetrics = pkgconfig.NewConfigMetrics("notify")

// LoadNotifyConfigFromEnv mirrors LoadPipelineConfigFromEnv's fail-open
// env-loader idiom: an invalid value falls back to the default and is
// logged rather than treated as fatal.
func LoadNotifyConfigFromEnv(logger *slog.Logger) NotifyConfig {
	cfg := DefaultNotifyConfig()

	cfg.DiscordEnabled = pkgconfig.LoadEnvBool("DISCORD_NOTIFY_ENABLED", cfg.DiscordEnabled).Value.(bool)
	cfg.DiscordWebhookURL = pkgconfig.LoadEnvString("DISCORD_WEBHOOK_URL", cfg.DiscordWebhookURL)
	cfg.SlackEnabled = pkgconfig.LoadEnvBool("SLACK_NOTIFY_ENABLED", cfg.SlackEnabled).Value.(bool)
	cfg.SlackWebhookURL = pkgconfig.LoadEnvString("SLACK_WEBHOOK_URL", cfg.SlackWebhookURL)

	loadDuration := func(field *time.Duration, envKey string) {
		result := pkgconfig.LoadEnvDuration(envKey, *field, func(d time.Duration) error {
			return pkgconfig.ValidateDuration(d, time.Second, time.Minute)
		})
		*field = result.Value.(time.Duration)
		if result.FallbackApplied {
			notifyConfigMetrics.RecordValidationError(envKey)
			notifyConfigMetrics.RecordFallback(envKey, "default")
			for _, w := range result.Warnings {
				logger.Warn("configuration fallback applied", slog.String("env_key", envKey), slog.String("warning", w))
			}
		}
	}
	loadDuration(&cfg.DiscordTimeout, "DISCORD_WEBHOOK_TIMEOUT")
	loadDuration(&cfg.SlackTimeout, "SLACK_WEBHOOK_TIMEOUT")

	notifyConfigMetrics.RecordLoadTimestamp()
	return cfg
}
