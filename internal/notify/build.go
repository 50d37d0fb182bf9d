package notify

import (
	"log/slog"

	"newsreel/internal/config"
)

// Build wires a Broadcaster from NotifyConfig: one channel per enabled,
// configured webhook, fanned out via MultiBroadcaster, or NoOpBroadcaster
// if nothing is enabled.
func Build(cfg config.NotifyConfig, logger *slog.Logger) (Broadcaster, error) {
	var channels []Broadcaster

	if cfg.DiscordEnabled && cfg.DiscordWebhookURL != "" {
		d, err := NewDiscordBroadcaster(DiscordConfig{
			Enabled:    true,
			WebhookURL: cfg.DiscordWebhookURL,
			Timeout:    cfg.DiscordTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, d)
	}

	if cfg.SlackEnabled && cfg.SlackWebhookURL != "" {
		s, err := NewSlackBroadcaster(SlackConfig{
			Enabled:    true,
			WebhookURL: cfg.SlackWebhookURL,
			Timeout:    cfg.SlackTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, s)
	}

	switch len(channels) {
	case 0:
		return NoOpBroadcaster{}, nil
	case 1:
		return channels[0], nil
	default:
		return MultiBroadcaster{Channels: channels}, nil
	}
}
