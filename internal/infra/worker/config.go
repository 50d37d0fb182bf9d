package worker

import (
	"newsreel/internal/pkg/config"
	"fmt"
	"log/slog"
)

// WorkerConfig holds the configuration for the worker binary: the cron
// schedule driving the batch summarizer's periodic cycle, the timezone it
// runs in, and the health-check listen address shared by every pipeline
// task running in the same process.
//
// This binary runs five independent long-running tasks (feed poller,
// clustering engine, realtime summarizer, breaking-news monitor, batch
// summarizer), each with its own ticker period sourced from PipelineConfig
// (internal/config). Only the batch summarizer is cron-scheduled rather
// than ticker-driven (§4.5's batch submission cadence), so this type
// narrows to exactly what that scheduling needs.
type WorkerConfig struct {
	// BatchCronSchedule is the cron expression driving BatchDispatcher.RunOnce.
	BatchCronSchedule string

	// Timezone is the IANA timezone name the cron schedule evaluates in.
	Timezone string

	// HealthPort is the port number for the health/readiness/metrics HTTP server.
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with sensible default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		BatchCronSchedule: "*/30 * * * *",
		Timezone:          "UTC",
		HealthPort:        9091,
	}
}

// Validate checks if the configuration values are valid.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.BatchCronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("batch cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure
// (fail-open strategy: invalid values log a warning and fall back rather
// than aborting startup).
//
// Environment variables:
//   - BATCH_CRON_SCHEDULE: cron expression (default: "*/30 * * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default: 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	apply := func(field, envKey string, result config.ConfigLoadResult) {
		if result.FallbackApplied {
			fallbackApplied = true
			metrics.RecordValidationError(envKey)
			metrics.RecordFallback(envKey, "default")
			for _, warning := range result.Warnings {
				logger.Warn("configuration fallback applied",
					slog.String("field", field), slog.String("env_key", envKey), slog.String("warning", warning))
			}
		}
	}

	result := config.LoadEnvWithFallback("BATCH_CRON_SCHEDULE", cfg.BatchCronSchedule, config.ValidateCronSchedule)
	cfg.BatchCronSchedule = result.Value.(string)
	apply("BatchCronSchedule", "batch_cron_schedule", result)

	result = config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	apply("Timezone", "timezone", result)

	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	apply("HealthPort", "health_port", result)

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
