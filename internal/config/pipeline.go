package config

import (
	"log/slog"
	"strconv"
	"time"

	pkgconfig "newsreel/internal/pkg/config"
)

// PipelineConfig holds the full configuration table for the ingestion-to-
// story pipeline (feed poller, clustering, status machine, summarizer,
// breaking-news monitor). Every field has a safe default and is loaded
// through the fail-open LoadConfigFromEnv strategy: invalid or unparsable
// environment values fall back to the default and are logged, never fatal.
type PipelineConfig struct {
	FeedTickPeriod      time.Duration
	FeedsPerTick        int
	FeedCooldown        time.Duration
	FeedCooldownTier1   time.Duration

	ClusterSimThreshold float64
	ClusterEntityMin    int
	ClusterWindowHours  time.Duration

	BreakingRePromoteWindow time.Duration
	BreakingIdleTimeout     time.Duration
	MonitorPeriod           time.Duration

	SummaryMinSourceDelta int
	SummaryRegenHours     time.Duration
	SummaryLeaseTTL       time.Duration
	BatchMaxSize          int
	BatchBackfillHours    time.Duration
	BatchPeriod           time.Duration
	BatchMinAge           time.Duration

	NotificationFreshnessHorizon time.Duration
}

// DefaultPipelineConfig returns the documented defaults (§6).
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		FeedTickPeriod:    10 * time.Second,
		FeedsPerTick:      10,
		FeedCooldown:      180 * time.Second,
		FeedCooldownTier1: 60 * time.Second,

		ClusterSimThreshold: 0.50,
		ClusterEntityMin:    3,
		ClusterWindowHours:  6 * time.Hour,

		BreakingRePromoteWindow: 15 * time.Minute,
		BreakingIdleTimeout:     90 * time.Minute,
		MonitorPeriod:           5 * time.Minute,

		SummaryMinSourceDelta: 2,
		SummaryRegenHours:     12 * time.Hour,
		SummaryLeaseTTL:       2 * time.Minute,
		BatchMaxSize:          500,
		BatchBackfillHours:    48 * time.Hour,
		BatchPeriod:           30 * time.Minute,
		BatchMinAge:           10 * time.Minute,

		NotificationFreshnessHorizon: 1 * time.Hour,
	}
}

// pipelineConfigMetrics tracks configuration fallbacks, mirroring the
// teacher's internal/infra/worker.WorkerMetrics pattern.
var pipelineConfigMetrics = pkgconfig.NewConfigMetrics("pipeline")

// floatEnv mirrors pkgconfig.LoadEnvInt for float64 values; the loader
// package has no float variant (teacher's config loaders cover string/int/
// bool/duration only), so it is added here rather than widening the shared
// loader for a single caller.
func floatEnv(key string, defaultValue float64, validate func(float64) error) (value float64, fallback bool, warning string) {
	raw := pkgconfig.LoadEnvString(key, "")
	if raw == "" {
		return defaultValue, false, ""
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue, true, "invalid float: " + err.Error()
	}
	if validate != nil {
		if err := validate(parsed); err != nil {
			return defaultValue, true, err.Error()
		}
	}
	return parsed, false, ""
}

// LoadPipelineConfigFromEnv loads the pipeline configuration table from
// environment variables with validation and fail-open fallback (see
// internal/infra/worker.LoadConfigFromEnv for the pattern this mirrors).
func LoadPipelineConfigFromEnv(logger *slog.Logger) PipelineConfig {
	cfg := DefaultPipelineConfig()

	loadDuration := func(field *time.Duration, envKey string, min, max time.Duration) {
		result := pkgconfig.LoadEnvDuration(envKey, *field, func(d time.Duration) error {
			return pkgconfig.ValidateDuration(d, min, max)
		})
		*field = result.Value.(time.Duration)
		if result.FallbackApplied {
			pipelineConfigMetrics.RecordValidationError(envKey)
			pipelineConfigMetrics.RecordFallback(envKey, "default")
			for _, w := range result.Warnings {
				logger.Warn("configuration fallback applied", slog.String("env_key", envKey), slog.String("warning", w))
			}
		}
	}

	loadInt := func(field *int, envKey string, min, max int) {
		result := pkgconfig.LoadEnvInt(envKey, *field, func(v int) error {
			return pkgconfig.ValidateIntRange(v, min, max)
		})
		*field = result.Value.(int)
		if result.FallbackApplied {
			pipelineConfigMetrics.RecordValidationError(envKey)
			pipelineConfigMetrics.RecordFallback(envKey, "default")
			for _, w := range result.Warnings {
				logger.Warn("configuration fallback applied", slog.String("env_key", envKey), slog.String("warning", w))
			}
		}
	}

	loadDuration(&cfg.FeedTickPeriod, "FEED_TICK_PERIOD", time.Second, time.Minute)
	loadInt(&cfg.FeedsPerTick, "FEEDS_PER_TICK", 1, 100)
	loadDuration(&cfg.FeedCooldown, "FEED_COOLDOWN", 10*time.Second, time.Hour)
	loadDuration(&cfg.FeedCooldownTier1, "FEED_COOLDOWN_TIER1", 10*time.Second, time.Hour)

	loadInt(&cfg.ClusterEntityMin, "CLUSTER_ENTITY_MIN", 1, 20)
	loadDuration(&cfg.ClusterWindowHours, "CLUSTER_WINDOW_HOURS", time.Hour, 48*time.Hour)

	loadDuration(&cfg.BreakingRePromoteWindow, "BREAKING_RE_PROMOTE_WINDOW", time.Minute, 6*time.Hour)
	loadDuration(&cfg.BreakingIdleTimeout, "BREAKING_IDLE_TIMEOUT", time.Minute, 24*time.Hour)
	loadDuration(&cfg.MonitorPeriod, "MONITOR_PERIOD", 30*time.Second, time.Hour)
	loadDuration(&cfg.NotificationFreshnessHorizon, "NOTIFICATION_FRESHNESS_HORIZON", time.Minute, 24*time.Hour)

	loadInt(&cfg.SummaryMinSourceDelta, "SUMMARY_MIN_SOURCE_DELTA", 1, 50)
	loadDuration(&cfg.SummaryRegenHours, "SUMMARY_REGEN_HOURS", time.Hour, 72*time.Hour)
	loadDuration(&cfg.SummaryLeaseTTL, "SUMMARY_LEASE_TTL", 10*time.Second, 10*time.Minute)
	loadInt(&cfg.BatchMaxSize, "BATCH_MAX_SIZE", 1, 5000)
	loadDuration(&cfg.BatchBackfillHours, "BATCH_BACKFILL_HOURS", time.Hour, 7*24*time.Hour)
	loadDuration(&cfg.BatchPeriod, "BATCH_PERIOD", time.Minute, 6*time.Hour)
	loadDuration(&cfg.BatchMinAge, "BATCH_MIN_AGE", time.Minute, 24*time.Hour)

	threshold, fallback, warning := floatEnv("CLUSTER_SIM_THRESHOLD", cfg.ClusterSimThreshold, func(v float64) error {
		return pkgconfig.ValidateIntRange(int(v*100), 0, 100)
	})
	cfg.ClusterSimThreshold = threshold
	if fallback {
		pipelineConfigMetrics.RecordValidationError("CLUSTER_SIM_THRESHOLD")
		pipelineConfigMetrics.RecordFallback("CLUSTER_SIM_THRESHOLD", "default")
		logger.Warn("configuration fallback applied", slog.String("env_key", "CLUSTER_SIM_THRESHOLD"), slog.String("warning", warning))
	}

	pipelineConfigMetrics.RecordLoadTimestamp()
	return cfg
}
