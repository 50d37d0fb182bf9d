package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"newsreel/internal/config"
	"newsreel/internal/domain/entity"
	"newsreel/internal/infra/db"
	workerPkg "newsreel/internal/infra/worker"
	"newsreel/internal/notify"
	"newsreel/internal/pipeline/cluster"
	"newsreel/internal/pipeline/monitor"
	"newsreel/internal/pipeline/normalize"
	"newsreel/internal/pipeline/poller"
	"newsreel/internal/pipeline/summarize"
	"newsreel/internal/store"
	"newsreel/internal/store/postgres"
)

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	pipelineConfig := config.LoadPipelineConfigFromEnv(logger)
	notifyConfig := config.LoadNotifyConfigFromEnv(logger)
	logger.Info("worker configuration loaded",
		slog.String("batch_cron_schedule", workerConfig.BatchCronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("health_port", workerConfig.HealthPort))

	feedListPath := os.Getenv("FEED_LIST_PATH")
	if feedListPath == "" {
		feedListPath = "configs/feeds.yaml"
	}
	feeds, err := config.LoadFeedList(feedListPath)
	if err != nil {
		logger.Error("failed to load feed list", slog.String("path", feedListPath), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("feed list loaded", slog.Int("feeds", len(feeds)))

	broadcaster, err := notify.Build(notifyConfig, logger)
	if err != nil {
		logger.Error("failed to build notification broadcaster", slog.Any("error", err))
		os.Exit(1)
	}

	stores := newStores(database)
	if err := ensureSchema(ctx, stores); err != nil {
		logger.Error("failed to ensure document store schema", slog.Any("error", err))
		os.Exit(1)
	}

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	startMetricsServer(ctx, logger)

	pollerTask := buildPoller(feeds, stores, pipelineConfig, logger)
	clusterEngine := buildClusterEngine(stores, broadcaster, logger)
	realtimeDispatcher := buildRealtimeDispatcher(stores, pipelineConfig, logger)
	batchDispatcher := buildBatchDispatcher(stores, pipelineConfig, logger)
	breakingMonitor := buildMonitor(stores, broadcaster, pipelineConfig, logger)

	location, err := time.LoadLocation(workerConfig.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, defaulting to UTC", slog.String("timezone", workerConfig.Timezone))
		location = time.UTC
	}
	batchCron := cron.New(cron.WithLocation(location))
	if _, err := batchCron.AddFunc(workerConfig.BatchCronSchedule, func() {
		runBatchCycle(ctx, batchDispatcher, workerMetrics, logger)
	}); err != nil {
		logger.Error("failed to schedule batch summarizer cron job", slog.Any("error", err))
		os.Exit(1)
	}
	batchCron.Start()
	defer batchCron.Stop()

	categories := entity.AllCategories()
	healthServer.SetReady(true)
	logger.Info("worker ready", slog.Int("categories", len(categories)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pollerTask.Run(gctx) })
	g.Go(func() error { return clusterEngine.Run(gctx, categories) })
	g.Go(func() error { return realtimeDispatcher.Run(gctx, categories) })
	g.Go(func() error { return breakingMonitor.Run(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("pipeline task failed", slog.Any("error", err))
	}
	logger.Info("worker shutting down")
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and runs every container's
// migration, folding the migration step in directly: MigrateUp is
// idempotent and owned by this binary rather than a separate job.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate document store schema", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// pipelineStores bundles one postgres.Store[T] per document-store
// container the pipeline's five tasks share.
type pipelineStores struct {
	clusters      store.Store[entity.StoryCluster]
	articles      store.Store[entity.RawArticle]
	pollStates    store.Store[entity.FeedPollState]
	leases        store.Store[entity.ChangeStreamLease]
	notifications store.Store[entity.NotificationRecord]
	fingerprints  store.Store[entity.DedupFingerprint]
	pendingBatch  store.Store[entity.PendingSummaryBatch]
}

func newStores(database *sql.DB) pipelineStores {
	return pipelineStores{
		clusters:      postgres.New[entity.StoryCluster](database, "story_clusters"),
		articles:      postgres.New[entity.RawArticle](database, "raw_articles"),
		pollStates:    postgres.New[entity.FeedPollState](database, "feed_poll_state"),
		leases:        postgres.New[entity.ChangeStreamLease](database, "change_stream_leases"),
		notifications: postgres.New[entity.NotificationRecord](database, "notification_records"),
		fingerprints:  postgres.New[entity.DedupFingerprint](database, "dedup_fingerprints"),
		pendingBatch:  postgres.New[entity.PendingSummaryBatch](database, "pending_summary_batches"),
	}
}

// ensureSchema calls EnsureSchema on every container. db.MigrateUp already
// created these tables at startup; this is a defense-in-depth no-op in the
// normal case and the only schema step in tests that construct stores
// directly against a throwaway database.
func ensureSchema(ctx context.Context, s pipelineStores) error {
	type schemaOwner interface {
		EnsureSchema(ctx context.Context) error
	}
	owners := []schemaOwner{
		s.clusters.(schemaOwner), s.articles.(schemaOwner), s.pollStates.(schemaOwner),
		s.leases.(schemaOwner), s.notifications.(schemaOwner), s.fingerprints.(schemaOwner),
		s.pendingBatch.(schemaOwner),
	}
	for _, owner := range owners {
		if err := owner.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

func buildPoller(feeds []entity.FeedConfig, s pipelineStores, pc config.PipelineConfig, logger *slog.Logger) *poller.Poller {
	contentCfg := poller.DefaultContentFetchConfig()
	return &poller.Poller{
		Feeds:         feeds,
		PollStates:    s.pollStates,
		Articles:      s.articles,
		Barrier:       normalize.NewBarrier(s.fingerprints, time.Now),
		Fetcher:       poller.NewRSSFetcher(&http.Client{Timeout: 30 * time.Second}),
		Enricher:      poller.NewReadabilityFetcher(contentCfg),
		ContentCfg:    contentCfg,
		TickPeriod:    pc.FeedTickPeriod,
		FeedsPerTick:  pc.FeedsPerTick,
		Cooldown:      pc.FeedCooldown,
		CooldownTier1: pc.FeedCooldownTier1,
		NewID:         newUUID,
		Now:           time.Now,
		Logger:        logger,
	}
}

func buildClusterEngine(s pipelineStores, broadcaster notify.Broadcaster, logger *slog.Logger) *cluster.Engine {
	return &cluster.Engine{
		Articles:      s.articles,
		Clusters:      s.clusters,
		Leases:        s.leases,
		Notifications: s.notifications,
		Subscriber:    postgres.NewSubscriber(os.Getenv("DATABASE_URL"), "story_clusters"),
		Notifier:      broadcaster,
		NewID:         newUUID,
		Now:           time.Now,
		Logger:        logger,
	}
}

func buildRealtimeDispatcher(s pipelineStores, pc config.PipelineConfig, logger *slog.Logger) *summarize.RealtimeDispatcher {
	return &summarize.RealtimeDispatcher{
		Clusters:       s.clusters,
		Articles:       s.articles,
		Leases:         s.leases,
		Subscriber:     postgres.NewSubscriber(os.Getenv("DATABASE_URL"), "story_clusters"),
		Provider:       newSummaryProvider(logger),
		MinSourceDelta: pc.SummaryMinSourceDelta,
		RegenHorizon:   pc.SummaryRegenHours,
		LeaseTTL:       pc.SummaryLeaseTTL,
		Now:            time.Now,
		Logger:         logger,
	}
}

func buildBatchDispatcher(s pipelineStores, pc config.PipelineConfig, logger *slog.Logger) *summarize.BatchDispatcher {
	return &summarize.BatchDispatcher{
		Clusters:       s.clusters,
		Articles:       s.articles,
		Leases:         s.leases,
		Pending:        s.pendingBatch,
		Provider:       newBatchProvider(logger),
		MinAge:         pc.BatchMinAge,
		MinSourceDelta: pc.SummaryMinSourceDelta,
		RegenHorizon:   pc.SummaryRegenHours,
		MaxBatchSize:   pc.BatchMaxSize,
		LeaseTTL:       pc.SummaryLeaseTTL,
		Now:            time.Now,
		Logger:         logger,
	}
}

func buildMonitor(s pipelineStores, broadcaster notify.Broadcaster, pc config.PipelineConfig, logger *slog.Logger) *monitor.Monitor {
	return &monitor.Monitor{
		Clusters:              s.clusters,
		Notifications:         s.notifications,
		Notifier:              broadcaster,
		Period:                pc.MonitorPeriod,
		IdleTimeout:           pc.BreakingIdleTimeout,
		NotificationFreshness: pc.NotificationFreshnessHorizon,
		Now:                   time.Now,
		Logger:                logger,
	}
}

// newSummaryProvider builds the real-time summarization backend (
// §4.5's real-time path is Claude-only; the batch path below is the
// OpenAI-batch-API alternative for clusters that path never reaches).
func newSummaryProvider(logger *slog.Logger) summarize.Provider {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.Error("ANTHROPIC_API_KEY is required for the real-time summarizer")
		os.Exit(1)
	}
	return summarize.NewClaudeProvider(apiKey, summarize.DefaultClaudeConfig())
}

func newBatchProvider(logger *slog.Logger) summarize.BatchProvider {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Error("OPENAI_API_KEY is required for the batch summarizer")
		os.Exit(1)
	}
	return summarize.NewOpenAIBatchProvider(apiKey, summarize.DefaultOpenAIBatchConfig())
}

func runBatchCycle(ctx context.Context, d *summarize.BatchDispatcher, metrics *workerPkg.WorkerMetrics, logger *slog.Logger) {
	start := time.Now()
	if err := d.RunOnce(ctx); err != nil {
		metrics.RecordJobRun("failure")
		logger.Error("batch summarizer cycle failed", slog.Any("error", err))
	} else {
		metrics.RecordJobRun("success")
		metrics.RecordLastSuccess()
	}
	metrics.RecordJobDuration(time.Since(start).Seconds())
}

func newUUID() string {
	return uuid.NewString()
}
