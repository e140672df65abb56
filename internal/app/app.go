// Package app wires the engine together and owns the run loop.
package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/aggregate"
	"github.com/landreg/housesync/internal/analytics"
	"github.com/landreg/housesync/internal/config"
	"github.com/landreg/housesync/internal/feed"
	"github.com/landreg/housesync/internal/handlers"
	"github.com/landreg/housesync/internal/ingest"
	"github.com/landreg/housesync/internal/queue"
	"github.com/landreg/housesync/internal/router"
	"github.com/landreg/housesync/internal/store"
	"github.com/landreg/housesync/internal/telemetry"
)

// App holds the wired components of one process.
type App struct {
	config       *config.Config
	logger       *zap.Logger
	telemetry    *telemetry.Telemetry
	store        store.Store
	detector     *feed.Detector
	engine       *ingest.Engine
	orchestrator *aggregate.Orchestrator
	producer     *queue.Producer
	server       *http.Server
	now          func() time.Time
}

func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	tel, err := telemetry.NewTelemetry(logger)
	if err != nil {
		return nil, err
	}

	factory := store.NewFactory(logger)
	st, err := factory.CreateProvider(store.ProviderConfig{
		Type:     store.StoreType(cfg.StoreType),
		DSN:      cfg.DSN(),
		MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		return nil, err
	}

	// The queue-backed variant publishes records instead of writing
	// the derived tables; the settings store stays relational either
	// way, so the commit point and the orchestrator are unchanged.
	var sink ingest.Sink
	var producer *queue.Producer
	if cfg.Sink == config.SinkKafka {
		producer = queue.NewProducer(cfg.KafkaBootstrap, cfg.KafkaTopic, logger)
		sink = producer
	} else {
		sink = ingest.NewStoreSink(st)
	}

	client := analytics.NewClient(analytics.Config{
		BaseURL:         cfg.AnalyticsURL,
		PollInterval:    cfg.PollInterval,
		ErrorBackoff:    cfg.PollErrorBackoff,
		MaxPollAttempts: cfg.PollMaxAttempts,
	}, logger)

	handlerList := []router.Handler{
		handlers.NewHealthHandler(),
		handlers.NewStatusHandler(st),
	}
	appRouter := router.NewRouter(logger, handlerList)

	return &App{
		config:       cfg,
		logger:       logger,
		telemetry:    tel,
		store:        st,
		detector:     feed.NewDetector(cfg.FeedURL, st, logger),
		engine:       ingest.NewEngine(sink, cfg.BatchSize, logger, tel),
		orchestrator: aggregate.NewOrchestrator(st, client, logger, tel),
		producer:     producer,
		server:       appRouter.CreateServer(":" + cfg.Port),
		now:          time.Now,
	}, nil
}

// Run starts the ops server and the sync loop, and blocks until a
// shutdown signal arrives.
func (app *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		app.logger.Info("starting ops server", zap.String("port", app.config.Port))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("ops server failed to start", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(app.config.RunInterval)
	defer ticker.Stop()

	app.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return app.shutdown()
		case <-ticker.C:
			app.runOnce(ctx)
		}
	}
}

// runOnce executes one full cycle: lease, change detection, ingest,
// commit, aggregation. Failures are logged and deferred to the next
// scheduled run.
func (app *App) runOnce(ctx context.Context) {
	acquired, err := app.acquireLease(ctx)
	if err != nil {
		app.logger.Error("lease check failed", zap.Error(err))
		return
	}
	if !acquired {
		app.logger.Warn("previous run still holds the lease, skipping")
		return
	}
	defer func() {
		if err := app.releaseLease(ctx); err != nil {
			app.logger.Error("failed to release lease", zap.Error(err))
		}
	}()

	if app.telemetry != nil {
		app.telemetry.RunsTotal.Add(ctx, 1)
	}

	if err := app.syncFeed(ctx); err != nil {
		app.logger.Error("feed sync failed", zap.Error(err))
		return
	}

	// The orchestrator runs every cycle: it decides from the settings
	// snapshot whether an aggregation is actually due, which also
	// lets an earlier failed aggregation be retried.
	if err := app.orchestrator.Run(ctx); err != nil {
		app.logger.Error("aggregation failed", zap.Error(err))
	}
}

func (app *App) syncFeed(ctx context.Context) error {
	body, digest, err := app.detector.FetchAndHash(ctx)
	if err != nil {
		return err
	}

	isNew, err := app.detector.IsNewFeed(ctx, digest)
	if err != nil {
		return err
	}
	if !isNew {
		app.logger.Info("no new feed yet", zap.String("digest", digest))
		return nil
	}

	app.logger.Info("new feed detected", zap.String("digest", digest))
	report, err := app.engine.Run(ctx, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for _, failure := range report.Failures() {
		app.logger.Warn("row not applied", zap.String("tui", failure.TUI), zap.Error(failure.Err))
	}

	// Commit point: only after the whole feed is applied does the
	// digest advance, so a crash before here re-ingests safely.
	if err := app.store.SetSetting(ctx, store.KeyUpdateHash, digest); err != nil {
		return err
	}
	now := strconv.FormatInt(app.now().Unix(), 10)
	if err := app.store.SetSetting(ctx, store.KeyLastUpdated, now); err != nil {
		return err
	}

	app.logger.Info("feed committed",
		zap.String("digest", digest),
		zap.Int64("applied", report.Applied()),
		zap.Int64("failed", report.Failed()),
	)
	return nil
}

func (app *App) shutdown() error {
	app.logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if app.producer != nil {
		if err := app.producer.Close(); err != nil {
			app.logger.Error("failed to close producer", zap.Error(err))
		}
	}
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("ops server forced to shutdown", zap.Error(err))
		return err
	}

	app.logger.Info("exited gracefully")
	return nil
}
