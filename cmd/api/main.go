// Command api is the MatchPulse service: the live alerting pipeline plus
// its status API.
//
// Usage:
//
//	matchpulse-api
//	API_PORT=8080 matchpulse-api

// @title MatchPulse API
// @version 1.0.0
// @description Live sports alerting pipeline: match ingestion, derived metrics, condition evaluation, and notification dispatch, with a thin status API.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/albapepper/matchpulse/docs" // swagger docs
	"github.com/albapepper/matchpulse/internal/api"
	"github.com/albapepper/matchpulse/internal/backoff"
	"github.com/albapepper/matchpulse/internal/config"
	"github.com/albapepper/matchpulse/internal/db"
	"github.com/albapepper/matchpulse/internal/dispatch"
	"github.com/albapepper/matchpulse/internal/feed"
	"github.com/albapepper/matchpulse/internal/maintenance"
	"github.com/albapepper/matchpulse/internal/metrics"
	"github.com/albapepper/matchpulse/internal/scheduler"
	"github.com/albapepper/matchpulse/internal/store"
	"github.com/albapepper/matchpulse/internal/trigger"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Shared retry policy (feed refresh + notification dispatch)
	policy := backoff.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      0.2,
	}

	// Metric weights (tuning constants, overridable from TOML)
	weights, err := metrics.LoadWeights(cfg.WeightsFile)
	if err != nil {
		logger.Error("Failed to load metric weights", "error", err)
		os.Exit(1)
	}

	// Feed ingestion
	client := feed.NewClient(cfg.FeedBaseURL, cfg.FeedAPIKey, cfg.FeedRateLimit, cfg.FeedTimeout, logger)
	cache := feed.NewCache(cfg.MomentumWindow)
	ingestor := feed.NewIngestor(client, cache, policy, cfg.FeedTimeout, logger)

	// Notification gateways
	gateways := buildGateways(cfg, logger)
	dispatcher := dispatch.NewDispatcher(gateways, policy, cfg.DispatchTimeout, logger)

	// Pipeline
	st := store.New(pool.Pool, logger)
	triggers := trigger.NewManager(logger)
	sched := scheduler.New(
		ingestor,
		metrics.NewComputer(weights),
		triggers,
		dispatcher,
		st,
		scheduler.Options{
			TickInterval: cfg.TickInterval,
			TickDeadline: cfg.TickDeadline,
			Workers:      cfg.Workers,
		},
		logger,
	)
	go sched.Run(ctx)

	// Maintenance (audit-trail retention)
	mcfg := maintenance.DefaultConfig()
	mcfg.HistoryRetention = cfg.HistoryRetention
	go maintenance.Start(ctx, st, mcfg, logger)

	// Status API
	router := api.NewRouter(pool, sched, dispatcher, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting MatchPulse API",
			"addr", addr,
			"environment", cfg.Environment,
			"channels", dispatcher.Channels())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout; the scheduler stops admitting ticks
	// on ctx cancellation and lets in-flight dispatches finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}

// buildGateways creates the notification gateways that are configured.
func buildGateways(cfg *config.Config, logger *slog.Logger) []dispatch.Gateway {
	var gateways []dispatch.Gateway

	if cfg.TelegramBotToken != "" {
		tg, err := dispatch.NewTelegramGateway(cfg.TelegramBotToken)
		if err != nil {
			logger.Error("Telegram gateway disabled", "error", err)
		} else {
			gateways = append(gateways, tg)
		}
	}
	if cfg.SMSEndpoint != "" {
		gateways = append(gateways, dispatch.NewTextGateway(cfg.SMSEndpoint, cfg.SMSAPIKey, cfg.DispatchTimeout))
	}
	if len(gateways) == 0 {
		logger.Warn("No notification gateways configured; dispatches will fail permanently")
	}
	return gateways
}
