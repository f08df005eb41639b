// Command pulsectl is the MatchPulse operational CLI.
//
// Usage:
//
//	pulsectl dispatch test --channel sms --recipient +15551234567
//	pulsectl alerts check
//	pulsectl tick once
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/matchpulse/internal/backoff"
	"github.com/albapepper/matchpulse/internal/config"
	"github.com/albapepper/matchpulse/internal/db"
	"github.com/albapepper/matchpulse/internal/dispatch"
	"github.com/albapepper/matchpulse/internal/feed"
	"github.com/albapepper/matchpulse/internal/metrics"
	"github.com/albapepper/matchpulse/internal/scheduler"
	"github.com/albapepper/matchpulse/internal/store"
	"github.com/albapepper/matchpulse/internal/trigger"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "pulsectl",
		Short: "MatchPulse operational CLI",
	}

	root.AddCommand(dispatchCmd())
	root.AddCommand(alertsCmd())
	root.AddCommand(tickCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// dispatch command
// --------------------------------------------------------------------------

func dispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Notification dispatch operations",
	}
	cmd.AddCommand(dispatchTestCmd())
	return cmd
}

func dispatchTestCmd() *cobra.Command {
	var channel, recipient, message string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification through a configured gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if recipient == "" {
				return fmt.Errorf("--recipient is required")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			dispatcher := buildDispatcher(cfg)
			start := time.Now()
			result := dispatcher.Dispatch(ctx, channel, recipient, message)
			logger.Info("Test dispatch finished",
				"status", result.Status,
				"reason", result.Reason,
				"attempts", result.Attempts,
				"duration", time.Since(start).Round(time.Millisecond))
			if !result.Sent() {
				return fmt.Errorf("dispatch failed: %s", result.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "sms", "Delivery channel (sms, telegram)")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Destination handle (phone number or chat ID)")
	cmd.Flags().StringVar(&message, "message", "MatchPulse test notification", "Message body")
	return cmd
}

// --------------------------------------------------------------------------
// alerts command
// --------------------------------------------------------------------------

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Alert definition operations",
	}
	cmd.AddCommand(alertsCheckCmd())
	return cmd
}

func alertsCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate stored alert conditions and flag invalid ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				st := store.New(pool.Pool, logger)
				alerts, err := st.ActiveAlerts(ctx)
				if err != nil {
					return err
				}
				logger.Info("Alert check complete", "valid_active", len(alerts))
				return nil
			})
		},
	}
	return cmd
}

// --------------------------------------------------------------------------
// tick command
// --------------------------------------------------------------------------

func tickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Pipeline tick operations",
	}
	cmd.AddCommand(tickOnceCmd())
	return cmd
}

func tickOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single pipeline tick and print the health counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				weights, err := metrics.LoadWeights(cfg.WeightsFile)
				if err != nil {
					return err
				}
				policy := backoff.Policy{
					MaxAttempts: cfg.RetryMaxAttempts,
					BaseDelay:   cfg.RetryBaseDelay,
					MaxDelay:    cfg.RetryMaxDelay,
					Jitter:      0.2,
				}
				client := feed.NewClient(cfg.FeedBaseURL, cfg.FeedAPIKey, cfg.FeedRateLimit, cfg.FeedTimeout, logger)
				ingestor := feed.NewIngestor(client, feed.NewCache(cfg.MomentumWindow), policy, cfg.FeedTimeout, logger)
				st := store.New(pool.Pool, logger)

				sched := scheduler.New(
					ingestor,
					metrics.NewComputer(weights),
					trigger.NewManager(logger),
					buildDispatcher(cfg),
					st,
					scheduler.Options{
						TickInterval: cfg.TickInterval,
						TickDeadline: cfg.TickDeadline,
						Workers:      cfg.Workers,
					},
					logger,
				)

				sched.Tick(ctx)
				health := sched.Health()
				logger.Info("Tick finished",
					"pairs", health.LastTickPairs,
					"errored", health.LastTickErrored,
					"sent_today", health.SentToday,
					"failed_today", health.FailedToday,
					"duration_ms", health.LastTickMillis)
				return nil
			})
		},
	}
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// buildDispatcher creates a dispatcher over the configured gateways.
func buildDispatcher(cfg *config.Config) *dispatch.Dispatcher {
	policy := backoff.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      0.2,
	}
	var gateways []dispatch.Gateway
	if cfg.TelegramBotToken != "" {
		if tg, err := dispatch.NewTelegramGateway(cfg.TelegramBotToken); err == nil {
			gateways = append(gateways, tg)
		} else {
			logger.Warn("Telegram gateway disabled", "error", err)
		}
	}
	if cfg.SMSEndpoint != "" {
		gateways = append(gateways, dispatch.NewTextGateway(cfg.SMSEndpoint, cfg.SMSAPIKey, cfg.DispatchTimeout))
	}
	return dispatch.NewDispatcher(gateways, policy, cfg.DispatchTimeout, logger)
}

// runWithPool handles config loading, DB connection, and context cancellation.
func runWithPool(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
