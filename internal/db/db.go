// Package db provides a pgxpool-based connection pool with prepared
// statement registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpulse/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the pipeline and the
// status API use. Prepared statements eliminate parse overhead on the hot
// per-tick queries.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Alert definitions
		"active_alerts": `
			SELECT id, user_id, COALESCE(team, ''), COALESCE(side, 'any'), condition,
			       cooldown_seconds, max_daily_triggers,
			       channel, recipient, created_at
			FROM alerts
			WHERE active = true AND invalid_reason IS NULL
			ORDER BY created_at`,
		"mark_alert_invalid": `
			UPDATE alerts
			SET invalid_reason = $2, updated_at = NOW()
			WHERE id = $1`,

		// Trigger-history audit trail
		"insert_trigger_history": `
			INSERT INTO trigger_history (
				id, alert_id, match_id, matched_predicates,
				message, dispatch_status, triggered_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		"latest_trigger_states": `
			SELECT alert_id, match_id,
			       MAX(triggered_at) AS last_triggered,
			       COUNT(*) FILTER (WHERE triggered_at >= date_trunc('day', NOW())) AS today_count
			FROM trigger_history
			WHERE dispatch_status = 'sent'
			GROUP BY alert_id, match_id`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
