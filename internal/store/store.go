// Package store is the Postgres-backed alert store and trigger-history
// audit trail. Alert CRUD itself lives with the external alert-management
// service; the pipeline only reads definitions, flags invalid ones, writes
// audit rows for every trigger, and reconstructs cooldown state on restart.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/matchpulse/internal/rules"
	"github.com/albapepper/matchpulse/internal/trigger"
)

// Store wraps the shared pool with alert-pipeline queries.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a store over an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// ActiveAlerts loads all active, not-yet-flagged alert definitions. An
// alert whose condition fails to parse is flagged invalid in the store and
// dropped from the result — it will not be retried every tick, and the
// owner sees the reason through the alert-management surface.
func (s *Store) ActiveAlerts(ctx context.Context) ([]*rules.Alert, error) {
	rows, err := s.pool.Query(ctx, "active_alerts")
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*rules.Alert
	var invalid []invalidAlert
	for rows.Next() {
		var (
			a               rules.Alert
			conditionJSON   []byte
			cooldownSeconds int
		)
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Team, &a.Side, &conditionJSON,
			&cooldownSeconds, &a.MaxDailyTriggers,
			&a.Channel, &a.Recipient, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Cooldown = time.Duration(cooldownSeconds) * time.Second
		a.Active = true

		cond, err := rules.ParseCondition(conditionJSON)
		if err != nil {
			invalid = append(invalid, invalidAlert{id: a.ID, reason: err.Error()})
			continue
		}
		a.Condition = cond
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}

	// Flag outside the read loop; one bad alert never blocks the rest.
	for _, bad := range invalid {
		if err := s.MarkAlertInvalid(ctx, bad.id, bad.reason); err != nil {
			s.logger.Warn("flag invalid alert failed", "alert_id", bad.id, "error", err)
		} else {
			s.logger.Warn("alert flagged invalid", "alert_id", bad.id, "reason", bad.reason)
		}
	}
	return alerts, nil
}

type invalidAlert struct {
	id     string
	reason string
}

// MarkAlertInvalid records a validation failure against the alert so the
// owner can fix the definition. Flagged alerts are excluded from
// ActiveAlerts until the definition changes.
func (s *Store) MarkAlertInvalid(ctx context.Context, alertID, reason string) error {
	_, err := s.pool.Exec(ctx, "mark_alert_invalid", alertID, reason)
	if err != nil {
		return fmt.Errorf("mark alert %s invalid: %w", alertID, err)
	}
	return nil
}

// TriggerRecord is one audit row for a trigger occurrence, written whether
// or not the dispatch succeeded.
type TriggerRecord struct {
	AlertID           string
	MatchID           string
	MatchedPredicates []string
	Message           string
	DispatchStatus    string
	TriggeredAt       time.Time
}

// RecordTrigger appends one row to the trigger-history audit trail.
func (s *Store) RecordTrigger(ctx context.Context, rec TriggerRecord) error {
	_, err := s.pool.Exec(ctx, "insert_trigger_history",
		uuid.NewString(), rec.AlertID, rec.MatchID, rec.MatchedPredicates,
		rec.Message, rec.DispatchStatus, rec.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("insert trigger history: %w", err)
	}
	return nil
}

// LatestTriggerStates reads the most recent successful trigger per
// (alert, match) pair plus today's trigger counts, for state
// reconstruction after a restart.
func (s *Store) LatestTriggerStates(ctx context.Context) ([]trigger.PairState, error) {
	rows, err := s.pool.Query(ctx, "latest_trigger_states")
	if err != nil {
		return nil, fmt.Errorf("query trigger states: %w", err)
	}
	defer rows.Close()

	var states []trigger.PairState
	for rows.Next() {
		var st trigger.PairState
		if err := rows.Scan(&st.AlertID, &st.MatchID, &st.LastTriggered, &st.TriggerCount); err != nil {
			return nil, fmt.Errorf("scan trigger state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// PurgeHistory deletes audit rows older than the retention window.
// Called by the maintenance ticker.
func (s *Store) PurgeHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM trigger_history
		WHERE triggered_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("purge trigger history: %w", err)
	}
	return tag.RowsAffected(), nil
}
