package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/monitors"
)

// monitorPayload carries the variant data of gap and pattern monitors
type monitorPayload struct {
	Gap     *monitors.Gap        `json:"gap,omitempty"`
	Pattern *monitors.PatternHit `json:"pattern,omitempty"`
}

// SaveMonitor stores a monitor definition. Saving the same monitor twice is a no-op.
func (db *DB) SaveMonitor(ctx context.Context, m *monitors.Monitor) error {
	var payload interface{}
	if m.Gap != nil || m.Pattern != nil {
		data, err := json.Marshal(monitorPayload{Gap: m.Gap, Pattern: m.Pattern})
		if err != nil {
			return fmt.Errorf("failed to marshal monitor payload: %w", err)
		}
		payload = data
	}

	query := `
		INSERT INTO monitors (monitor_key, user_id, ticker, kind, description, threshold, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (monitor_key) DO NOTHING
	`
	_, err := db.conn.ExecContext(ctx, query,
		m.Key(), m.UserID, m.Ticker, string(m.Kind), m.Description, m.Threshold, payload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save monitor: %w", err)
	}
	return nil
}

// DeleteMonitors removes the user's monitors of kind for ticker
func (db *DB) DeleteMonitors(ctx context.Context, userID uuid.UUID, ticker string, kind monitors.Kind) (int64, error) {
	query := `DELETE FROM monitors WHERE user_id = $1 AND ticker = $2 AND kind = $3`
	result, err := db.conn.ExecContext(ctx, query, userID, ticker, string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to delete monitors for %s: %w", ticker, err)
	}
	return result.RowsAffected()
}

// GetMonitors returns stored monitors of the given kinds, or all when none given
func (db *DB) GetMonitors(ctx context.Context, kinds ...monitors.Kind) ([]*monitors.Monitor, error) {
	query := `
		SELECT user_id, ticker, kind, description, threshold, payload
		FROM monitors
		ORDER BY user_id, ticker, kind, created_at
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitors: %w", err)
	}
	defer rows.Close()

	want := make(map[monitors.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var out []*monitors.Monitor
	for rows.Next() {
		var m monitors.Monitor
		var kind string
		var payload []byte

		if err := rows.Scan(&m.UserID, &m.Ticker, &kind, &m.Description, &m.Threshold, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", err)
		}
		m.Kind = monitors.Kind(kind)
		if len(want) > 0 && !want[m.Kind] {
			continue
		}

		if len(payload) > 0 {
			var p monitorPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, fmt.Errorf("failed to unmarshal monitor payload: %w", err)
			}
			m.Gap, m.Pattern = p.Gap, p.Pattern
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monitors: %w", err)
	}
	return out, nil
}

// --- Triggered alerts ---

// CreateTriggeredAlert records a fired alert
func (db *DB) CreateTriggeredAlert(ctx context.Context, a *models.TriggeredAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO triggered_alerts (
			id, user_id, ticker, kind, description, triggered_value,
			watched_value, alert_type, triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := db.conn.ExecContext(ctx, query,
		a.ID, a.UserID, a.Ticker, a.Kind, a.Description, a.TriggeredValue,
		a.WatchedValue, a.AlertType, a.When,
	)
	if err != nil {
		return fmt.Errorf("failed to create triggered alert: %w", err)
	}
	return nil
}

// SaveTriggeredAlert lets the scanner persist alerts through this repository
func (db *DB) SaveTriggeredAlert(ctx context.Context, a *models.TriggeredAlert) error {
	return db.CreateTriggeredAlert(ctx, a)
}

// GetTriggeredAlertsByUser returns the user's alerts, most recent first
func (db *DB) GetTriggeredAlertsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.TriggeredAlert, error) {
	query := `
		SELECT id, user_id, ticker, kind, description, triggered_value,
		       watched_value, alert_type, triggered_at
		FROM triggered_alerts
		WHERE user_id = $1
		ORDER BY triggered_at DESC, ticker
		LIMIT $2
	`
	return scanTriggeredAlerts(db.conn.QueryContext(ctx, query, userID, limit))
}

// DeleteTriggeredAlertsOlderThan removes alerts fired before date
func (db *DB) DeleteTriggeredAlertsOlderThan(ctx context.Context, date time.Time) (int64, error) {
	query := `DELETE FROM triggered_alerts WHERE triggered_at < $1`
	result, err := db.conn.ExecContext(ctx, query, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old triggered alerts: %w", err)
	}
	return result.RowsAffected()
}

func scanTriggeredAlerts(rows *sql.Rows, err error) ([]models.TriggeredAlert, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query triggered alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.TriggeredAlert
	for rows.Next() {
		var a models.TriggeredAlert
		err := rows.Scan(
			&a.ID, &a.UserID, &a.Ticker, &a.Kind, &a.Description, &a.TriggeredValue,
			&a.WatchedValue, &a.AlertType, &a.When,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan triggered alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate triggered alerts: %w", err)
	}
	return alerts, nil
}
