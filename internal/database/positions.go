package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PositionRecord is a stored position together with its identity
type PositionRecord struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Position *position.Instance
}

const positionColumns = `
	id, user_id, ticker, opened, stop_price, first_stop, risked_amount,
	grade, grade_note, max_gain_pct, max_drawdown_pct
`

// SavePosition upserts the position row and appends any fills not stored yet
func (db *DB) SavePosition(ctx context.Context, rec *PositionRecord) error {
	p := rec.Position
	if p == nil || len(p.Buys) == 0 {
		return fmt.Errorf("failed to save position: no buys")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO positions (
			id, user_id, ticker, opened, closed, stop_price, first_stop, risked_amount,
			grade, grade_note, max_gain_pct, max_drawdown_pct, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (id) DO UPDATE SET
			closed = EXCLUDED.closed,
			stop_price = EXCLUDED.stop_price,
			first_stop = EXCLUDED.first_stop,
			risked_amount = EXCLUDED.risked_amount,
			grade = EXCLUDED.grade,
			grade_note = EXCLUDED.grade_note,
			max_gain_pct = EXCLUDED.max_gain_pct,
			max_drawdown_pct = EXCLUDED.max_drawdown_pct,
			updated_at = EXCLUDED.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		rec.ID, rec.UserID, p.Ticker, p.Opened, nullTime(p.Closed),
		nullDecimal(p.StopPrice), nullDecimal(p.FirstStop), p.RiskedAmount,
		nullString(p.Grade), nullString(p.GradeNote),
		nullZero(p.MaxGainPct), nullZero(p.MaxDrawdownPct), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save position %s: %w", p.Ticker, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO position_transactions (position_id, transaction_id, side, quantity, price, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (position_id, side, transaction_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range fillsOf(p) {
		if _, err := stmt.ExecContext(ctx, rec.ID, f.lot.TransactionID, f.side, f.lot.Quantity, f.lot.Price, f.lot.Date); err != nil {
			return fmt.Errorf("failed to save %s transaction %s: %w", f.side, f.lot.TransactionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetOpenPosition returns the user's open position in ticker
func (db *DB) GetOpenPosition(ctx context.Context, userID uuid.UUID, ticker string) (*PositionRecord, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1 AND ticker = $2 AND closed IS NULL
	`
	recs, err := db.queryPositions(ctx, query, userID, ticker)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("open position %s: %w", ticker, ErrNotFound)
	}
	return recs[0], nil
}

// GetLatestPosition returns the user's most recently opened position in
// ticker, open or closed
func (db *DB) GetLatestPosition(ctx context.Context, userID uuid.UUID, ticker string) (*PositionRecord, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1 AND ticker = $2
		ORDER BY opened DESC
		LIMIT 1
	`
	recs, err := db.queryPositions(ctx, query, userID, ticker)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("position %s: %w", ticker, ErrNotFound)
	}
	return recs[0], nil
}

// GetPositionsByUser returns the user's positions, newest first
func (db *DB) GetPositionsByUser(ctx context.Context, userID uuid.UUID, includeClosed bool) ([]*PositionRecord, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1 AND ($2 OR closed IS NULL)
		ORDER BY opened DESC
	`
	return db.queryPositions(ctx, query, userID, includeClosed)
}

// GetAllOpenPositions returns every open position across users
func (db *DB) GetAllOpenPositions(ctx context.Context) ([]*PositionRecord, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE closed IS NULL
		ORDER BY user_id, ticker
	`
	return db.queryPositions(ctx, query)
}

// DeletePosition removes a position and its transactions
func (db *DB) DeletePosition(ctx context.Context, id uuid.UUID) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return nil
}

// positionRow holds the stored columns until the fills are replayed
type positionRow struct {
	rec            PositionRecord
	ticker         string
	opened         time.Time
	stopPrice      decimal.NullDecimal
	firstStop      decimal.NullDecimal
	riskedAmount   decimal.Decimal
	grade          sql.NullString
	gradeNote      sql.NullString
	maxGainPct     decimal.NullDecimal
	maxDrawdownPct decimal.NullDecimal
}

type fill struct {
	side string
	lot  position.Lot
}

func fillsOf(p *position.Instance) []fill {
	fills := make([]fill, 0, len(p.Buys)+len(p.Sells))
	for _, lot := range p.Buys {
		fills = append(fills, fill{side: models.TradeTypeBuy, lot: lot})
	}
	for _, lot := range p.Sells {
		fills = append(fills, fill{side: models.TradeTypeSell, lot: lot})
	}
	return fills
}

func (db *DB) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*PositionRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var stored []*positionRow
	var ids []string
	for rows.Next() {
		var r positionRow
		err := rows.Scan(
			&r.rec.ID, &r.rec.UserID, &r.ticker, &r.opened, &r.stopPrice, &r.firstStop, &r.riskedAmount,
			&r.grade, &r.gradeNote, &r.maxGainPct, &r.maxDrawdownPct,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		stored = append(stored, &r)
		ids = append(ids, r.rec.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	fills, err := db.loadFills(ctx, ids)
	if err != nil {
		return nil, err
	}

	records := make([]*PositionRecord, 0, len(stored))
	for _, r := range stored {
		p, err := r.rebuild(fills[r.rec.ID])
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild position %s: %w", r.rec.ID, err)
		}
		rec := r.rec
		rec.Position = p
		records = append(records, &rec)
	}
	return records, nil
}

func (db *DB) loadFills(ctx context.Context, positionIDs []string) (map[uuid.UUID][]fill, error) {
	query := `
		SELECT position_id, transaction_id, side, quantity, price, executed_at
		FROM position_transactions
		WHERE position_id = ANY($1::uuid[])
		ORDER BY executed_at, CASE side WHEN 'BUY' THEN 0 ELSE 1 END, id
	`
	rows, err := db.conn.QueryContext(ctx, query, pq.Array(positionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query position transactions: %w", err)
	}
	defer rows.Close()

	fills := make(map[uuid.UUID][]fill)
	for rows.Next() {
		var id uuid.UUID
		var f fill
		if err := rows.Scan(&id, &f.lot.TransactionID, &f.side, &f.lot.Quantity, &f.lot.Price, &f.lot.Date); err != nil {
			return nil, fmt.Errorf("failed to scan position transaction: %w", err)
		}
		fills[id] = append(fills[id], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate position transactions: %w", err)
	}
	return fills, nil
}

// rebuild replays the fills in execution order, then reapplies the stored
// stop and risk basis
func (r *positionRow) rebuild(fills []fill) (*position.Instance, error) {
	p := position.NewInstance(r.ticker)
	for _, f := range fills {
		var err error
		switch f.side {
		case models.TradeTypeBuy:
			err = p.Buy(f.lot.Quantity, f.lot.Price, f.lot.Date, f.lot.TransactionID)
		case models.TradeTypeSell:
			err = p.Sell(f.lot.Quantity, f.lot.Price, f.lot.Date, f.lot.TransactionID)
		default:
			err = fmt.Errorf("unknown side %q", f.side)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(p.Buys) == 0 {
		p.Opened = r.opened
	}

	if r.stopPrice.Valid {
		stop := r.stopPrice.Decimal
		p.StopPrice = &stop
	}
	var first *decimal.Decimal
	if r.firstStop.Valid {
		first = &r.firstStop.Decimal
	}
	p.Restore(first, r.riskedAmount)
	p.SetGrade(r.grade.String, r.gradeNote.String)
	if r.maxGainPct.Valid {
		p.MaxGainPct = r.maxGainPct.Decimal
	}
	if r.maxDrawdownPct.Valid {
		p.MaxDrawdownPct = r.maxDrawdownPct.Decimal
	}
	return p, nil
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func nullZero(d decimal.Decimal) interface{} {
	if d.IsZero() {
		return nil
	}
	return d
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
