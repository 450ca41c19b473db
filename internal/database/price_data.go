package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/models"
)

// SavePriceBars upserts bars for ticker at frequency
func (db *DB) SavePriceBars(ctx context.Context, ticker, frequency string, bars models.PriceBars) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_bars (ticker, frequency, date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ticker, frequency, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ticker = strings.ToUpper(ticker)
	now := time.Now()
	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, ticker, frequency, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, now)
		if err != nil {
			return fmt.Errorf("failed to insert price bar for %s: %w", ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPriceBars returns bars for ticker between start and end inclusive, oldest first
func (db *DB) GetPriceBars(ctx context.Context, ticker, frequency string, start, end time.Time) (models.PriceBars, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE ticker = $1 AND frequency = $2 AND date >= $3 AND date <= $4
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, strings.ToUpper(ticker), frequency, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get price bars: %w", err)
	}
	defer rows.Close()

	var bars models.PriceBars
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price bars: %w", err)
	}
	return bars, nil
}

// GetLatestPriceBar returns the most recent bar for ticker
func (db *DB) GetLatestPriceBar(ctx context.Context, ticker, frequency string) (*models.PriceBar, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE ticker = $1 AND frequency = $2
		ORDER BY date DESC
		LIMIT 1
	`
	var b models.PriceBar
	err := db.conn.QueryRowContext(ctx, query, strings.ToUpper(ticker), frequency).Scan(
		&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("price bars for %s: %w", ticker, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest price bar: %w", err)
	}
	return &b, nil
}

// DeletePriceBarsOlderThan removes bars dated before date
func (db *DB) DeletePriceBarsOlderThan(ctx context.Context, date time.Time) (int64, error) {
	query := `DELETE FROM price_bars WHERE date < $1`
	result, err := db.conn.ExecContext(ctx, query, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price bars: %w", err)
	}
	return result.RowsAffected()
}
