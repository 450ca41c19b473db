package main

import (
	"context"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/marketdata"
	"github.com/laimis/stock-analysis-sub003/internal/schedule"
	"go.uber.org/zap"
)

// loadCalendar prefers a calendar file, then Alpaca's trading calendar, then
// plain NYSE hours with weekends closed
func loadCalendar(ctx context.Context, path string, market *marketdata.Client, logger *zap.Logger) (*schedule.StaticCalendar, error) {
	if path != "" {
		return schedule.LoadCalendarFile(path)
	}

	if market != nil {
		now := time.Now()
		cal, err := market.LoadCalendar(ctx, now.AddDate(0, 0, -7), now.AddDate(0, 3, 0))
		if err == nil {
			return cal, nil
		}
		logger.Warn("falling back to regular market hours", zap.Error(err))
	}

	return schedule.NewYorkCalendar()
}
