package alerts

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/monitors"
	"github.com/laimis/stock-analysis-sub003/internal/schedule"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuoteSource returns the current price of a ticker
type QuoteSource interface {
	LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// BarSource returns chronological bars for a ticker
type BarSource interface {
	Bars(ctx context.Context, ticker, frequency string, from, to time.Time) (models.PriceBars, error)
}

// AlertPublisher announces newly triggered alerts
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *models.TriggeredAlert) error
}

// AlertStore persists newly triggered alerts
type AlertStore interface {
	SaveTriggeredAlert(ctx context.Context, alert *models.TriggeredAlert) error
}

// PatternSettings tunes the pattern scan
type PatternSettings struct {
	GapMinPct       decimal.Decimal
	NewHighLookback int
	HistoryDays     int
	// AnnouncedTTL is how long fired gap/pattern monitors stay visible
	AnnouncedTTL time.Duration
}

// DefaultPatternSettings returns the settings used when none are given
func DefaultPatternSettings() PatternSettings {
	return PatternSettings{
		GapMinPct:       decimal.RequireFromString("0.02"),
		NewHighLookback: 20,
		HistoryDays:     45,
		AnnouncedTTL:    72 * time.Hour,
	}
}

// Scanner is the background loop that evaluates the registry on the stop
// and pattern cadences
type Scanner struct {
	registry  *Registry
	calendar  schedule.Calendar
	quotes    QuoteSource
	bars      BarSource
	publisher AlertPublisher
	store     AlertStore
	logger    *zap.Logger
	patterns  PatternSettings
	now       func() time.Time
}

// ScannerOption configures optional scanner collaborators
type ScannerOption func(*Scanner)

// WithPublisher sends new alerts to p
func WithPublisher(p AlertPublisher) ScannerOption {
	return func(s *Scanner) { s.publisher = p }
}

// WithStore persists new alerts to st
func WithStore(st AlertStore) ScannerOption {
	return func(s *Scanner) { s.store = st }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

// WithPatternSettings overrides DefaultPatternSettings
func WithPatternSettings(ps PatternSettings) ScannerOption {
	return func(s *Scanner) { s.patterns = ps }
}

// NewScanner creates a scanner over registry
func NewScanner(registry *Registry, calendar schedule.Calendar, quotes QuoteSource, bars BarSource, logger *zap.Logger, opts ...ScannerOption) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		registry: registry,
		calendar: calendar,
		quotes:   quotes,
		bars:     bars,
		logger:   logger,
		patterns: DefaultPatternSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled. It sleeps until the earlier of the two
// cadences is due; a manual run request wakes it and runs both scans.
func (s *Scanner) Run(ctx context.Context) error {
	now := s.now()
	nextStop := schedule.NextRunTime(now, s.calendar, schedule.StopLossScan)
	nextPattern := schedule.NextRunTime(now, s.calendar, schedule.PatternScan)

	s.logger.Info("alert scanner started",
		zap.Time("next_stop_scan", nextStop),
		zap.Time("next_pattern_scan", nextPattern))

	for {
		wake := nextStop
		if nextPattern.Before(wake) {
			wake = nextPattern
		}

		timer := time.NewTimer(max(wake.Sub(s.now()), 0))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("alert scanner shutting down")
			return nil

		case <-s.registry.ManualRuns():
			timer.Stop()
			s.logger.Info("manual alert run requested")
			s.RunPatternScan(ctx)
			s.RunStopScan(ctx)

		case <-timer.C:
			now := s.now()
			if !now.Before(nextPattern) {
				s.RunPatternScan(ctx)
				nextPattern = schedule.NextRunTime(s.now(), s.calendar, schedule.PatternScan)
			}
			if !now.Before(nextStop) {
				s.RunStopScan(ctx)
				nextStop = schedule.NextRunTime(s.now(), s.calendar, schedule.StopLossScan)
			}
		}
	}
}

// RunStopScan checks every stop and profit monitor against one quote per
// ticker and returns the alerts that newly fired
func (s *Scanner) RunStopScan(ctx context.Context) []models.TriggeredAlert {
	byTicker := groupByTicker(s.registry.Snapshot(monitors.KindStopPrice, monitors.KindProfitTarget))

	var triggered []models.TriggeredAlert
	for _, ticker := range sortedTickers(byTicker) {
		if ctx.Err() != nil {
			break
		}

		price, err := s.quotes.LatestPrice(ctx, ticker)
		if err != nil {
			s.logger.Warn("quote fetch failed, skipping ticker",
				zap.String("ticker", ticker), zap.Error(err))
			continue
		}

		when := s.now()
		for _, m := range byTicker[ticker] {
			if alert, ok := s.registry.Check(m.Key(), ticker, price, when); ok {
				triggered = append(triggered, alert)
			}
		}
	}

	s.logger.Debug("stop scan finished",
		zap.Int("tickers", len(byTicker)), zap.Int("triggered", len(triggered)))
	s.deliver(ctx, triggered)
	return triggered
}

// RunPatternScan looks for gaps and new highs on every ticker that has a
// stop or profit monitor, registers one-shot monitors for what it finds and
// returns the alerts that newly fired
func (s *Scanner) RunPatternScan(ctx context.Context) []models.TriggeredAlert {
	now := s.now()
	if s.patterns.AnnouncedTTL > 0 {
		s.registry.PruneAnnounced(now.Add(-s.patterns.AnnouncedTTL))
	}

	holders := holdersByTicker(s.registry.Snapshot(monitors.KindStopPrice, monitors.KindProfitTarget))
	from := now.AddDate(0, 0, -s.patterns.HistoryDays)

	lastClose := make(map[string]decimal.Decimal, len(holders))
	for _, ticker := range sortedTickers(holders) {
		if ctx.Err() != nil {
			break
		}

		bars, err := s.bars.Bars(ctx, ticker, models.FrequencyDaily, from, now)
		if err != nil {
			s.logger.Warn("bar fetch failed, skipping ticker",
				zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		if last, ok := bars.Last(); ok {
			lastClose[ticker] = last.Close
		}

		gap, hasGap := monitors.DetectGapUp(ticker, bars, s.patterns.GapMinPct)
		hit, hasHit := monitors.DetectNewHigh(ticker, bars, s.patterns.NewHighLookback)
		for _, userID := range holders[ticker] {
			if hasGap {
				s.registry.Register(monitors.NewGapUpMonitor(userID, gap))
			}
			if hasHit {
				s.registry.Register(monitors.NewPatternMonitor(userID, hit))
			}
		}
	}

	var triggered []models.TriggeredAlert
	for _, m := range s.registry.Snapshot(monitors.KindGapUp, monitors.KindPattern) {
		if m.Triggered {
			continue
		}
		if alert, ok := s.registry.Check(m.Key(), m.Ticker, lastClose[m.Ticker], now); ok {
			triggered = append(triggered, alert)
		}
	}

	s.logger.Debug("pattern scan finished",
		zap.Int("tickers", len(holders)), zap.Int("triggered", len(triggered)))
	s.deliver(ctx, triggered)
	return triggered
}

// deliver hands alerts to the store and publisher. Failures are logged; the
// alert stays in the registry history either way.
func (s *Scanner) deliver(ctx context.Context, triggered []models.TriggeredAlert) {
	for i := range triggered {
		alert := &triggered[i]
		s.logger.Info("alert triggered",
			zap.String("ticker", alert.Ticker),
			zap.String("kind", alert.Kind),
			zap.String("user_id", alert.UserID.String()),
			zap.String("value", alert.TriggeredValue.String()))

		if s.store != nil {
			if err := s.store.SaveTriggeredAlert(ctx, alert); err != nil {
				s.logger.Error("failed to save triggered alert", zap.String("ticker", alert.Ticker), zap.Error(err))
			}
		}
		if s.publisher != nil {
			if err := s.publisher.PublishAlert(ctx, alert); err != nil {
				s.logger.Error("failed to publish triggered alert", zap.String("ticker", alert.Ticker), zap.Error(err))
			}
		}
	}
}

func groupByTicker(ms []*monitors.Monitor) map[string][]*monitors.Monitor {
	out := make(map[string][]*monitors.Monitor)
	for _, m := range ms {
		out[m.Ticker] = append(out[m.Ticker], m)
	}
	return out
}

func holdersByTicker(ms []*monitors.Monitor) map[string][]uuid.UUID {
	out := make(map[string][]uuid.UUID)
	seen := make(map[string]bool)
	for _, m := range ms {
		id := m.Ticker + "|" + m.UserID.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		out[m.Ticker] = append(out[m.Ticker], m.UserID)
	}
	return out
}

func sortedTickers[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
