package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/alerts"
	"github.com/laimis/stock-analysis-sub003/internal/database"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/monitors"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/laimis/stock-analysis-sub003/internal/strategies"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoOpenPosition = errors.New("no open position")
	ErrInvalidGrade   = errors.New("grade must be one of A, B, C, D, F")
	ErrInvalidTicker  = errors.New("ticker is required")
)

// Store is the persistence the service needs
type Store interface {
	SavePosition(ctx context.Context, rec *database.PositionRecord) error
	GetOpenPosition(ctx context.Context, userID uuid.UUID, ticker string) (*database.PositionRecord, error)
	GetLatestPosition(ctx context.Context, userID uuid.UUID, ticker string) (*database.PositionRecord, error)
	GetPositionsByUser(ctx context.Context, userID uuid.UUID, includeClosed bool) ([]*database.PositionRecord, error)
	GetAllOpenPositions(ctx context.Context) ([]*database.PositionRecord, error)

	SaveMonitor(ctx context.Context, m *monitors.Monitor) error
	DeleteMonitors(ctx context.Context, userID uuid.UUID, ticker string, kind monitors.Kind) (int64, error)
	GetMonitors(ctx context.Context, kinds ...monitors.Kind) ([]*monitors.Monitor, error)

	SavePriceBars(ctx context.Context, ticker, frequency string, bars models.PriceBars) error
	GetPriceBars(ctx context.Context, ticker, frequency string, start, end time.Time) (models.PriceBars, error)
}

// PositionPublisher announces position lifecycle changes
type PositionPublisher interface {
	PublishPositionOpened(ctx context.Context, summary *models.PositionSummary) error
	PublishPositionClosed(ctx context.Context, summary *models.PositionSummary) error
}

// Service applies fills to positions and keeps the alert registry in step
// with them
type Service struct {
	store       Store
	registry    *alerts.Registry
	bars        alerts.BarSource
	publisher   PositionPublisher
	runner      *strategies.Runner
	profitLevel int
	logger      *zap.Logger
	now         func() time.Time
	locks       *positionLocks
}

// Option configures optional service collaborators
type Option func(*Service)

// WithPublisher announces opened and closed positions through p
func WithPublisher(p PositionPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithProfitLevel sets the RR multiple watched by profit monitors
func WithProfitLevel(level int) Option {
	return func(s *Service) {
		if level > 0 {
			s.profitLevel = level
		}
	}
}

// WithRunner replaces the default strategy set
func WithRunner(r *strategies.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a journal service
func NewService(store Store, registry *alerts.Registry, bars alerts.BarSource, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:       store,
		registry:    registry,
		bars:        bars,
		runner:      strategies.NewRunner(),
		profitLevel: 2,
		logger:      logger,
		now:         time.Now,
		locks:       newPositionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleTrade satisfies the trade consumer's handler
func (s *Service) HandleTrade(ctx context.Context, trade models.Trade) error {
	return s.ApplyTrade(ctx, trade)
}

// ApplyTrade records a fill against the user's open position in the ticker,
// opening one on a buy when none exists. Redelivered fills are ignored.
func (s *Service) ApplyTrade(ctx context.Context, trade models.Trade) error {
	ticker, err := normalizeTicker(trade.Symbol)
	if err != nil {
		return err
	}
	defer s.locks.lock(trade.UserID, ticker)()

	rec, opened, err := s.positionForTrade(ctx, trade, ticker)
	if err != nil || rec == nil {
		return err
	}

	p := rec.Position
	switch trade.Side {
	case models.TradeTypeBuy:
		err = p.Buy(trade.Quantity, trade.Price, trade.ExecutedAt, trade.OrderID)
	case models.TradeTypeSell:
		err = p.Sell(trade.Quantity, trade.Price, trade.ExecutedAt, trade.OrderID)
	default:
		err = fmt.Errorf("unknown trade side %q", trade.Side)
	}
	if err != nil {
		return err
	}

	if err := s.store.SavePosition(ctx, rec); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	if p.IsClosed() {
		s.onClosed(ctx, rec)
		return nil
	}

	s.refreshMonitors(ctx, rec.UserID, ticker, p)
	if opened && s.publisher != nil {
		if err := s.publisher.PublishPositionOpened(ctx, p.Summary(rec.UserID, s.now())); err != nil {
			s.logger.Error("failed to publish position opened", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	return nil
}

// positionForTrade returns the record the trade applies to. A nil record
// with a nil error means the trade was already applied.
func (s *Service) positionForTrade(ctx context.Context, trade models.Trade, ticker string) (*database.PositionRecord, bool, error) {
	rec, err := s.store.GetOpenPosition(ctx, trade.UserID, ticker)
	switch {
	case err == nil:
		if hasTransaction(rec.Position, trade.OrderID) {
			s.logger.Info("trade already applied", zap.String("order_id", trade.OrderID), zap.String("ticker", ticker))
			return nil, false, nil
		}
		return rec, false, nil

	case !database.IsNotFound(err):
		return nil, false, fmt.Errorf("failed to load position: %w", err)
	}

	if trade.Side == models.TradeTypeBuy {
		return &database.PositionRecord{
			ID:       uuid.New(),
			UserID:   trade.UserID,
			Position: position.NewInstance(ticker),
		}, true, nil
	}

	// a sell redelivered after it closed the position
	latest, err := s.store.GetLatestPosition(ctx, trade.UserID, ticker)
	if err == nil && hasTransaction(latest.Position, trade.OrderID) {
		s.logger.Info("trade already applied", zap.String("order_id", trade.OrderID), zap.String("ticker", ticker))
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("failed to sell %s: %w", ticker, ErrNoOpenPosition)
}

func (s *Service) onClosed(ctx context.Context, rec *database.PositionRecord) {
	p := rec.Position
	s.refreshMonitors(ctx, rec.UserID, p.Ticker, nil)

	if results, err := s.simulate(ctx, p); err != nil {
		s.logger.Warn("simulation after close failed", zap.String("ticker", p.Ticker), zap.Error(err))
	} else if len(results) > 0 {
		p.MaxGainPct = results[0].MaxGainPct
		p.MaxDrawdownPct = results[0].MaxDrawdownPct
		if err := s.store.SavePosition(ctx, rec); err != nil {
			s.logger.Error("failed to save simulation extremes", zap.String("ticker", p.Ticker), zap.Error(err))
		}
	}

	summary := p.Summary(rec.UserID, s.now())
	s.logger.Info("position closed",
		zap.String("ticker", p.Ticker),
		zap.String("user_id", rec.UserID.String()),
		zap.String("realized_profit", summary.RealizedProfit.String()),
		zap.String("rr", summary.RR.String()))

	if s.publisher != nil {
		if err := s.publisher.PublishPositionClosed(ctx, summary); err != nil {
			s.logger.Error("failed to publish position closed", zap.String("ticker", p.Ticker), zap.Error(err))
		}
	}
}

// SetStopPrice moves the stop of the open position. Monitors are rebuilt
// only when the stop actually changes.
func (s *Service) SetStopPrice(ctx context.Context, userID uuid.UUID, ticker string, price decimal.Decimal) (*models.PositionSummary, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("failed to set stop for %s: %w", ticker, position.ErrInvalidPrice)
	}
	defer s.locks.lock(userID, ticker)()

	rec, err := s.openPosition(ctx, userID, ticker)
	if err != nil {
		return nil, err
	}

	p := rec.Position
	if p.StopPrice != nil && p.StopPrice.Equal(price) {
		return p.Summary(userID, s.now()), nil
	}

	p.SetStopPrice(price, s.now())
	if err := s.store.SavePosition(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save position: %w", err)
	}
	s.refreshMonitors(ctx, userID, ticker, p)
	return p.Summary(userID, s.now()), nil
}

// SetGrade grades the user's most recent position in ticker
func (s *Service) SetGrade(ctx context.Context, userID uuid.UUID, ticker, grade, note string) (*models.PositionSummary, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	grade = strings.ToUpper(strings.TrimSpace(grade))
	switch grade {
	case models.TradeGradeA, models.TradeGradeB, models.TradeGradeC, models.TradeGradeD, models.TradeGradeF:
	default:
		return nil, ErrInvalidGrade
	}
	defer s.locks.lock(userID, ticker)()

	rec, err := s.store.GetLatestPosition(ctx, userID, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", ticker, err)
	}

	rec.Position.SetGrade(grade, strings.TrimSpace(note))
	if err := s.store.SavePosition(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save position: %w", err)
	}
	return rec.Position.Summary(userID, s.now()), nil
}

// Simulate runs the strategy set over the user's most recent position in ticker
func (s *Service) Simulate(ctx context.Context, userID uuid.UUID, ticker string) ([]strategies.Result, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetLatestPosition(ctx, userID, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", ticker, err)
	}
	return s.simulate(ctx, rec.Position)
}

func (s *Service) simulate(ctx context.Context, p *position.Instance) ([]strategies.Result, error) {
	end := s.now()
	if p.Closed != nil {
		end = *p.Closed
	}
	bars, err := s.loadBars(ctx, p.Ticker, p.FirstBuyDate(), end, p.Closed != nil)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(p, bars), nil
}

// loadBars serves daily bars from the database when the cached range already
// covers end, otherwise fetches them and refreshes the cache. A failed fetch
// falls back to whatever is cached.
func (s *Service) loadBars(ctx context.Context, ticker string, start, end time.Time, final bool) (models.PriceBars, error) {
	cached, err := s.store.GetPriceBars(ctx, ticker, models.FrequencyDaily, start, end)
	if err != nil {
		s.logger.Warn("failed to read cached bars", zap.String("ticker", ticker), zap.Error(err))
		cached = nil
	}
	if last, ok := cached.Last(); ok && final && !last.Date.Before(dayOf(end)) {
		return cached, nil
	}

	fresh, err := s.bars.Bars(ctx, ticker, models.FrequencyDaily, start, end)
	if err != nil {
		if len(cached) > 0 {
			s.logger.Warn("bar fetch failed, using cached bars", zap.String("ticker", ticker), zap.Error(err))
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", ticker, err)
	}

	if err := s.store.SavePriceBars(ctx, ticker, models.FrequencyDaily, fresh); err != nil {
		s.logger.Warn("failed to cache bars", zap.String("ticker", ticker), zap.Error(err))
	}
	return fresh, nil
}

// Positions lists the user's positions, optionally including closed ones
func (s *Service) Positions(ctx context.Context, userID uuid.UUID, includeClosed bool) ([]*models.PositionSummary, error) {
	recs, err := s.store.GetPositionsByUser(ctx, userID, includeClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	now := s.now()
	out := make([]*models.PositionSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Position.Summary(rec.UserID, now))
	}
	return out, nil
}

// AddPriceAlert watches ticker for price falling to or below price,
// independent of any position
func (s *Service) AddPriceAlert(ctx context.Context, userID uuid.UUID, ticker string, price decimal.Decimal) (*monitors.Monitor, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	m := monitors.NewPriceStopMonitor(userID, ticker, price)
	if m == nil {
		return nil, fmt.Errorf("failed to add price alert for %s: %w", ticker, position.ErrInvalidPrice)
	}
	if err := s.store.SaveMonitor(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save price alert: %w", err)
	}
	s.registry.Register(m)
	return m, nil
}

// RemovePriceAlerts drops every price alert the user has on ticker. The
// position's own stop monitor, if any, stays registered.
func (s *Service) RemovePriceAlerts(ctx context.Context, userID uuid.UUID, ticker string) (int64, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return 0, err
	}
	defer s.locks.lock(userID, ticker)()

	n, err := s.store.DeleteMonitors(ctx, userID, ticker, monitors.KindStopPrice)
	if err != nil {
		return 0, fmt.Errorf("failed to delete price alerts: %w", err)
	}

	var p *position.Instance
	if rec, err := s.store.GetOpenPosition(ctx, userID, ticker); err == nil {
		p = rec.Position
	} else if !database.IsNotFound(err) {
		return n, fmt.Errorf("failed to load position: %w", err)
	}
	s.refreshMonitors(ctx, userID, ticker, p)
	return n, nil
}

// LoadMonitors populates the registry from open positions and stored price
// alerts. It is called once at startup.
func (s *Service) LoadMonitors(ctx context.Context) (int, error) {
	recs, err := s.store.GetAllOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load open positions: %w", err)
	}

	registered := 0
	for _, rec := range recs {
		for _, m := range s.positionMonitors(rec.UserID, rec.Position) {
			if s.registry.Register(m) {
				registered++
			}
		}
	}

	stored, err := s.store.GetMonitors(ctx, monitors.KindStopPrice)
	if err != nil {
		return registered, fmt.Errorf("failed to load price alerts: %w", err)
	}
	for _, m := range stored {
		if s.registry.Register(m) {
			registered++
		}
	}

	s.logger.Info("monitors loaded",
		zap.Int("positions", len(recs)),
		zap.Int("price_alerts", len(stored)),
		zap.Int("registered", registered))
	return registered, nil
}

// refreshMonitors brings the user's stop and profit monitors on ticker in
// line with p, which may be nil, and the stored price alerts. Monitors that
// did not change keep their triggered state.
func (s *Service) refreshMonitors(ctx context.Context, userID uuid.UUID, ticker string, p *position.Instance) {
	want := s.positionMonitors(userID, p)
	kinds := []monitors.Kind{monitors.KindProfitTarget, monitors.KindStopPrice}

	stored, err := s.store.GetMonitors(ctx, monitors.KindStopPrice)
	if err != nil {
		// price alerts share the stop kind; leave stop monitors in place
		s.logger.Warn("failed to reload price alerts", zap.String("ticker", ticker), zap.Error(err))
		kinds = kinds[:1]
	}
	for _, m := range stored {
		if m.UserID == userID && m.Ticker == ticker {
			want = append(want, m)
		}
	}

	s.registry.Sync(ticker, userID, want, kinds...)
}

func (s *Service) positionMonitors(userID uuid.UUID, p *position.Instance) []*monitors.Monitor {
	var out []*monitors.Monitor
	if m := monitors.NewStopPriceMonitor(userID, p); m != nil {
		out = append(out, m)
	}
	if m := monitors.NewProfitPriceMonitor(userID, p, s.profitLevel); m != nil {
		out = append(out, m)
	}
	return out
}

func (s *Service) openPosition(ctx context.Context, userID uuid.UUID, ticker string) (*database.PositionRecord, error) {
	rec, err := s.store.GetOpenPosition(ctx, userID, ticker)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load position %s: %w", ticker, ErrNoOpenPosition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", ticker, err)
	}
	return rec, nil
}

func hasTransaction(p *position.Instance, transactionID string) bool {
	if transactionID == "" || p == nil {
		return false
	}
	for _, lot := range p.Buys {
		if lot.TransactionID == transactionID {
			return true
		}
	}
	for _, lot := range p.Sells {
		if lot.TransactionID == transactionID {
			return true
		}
	}
	return false
}

func normalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", ErrInvalidTicker
	}
	return t, nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
