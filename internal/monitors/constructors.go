package monitors

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/shopspring/decimal"
)

// NewStopPriceMonitor watches for price falling to or through the position's
// stop. Returns nil when the position has no stop or no open shares.
func NewStopPriceMonitor(userID uuid.UUID, p *position.Instance) *Monitor {
	if p == nil || p.StopPrice == nil || p.IsClosed() || !p.OpenQuantity().IsPositive() {
		return nil
	}
	return &Monitor{
		Kind:        KindStopPrice,
		Ticker:      p.Ticker,
		UserID:      userID,
		Threshold:   *p.StopPrice,
		Description: fmt.Sprintf("Stop price %s", p.StopPrice.StringFixed(2)),
	}
}

// NewPriceStopMonitor watches a user-chosen price level instead of a position stop
func NewPriceStopMonitor(userID uuid.UUID, ticker string, price decimal.Decimal) *Monitor {
	if ticker == "" || !price.IsPositive() {
		return nil
	}
	return &Monitor{
		Kind:        KindStopPrice,
		Ticker:      ticker,
		UserID:      userID,
		Threshold:   price,
		Description: fmt.Sprintf("Price below %s", price.StringFixed(2)),
	}
}

// ProfitTarget returns avgCost + level × (avgCost − stop), the price at
// which the position earns level multiples of its risk. The stop is the one
// in effect at entry. ok is false when no such price exists.
func ProfitTarget(p *position.Instance, level int) (target decimal.Decimal, ok bool) {
	if p == nil || level < 1 {
		return decimal.Zero, false
	}
	stop := p.EntryStop()
	if stop == nil {
		return decimal.Zero, false
	}
	cost := p.AverageCost()
	risk := cost.Sub(*stop)
	if !cost.IsPositive() || !risk.IsPositive() {
		return decimal.Zero, false
	}
	return cost.Add(risk.Mul(decimal.NewFromInt(int64(level)))), true
}

// NewProfitPriceMonitor watches for price reaching the RR level target.
// Returns nil when no target is computable.
func NewProfitPriceMonitor(userID uuid.UUID, p *position.Instance, level int) *Monitor {
	if p == nil || p.IsClosed() || !p.OpenQuantity().IsPositive() {
		return nil
	}
	target, ok := ProfitTarget(p, level)
	if !ok {
		return nil
	}
	return &Monitor{
		Kind:        KindProfitTarget,
		Ticker:      p.Ticker,
		UserID:      userID,
		Threshold:   target,
		Description: fmt.Sprintf("Profit target %dR at %s", level, target.StringFixed(2)),
	}
}

// NewGapUpMonitor wraps an already discovered gap. Its first check fires.
func NewGapUpMonitor(userID uuid.UUID, gap Gap) *Monitor {
	return &Monitor{
		Kind:        KindGapUp,
		Ticker:      gap.Ticker,
		UserID:      userID,
		Threshold:   gap.GapPct,
		Description: fmt.Sprintf("Gap up %s%%", gap.GapPct.Mul(decimal.NewFromInt(100)).StringFixed(1)),
		Gap:         &gap,
	}
}

// NewPatternMonitor wraps a detected pattern. Its first check fires.
func NewPatternMonitor(userID uuid.UUID, hit PatternHit) *Monitor {
	return &Monitor{
		Kind:        KindPattern,
		Ticker:      hit.Ticker,
		UserID:      userID,
		Threshold:   hit.Value,
		Description: hit.Name,
		Pattern:     &hit,
	}
}
