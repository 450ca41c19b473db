package strategies

import (
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/shopspring/decimal"
)

// simulation is the mutable state of one strategy run. It never touches the
// caller's position.
type simulation struct {
	pos             *position.Instance
	initialQuantity decimal.Decimal

	levels    []decimal.Decimal
	nextLevel int

	tracked     bool
	maxGain     decimal.Decimal
	maxDrawdown decimal.Decimal
}

// newSimulation re-enters p from its entry snapshot. Returns nil when the
// snapshot holds no shares.
func newSimulation(p *position.Instance) *simulation {
	pos := entrySnapshot(p)
	if pos == nil || !pos.OpenQuantity().IsPositive() {
		return nil
	}
	return &simulation{
		pos:             pos,
		initialQuantity: pos.OpenQuantity(),
	}
}

// entrySnapshot replays every buy lot of p into a fresh position, as if none
// of the sells happened. The risk basis and first stop come from p; the
// active stop is the latest one p carries.
func entrySnapshot(p *position.Instance) *position.Instance {
	if p == nil || len(p.Buys) == 0 {
		return nil
	}

	entry := position.NewInstance(p.Ticker)
	for _, b := range p.Buys {
		if err := entry.Buy(b.Quantity, b.Price, b.Date, b.TransactionID); err != nil {
			return nil
		}
	}

	if first := p.EntryStop(); first != nil {
		entry.SetStopPrice(*first, p.Opened)
		if p.RiskedAmount.IsPositive() {
			entry.Restore(first, p.RiskedAmount)
		}
	}
	if p.StopPrice != nil {
		entry.SetStopPrice(*p.StopPrice, p.Opened)
	}
	return entry
}

// track updates the running best and worst unrealized gain using the bar's
// high and low.
func (s *simulation) track(bar models.PriceBar) {
	high := s.pos.UnrealizedGainPct(bar.High)
	low := s.pos.UnrealizedGainPct(bar.Low)

	if !s.tracked {
		s.maxGain, s.maxDrawdown = high, low
		s.tracked = true
		return
	}
	s.maxGain = decimal.Max(s.maxGain, high)
	s.maxDrawdown = decimal.Min(s.maxDrawdown, low)
}

func (s *simulation) stopHit(bar models.PriceBar) bool {
	stop := s.pos.StopPrice
	return stop != nil && stop.IsPositive() && bar.Low.LessThanOrEqual(*stop)
}

// sell reports false when the sell could not be applied, which ends the run
func (s *simulation) sell(quantity, price decimal.Decimal, bar models.PriceBar) bool {
	if !quantity.IsPositive() {
		return true
	}
	return s.pos.Sell(quantity, price, bar.Date, simulatedTransaction) == nil
}
