package strategies

import (
	"fmt"

	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/shopspring/decimal"
)

const simulatedTransaction = "simulated"

// Result is the outcome of replaying one exit plan over a bar series
type Result struct {
	Name           string             `json:"name"`
	Position       *position.Instance `json:"position"`
	MaxGainPct     decimal.Decimal    `json:"max_gain_pct"`
	MaxDrawdownPct decimal.Decimal    `json:"max_drawdown_pct"`

	RealizedProfit decimal.Decimal `json:"realized_profit"`
	RR             decimal.Decimal `json:"rr"`
	GainPct        decimal.Decimal `json:"gain_pct"`
	OpenQuantity   decimal.Decimal `json:"open_quantity"`
	Closed         bool            `json:"closed"`
}

// exitFunc proposes at most one sell for a bar. index counts bars since
// entry, starting at 1.
type exitFunc func(s *simulation, bar models.PriceBar, index int) (quantity, price decimal.Decimal, ok bool)

// Strategy is a named exit plan. Strategies are pure: the same position
// and bars always produce the same Result.
type Strategy struct {
	Name string
	exit exitFunc
}

// Run replays bars dated after the position opened. Within a bar the stop is
// checked before the strategy's exit and at most one exit fires.
func (st Strategy) Run(p *position.Instance, bars models.PriceBars) Result {
	sim := newSimulation(p)
	if sim == nil {
		return finish(st.Name, copyOrEmpty(p), nil)
	}

	index := 0
	for _, bar := range bars {
		if !bar.Date.After(sim.pos.Opened) {
			continue
		}
		index++
		sim.track(bar)

		if sim.pos.IsClosed() {
			continue
		}

		if sim.stopHit(bar) {
			if !sim.sell(sim.pos.OpenQuantity(), *sim.pos.StopPrice, bar) {
				break
			}
			continue
		}

		if st.exit == nil {
			continue
		}
		if qty, price, ok := st.exit(sim, bar, index); ok {
			if !sim.sell(qty, price, bar) {
				break
			}
		}
	}

	return finish(st.Name, sim.pos, sim)
}

// ProfitPointsRR sells the position in equal tranches at 1R, 2R, … levelsR,
// where R is the distance from the average cost to the stop.
func ProfitPointsRR(levels int) Strategy {
	return Strategy{
		Name: fmt.Sprintf("Profit points: %d RR levels", levels),
		exit: trancheExit(levels, func(p *position.Instance) []decimal.Decimal {
			return RRLevels(p, levels)
		}),
	}
}

// ProfitPointsPercent sells in equal tranches at cost × (1 + k × pct)
func ProfitPointsPercent(levels int, pct decimal.Decimal) Strategy {
	return Strategy{
		Name: fmt.Sprintf("Profit points: %d levels every %s%%", levels, pct.Mul(decimal.NewFromInt(100)).String()),
		exit: trancheExit(levels, func(p *position.Instance) []decimal.Decimal {
			return PercentLevels(p, levels, pct)
		}),
	}
}

// HoldFor sells everything at the close of the days-th trading day after entry
func HoldFor(days int) Strategy {
	return Strategy{
		Name: fmt.Sprintf("Hold for %d days", days),
		exit: func(s *simulation, bar models.PriceBar, index int) (decimal.Decimal, decimal.Decimal, bool) {
			if index < days || !bar.Close.IsPositive() {
				return decimal.Zero, decimal.Zero, false
			}
			return s.pos.OpenQuantity(), bar.Close, true
		},
	}
}

// StopOnly never takes profit; only the stop can close the position
func StopOnly() Strategy {
	return Strategy{Name: "Stop loss only"}
}

// RRLevels returns cost + k × (cost − stop) for k = 1..levels, or nil when
// the position has no usable stop. The stop is the one in effect at entry.
func RRLevels(p *position.Instance, levels int) []decimal.Decimal {
	if p == nil || levels < 1 {
		return nil
	}
	stop := p.EntryStop()
	if stop == nil {
		return nil
	}
	cost := p.AverageCost()
	risk := cost.Sub(*stop)
	if !risk.IsPositive() {
		return nil
	}
	out := make([]decimal.Decimal, levels)
	for k := 1; k <= levels; k++ {
		out[k-1] = cost.Add(risk.Mul(decimal.NewFromInt(int64(k))))
	}
	return out
}

// PercentLevels returns cost × (1 + k × pct) for k = 1..levels
func PercentLevels(p *position.Instance, levels int, pct decimal.Decimal) []decimal.Decimal {
	if p == nil || levels < 1 || !pct.IsPositive() {
		return nil
	}
	cost := p.AverageCost()
	if !cost.IsPositive() {
		return nil
	}
	out := make([]decimal.Decimal, levels)
	for k := 1; k <= levels; k++ {
		out[k-1] = cost.Mul(decimal.NewFromInt(1).Add(pct.Mul(decimal.NewFromInt(int64(k)))))
	}
	return out
}

// trancheExit sells one tranche per bar when the bar's high reaches the next
// unfilled level. The last level sells whatever is left.
func trancheExit(levels int, targets func(p *position.Instance) []decimal.Decimal) exitFunc {
	return func(s *simulation, bar models.PriceBar, _ int) (decimal.Decimal, decimal.Decimal, bool) {
		if s.levels == nil {
			s.levels = targets(s.pos)
		}
		if s.nextLevel >= len(s.levels) {
			return decimal.Zero, decimal.Zero, false
		}

		target := s.levels[s.nextLevel]
		if bar.High.LessThan(target) {
			return decimal.Zero, decimal.Zero, false
		}

		s.nextLevel++
		open := s.pos.OpenQuantity()
		if s.nextLevel == len(s.levels) {
			return open, target, true
		}
		return decimal.Min(trancheSize(s.initialQuantity, levels), open), target, true
	}
}

// trancheSize splits quantity into levels whole-share tranches. When that
// rounds to zero the tranche is one share, or the whole position if it is
// smaller than a share, so every level with shares left still executes.
func trancheSize(quantity decimal.Decimal, levels int) decimal.Decimal {
	size := quantity.Div(decimal.NewFromInt(int64(levels))).Floor()
	if size.IsPositive() {
		return size
	}
	one := decimal.NewFromInt(1)
	if quantity.LessThan(one) {
		return quantity
	}
	return one
}

func copyOrEmpty(p *position.Instance) *position.Instance {
	if p == nil {
		return position.NewInstance("")
	}
	return p.Copy()
}

func finish(name string, pos *position.Instance, sim *simulation) Result {
	r := Result{
		Name:           name,
		Position:       pos,
		RealizedProfit: pos.RealizedProfit(),
		RR:             pos.RR(),
		GainPct:        pos.GainPct(),
		OpenQuantity:   pos.OpenQuantity(),
		Closed:         pos.IsClosed(),
	}
	if sim != nil {
		r.MaxGainPct = sim.maxGain
		r.MaxDrawdownPct = sim.maxDrawdown
		pos.MaxGainPct = sim.maxGain
		pos.MaxDrawdownPct = sim.maxDrawdown
	}
	return r
}
