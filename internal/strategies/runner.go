package strategies

import (
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/shopspring/decimal"
)

// ActualTradeName labels the result that replays nothing and only measures
// the real position against the bars
const ActualTradeName = "Actual trade"

// DefaultStrategies is the comparison set shown after a position closes
func DefaultStrategies() []Strategy {
	return []Strategy{
		ProfitPointsRR(3),
		ProfitPointsRR(5),
		ProfitPointsPercent(3, decimal.RequireFromString("0.05")),
		ProfitPointsPercent(3, decimal.RequireFromString("0.10")),
		HoldFor(20),
		StopOnly(),
	}
}

// Runner runs a fixed set of strategies. It holds no mutable state and is
// safe for concurrent use.
type Runner struct {
	strategies []Strategy
}

// NewRunner creates a runner; with no strategies it uses DefaultStrategies
func NewRunner(strategies ...Strategy) *Runner {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Runner{strategies: strategies}
}

// Run returns the actual trade followed by one result per strategy.
//
// Every strategy starts from the entry: the full bought quantity at the
// original lots, as if none of the real sells happened.
func (r *Runner) Run(p *position.Instance, bars models.PriceBars) []Result {
	results := make([]Result, 0, len(r.strategies)+1)
	results = append(results, actual(p, bars))
	for _, st := range r.strategies {
		results = append(results, st.Run(p, bars))
	}
	return results
}

// actual measures max gain and drawdown of the real position over the bars
func actual(p *position.Instance, bars models.PriceBars) Result {
	sim := newSimulation(p)
	if sim == nil {
		return finish(ActualTradeName, copyOrEmpty(p), nil)
	}
	for _, bar := range bars {
		if bar.Date.After(sim.pos.Opened) {
			sim.track(bar)
		}
	}
	return finish(ActualTradeName, p.Copy(), sim)
}
