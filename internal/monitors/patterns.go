package monitors

import (
	"fmt"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/shopspring/decimal"
)

// Pattern names
const (
	PatternNewHigh = "New high"
)

// Gap is an overnight discontinuity: the session opened above the prior
// session's high.
type Gap struct {
	Ticker        string          `json:"ticker"`
	Date          time.Time       `json:"date"`
	GapPct        decimal.Decimal `json:"gap_pct"`
	PreviousHigh  decimal.Decimal `json:"previous_high"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Open          decimal.Decimal `json:"open"`
	ClosedAbove   bool            `json:"closed_above"`
}

// PatternHit is a detected chart pattern on the most recent bar
type PatternHit struct {
	Ticker string          `json:"ticker"`
	Name   string          `json:"name"`
	Date   time.Time       `json:"date"`
	Value  decimal.Decimal `json:"value"`
}

// DetectGapUp inspects the last two bars. A gap is reported when the last
// open is above the previous high and the open is at least minPct above the
// previous close.
func DetectGapUp(ticker string, bars models.PriceBars, minPct decimal.Decimal) (Gap, bool) {
	if len(bars) < 2 {
		return Gap{}, false
	}
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	if !prev.Close.IsPositive() || !cur.Open.GreaterThan(prev.High) {
		return Gap{}, false
	}

	pct := cur.Open.Sub(prev.Close).Div(prev.Close)
	if pct.LessThan(minPct) {
		return Gap{}, false
	}

	return Gap{
		Ticker:        ticker,
		Date:          cur.Date,
		GapPct:        pct,
		PreviousHigh:  prev.High,
		PreviousClose: prev.Close,
		Open:          cur.Open,
		ClosedAbove:   cur.Close.GreaterThan(prev.High),
	}, true
}

// DetectNewHigh reports when the last close is the highest close of the
// trailing lookback bars.
func DetectNewHigh(ticker string, bars models.PriceBars, lookback int) (PatternHit, bool) {
	if lookback < 2 || len(bars) < lookback {
		return PatternHit{}, false
	}
	window := bars[len(bars)-lookback:]
	last := window[len(window)-1]
	for _, b := range window[:len(window)-1] {
		if !last.Close.GreaterThan(b.Close) {
			return PatternHit{}, false
		}
	}
	return PatternHit{
		Ticker: ticker,
		Name:   fmt.Sprintf("%s (%d bars)", PatternNewHigh, lookback),
		Date:   last.Date,
		Value:  last.Close,
	}, true
}
