package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar frequency constants
const (
	FrequencyDaily  = "DAILY"
	FrequencyWeekly = "WEEKLY"
	FrequencyMinute = "MINUTE"
)

// PriceBar represents one OHLCV bar for a ticker
type PriceBar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// PriceBars is a chronological sequence of bars, oldest first
type PriceBars []PriceBar

// Last returns the most recent bar and false when the series is empty
func (b PriceBars) Last() (PriceBar, bool) {
	if len(b) == 0 {
		return PriceBar{}, false
	}
	return b[len(b)-1], true
}
