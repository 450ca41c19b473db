package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade type constants
const (
	TradeTypeBuy  = "BUY"
	TradeTypeSell = "SELL"
)

// EventTypeTradeDetected is the only trade event the journal consumes
const EventTypeTradeDetected = "TRADE_DETECTED"

// Trade grade constants
const (
	TradeGradeA = "A"
	TradeGradeB = "B"
	TradeGradeC = "C"
	TradeGradeD = "D"
	TradeGradeF = "F"
)

// TradeEvent is the Kafka payload emitted by the brokerage sync for every fill
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      TradeEventData `json:"data"`
}

// TradeEventData carries the fill details as strings, exactly as the broker reports them
type TradeEventData struct {
	OrderID      string  `json:"order_id"`
	UserID       string  `json:"user_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Quantity     string  `json:"quantity"`
	AveragePrice string  `json:"average_price"`
	ExecutedAt   *string `json:"executed_at,omitempty"`
}

// Trade is a parsed fill applied to a position
type Trade struct {
	OrderID    string          `json:"order_id"`
	Source     string          `json:"source"`
	UserID     uuid.UUID       `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}
