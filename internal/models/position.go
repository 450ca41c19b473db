package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position event types
const (
	EventTypePositionOpened = "POSITION_OPENED"
	EventTypePositionClosed = "POSITION_CLOSED"
)

// PositionEvent announces a position lifecycle change
type PositionEvent struct {
	EventType string           `json:"event_type"`
	Position  *PositionSummary `json:"position"`
	Timestamp time.Time        `json:"timestamp"`
}

// PositionSummary is a flattened, presentation-ready view of a position
type PositionSummary struct {
	UserID         uuid.UUID        `json:"user_id"`
	Ticker         string           `json:"ticker"`
	OpenQuantity   decimal.Decimal  `json:"open_quantity"`
	AverageCost    decimal.Decimal  `json:"average_cost"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty"`
	RealizedProfit decimal.Decimal  `json:"realized_profit"`
	GainPct        decimal.Decimal  `json:"gain_pct"`
	RR             decimal.Decimal  `json:"rr"`
	Opened         time.Time        `json:"opened"`
	Closed         *time.Time       `json:"closed,omitempty"`
	DaysHeld       int              `json:"days_held"`
	Grade          string           `json:"grade,omitempty"`
	GradeNote      string           `json:"grade_note,omitempty"`
}
