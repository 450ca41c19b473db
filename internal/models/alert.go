package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Monitor kind constants, also used as the tag under which monitors are registered
const (
	MonitorKindStopPrice    = "monitor:stop"
	MonitorKindProfitTarget = "monitor:profit"
	MonitorKindGapUp        = "monitor:gap"
	MonitorKindPattern      = "monitor:patterns"
)

// Alert type constants
const (
	AlertTypeNegative = "negative"
	AlertTypeNeutral  = "neutral"
	AlertTypePositive = "positive"
)

// TriggeredAlert is the durable record of a monitor firing, surfaced to users
type TriggeredAlert struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Ticker         string          `json:"ticker"`
	Kind           string          `json:"kind"`
	Description    string          `json:"description"`
	TriggeredValue decimal.Decimal `json:"triggered_value"`
	WatchedValue   decimal.Decimal `json:"watched_value"`
	AlertType      string          `json:"alert_type"`
	When           time.Time       `json:"when"`
}

// EventTypeAlertTriggered marks a newly fired alert
const EventTypeAlertTriggered = "ALERT_TRIGGERED"

// AlertEvent is the Kafka payload handed to the notification service
type AlertEvent struct {
	EventType string          `json:"event_type"`
	Alert     *TriggeredAlert `json:"alert"`
	Timestamp time.Time       `json:"timestamp"`
}
