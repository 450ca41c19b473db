package monitors

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/shopspring/decimal"
)

// Kind tags a monitor variant. The value doubles as the registration tag.
type Kind string

const (
	KindStopPrice    Kind = models.MonitorKindStopPrice
	KindProfitTarget Kind = models.MonitorKindProfitTarget
	KindGapUp        Kind = models.MonitorKindGapUp
	KindPattern      Kind = models.MonitorKindPattern
)

// Monitor is a price-triggered state machine. Exactly one of the variant
// payloads is meaningful for a given Kind; Check dispatches on Kind.
type Monitor struct {
	Kind        Kind            `json:"kind"`
	Ticker      string          `json:"ticker"`
	UserID      uuid.UUID       `json:"user_id"`
	Description string          `json:"description"`
	Threshold   decimal.Decimal `json:"threshold"`

	// Triggered is the hysteresis state for stop/profit monitors and the
	// "already announced" flag for one-shot monitors.
	Triggered      bool                   `json:"triggered"`
	TriggeredAlert *models.TriggeredAlert `json:"triggered_alert,omitempty"`
	LastChecked    time.Time              `json:"last_checked"`

	Gap     *Gap        `json:"gap,omitempty"`
	Pattern *PatternHit `json:"pattern,omitempty"`
}

// Key is the dedup identity: user, ticker, kind and threshold parameters
func (m *Monitor) Key() string {
	params := m.Threshold.String()
	switch m.Kind {
	case KindGapUp:
		if m.Gap != nil {
			params = m.Gap.Date.Format("2006-01-02") + ":" + m.Gap.GapPct.String()
		}
	case KindPattern:
		if m.Pattern != nil {
			params = m.Pattern.Name + ":" + m.Pattern.Date.Format("2006-01-02")
		}
	}
	return fmt.Sprintf("%s|%s|%s|%s", m.UserID, m.Ticker, m.Kind, params)
}

// Check evaluates price observed at when. It returns true only when the
// monitor newly fires; TriggeredAlert always reflects the current state.
func (m *Monitor) Check(ticker string, price decimal.Decimal, when time.Time) bool {
	if ticker != m.Ticker {
		return false
	}
	m.LastChecked = when

	switch m.Kind {
	case KindStopPrice:
		return m.checkThreshold(price, when, price.LessThanOrEqual(m.Threshold), models.AlertTypeNegative)
	case KindProfitTarget:
		return m.checkThreshold(price, when, price.GreaterThanOrEqual(m.Threshold), models.AlertTypePositive)
	case KindGapUp, KindPattern:
		return m.checkOneShot(price, when)
	default:
		return false
	}
}

// Copy returns a copy that shares no mutable state with m
func (m *Monitor) Copy() *Monitor {
	c := *m
	if m.TriggeredAlert != nil {
		a := *m.TriggeredAlert
		c.TriggeredAlert = &a
	}
	if m.Gap != nil {
		g := *m.Gap
		c.Gap = &g
	}
	if m.Pattern != nil {
		p := *m.Pattern
		c.Pattern = &p
	}
	return &c
}

// checkThreshold implements hysteresis: fire on the first breach, refresh
// the alert value while breached, reset when the condition clears.
func (m *Monitor) checkThreshold(price decimal.Decimal, when time.Time, breached bool, alertType string) bool {
	if !breached {
		if m.Triggered {
			m.Triggered = false
			m.TriggeredAlert = nil
		}
		return false
	}

	if m.Triggered {
		m.TriggeredAlert.TriggeredValue = price
		m.TriggeredAlert.When = when
		return false
	}

	m.Triggered = true
	m.TriggeredAlert = m.newAlert(price, when, alertType)
	return true
}

// checkOneShot announces a discovered event exactly once
func (m *Monitor) checkOneShot(price decimal.Decimal, when time.Time) bool {
	if m.Triggered {
		return false
	}
	m.Triggered = true
	m.TriggeredAlert = m.newAlert(price, when, models.AlertTypeNeutral)
	if m.Gap != nil {
		m.TriggeredAlert.AlertType = models.AlertTypePositive
		m.TriggeredAlert.TriggeredValue = m.Gap.GapPct
	} else if m.Pattern != nil {
		m.TriggeredAlert.TriggeredValue = m.Pattern.Value
	}
	return true
}

func (m *Monitor) newAlert(price decimal.Decimal, when time.Time, alertType string) *models.TriggeredAlert {
	return &models.TriggeredAlert{
		ID:             uuid.New(),
		UserID:         m.UserID,
		Ticker:         m.Ticker,
		Kind:           string(m.Kind),
		Description:    m.Description,
		TriggeredValue: price,
		WatchedValue:   m.Threshold,
		AlertType:      alertType,
		When:           when,
	}
}
