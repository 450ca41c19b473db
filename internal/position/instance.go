package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors returned by position mutations. Callers use errors.Is.
var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrMissingDate     = errors.New("date is required")
	ErrOversell        = errors.New("sell quantity exceeds open quantity")
	ErrPositionClosed  = errors.New("position is closed")
)

// Lot is a single buy or sell fill
type Lot struct {
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transaction_id"`
}

// Instance models one open or closed position in a ticker.
//
// The average cost method is used: sells realize against the weighted
// average cost of the shares still open, and never change it.
type Instance struct {
	Ticker string `json:"ticker"`
	Buys   []Lot  `json:"buys"`
	Sells  []Lot  `json:"sells"`

	StopPrice    *decimal.Decimal `json:"stop_price,omitempty"`
	FirstStop    *decimal.Decimal `json:"first_stop,omitempty"`
	RiskedAmount decimal.Decimal  `json:"risked_amount"`

	openQuantity   decimal.Decimal
	openCost       decimal.Decimal
	realizedProfit decimal.Decimal
	soldCost       decimal.Decimal

	Opened   time.Time  `json:"opened"`
	Closed   *time.Time `json:"closed,omitempty"`
	DaysHeld int        `json:"days_held"`

	Grade     string `json:"grade,omitempty"`
	GradeNote string `json:"grade_note,omitempty"`

	// Populated only by simulations
	MaxGainPct     decimal.Decimal `json:"max_gain_pct"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
}

// NewInstance creates an empty position for ticker
func NewInstance(ticker string) *Instance {
	return &Instance{Ticker: ticker}
}

// Buy adds a lot and recomputes the average cost of the open shares
func (p *Instance) Buy(quantity, price decimal.Decimal, date time.Time, transactionID string) error {
	if err := validateFill(quantity, price, date); err != nil {
		return fmt.Errorf("failed to buy %s: %w", p.Ticker, err)
	}
	if p.IsClosed() {
		return fmt.Errorf("failed to buy %s: %w", p.Ticker, ErrPositionClosed)
	}

	if len(p.Buys) == 0 {
		p.Opened = date
	}
	p.Buys = append(p.Buys, Lot{Quantity: quantity, Price: price, Date: date, TransactionID: transactionID})

	// risk on added shares uses the stop in effect at the time of the buy
	if p.StopPrice != nil {
		if added := price.Sub(*p.StopPrice).Mul(quantity); added.IsPositive() {
			p.RiskedAmount = p.RiskedAmount.Add(added)
		}
	}

	p.openQuantity = p.openQuantity.Add(quantity)
	p.openCost = p.openCost.Add(price.Mul(quantity))
	return nil
}

// Sell removes shares at price, realizing profit against the average cost.
// Selling the last open share closes the position.
func (p *Instance) Sell(quantity, price decimal.Decimal, date time.Time, transactionID string) error {
	if err := validateFill(quantity, price, date); err != nil {
		return fmt.Errorf("failed to sell %s: %w", p.Ticker, err)
	}
	if p.IsClosed() {
		return fmt.Errorf("failed to sell %s: %w", p.Ticker, ErrPositionClosed)
	}
	if quantity.GreaterThan(p.openQuantity) {
		return fmt.Errorf("failed to sell %s %s shares, %s open: %w",
			quantity, p.Ticker, p.openQuantity, ErrOversell)
	}

	p.Sells = append(p.Sells, Lot{Quantity: quantity, Price: price, Date: date, TransactionID: transactionID})

	var costOfSold decimal.Decimal
	if quantity.Equal(p.openQuantity) {
		costOfSold = p.openCost
	} else {
		costOfSold = p.openCost.Mul(quantity).Div(p.openQuantity)
	}

	p.realizedProfit = p.realizedProfit.Add(price.Mul(quantity).Sub(costOfSold))
	p.soldCost = p.soldCost.Add(costOfSold)
	p.openQuantity = p.openQuantity.Sub(quantity)
	p.openCost = p.openCost.Sub(costOfSold)

	if p.openQuantity.IsZero() {
		closed := date
		p.Closed = &closed
		p.openCost = decimal.Zero
		p.DaysHeld = daysBetween(p.Opened, closed)
	}
	return nil
}

// SetStopPrice updates the stop. The first stop ever set establishes the
// risk basis; later changes do not rewrite it.
func (p *Instance) SetStopPrice(price decimal.Decimal, when time.Time) {
	stop := price
	p.StopPrice = &stop

	if p.FirstStop != nil {
		return
	}
	first := price
	p.FirstStop = &first
	if p.IsClosed() {
		return
	}
	if risk := p.openCost.Sub(price.Mul(p.openQuantity)); risk.IsPositive() {
		p.RiskedAmount = risk
	}
}

// Restore reapplies a persisted risk basis after the lots were replayed
func (p *Instance) Restore(firstStop *decimal.Decimal, riskedAmount decimal.Decimal) {
	if firstStop != nil {
		first := *firstStop
		p.FirstStop = &first
	}
	p.RiskedAmount = riskedAmount
}

// SetGrade records the user's grade; allowed in any state
func (p *Instance) SetGrade(grade, note string) {
	p.Grade = grade
	p.GradeNote = note
}

// EntryStop returns the stop that set the risk basis, or the current stop
// when no first stop was recorded
func (p *Instance) EntryStop() *decimal.Decimal {
	if p.FirstStop != nil {
		return p.FirstStop
	}
	return p.StopPrice
}

// IsClosed reports whether all shares have been sold
func (p *Instance) IsClosed() bool {
	return p.Closed != nil
}

// OpenQuantity returns the number of shares still held
func (p *Instance) OpenQuantity() decimal.Decimal {
	return p.openQuantity
}

// AverageCost returns the weighted average cost of the open shares.
// For a closed position it is the average cost of everything sold.
func (p *Instance) AverageCost() decimal.Decimal {
	if p.openQuantity.IsPositive() {
		return p.openCost.Div(p.openQuantity)
	}
	sold := p.soldQuantity()
	if sold.IsPositive() {
		return p.soldCost.Div(sold)
	}
	return decimal.Zero
}

// Cost returns the cost basis of the open shares
func (p *Instance) Cost() decimal.Decimal {
	return p.openCost
}

// RealizedProfit returns the profit accumulated by sells
func (p *Instance) RealizedProfit() decimal.Decimal {
	return p.realizedProfit
}

// GainPct returns realized profit as a fraction of the cost of the shares sold
func (p *Instance) GainPct() decimal.Decimal {
	if p.soldCost.IsZero() {
		return decimal.Zero
	}
	return p.realizedProfit.Div(p.soldCost)
}

// RR returns realized profit in multiples of the risked amount
func (p *Instance) RR() decimal.Decimal {
	if !p.RiskedAmount.IsPositive() {
		return decimal.Zero
	}
	return p.realizedProfit.Div(p.RiskedAmount)
}

// UnrealizedProfit returns the profit of the open shares at price
func (p *Instance) UnrealizedProfit(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.openQuantity).Sub(p.openCost)
}

// UnrealizedGainPct returns the gain of price over the average cost as a fraction
func (p *Instance) UnrealizedGainPct(price decimal.Decimal) decimal.Decimal {
	cost := p.AverageCost()
	if cost.IsZero() {
		return decimal.Zero
	}
	return price.Sub(cost).Div(cost)
}

// UnrealizedRR returns realized plus unrealized profit in multiples of the risked amount
func (p *Instance) UnrealizedRR(price decimal.Decimal) decimal.Decimal {
	if !p.RiskedAmount.IsPositive() {
		return decimal.Zero
	}
	return p.realizedProfit.Add(p.UnrealizedProfit(price)).Div(p.RiskedAmount)
}

// FirstBuyDate returns the date of the first buy
func (p *Instance) FirstBuyDate() time.Time {
	return p.Opened
}

// DaysHeldAsOf returns whole days held as of t, or the frozen value when closed
func (p *Instance) DaysHeldAsOf(t time.Time) int {
	if p.IsClosed() {
		return p.DaysHeld
	}
	return daysBetween(p.Opened, t)
}

// Copy returns a deep copy safe to mutate independently
func (p *Instance) Copy() *Instance {
	c := *p
	c.Buys = append([]Lot(nil), p.Buys...)
	c.Sells = append([]Lot(nil), p.Sells...)
	if p.StopPrice != nil {
		s := *p.StopPrice
		c.StopPrice = &s
	}
	if p.FirstStop != nil {
		f := *p.FirstStop
		c.FirstStop = &f
	}
	if p.Closed != nil {
		cl := *p.Closed
		c.Closed = &cl
	}
	return &c
}

func (p *Instance) soldQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, s := range p.Sells {
		total = total.Add(s.Quantity)
	}
	return total
}

func validateFill(quantity, price decimal.Decimal, date time.Time) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	if date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

func daysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
