package position

import (
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/models"
)

// Summary flattens the instance for presentation. Values are rounded here
// and nowhere else: money to cents, percentages and RR to four places.
func (p *Instance) Summary(userID uuid.UUID, asOf time.Time) *models.PositionSummary {
	s := &models.PositionSummary{
		UserID:         userID,
		Ticker:         p.Ticker,
		OpenQuantity:   p.openQuantity,
		AverageCost:    p.AverageCost().Round(2),
		RealizedProfit: p.realizedProfit.Round(2),
		GainPct:        p.GainPct().Round(4),
		RR:             p.RR().Round(4),
		Opened:         p.Opened,
		DaysHeld:       p.DaysHeldAsOf(asOf),
		Grade:          p.Grade,
		GradeNote:      p.GradeNote,
	}
	if p.StopPrice != nil {
		stop := p.StopPrice.Round(2)
		s.StopPrice = &stop
	}
	if p.Closed != nil {
		closed := *p.Closed
		s.Closed = &closed
	}
	return s
}
