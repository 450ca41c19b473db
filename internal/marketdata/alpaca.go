package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/schedule"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// dataClient is the subset of the Alpaca market data client we use
type dataClient interface {
	GetLatestTrade(symbol string, req md.GetLatestTradeRequest) (*md.Trade, error)
	GetBars(symbol string, req md.GetBarsRequest) ([]md.Bar, error)
}

// calendarClient is the subset of the Alpaca trading client we use
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Options configures the Alpaca clients
type Options struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string
}

// Client adapts Alpaca to the quote, bar and calendar sources used by the
// scanner and the strategy simulations
type Client struct {
	data     dataClient
	calendar calendarClient
	feed     md.Feed
	logger   *zap.Logger
}

// NewClient creates a client backed by the Alpaca REST APIs
func NewClient(opts Options, logger *zap.Logger) *Client {
	data := md.NewClient(md.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		Feed:      md.Feed(opts.Feed),
	})
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})
	return newClient(data, trading, md.Feed(opts.Feed), logger)
}

func newClient(data dataClient, calendar calendarClient, feed md.Feed, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{data: data, calendar: calendar, feed: feed, logger: logger}
}

// LatestPrice returns the price of the most recent trade
func (c *Client) LatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	trade, err := c.data.GetLatestTrade(strings.ToUpper(ticker), md.GetLatestTradeRequest{Feed: c.feed})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get latest trade for %s: %w", ticker, err)
	}
	if trade == nil || trade.Price <= 0 {
		return decimal.Zero, fmt.Errorf("no latest trade for %s", ticker)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

// Bars returns split-adjusted bars between start and end, oldest first
func (c *Client) Bars(ctx context.Context, ticker, frequency string, start, end time.Time) (models.PriceBars, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tf, err := timeFrame(frequency)
	if err != nil {
		return nil, err
	}

	raw, err := c.data.GetBars(strings.ToUpper(ticker), md.GetBarsRequest{
		TimeFrame:  tf,
		Adjustment: md.Split,
		Start:      start,
		End:        end,
		Feed:       c.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bars for %s: %w", ticker, err)
	}

	c.logger.Debug("fetched bars",
		zap.String("ticker", ticker),
		zap.String("frequency", frequency),
		zap.Int("count", len(raw)))

	return convertBars(raw), nil
}

// LoadCalendar builds a New York calendar from Alpaca's trading calendar.
// Weekdays missing from the response become holidays; days with
// non-regular hours become early closes.
func (c *Client) LoadCalendar(ctx context.Context, start, end time.Time) (*schedule.StaticCalendar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cal, err := schedule.NewYorkCalendar()
	if err != nil {
		return nil, err
	}

	days, err := c.calendar.GetCalendar(alpaca.GetCalendarRequest{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to get market calendar: %w", err)
	}

	if err := applyCalendarDays(cal, days, start, end); err != nil {
		return nil, err
	}

	c.logger.Info("loaded market calendar",
		zap.Time("start", start), zap.Time("end", end), zap.Int("trading_days", len(days)))
	return cal, nil
}

func applyCalendarDays(cal *schedule.StaticCalendar, days []alpaca.CalendarDay, start, end time.Time) error {
	loc := cal.Location()
	open := make(map[string]bool, len(days))

	for _, day := range days {
		date, err := time.ParseInLocation(dateLayout, day.Date, loc)
		if err != nil {
			return fmt.Errorf("invalid calendar date %q: %w", day.Date, err)
		}
		open[day.Date] = true

		regular, ok := cal.Session(date)
		if ok && regular.Open.Format("15:04") == day.Open && regular.Close.Format("15:04") == day.Close {
			continue
		}
		if err := cal.AddSession(date, day.Open, day.Close); err != nil {
			return fmt.Errorf("invalid hours for %s: %w", day.Date, err)
		}
	}

	first := time.Date(start.In(loc).Year(), start.In(loc).Month(), start.In(loc).Day(), 0, 0, 0, 0, loc)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if !open[d.Format(dateLayout)] {
			cal.AddHoliday(d)
		}
	}
	return nil
}

func timeFrame(frequency string) (md.TimeFrame, error) {
	switch frequency {
	case models.FrequencyDaily, "":
		return md.OneDay, nil
	case models.FrequencyWeekly:
		return md.NewTimeFrame(1, md.Week), nil
	case models.FrequencyMinute:
		return md.OneMin, nil
	default:
		return md.TimeFrame{}, fmt.Errorf("unsupported bar frequency %q", frequency)
	}
}

func convertBars(raw []md.Bar) models.PriceBars {
	bars := make(models.PriceBars, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, models.PriceBar{
			Date:   b.Timestamp,
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: int64(b.Volume),
		})
	}
	return bars
}
