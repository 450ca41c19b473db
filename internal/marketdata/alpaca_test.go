package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockData struct {
	trade   *md.Trade
	bars    []md.Bar
	err     error
	lastReq md.GetBarsRequest
	symbol  string
}

func (m *mockData) GetLatestTrade(symbol string, _ md.GetLatestTradeRequest) (*md.Trade, error) {
	m.symbol = symbol
	return m.trade, m.err
}

func (m *mockData) GetBars(symbol string, req md.GetBarsRequest) ([]md.Bar, error) {
	m.symbol = symbol
	m.lastReq = req
	return m.bars, m.err
}

type mockCalendar struct {
	days []alpaca.CalendarDay
	err  error
}

func (m *mockCalendar) GetCalendar(alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	return m.days, m.err
}

func TestLatestPrice(t *testing.T) {
	data := &mockData{trade: &md.Trade{Price: 123.45}}
	c := newClient(data, &mockCalendar{}, md.IEX, nil)

	price, err := c.LatestPrice(context.Background(), "amd")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("123.45").Equal(price))
	assert.Equal(t, "AMD", data.symbol)

	t.Run("api errors are wrapped", func(t *testing.T) {
		boom := errors.New("rate limited")
		c := newClient(&mockData{err: boom}, &mockCalendar{}, md.IEX, nil)
		_, err := c.LatestPrice(context.Background(), "AMD")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("missing trade is an error", func(t *testing.T) {
		c := newClient(&mockData{}, &mockCalendar{}, md.IEX, nil)
		_, err := c.LatestPrice(context.Background(), "AMD")
		assert.Error(t, err)
	})

	t.Run("cancelled context short-circuits", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.LatestPrice(ctx, "AMD")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBars(t *testing.T) {
	ts := time.Date(2024, 6, 5, 4, 0, 0, 0, time.UTC)
	data := &mockData{bars: []md.Bar{
		{Timestamp: ts, Open: 30, High: 31.5, Low: 29.25, Close: 31, Volume: 1200},
		{Timestamp: ts.AddDate(0, 0, 1), Open: 31, High: 32, Low: 30.5, Close: 31.75, Volume: 900},
	}}
	c := newClient(data, &mockCalendar{}, md.IEX, nil)

	bars, err := c.Bars(context.Background(), "AMD", models.FrequencyDaily, ts, ts.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, ts, bars[0].Date)
	assert.True(t, decimal.RequireFromString("29.25").Equal(bars[0].Low))
	assert.Equal(t, int64(900), bars[1].Volume)
	assert.Equal(t, md.OneDay, data.lastReq.TimeFrame)
	assert.Equal(t, md.Split, data.lastReq.Adjustment)

	_, err = c.Bars(context.Background(), "AMD", "HOURLY", ts, ts)
	assert.Error(t, err)
}

func TestLoadCalendar(t *testing.T) {
	// week of July 4th 2024: Wednesday closes early, Thursday is a holiday
	cal := &mockCalendar{days: []alpaca.CalendarDay{
		{Date: "2024-07-01", Open: "09:30", Close: "16:00"},
		{Date: "2024-07-02", Open: "09:30", Close: "16:00"},
		{Date: "2024-07-03", Open: "09:30", Close: "13:00"},
		{Date: "2024-07-05", Open: "09:30", Close: "16:00"},
	}}
	c := newClient(&mockData{}, cal, md.IEX, nil)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, ny)
	end := time.Date(2024, 7, 5, 23, 0, 0, 0, ny)

	loaded, err := c.LoadCalendar(context.Background(), start, end)
	require.NoError(t, err)

	_, open := loaded.Session(time.Date(2024, 7, 4, 12, 0, 0, 0, ny))
	assert.False(t, open, "independence day is closed")

	s, open := loaded.Session(time.Date(2024, 7, 3, 12, 0, 0, 0, ny))
	require.True(t, open)
	assert.Equal(t, 13, s.Close.Hour())

	s, open = loaded.Session(time.Date(2024, 7, 5, 12, 0, 0, 0, ny))
	require.True(t, open)
	assert.Equal(t, 16, s.Close.Hour())

	t.Run("api failure", func(t *testing.T) {
		c := newClient(&mockData{}, &mockCalendar{err: errors.New("down")}, md.IEX, nil)
		_, err := c.LoadCalendar(context.Background(), start, end)
		assert.Error(t, err)
	})
}
