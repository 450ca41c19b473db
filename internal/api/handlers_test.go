package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laimis/stock-analysis-sub003/internal/alerts"
	"github.com/laimis/stock-analysis-sub003/internal/database"
	"github.com/laimis/stock-analysis-sub003/internal/journal"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/monitors"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/laimis/stock-analysis-sub003/internal/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockJournal struct {
	err error

	stopTicker string
	stopPrice  decimal.Decimal
	grade      string
	closed     bool
}

func (m *mockJournal) Positions(_ context.Context, userID uuid.UUID, includeClosed bool) ([]*models.PositionSummary, error) {
	m.closed = includeClosed
	return []*models.PositionSummary{{UserID: userID, Ticker: "AMD"}}, m.err
}

func (m *mockJournal) SetStopPrice(_ context.Context, userID uuid.UUID, ticker string, price decimal.Decimal) (*models.PositionSummary, error) {
	m.stopTicker, m.stopPrice = ticker, price
	if m.err != nil {
		return nil, m.err
	}
	return &models.PositionSummary{UserID: userID, Ticker: ticker, StopPrice: &price}, nil
}

func (m *mockJournal) SetGrade(_ context.Context, userID uuid.UUID, ticker, grade, note string) (*models.PositionSummary, error) {
	m.grade = grade
	if m.err != nil {
		return nil, m.err
	}
	return &models.PositionSummary{UserID: userID, Ticker: ticker, Grade: grade, GradeNote: note}, nil
}

func (m *mockJournal) Simulate(_ context.Context, _ uuid.UUID, _ string) ([]strategies.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []strategies.Result{{
		Name:           strategies.ActualTradeName,
		RealizedProfit: decimal.RequireFromString("180.004"),
		RR:             decimal.RequireFromString("1.800049"),
		Closed:         true,
	}}, nil
}

func (m *mockJournal) AddPriceAlert(_ context.Context, userID uuid.UUID, ticker string, price decimal.Decimal) (*monitors.Monitor, error) {
	if m.err != nil {
		return nil, m.err
	}
	return monitors.NewPriceStopMonitor(userID, ticker, price), nil
}

func (m *mockJournal) RemovePriceAlerts(_ context.Context, _ uuid.UUID, _ string) (int64, error) {
	return 1, m.err
}

type mockHistory struct {
	limit int
}

func (m *mockHistory) GetTriggeredAlertsByUser(_ context.Context, userID uuid.UUID, limit int) ([]models.TriggeredAlert, error) {
	m.limit = limit
	return []models.TriggeredAlert{{UserID: userID, Ticker: "AMD"}}, nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

var userID = uuid.MustParse("00000000-0000-0000-0000-0000000000b0")

type testServer struct {
	router   http.Handler
	journal  *mockJournal
	registry *alerts.Registry
	history  *mockHistory
}

func newTestServer(db Pinger) *testServer {
	ts := &testServer{
		journal:  &mockJournal{},
		registry: alerts.NewRegistry(alerts.DefaultHistoryLimit),
		history:  &mockHistory{},
	}
	ts.router = SetupRoutes(NewHandler(ts.journal, ts.registry, ts.history, db, nil))
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func userPath(format string, args ...interface{}) string {
	return "/api/v1/users/" + userID.String() + fmt.Sprintf(format, args...)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		ts := newTestServer(mockPinger{})
		rec := ts.do(http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "healthy")
	})

	t.Run("database down", func(t *testing.T) {
		ts := newTestServer(mockPinger{err: errors.New("refused")})
		rec := ts.do(http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "degraded")
	})
}

func TestAlertRoutes(t *testing.T) {
	ts := newTestServer(nil)
	when := time.Date(2024, 6, 5, 14, 0, 0, 0, time.UTC)

	m := monitors.NewPriceStopMonitor(userID, "AMD", decimal.NewFromInt(30))
	require.True(t, ts.registry.Register(m))
	_, fired := ts.registry.Check(m.Key(), "AMD", decimal.NewFromInt(29), when)
	require.True(t, fired)

	t.Run("alerts", func(t *testing.T) {
		rec := ts.do(http.MethodGet, userPath("/alerts"), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got []models.TriggeredAlert
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "AMD", got[0].Ticker)
	})

	t.Run("monitors", func(t *testing.T) {
		rec := ts.do(http.MethodGet, userPath("/monitors"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), string(monitors.KindStopPrice))
	})

	t.Run("recent", func(t *testing.T) {
		rec := ts.do(http.MethodGet, userPath("/alerts/recent"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "AMD")
	})

	t.Run("history limit", func(t *testing.T) {
		rec := ts.do(http.MethodGet, userPath("/alerts/history?limit=5"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, ts.history.limit)

		rec = ts.do(http.MethodGet, userPath("/alerts/history?limit=-1"), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("manual run", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/api/v1/alerts/run", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		select {
		case <-ts.registry.ManualRuns():
		default:
			t.Fatal("manual run was not requested")
		}
	})

	t.Run("bad user id", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/api/v1/users/nobody/alerts", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("price alerts", func(t *testing.T) {
		rec := ts.do(http.MethodPost, userPath("/alerts/price"), `{"ticker":"NVDA","price":"100"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)

		rec = ts.do(http.MethodDelete, userPath("/alerts/price/NVDA"), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestPositionRoutes(t *testing.T) {
	t.Run("list with closed", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(http.MethodGet, userPath("/positions?closed=true"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, ts.journal.closed)
	})

	t.Run("set stop", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(http.MethodPut, userPath("/positions/amd/stop"), `{"stop_price": 27.5}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "amd", ts.journal.stopTicker)
		assert.True(t, decimal.RequireFromString("27.5").Equal(ts.journal.stopPrice))
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(http.MethodPut, userPath("/positions/AMD/stop"), `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("set grade", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(http.MethodPut, userPath("/positions/AMD/grade"), `{"grade":"A","note":"clean"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "A", ts.journal.grade)
	})

	t.Run("simulate rounds results", func(t *testing.T) {
		ts := newTestServer(nil)
		rec := ts.do(http.MethodGet, userPath("/positions/AMD/simulate"), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var views []SimulationView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.True(t, decimal.RequireFromString("180").Equal(views[0].RealizedProfit))
		assert.True(t, decimal.RequireFromString("1.8").Equal(views[0].RR))
	})
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("failed to load position AMD: %w", journal.ErrNoOpenPosition), http.StatusNotFound},
		{fmt.Errorf("failed to load position AMD: %w", database.ErrNotFound), http.StatusNotFound},
		{journal.ErrInvalidGrade, http.StatusBadRequest},
		{fmt.Errorf("failed to set stop: %w", position.ErrInvalidPrice), http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			ts := newTestServer(nil)
			ts.journal.err = tc.err
			rec := ts.do(http.MethodPut, userPath("/positions/AMD/grade"), `{"grade":"A"}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
