package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/laimis/stock-analysis-sub003/internal/alerts"
	"github.com/laimis/stock-analysis-sub003/internal/database"
	"github.com/laimis/stock-analysis-sub003/internal/journal"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/monitors"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/laimis/stock-analysis-sub003/internal/strategies"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// Journal is the position service behind the command routes
type Journal interface {
	Positions(ctx context.Context, userID uuid.UUID, includeClosed bool) ([]*models.PositionSummary, error)
	SetStopPrice(ctx context.Context, userID uuid.UUID, ticker string, price decimal.Decimal) (*models.PositionSummary, error)
	SetGrade(ctx context.Context, userID uuid.UUID, ticker, grade, note string) (*models.PositionSummary, error)
	Simulate(ctx context.Context, userID uuid.UUID, ticker string) ([]strategies.Result, error)
	AddPriceAlert(ctx context.Context, userID uuid.UUID, ticker string, price decimal.Decimal) (*monitors.Monitor, error)
	RemovePriceAlerts(ctx context.Context, userID uuid.UUID, ticker string) (int64, error)
}

// AlertHistory reads persisted triggered alerts
type AlertHistory interface {
	GetTriggeredAlertsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.TriggeredAlert, error)
}

// Pinger reports backing store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	journal  Journal
	registry *alerts.Registry
	history  AlertHistory
	db       Pinger
	logger   *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(j Journal, registry *alerts.Registry, history AlertHistory, db Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		journal:  j,
		registry: registry,
		history:  history,
		db:       db,
		logger:   logger,
	}
}

// GetAlerts handles GET /users/{userId}/alerts
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.registry.GetAlerts(userID))
}

// GetMonitors handles GET /users/{userId}/monitors
func (h *Handler) GetMonitors(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.registry.GetMonitors(userID))
}

// GetRecentAlerts handles GET /users/{userId}/alerts/recent
func (h *Handler) GetRecentAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.registry.GetRecentlyTriggered(userID))
}

// GetAlertHistory handles GET /users/{userId}/alerts/history?limit=N
func (h *Handler) GetAlertHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := h.history.GetTriggeredAlertsByUser(r.Context(), userID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// RunAlerts handles POST /alerts/run
func (h *Handler) RunAlerts(w http.ResponseWriter, r *http.Request) {
	h.registry.RequestManualRun()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// AddPriceAlert handles POST /users/{userId}/alerts/price
func (h *Handler) AddPriceAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Ticker string          `json:"ticker"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := h.journal.AddPriceAlert(r.Context(), userID, req.Ticker, req.Price)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// RemovePriceAlerts handles DELETE /users/{userId}/alerts/price/{ticker}
func (h *Handler) RemovePriceAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if _, err := h.journal.RemovePriceAlerts(r.Context(), userID, mux.Vars(r)["ticker"]); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPositions handles GET /users/{userId}/positions?closed=true
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	includeClosed, _ := strconv.ParseBool(r.URL.Query().Get("closed"))

	positions, err := h.journal.Positions(r.Context(), userID, includeClosed)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

// SetStopPrice handles PUT /users/{userId}/positions/{ticker}/stop
func (h *Handler) SetStopPrice(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		StopPrice decimal.Decimal `json:"stop_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := h.journal.SetStopPrice(r.Context(), userID, mux.Vars(r)["ticker"], req.StopPrice)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// SetGrade handles PUT /users/{userId}/positions/{ticker}/grade
func (h *Handler) SetGrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Grade string `json:"grade"`
		Note  string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	summary, err := h.journal.SetGrade(r.Context(), userID, mux.Vars(r)["ticker"], req.Grade, req.Note)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// SimulationView is a rounded strategy result
type SimulationView struct {
	Name           string          `json:"name"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	RR             decimal.Decimal `json:"rr"`
	GainPct        decimal.Decimal `json:"gain_pct"`
	MaxGainPct     decimal.Decimal `json:"max_gain_pct"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
	OpenQuantity   decimal.Decimal `json:"open_quantity"`
	Closed         bool            `json:"closed"`
}

// NewSimulationViews rounds money to cents and ratios to four places
func NewSimulationViews(results []strategies.Result) []SimulationView {
	views := make([]SimulationView, 0, len(results))
	for _, res := range results {
		views = append(views, SimulationView{
			Name:           res.Name,
			RealizedProfit: res.RealizedProfit.Round(2),
			RR:             res.RR.Round(4),
			GainPct:        res.GainPct.Round(4),
			MaxGainPct:     res.MaxGainPct.Round(4),
			MaxDrawdownPct: res.MaxDrawdownPct.Round(4),
			OpenQuantity:   res.OpenQuantity,
			Closed:         res.Closed,
		})
	}
	return views
}

// Simulate handles GET /users/{userId}/positions/{ticker}/simulate
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	results, err := h.journal.Simulate(r.Context(), userID, mux.Vars(r)["ticker"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewSimulationViews(results))
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "healthy",
		"monitors": h.registry.Len(),
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health check: database unreachable", zap.Error(err))
			status["status"] = "degraded"
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["userId"])
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case database.IsNotFound(err), errors.Is(err, journal.ErrNoOpenPosition):
		return http.StatusNotFound
	case errors.Is(err, journal.ErrInvalidGrade),
		errors.Is(err, journal.ErrInvalidTicker),
		errors.Is(err, position.ErrInvalidPrice),
		errors.Is(err, position.ErrInvalidQuantity),
		errors.Is(err, position.ErrMissingDate),
		errors.Is(err, position.ErrOversell),
		errors.Is(err, position.ErrPositionClosed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
