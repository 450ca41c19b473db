package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/alerts/run", handler.RunAlerts).Methods("POST")

	// Alert routes
	user := api.PathPrefix("/users/{userId}").Subrouter()
	user.HandleFunc("/alerts", handler.GetAlerts).Methods("GET")
	user.HandleFunc("/alerts/recent", handler.GetRecentAlerts).Methods("GET")
	user.HandleFunc("/alerts/history", handler.GetAlertHistory).Methods("GET")
	user.HandleFunc("/alerts/price", handler.AddPriceAlert).Methods("POST")
	user.HandleFunc("/alerts/price/{ticker}", handler.RemovePriceAlerts).Methods("DELETE")
	user.HandleFunc("/monitors", handler.GetMonitors).Methods("GET")

	// Position routes
	user.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	user.HandleFunc("/positions/{ticker}/stop", handler.SetStopPrice).Methods("PUT")
	user.HandleFunc("/positions/{ticker}/grade", handler.SetGrade).Methods("PUT")
	user.HandleFunc("/positions/{ticker}/simulate", handler.Simulate).Methods("GET")

	return r
}
