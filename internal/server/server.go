// Package server assembles the HTTP surface: the Connect services, the
// read-only REST routes, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/tripledger/internal/auth"
	"github.com/mmynk/tripledger/internal/ledger"
	"github.com/mmynk/tripledger/internal/middleware"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/service"
	"github.com/mmynk/tripledger/pkg/api/apiconnect"
)

// Options configures the handler tree.
type Options struct {
	Ledger *ledger.Ledger

	// JWT enables bearer auth on every route except /healthz and /metrics.
	JWT *auth.JWTManager

	// Gatherer serves /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	// Health reports storage reachability for /healthz.
	Health func(context.Context) error
}

// NewHandler builds the full HTTP handler.
func NewHandler(opts Options) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	interceptors := []connect.Interceptor{middleware.LoggingInterceptor()}
	if opts.JWT != nil {
		interceptors = append([]connect.Interceptor{middleware.RequireAuth(opts.JWT)}, interceptors...)
	}
	connectOpts := connect.WithInterceptors(interceptors...)

	router := mux.NewRouter()

	tripPath, tripHandler := apiconnect.NewTripServiceHandler(service.NewTripService(opts.Ledger), connectOpts)
	router.PathPrefix(tripPath).Handler(tripHandler)
	ledgerPath, ledgerHandler := apiconnect.NewLedgerServiceHandler(service.NewLedgerService(opts.Ledger), connectOpts)
	router.PathPrefix(ledgerPath).Handler(ledgerHandler)

	router.HandleFunc("/healthz", healthHandler(opts.Health)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	rest := router.PathPrefix("/api").Subrouter()
	if opts.JWT != nil {
		rest.Use(middleware.RequireAuthHTTP(opts.JWT))
	}
	h := &restHandler{ledger: opts.Ledger}
	rest.HandleFunc("/trips/{tripID}/balances", h.balances).Methods(http.MethodGet)
	rest.HandleFunc("/trips/{tripID}/plan", h.plan).Methods(http.MethodGet)

	return middleware.Logging(middleware.CORS(router))
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Error("Health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type restHandler struct {
	ledger *ledger.Ledger
}

func (h *restHandler) balances(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["tripID"]

	sheet, err := h.ledger.Balances(r.Context(), tripID)
	if err != nil {
		writeError(w, tripID, err)
		return
	}
	writeJSON(w, http.StatusOK, service.BalancesToAPI(sheet))
}

func (h *restHandler) plan(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["tripID"]

	plan, err := h.ledger.PlanSettlements(r.Context(), tripID)
	if err != nil {
		writeError(w, tripID, err)
		return
	}
	writeJSON(w, http.StatusOK, service.PlanToAPI(plan))
}

func writeError(w http.ResponseWriter, tripID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("REST request failed", "trip_id", tripID, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
