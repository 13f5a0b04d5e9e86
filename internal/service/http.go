package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fintrack/backend/internal/model"
)

// StatsHandler exposes the aggregation views as JSON endpoints. Request-shape
// validation beyond date/currency parsing is assumed to happen upstream.
type StatsHandler struct {
	stats           *StatsService
	defaultCurrency string
}

// NewStatsHandler creates the HTTP handler. defaultCurrency is used when a
// request does not name a display currency.
func NewStatsHandler(stats *StatsService, defaultCurrency string) *StatsHandler {
	return &StatsHandler{stats: stats, defaultCurrency: defaultCurrency}
}

// Register mounts the stats endpoints on mux.
func (h *StatsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/stats/monthly", h.handleMonthlySummary)
	mux.HandleFunc("GET /v1/stats/breakdown", h.handleBreakdown)
	mux.HandleFunc("GET /v1/stats/upcoming-dues", h.handleUpcomingDues)
}

func (h *StatsHandler) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	from, err := parseDate(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDate(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := h.stats.MonthlySummary(r.Context(), userID, from, to, h.displayCurrency(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, summary)
}

func (h *StatsHandler) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	from, err := parseDate(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDate(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var entries []BreakdownEntry
	switch groupBy := r.URL.Query().Get("group_by"); groupBy {
	case "", "payment_method":
		entries, err = h.stats.BreakdownByPaymentMethod(r.Context(), userID, from, to, h.displayCurrency(r))
	case "account":
		entries, err = h.stats.BreakdownByAccount(r.Context(), userID, from, to, h.displayCurrency(r))
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown group_by %q", groupBy))
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"entries": entries})
}

func (h *StatsHandler) handleUpcomingDues(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid as_of date %q", raw))
			return
		}
		asOf = parsed
	}
	dues, err := h.stats.UpcomingDues(r.Context(), userID, asOf, h.displayCurrency(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"dues": dues})
}

func (h *StatsHandler) displayCurrency(r *http.Request) string {
	if c := r.URL.Query().Get("currency"); c != "" {
		return c
	}
	return h.defaultCurrency
}

func parseDate(r *http.Request, param string) (time.Time, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", param)
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q", param, raw)
	}
	return d, nil
}

// writeEngineError maps the engine's typed failures to status codes. The
// engine never crashes the process; every failure surfaces here.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownCurrency),
		errors.Is(err, model.ErrInvalidRecurrenceRule),
		errors.Is(err, model.ErrNotCreditMethod):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, model.ErrRateUnavailable):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		log.Printf("[Stats] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Stats] failed to encode response: %v", err)
	}
}
