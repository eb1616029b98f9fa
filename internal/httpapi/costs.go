// Package httpapi implements the core's plain REST surface (spec §6 "HTTP
// surface"): GET /api/costs and GET /api/files. Both are thin chi.Router
// registrations handed to internal/gateway.Server.AddRoutes, adapted from
// the teacher's internal/http package (provider_models.go, providers.go)
// shape of one small handler file per endpoint rather than one fat router.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/providers"
	"github.com/arialabs/aria/pkg/protocol"
)

// CostsHandler serves GET /api/costs (spec §6) from the cost ledger and
// budget configuration.
type CostsHandler struct {
	Store   providers.CostStore
	Pricing providers.PricingTable
	Budget  config.BudgetConfig
}

// RegisterCosts mounts the costs endpoint onto r.
func RegisterCosts(r chi.Router, h *CostsHandler) {
	r.Get("/api/costs", h.ServeHTTP)
}

func (h *CostsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusOK, protocol.CostsResponse{Enabled: false})
		return
	}

	ctx := r.Context()
	now := time.Now()
	dayStart := now.Truncate(24 * time.Hour)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	daily, err := h.window(ctx, dayStart, h.Budget.DailyLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	monthly, err := h.window(ctx, monthStart, h.Budget.MonthlyLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	total, err := h.Store.TotalRequests(ctx, monthStart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	topModels, err := h.Store.TopModels(ctx, monthStart, 5)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := protocol.CostsResponse{
		Enabled:       true,
		Daily:         daily,
		Monthly:       monthly,
		TotalRequests: total,
		TopModels:     shareModels(topModels),
	}
	writeJSON(w, http.StatusOK, resp)
}

// window reports spend since the window's start against an optional limit,
// flagging warning at the configured fraction of the limit (default 0.75)
// and exceeded once spend passes it outright.
func (h *CostsHandler) window(ctx context.Context, since time.Time, limit *float64) (protocol.BudgetWindow, error) {
	spent, err := h.Store.SpentSince(ctx, since)
	if err != nil {
		return protocol.BudgetWindow{}, err
	}
	bw := protocol.BudgetWindow{Spent: spent, Budget: limit}
	if limit != nil && *limit > 0 {
		frac := h.Budget.WarningFraction
		if frac <= 0 {
			frac = 0.75
		}
		bw.Warning = spent >= *limit*frac
		bw.Exceeded = spent > *limit
	}
	return bw, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func shareModels(models []providers.ModelSpend) []protocol.ModelCostShare {
	var total float64
	for _, m := range models {
		total += m.Cost
	}
	out := make([]protocol.ModelCostShare, 0, len(models))
	for _, m := range models {
		pct := 0.0
		if total > 0 {
			pct = m.Cost / total * 100
		}
		out = append(out, protocol.ModelCostShare{Model: m.Model, Cost: m.Cost, Percentage: pct})
	}
	return out
}
