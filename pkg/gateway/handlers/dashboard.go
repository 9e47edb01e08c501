package handlers

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/dashboard"
	"github.com/prosperlabs/prosper/pkg/gateway/store"
)

// DashboardHandler serves GET /api/prosper/dashboard.
type DashboardHandler struct {
	Store  *store.Store
	Logger *slog.Logger
}

type dashboardResp struct {
	LatestSnapshot     *store.Snapshot       `json:"latestSnapshot"`
	NetWorthSeries     []store.NetWorthPoint `json:"netWorthSeries"`
	SubscriptionStatus string                `json:"subscription_status"`
	CurrentPeriodEnd   *time.Time            `json:"current_period_end,omitempty"`
	Used               int                   `json:"used"`
	Limit              int                   `json:"limit"`
}

func (h DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	householdID := strings.TrimSpace(r.URL.Query().Get("householdId"))
	if householdID == "" {
		writeError(w, r, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "householdId is required",
			Code:    "household_id_required",
			Param:   "householdId",
		})
		return
	}

	ctx := r.Context()
	hh, err := h.Store.EnsureHousehold(ctx, householdID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := dashboardResp{
		SubscriptionStatus: hh.SubscriptionStatus,
		CurrentPeriodEnd:   hh.CurrentPeriodEnd,
		Used:               hh.UsedSessions,
		Limit:              hh.SessionLimit,
		NetWorthSeries:     []store.NetWorthPoint{},
	}

	snap, ok, err := h.Store.LatestSnapshot(ctx, householdID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ok {
		resp.LatestSnapshot = &snap
	}

	series, err := h.Store.NetWorthSeries(ctx, householdID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if series != nil {
		resp.NetWorthSeries = series
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateInputHandler serves POST /api/prosper/update-input: merge one input
// mutation into the household's latest inputs, recompute the derived KPIs,
// and persist a fresh snapshot plus a net-worth point.
type UpdateInputHandler struct {
	Store        *store.Store
	Logger       *slog.Logger
	MaxBodyBytes int64
}

func (h UpdateInputHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HouseholdID string             `json:"householdId"`
		Inputs      map[string]float64 `json:"inputs"`
	}
	if err := decodeJSONBody(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.HouseholdID) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("householdId is required", "householdId"))
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("inputs must not be empty", "inputs"))
		return
	}

	ctx := r.Context()
	if _, err := h.Store.EnsureHousehold(ctx, req.HouseholdID); err != nil {
		writeError(w, r, err)
		return
	}

	inputs := map[string]float64{}
	if prev, ok, err := h.Store.LatestSnapshot(ctx, req.HouseholdID); err != nil {
		writeError(w, r, err)
		return
	} else if ok && len(prev.Inputs) > 0 {
		if err := json.Unmarshal(prev.Inputs, &inputs); err != nil {
			h.Logger.Warn("discarding unreadable snapshot inputs",
				"household_id", req.HouseholdID, "error", err)
			inputs = map[string]float64{}
		}
	}
	for k, v := range req.Inputs {
		inputs[k] = v
	}

	kpis, recommendations := deriveKPIs(inputs)

	inputsJSON, _ := json.Marshal(inputs)
	kpisJSON, _ := json.Marshal(kpis)
	recsJSON, _ := json.Marshal(recommendations)

	snap, err := h.Store.InsertSnapshot(ctx, store.Snapshot{
		HouseholdID:     req.HouseholdID,
		Inputs:          inputsJSON,
		KPIs:            kpisJSON,
		Recommendations: recsJSON,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Store.UpsertNetWorthPoint(ctx, req.HouseholdID, store.NetWorthPoint{
		TS:    snap.CreatedAt,
		Value: inputs["assets"] - inputs["debts"],
	}); err != nil {
		writeError(w, r, err)
		return
	}

	for _, rec := range recommendations {
		if err := h.Store.UpsertAction(ctx, store.Action{
			HouseholdID: req.HouseholdID,
			Title:       rec,
		}); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
}

const epsilon = 1e-9

// deriveKPIs computes the dashboard KPI set from raw inputs and returns
// recommendation titles for any KPI short of its target.
func deriveKPIs(inputs map[string]float64) (map[string]float64, []string) {
	income := inputs["income"]
	expenses := inputs["expenses"]
	cash := inputs["cash"]
	debts := inputs["debts"]
	housingCost := inputs["housing_cost"]
	debtPayments := inputs["debt_payments"]

	kpis := map[string]float64{
		"sr":        (income - expenses) / math.Max(income, epsilon),
		"ef_months": cash / math.Max(expenses, epsilon),
		"dti":       debts / math.Max(income*12, epsilon),
		"hr":        housingCost / math.Max(income, epsilon),
		"dsr":       debtPayments / math.Max(income, epsilon),
	}

	recommendationTitles := map[string]string{
		"sr":        "Increase your savings rate",
		"ef_months": "Grow your emergency fund",
		"dti":       "Pay down outstanding debt",
		"hr":        "Reduce housing costs",
		"dsr":       "Lower monthly debt payments",
	}

	var recommendations []string
	for _, def := range dashboard.DefaultKPIDefs() {
		v, ok := kpis[def.Key]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		short := (def.Direction == dashboard.DirectionHigher && v < def.Target) ||
			(def.Direction == dashboard.DirectionLower && v > def.Target)
		if short {
			if title, ok := recommendationTitles[def.Key]; ok {
				recommendations = append(recommendations, title)
			}
		}
	}
	return kpis, recommendations
}
