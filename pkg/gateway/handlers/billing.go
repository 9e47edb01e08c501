package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/gateway/billing"
	"github.com/prosperlabs/prosper/pkg/gateway/store"
)

// BillingHandler exposes the Stripe pass-throughs: checkout, customer
// portal, and post-checkout confirmation.
type BillingHandler struct {
	Store        *store.Store
	Billing      billing.Client
	Logger       *slog.Logger
	MaxBodyBytes int64
}

func (h BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HouseholdID string `json:"householdId"`
	}
	if err := decodeJSONBody(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.HouseholdID) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("householdId is required", "householdId"))
		return
	}

	ctx := r.Context()
	hh, err := h.Store.EnsureHousehold(ctx, req.HouseholdID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	customerID, err := h.Billing.EnsureCustomer(ctx, hh.ID, hh.StripeCustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if customerID != hh.StripeCustomerID {
		if err := h.Store.SetStripeCustomer(ctx, hh.ID, customerID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	url, err := h.Billing.CreateCheckoutSession(ctx, customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (h BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HouseholdID string `json:"householdId"`
	}
	if err := decodeJSONBody(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.HouseholdID) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("householdId is required", "householdId"))
		return
	}

	ctx := r.Context()
	hh, err := h.Store.Household(ctx, req.HouseholdID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hh.StripeCustomerID == "" {
		writeError(w, r, core.NewInvalidRequestError("household has no billing account"))
		return
	}

	url, err := h.Billing.CreatePortalSession(ctx, hh.StripeCustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

// Confirm finishes a checkout redirect: reads the session back from Stripe
// and records the subscription state on the household.
func (h BillingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	householdID := strings.TrimSpace(r.URL.Query().Get("householdId"))
	if sessionID == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("session_id is required", "session_id"))
		return
	}
	if householdID == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("householdId is required", "householdId"))
		return
	}

	ctx := r.Context()
	conf, err := h.Billing.ConfirmCheckout(ctx, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if conf.CustomerID != "" {
		if err := h.Store.SetStripeCustomer(ctx, householdID, conf.CustomerID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := h.Store.SetSubscription(ctx, householdID, conf.SubscriptionStatus, conf.CurrentPeriodEnd); err != nil {
		writeError(w, r, err)
		return
	}

	h.Logger.Info("billing confirmed",
		"household_id", householdID,
		"subscription_status", conf.SubscriptionStatus,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription_status": conf.SubscriptionStatus,
		"current_period_end":  conf.CurrentPeriodEnd,
	})
}
