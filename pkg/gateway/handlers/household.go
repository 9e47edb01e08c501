package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/gateway/store"
)

const householdCookie = "prosper_household_id"

// HouseholdHandler implements create-or-read household identity. The id
// rides a long-lived cookie so anonymous browser sessions keep their data.
type HouseholdHandler struct {
	Store *store.Store
}

func (h HouseholdHandler) Init(w http.ResponseWriter, r *http.Request) {
	householdID := ""
	if c, err := r.Cookie(householdCookie); err == nil {
		householdID = strings.TrimSpace(c.Value)
	}
	if householdID == "" {
		householdID = uuid.NewString()
	}
	h.ensureAndRespond(w, r, householdID)
}

func (h HouseholdHandler) Switch(w http.ResponseWriter, r *http.Request) {
	householdID := strings.TrimSpace(r.URL.Query().Get("householdId"))
	if householdID == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("householdId is required", "householdId"))
		return
	}
	h.ensureAndRespond(w, r, householdID)
}

func (h HouseholdHandler) ensureAndRespond(w http.ResponseWriter, r *http.Request, householdID string) {
	hh, err := h.Store.EnsureHousehold(r.Context(), householdID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     householdCookie,
		Value:    hh.ID,
		Path:     "/",
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"householdId":         hh.ID,
		"subscription_status": hh.SubscriptionStatus,
	})
}
