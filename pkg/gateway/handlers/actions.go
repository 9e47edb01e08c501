package handlers

import (
	"net/http"
	"strings"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/gateway/store"
)

// ActionsHandler serves the recommendation action endpoints: list, complete,
// dismiss. Actions are keyed by household id plus title.
type ActionsHandler struct {
	Store        *store.Store
	MaxBodyBytes int64
}

func (h ActionsHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := strings.TrimSpace(r.URL.Query().Get("householdId"))
	if householdID == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("householdId is required", "householdId"))
		return
	}
	actions, err := h.Store.ListActions(r.Context(), householdID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []store.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h ActionsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, store.ActionCompleted)
}

func (h ActionsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, store.ActionDismissed)
}

func (h ActionsHandler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	var req struct {
		HouseholdID string `json:"householdId"`
		Title       string `json:"title"`
	}
	if err := decodeJSONBody(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.HouseholdID) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("householdId is required", "householdId"))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("title is required", "title"))
		return
	}

	found, err := h.Store.SetActionStatus(r.Context(), req.HouseholdID, req.Title, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeError(w, r, core.NewNotFoundError("action not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": status})
}
