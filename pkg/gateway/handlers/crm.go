package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/gateway/store"
)

// CRMHandler serves the advisory-side records behind the admin picker
// screens: companies, their contacts and engagements, engagement people, and
// interviews.
type CRMHandler struct {
	Store        *store.Store
	MaxBodyBytes int64
}

func (h CRMHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.Store.ListCompanies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if companies == nil {
		companies = []store.Company{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (h CRMHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	}
	if err := decodeJSONBody(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("name is required", "name"))
		return
	}
	company, err := h.Store.CreateCompany(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Domain))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"company": company})
}

func (h CRMHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	companyID := r.PathValue("id")
	contacts, err := h.Store.ListContacts(r.Context(), companyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

func (h CRMHandler) ListEngagements(w http.ResponseWriter, r *http.Request) {
	companyID := r.PathValue("id")
	engagements, err := h.Store.ListEngagements(r.Context(), companyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if engagements == nil {
		engagements = []store.Engagement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"engagements": engagements})
}

func (h CRMHandler) ListEngagementPeople(w http.ResponseWriter, r *http.Request) {
	engagementID := r.PathValue("id")
	people, err := h.Store.ListEngagementPeople(r.Context(), engagementID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if people == nil {
		people = []store.EngagementPerson{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"people": people})
}

func (h CRMHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	engagementID := strings.TrimSpace(r.URL.Query().Get("engagementId"))
	if engagementID == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("engagementId is required", "engagementId"))
		return
	}
	interviews, err := h.Store.ListInterviews(r.Context(), engagementID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if interviews == nil {
		interviews = []store.Interview{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interviews": interviews})
}

func (h CRMHandler) CreateInterview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EngagementID string     `json:"engagementId"`
		PersonID     string     `json:"personId"`
		ScheduledAt  *time.Time `json:"scheduledAt"`
		Notes        string     `json:"notes"`
	}
	if err := decodeJSONBody(r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.EngagementID) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("engagementId is required", "engagementId"))
		return
	}
	interview, err := h.Store.CreateInterview(r.Context(), store.Interview{
		EngagementID: req.EngagementID,
		PersonID:     req.PersonID,
		ScheduledAt:  req.ScheduledAt,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"interview": interview})
}
