package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestActionsHandler_ListRequiresHouseholdID(t *testing.T) {
	h := ActionsHandler{}

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/prosper/actions", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
	if coreErr := decodeError(t, rr); coreErr.Param != "householdId" {
		t.Fatalf("param=%q", coreErr.Param)
	}
}

func TestActionsHandler_SetStatusValidation(t *testing.T) {
	h := ActionsHandler{MaxBodyBytes: 1 << 20}

	cases := []struct {
		name      string
		body      string
		wantParam string
	}{
		{"missing household", `{"title":"Grow your emergency fund"}`, "householdId"},
		{"missing title", `{"householdId":"h1"}`, "title"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/prosper/actions/complete", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.Complete(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d, want 400", rr.Code)
			}
			if coreErr := decodeError(t, rr); coreErr.Param != tc.wantParam {
				t.Fatalf("param=%q, want %q", coreErr.Param, tc.wantParam)
			}
		})
	}
}

func TestActionsHandler_RejectsUnknownFields(t *testing.T) {
	h := ActionsHandler{MaxBodyBytes: 1 << 20}
	body := `{"householdId":"h1","title":"x","status":"sneaky"}`
	req := httptest.NewRequest(http.MethodPost, "/api/prosper/actions/dismiss", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Dismiss(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}
