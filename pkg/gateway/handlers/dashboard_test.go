package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/gateway/apierror"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) *core.Error {
	t.Helper()
	var env apierror.Envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error == nil {
		t.Fatalf("envelope missing error")
	}
	return env.Error
}

func TestDashboardHandler_RequiresHouseholdID(t *testing.T) {
	h := DashboardHandler{}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/prosper/dashboard", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
	coreErr := decodeError(t, rr)
	if coreErr.Code != "household_id_required" {
		t.Fatalf("code=%q, want household_id_required", coreErr.Code)
	}
	if coreErr.Param != "householdId" {
		t.Fatalf("param=%q", coreErr.Param)
	}
}

func TestUpdateInputHandler_Validation(t *testing.T) {
	h := UpdateInputHandler{MaxBodyBytes: 1 << 20}

	cases := []struct {
		name      string
		body      string
		wantParam string
	}{
		{"missing household", `{"inputs":{"income":5000}}`, "householdId"},
		{"empty inputs", `{"householdId":"h1"}`, "inputs"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/prosper/update-input", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d, want 400", rr.Code)
			}
			if coreErr := decodeError(t, rr); coreErr.Param != tc.wantParam {
				t.Fatalf("param=%q, want %q", coreErr.Param, tc.wantParam)
			}
		})
	}
}

func TestUpdateInputHandler_RejectsMalformedBody(t *testing.T) {
	h := UpdateInputHandler{MaxBodyBytes: 1 << 20}
	req := httptest.NewRequest(http.MethodPost, "/api/prosper/update-input", strings.NewReader(`{"householdId":`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestDeriveKPIs(t *testing.T) {
	kpis, recs := deriveKPIs(map[string]float64{
		"income":        10000,
		"expenses":      9000,
		"cash":          9000,
		"debts":         48000,
		"housing_cost":  3000,
		"debt_payments": 500,
	})

	if got := kpis["sr"]; math.Abs(got-0.10) > 1e-9 {
		t.Fatalf("sr=%v, want 0.10", got)
	}
	if got := kpis["ef_months"]; math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("ef_months=%v, want 1.0", got)
	}
	if got := kpis["dti"]; math.Abs(got-0.40) > 1e-9 {
		t.Fatalf("dti=%v, want 0.40", got)
	}
	if got := kpis["hr"]; math.Abs(got-0.30) > 1e-9 {
		t.Fatalf("hr=%v, want 0.30", got)
	}
	if got := kpis["dsr"]; math.Abs(got-0.05) > 1e-9 {
		t.Fatalf("dsr=%v, want 0.05", got)
	}

	// sr below 20%, emergency fund below 3 months, dti above 36%.
	want := []string{
		"Increase your savings rate",
		"Grow your emergency fund",
		"Pay down outstanding debt",
	}
	if len(recs) != len(want) {
		t.Fatalf("recommendations=%v, want %v", recs, want)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Fatalf("recommendations[%d]=%q, want %q", i, recs[i], want[i])
		}
	}
}

func TestDeriveKPIs_HealthyHouseholdHasNoRecommendations(t *testing.T) {
	_, recs := deriveKPIs(map[string]float64{
		"income":        10000,
		"expenses":      7000,
		"cash":          30000,
		"debts":         12000,
		"housing_cost":  2500,
		"debt_payments": 400,
	})
	if len(recs) != 0 {
		t.Fatalf("recommendations=%v, want none", recs)
	}
}

func TestDeriveKPIs_ZeroIncomeDoesNotPanic(t *testing.T) {
	kpis, _ := deriveKPIs(map[string]float64{"expenses": 1000})
	for key, v := range kpis {
		if math.IsNaN(v) {
			t.Fatalf("%s is NaN", key)
		}
	}
}
