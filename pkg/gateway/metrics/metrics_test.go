package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordAndScrape(t *testing.T) {
	m := New("prosper")

	m.RecordRequest("GET /api/session", http.MethodGet, "200", 25*time.Millisecond)
	m.RecordRequest("GET /api/session", http.MethodGet, "200", 30*time.Millisecond)
	m.RecordRequest("GET /api/prosper/dashboard", http.MethodGet, "400", time.Millisecond)
	m.RecordEphemeralKey()
	m.RecordLiveSessionStart()
	m.RecordLiveEvent("client")
	m.RecordLiveEvent("server")
	m.RecordStoreQuery("latest_snapshot", 2*time.Millisecond)
	m.RecordError("invalid_request_error")

	require.Equal(t, float64(2),
		testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET /api/session", "GET", "200")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET /api/prosper/dashboard", "GET", "400")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.EphemeralKeysMinted))
	require.Equal(t, float64(1), testutil.ToFloat64(m.LiveSessionsActive))
	require.Equal(t, float64(1), testutil.ToFloat64(m.LiveEventsTotal.WithLabelValues("client")))

	m.RecordLiveSessionEnd("completed", 90*time.Second)
	require.Equal(t, float64(0), testutil.ToFloat64(m.LiveSessionsActive))
	require.Equal(t, float64(1), testutil.ToFloat64(m.LiveSessionsTotal.WithLabelValues("completed")))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "prosper_requests_total")
	require.Contains(t, rr.Body.String(), "prosper_live_session_duration_seconds")
}

func TestMetrics_NilReceiverSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordRequest("r", "GET", "200", time.Millisecond)
		m.RecordLiveSessionStart()
		m.RecordLiveSessionEnd("error", time.Second)
		m.RecordLiveEvent("server")
		m.RecordEphemeralKey()
		m.RecordStoreQuery("q", time.Millisecond)
		m.RecordError("api_error")
	})
}

func TestNew_EmptyNamespaceDefaults(t *testing.T) {
	m := New("")
	m.RecordEphemeralKey()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rr.Body.String(), "prosper_ephemeral_keys_minted_total")
}
