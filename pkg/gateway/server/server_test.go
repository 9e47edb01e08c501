package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prosperlabs/prosper/pkg/gateway/config"
	"github.com/prosperlabs/prosper/pkg/gateway/live"
)

func testConfig() config.Config {
	return config.Config{
		Addr:                    ":0",
		AuthMode:                config.AuthModeRequired,
		APIKeys:                 map[string]struct{}{"pk_test": {}},
		DefaultAgent:            "prosper",
		EphemeralKeyTTL:         time.Minute,
		LiveMaxJSONMessageBytes: 64 * 1024,
		LiveMaxSessionDuration:  time.Minute,
		LiveWSPingInterval:      10 * time.Second,
		LiveWSWriteTimeout:      2 * time.Second,
		LiveHandshakeTimeout:    2 * time.Second,
		LiveMaxSessionsPerKey:   2,
		MaxBodyBytes:            1 << 20,
		ReadHeaderTimeout:       10 * time.Second,
		ReadTimeout:             30 * time.Second,
		HandlerTimeout:          2 * time.Minute,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(testConfig(), logger, Deps{Backend: &live.EchoBackend{}})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, apiKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_ProbesSkipAuth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := get(t, srv.URL+path, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status=%d, want 200 without credentials", path, resp.StatusCode)
		}
	}
}

func TestServer_APIRequiresKey(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/api/session", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status=%d, want 401", resp.StatusCode)
	}

	resp = get(t, srv.URL+"/api/session", "pk_wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key status=%d, want 401", resp.StatusCode)
	}

	resp = get(t, srv.URL+"/api/session", "pk_test")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid key status=%d, want 200", resp.StatusCode)
	}
	var body struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(body.ClientSecret.Value, "ek_") {
		t.Fatalf("client secret=%q", body.ClientSecret.Value)
	}
}

func TestServer_UnknownRouteIs404Envelope(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/api/nope", "pk_test")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", resp.StatusCode)
	}
	var env struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Type != "not_found_error" {
		t.Fatalf("error type=%q", env.Error.Type)
	}
}

func TestServer_ResponsesCarryRequestID(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/healthz", "")
	if got := resp.Header.Get("X-Request-ID"); !strings.HasPrefix(got, "req_") {
		t.Fatalf("X-Request-ID=%q", got)
	}
}

func TestServer_ReadyzReportsDraining(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(testConfig(), logger, Deps{Backend: &live.EchoBackend{}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	s.SetDraining()
	resp := get(t, srv.URL+"/readyz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("draining status=%d, want 503", resp.StatusCode)
	}
}
