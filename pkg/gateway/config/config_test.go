package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"PROSPER_ADDR",
	"PROSPER_AUTH_MODE",
	"PROSPER_API_KEYS",
	"PROSPER_DATABASE_URL",
	"PROSPER_MIGRATE_ON_START",
	"PROSPER_REALTIME_URL",
	"PROSPER_REALTIME_API_KEY",
	"PROSPER_DEFAULT_AGENT",
	"PROSPER_EPHEMERAL_KEY_TTL",
	"PROSPER_STRIPE_SECRET_KEY",
	"PROSPER_STRIPE_PRICE_ID",
	"PROSPER_BILLING_SUCCESS_URL",
	"PROSPER_BILLING_CANCEL_URL",
	"PROSPER_BILLING_PORTAL_RETURN_URL",
	"PROSPER_CORS_ORIGINS",
	"PROSPER_LIVE_MAX_JSON_MESSAGE_BYTES",
	"PROSPER_LIVE_MAX_DURATION",
	"PROSPER_LIVE_WS_PING_INTERVAL",
	"PROSPER_LIVE_WS_WRITE_TIMEOUT",
	"PROSPER_LIVE_HANDSHAKE_TIMEOUT",
	"PROSPER_LIVE_MAX_SESSIONS_PER_KEY",
	"PROSPER_READ_HEADER_TIMEOUT",
	"PROSPER_READ_TIMEOUT",
	"PROSPER_TOTAL_REQUEST_TIMEOUT",
	"PROSPER_SHUTDOWN_GRACE_PERIOD",
	"PROSPER_MAX_BODY_BYTES",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PROSPER_API_KEYS", "pk_test")
	t.Setenv("PROSPER_DATABASE_URL", "postgres://localhost:5432/prosper")
	t.Setenv("PROSPER_REALTIME_API_KEY", "sk-upstream")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeRequired)
	}
	if !cfg.MigrateOnStart {
		t.Fatalf("MigrateOnStart = false, want true")
	}
	if cfg.RealtimeURL != "wss://api.openai.com/v1/realtime" {
		t.Fatalf("RealtimeURL = %q", cfg.RealtimeURL)
	}
	if cfg.DefaultAgent != "prosper" {
		t.Fatalf("DefaultAgent = %q, want prosper", cfg.DefaultAgent)
	}
	if cfg.EphemeralKeyTTL != 60*time.Second {
		t.Fatalf("EphemeralKeyTTL = %v, want 60s", cfg.EphemeralKeyTTL)
	}
	if cfg.LiveMaxJSONMessageBytes != 64*1024 {
		t.Fatalf("LiveMaxJSONMessageBytes = %d, want 65536", cfg.LiveMaxJSONMessageBytes)
	}
	if cfg.LiveMaxSessionDuration != 2*time.Hour {
		t.Fatalf("LiveMaxSessionDuration = %v, want 2h", cfg.LiveMaxSessionDuration)
	}
	if cfg.LiveWSPingInterval != 20*time.Second {
		t.Fatalf("LiveWSPingInterval = %v, want 20s", cfg.LiveWSPingInterval)
	}
	if cfg.LiveWSWriteTimeout != 5*time.Second {
		t.Fatalf("LiveWSWriteTimeout = %v, want 5s", cfg.LiveWSWriteTimeout)
	}
	if cfg.LiveHandshakeTimeout != 5*time.Second {
		t.Fatalf("LiveHandshakeTimeout = %v, want 5s", cfg.LiveHandshakeTimeout)
	}
	if cfg.LiveMaxSessionsPerKey != 2 {
		t.Fatalf("LiveMaxSessionsPerKey = %d, want 2", cfg.LiveMaxSessionsPerKey)
	}
	if cfg.ReadHeaderTimeout != 10*time.Second {
		t.Fatalf("ReadHeaderTimeout = %v, want 10s", cfg.ReadHeaderTimeout)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("ReadTimeout = %v, want 30s", cfg.ReadTimeout)
	}
	if cfg.HandlerTimeout != 2*time.Minute {
		t.Fatalf("HandlerTimeout = %v, want 2m", cfg.HandlerTimeout)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, int64(1<<20))
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins = %v, want empty", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	t.Setenv("PROSPER_ADDR", ":9090")
	t.Setenv("PROSPER_AUTH_MODE", "optional")
	t.Setenv("PROSPER_API_KEYS", "k1, k2 ,,k3")
	t.Setenv("PROSPER_MIGRATE_ON_START", "false")
	t.Setenv("PROSPER_EPHEMERAL_KEY_TTL", "90s")
	t.Setenv("PROSPER_LIVE_MAX_SESSIONS_PER_KEY", "5")
	t.Setenv("PROSPER_CORS_ORIGINS", "http://localhost:3000,https://app.example.com")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeOptional {
		t.Fatalf("AuthMode = %q, want optional", cfg.AuthMode)
	}
	if len(cfg.APIKeys) != 3 {
		t.Fatalf("APIKeys = %v, want 3 entries", cfg.APIKeys)
	}
	if _, ok := cfg.APIKeys["k2"]; !ok {
		t.Fatalf("APIKeys missing trimmed k2: %v", cfg.APIKeys)
	}
	if cfg.MigrateOnStart {
		t.Fatalf("MigrateOnStart = true, want false")
	}
	if cfg.EphemeralKeyTTL != 90*time.Second {
		t.Fatalf("EphemeralKeyTTL = %v, want 90s", cfg.EphemeralKeyTTL)
	}
	if cfg.LiveMaxSessionsPerKey != 5 {
		t.Fatalf("LiveMaxSessionsPerKey = %d, want 5", cfg.LiveMaxSessionsPerKey)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.example.com"]; !ok {
		t.Fatalf("CORSAllowedOrigins missing origin: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(t *testing.T)
		wantSub string
	}{
		{
			name:    "bad auth mode",
			mutate:  func(t *testing.T) { t.Setenv("PROSPER_AUTH_MODE", "maybe") },
			wantSub: "PROSPER_AUTH_MODE",
		},
		{
			name:    "missing database url",
			mutate:  func(t *testing.T) { t.Setenv("PROSPER_DATABASE_URL", "") },
			wantSub: "PROSPER_DATABASE_URL",
		},
		{
			name: "bad realtime url scheme",
			mutate: func(t *testing.T) {
				t.Setenv("PROSPER_REALTIME_URL", "ftp://api.example.com/realtime")
			},
			wantSub: "PROSPER_REALTIME_URL",
		},
		{
			name: "required auth without keys",
			mutate: func(t *testing.T) {
				t.Setenv("PROSPER_AUTH_MODE", "required")
				t.Setenv("PROSPER_API_KEYS", "")
			},
			wantSub: "PROSPER_API_KEYS",
		},
		{
			name:    "non-positive key ttl",
			mutate:  func(t *testing.T) { t.Setenv("PROSPER_EPHEMERAL_KEY_TTL", "-5s") },
			wantSub: "PROSPER_EPHEMERAL_KEY_TTL",
		},
		{
			name:    "non-positive session cap",
			mutate:  func(t *testing.T) { t.Setenv("PROSPER_LIVE_MAX_SESSIONS_PER_KEY", "0") },
			wantSub: "PROSPER_LIVE_MAX_SESSIONS_PER_KEY",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			setRequiredEnv(t)
			tc.mutate(t)

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want error mentioning %s", tc.wantSub)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error = %v, want mention of %s", err, tc.wantSub)
			}
		})
	}
}

func TestLoadFromEnv_RealtimeKeyOptional(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	t.Setenv("PROSPER_REALTIME_API_KEY", "")
	// A broken URL only matters once an upstream key selects the relay.
	t.Setenv("PROSPER_REALTIME_URL", "ftp://api.example.com/realtime")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.RealtimeAPIKey != "" {
		t.Fatalf("RealtimeAPIKey = %q, want empty", cfg.RealtimeAPIKey)
	}
}

func TestLoadFromEnv_DisabledAuthNeedsNoKeys(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	t.Setenv("PROSPER_AUTH_MODE", "disabled")
	t.Setenv("PROSPER_API_KEYS", "")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.AuthMode != AuthModeDisabled {
		t.Fatalf("AuthMode = %q, want disabled", cfg.AuthMode)
	}
}
