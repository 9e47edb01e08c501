package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// Postgres connection string for the gateway's store.
	DatabaseURL string
	// If true, run pending migrations on startup.
	MigrateOnStart bool

	// Upstream realtime voice backend the live relay dials. When
	// RealtimeAPIKey is empty the gateway serves its built-in echo backend
	// instead of dialing upstream.
	RealtimeURL    string
	RealtimeAPIKey string
	// Default voice agent when the client hello names none.
	DefaultAgent string

	// Ephemeral session keys minted by GET /api/session.
	EphemeralKeyTTL time.Duration

	// Stripe billing pass-throughs.
	StripeSecretKey     string
	StripePriceID       string
	BillingSuccessURL   string
	BillingCancelURL    string
	BillingPortalReturn string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live WebSocket relay (/v1/realtime).
	LiveMaxJSONMessageBytes int64
	LiveMaxSessionDuration  time.Duration
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveHandshakeTimeout    time.Duration
	LiveMaxSessionsPerKey   int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
	MaxBodyBytes        int64
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("PROSPER_ADDR", ":8080"),
		AuthMode:                AuthMode(envOr("PROSPER_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                 make(map[string]struct{}),
		DatabaseURL:             strings.TrimSpace(os.Getenv("PROSPER_DATABASE_URL")),
		MigrateOnStart:          envBoolOr("PROSPER_MIGRATE_ON_START", true),
		RealtimeURL:             envOr("PROSPER_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeAPIKey:          strings.TrimSpace(os.Getenv("PROSPER_REALTIME_API_KEY")),
		DefaultAgent:            envOr("PROSPER_DEFAULT_AGENT", "prosper"),
		EphemeralKeyTTL:         envDurationOr("PROSPER_EPHEMERAL_KEY_TTL", 60*time.Second),
		StripeSecretKey:         strings.TrimSpace(os.Getenv("PROSPER_STRIPE_SECRET_KEY")),
		StripePriceID:           strings.TrimSpace(os.Getenv("PROSPER_STRIPE_PRICE_ID")),
		BillingSuccessURL:       envOr("PROSPER_BILLING_SUCCESS_URL", "http://localhost:3000/billing/success"),
		BillingCancelURL:        envOr("PROSPER_BILLING_CANCEL_URL", "http://localhost:3000/billing"),
		BillingPortalReturn:     envOr("PROSPER_BILLING_PORTAL_RETURN_URL", "http://localhost:3000/settings"),
		CORSAllowedOrigins:      make(map[string]struct{}),
		LiveMaxJSONMessageBytes: envInt64Or("PROSPER_LIVE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		LiveMaxSessionDuration:  envDurationOr("PROSPER_LIVE_MAX_DURATION", 2*time.Hour),
		LiveWSPingInterval:      envDurationOr("PROSPER_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("PROSPER_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveHandshakeTimeout:    envDurationOr("PROSPER_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveMaxSessionsPerKey:   envIntOr("PROSPER_LIVE_MAX_SESSIONS_PER_KEY", 2),
		ReadHeaderTimeout:       envDurationOr("PROSPER_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("PROSPER_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:          envDurationOr("PROSPER_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:     envDurationOr("PROSPER_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MaxBodyBytes:            envInt64Or("PROSPER_MAX_BODY_BYTES", 1<<20), // 1 MiB
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("PROSPER_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("PROSPER_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("PROSPER_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("PROSPER_DATABASE_URL must be set")
	}
	if cfg.RealtimeAPIKey != "" {
		u, err := url.Parse(cfg.RealtimeURL)
		if err != nil {
			return Config{}, fmt.Errorf("PROSPER_REALTIME_URL must be a valid URL")
		}
		switch strings.ToLower(u.Scheme) {
		case "ws", "wss", "http", "https":
		default:
			return Config{}, fmt.Errorf("PROSPER_REALTIME_URL must use ws(s) or http(s)")
		}
	}
	if strings.TrimSpace(cfg.DefaultAgent) == "" {
		return Config{}, fmt.Errorf("PROSPER_DEFAULT_AGENT must not be empty")
	}
	if cfg.EphemeralKeyTTL <= 0 {
		return Config{}, fmt.Errorf("PROSPER_EPHEMERAL_KEY_TTL must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("PROSPER_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("PROSPER_LIVE_MAX_DURATION must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("PROSPER_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("PROSPER_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("PROSPER_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxSessionsPerKey <= 0 {
		return Config{}, fmt.Errorf("PROSPER_LIVE_MAX_SESSIONS_PER_KEY must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("PROSPER_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("PROSPER_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("PROSPER_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("PROSPER_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("PROSPER_MAX_BODY_BYTES must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("PROSPER_API_KEYS must be set when PROSPER_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
