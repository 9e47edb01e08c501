package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prosperlabs/prosper/pkg/gateway/live"
	"github.com/prosperlabs/prosper/pkg/gateway/metrics"
)

// UsageRecorder counts minted sessions against a household's plan. The
// dashboard reports the running total alongside the subscription limit.
type UsageRecorder interface {
	IncrementUsedSessions(ctx context.Context, householdID string) (int, error)
}

// SessionHandler mints ephemeral realtime session keys. The response shape
// mirrors the upstream realtime service's session endpoint so clients read
// client_secret.value regardless of which tier minted the key.
type SessionHandler struct {
	Keys    *live.Keybank
	TTL     time.Duration
	Usage   UsageRecorder
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (h SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type clientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	}
	type sessionResp struct {
		ClientSecret clientSecret `json:"client_secret"`
		UsedSessions int          `json:"used_sessions,omitempty"`
	}

	key := h.Keys.Mint(h.TTL)
	h.Metrics.RecordEphemeralKey()

	resp := sessionResp{
		ClientSecret: clientSecret{
			Value:     key,
			ExpiresAt: time.Now().Add(h.TTL).Unix(),
		},
	}

	// Minting against a household counts toward its session allowance. A
	// failed count never blocks the session itself.
	if householdID := strings.TrimSpace(r.URL.Query().Get("householdId")); householdID != "" && h.Usage != nil {
		used, err := h.Usage.IncrementUsedSessions(r.Context(), householdID)
		if err != nil {
			if h.Logger != nil {
				h.Logger.Warn("count session usage", "household_id", householdID, "error", err)
			}
		} else {
			resp.UsedSessions = used
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
