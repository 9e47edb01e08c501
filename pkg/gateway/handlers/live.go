package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/gateway/config"
	"github.com/prosperlabs/prosper/pkg/gateway/lifecycle"
	"github.com/prosperlabs/prosper/pkg/gateway/live"
	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
	"github.com/prosperlabs/prosper/pkg/gateway/live/sessions"
	"github.com/prosperlabs/prosper/pkg/gateway/metrics"
	"github.com/prosperlabs/prosper/pkg/gateway/mw"
)

// LiveHandler serves /v1/realtime websocket sessions: it validates the
// client's ephemeral key, completes the hello handshake, and relays frames
// between the client and the agent backend until either side goes away.
type LiveHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
	Keys      *live.Keybank
	Backend   live.Backend
	Metrics   *metrics.Metrics
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "method not allowed",
			Code:    "method_not_allowed",
		}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrOverloaded,
			Message: "gateway is draining",
			Code:    "draining",
		}, http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	var writeMu sync.Mutex
	writeFrame := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(h.Config.LiveWSWriteTimeout))
		return conn.WriteJSON(v)
	}
	writeRaw := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(h.Config.LiveWSWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	wsError := func(code, message string) {
		_ = writeFrame(protocol.ServerError{Type: protocol.TypeError, Code: code, Message: message})
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
			time.Now().Add(h.Config.LiveWSWriteTimeout))
		writeMu.Unlock()
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		wsError("bad_request", "failed to read hello")
		return
	}
	if messageType != websocket.TextMessage {
		wsError("bad_request", "first frame must be hello")
		return
	}

	var hello protocol.ClientHello
	if err := json.Unmarshal(firstFrame, &hello); err != nil || hello.Type != protocol.TypeHello {
		wsError("bad_request", "first frame must be hello")
		return
	}
	if hello.ProtocolVersion != protocol.ProtocolVersion1 {
		wsError("unsupported_version", "unsupported protocol_version")
		return
	}

	ephemeralKey := strings.TrimSpace(r.URL.Query().Get("ephemeral_key"))
	if ephemeralKey == "" {
		ephemeralKey = strings.TrimSpace(hello.EphemeralKey)
	}
	if !h.Keys.Validate(ephemeralKey) {
		wsError("unauthorized", "invalid or expired ephemeral key")
		return
	}

	audioFormat := hello.AudioFormat
	switch audioFormat {
	case "":
		audioFormat = protocol.AudioFormatPCM16
	case protocol.AudioFormatPCM16, protocol.AudioFormatG711ULaw, protocol.AudioFormatG711ALaw:
	default:
		wsError("unsupported", "unsupported audio_format")
		return
	}

	agent := strings.TrimSpace(hello.Agent)
	if agent == "" {
		agent = h.Config.DefaultAgent
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader below blocks in ReadMessage with no deadline, so tracker
	// cancellation and the session duration cap must close the socket to
	// unblock it.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sessionID := "s_" + randHex(8)
	unregister, err := h.Sessions.Register(sessionID, ephemeralKey, h.Config.LiveMaxSessionsPerKey, sessions.Handle{
		Cancel: cancel,
		Warn: func(code, message string) error {
			return writeFrame(protocol.ServerError{Type: protocol.TypeError, Code: code, Message: message})
		},
	})
	if err != nil {
		wsError("session_limit", err.Error())
		return
	}
	defer unregister()

	agentSession, err := h.Backend.Open(ctx, agent, hello.Context)
	if err != nil {
		h.Logger.Error("open agent session", "session_id", sessionID, "error", err)
		wsError("backend_error", "failed to open agent session")
		return
	}
	defer agentSession.Close()

	if err := writeFrame(protocol.ServerHelloAck{
		Type:        protocol.TypeHelloAck,
		SessionID:   sessionID,
		Agent:       agent,
		AudioFormat: audioFormat,
	}); err != nil {
		return
	}

	start := time.Now()
	h.Metrics.RecordLiveSessionStart()
	endStatus := "completed"
	defer func() { h.Metrics.RecordLiveSessionEnd(endStatus, time.Since(start)) }()

	h.Logger.Info("live session started",
		"session_id", sessionID,
		"agent", agent,
		"audio_format", audioFormat,
	)

	// Writer: agent events, keepalive pings, session duration cap.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		pingTicker := time.NewTicker(h.Config.LiveWSPingInterval)
		defer pingTicker.Stop()
		maxSession := time.NewTimer(h.Config.LiveMaxSessionDuration)
		defer maxSession.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-maxSession.C:
				wsError("session_expired", "maximum session duration reached")
				cancel()
				return
			case <-pingTicker.C:
				writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(h.Config.LiveWSWriteTimeout))
				writeMu.Unlock()
			case data, ok := <-agentSession.Events():
				if !ok {
					cancel()
					return
				}
				if err := writeRaw(data); err != nil {
					cancel()
					return
				}
				h.Metrics.RecordLiveEvent("server")
			}
		}
	}()

	// Reader: client frames dispatched to the agent session.
	_ = conn.SetReadDeadline(time.Time{})
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				endStatus = "error"
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			h.Logger.Warn("malformed client frame", "session_id", sessionID, "error", err)
			continue
		}
		h.Metrics.RecordLiveEvent("client")

		switch envelope.Type {
		case protocol.TypeUserText:
			var frame protocol.ClientUserText
			if err := json.Unmarshal(data, &frame); err != nil || strings.TrimSpace(frame.Text) == "" {
				h.Logger.Warn("invalid user_text frame", "session_id", sessionID)
				continue
			}
			if err := agentSession.HandleUserText(frame.Text); err != nil {
				h.Logger.Warn("user_text rejected", "session_id", sessionID, "error", err)
			}
		case protocol.TypeControl:
			var frame protocol.ClientControl
			if err := json.Unmarshal(data, &frame); err != nil {
				h.Logger.Warn("invalid control frame", "session_id", sessionID)
				continue
			}
			if err := agentSession.HandleControl(frame.Op); err != nil {
				h.Logger.Warn("control rejected", "session_id", sessionID, "op", frame.Op, "error", err)
			}
		default:
			h.Logger.Warn("unknown client frame type", "session_id", sessionID, "frame_type", envelope.Type)
		}
	}

	cancel()
	<-writerDone
	h.Logger.Info("live session ended",
		"session_id", sessionID,
		"status", endStatus,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b)
}
