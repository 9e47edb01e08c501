// Package realtime manages the lifecycle of one realtime voice-agent session:
// ephemeral credential exchange, the websocket transport, decoded event
// fan-out, and automatic reconnection with capped exponential backoff.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prosperlabs/prosper/pkg/core"
	"github.com/prosperlabs/prosper/pkg/eventlog"
	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
)

// Status is the connection state of a Manager.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
)

const (
	defaultDialTimeout        = 15 * time.Second
	defaultReconnectBaseDelay = 5 * time.Second
	defaultReconnectMaxDelay  = 30 * time.Second
	defaultReconnectJitter    = 0.3
	defaultEventBuffer        = 256
)

// Config tunes connection behavior. The zero value gets sane defaults.
type Config struct {
	// DialTimeout bounds the websocket dial plus hello handshake when the
	// caller's context carries no deadline.
	DialTimeout time.Duration

	// Reconnect backoff: delay = min(MaxDelay, BaseDelay * 1.5^attempts),
	// then stretched by up to JitterFraction.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	ReconnectJitter    float64

	// ReconnectMaxAttempts caps automatic retries after an unexpected drop.
	// Zero means retry indefinitely.
	ReconnectMaxAttempts int

	EventBuffer int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	if c.ReconnectJitter <= 0 {
		c.ReconnectJitter = defaultReconnectJitter
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	return c
}

// ReconnectDelay computes the backoff before reconnect attempt n (0-based):
// min(maxDelay, baseDelay * 1.5^n) stretched by a random fraction up to
// jitter.
func ReconnectDelay(attempt int, base, max time.Duration, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(base) * math.Pow(1.5, float64(attempt))
	if delay > float64(max) {
		delay = float64(max)
	}
	if jitter > 0 {
		delay *= 1 + rand.Float64()*jitter
	}
	return time.Duration(delay)
}

// ConnectOptions configures one session.
type ConnectOptions struct {
	// GetEphemeralKey obtains a short-lived session credential, typically a
	// call to the gateway's /api/session endpoint.
	GetEphemeralKey func(ctx context.Context) (string, error)

	// URL is the gateway realtime endpoint. http(s) schemes are rewritten to
	// ws(s).
	URL string

	// Agent names the initial agent configuration.
	Agent string

	// Codec is the client's preferred audio codec ("pcmu", "pcma", or empty
	// for the default); it selects the negotiated audio format.
	Codec string

	ExtraContext map[string]any
}

// Manager owns at most one live realtime session at a time.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	events *eventlog.Log

	onStatus func(Status)

	mu          sync.Mutex
	status      Status
	attempts    int
	lastErr     error
	intentional bool
	opts        ConnectOptions
	conn        *websocket.Conn
	gen         int
	sessionID   string
	muted       bool
	retryTimer  *time.Timer

	writeMu sync.Mutex

	eventCh chan Event
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventLog attaches a diagnostic event log; every outbound send and
// inbound frame is recorded there.
func WithEventLog(log *eventlog.Log) Option {
	return func(m *Manager) { m.events = log }
}

// WithStatusFunc registers a callback invoked on every status transition.
func WithStatusFunc(fn func(Status)) Option {
	return func(m *Manager) { m.onStatus = fn }
}

// NewManager returns a disconnected Manager.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg.withDefaults(),
		logger: logger,
		status: StatusDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.eventCh = make(chan Event, m.cfg.EventBuffer)
	return m
}

// Events yields decoded server events. The channel is buffered; events are
// dropped rather than blocking the read loop when the consumer stalls.
func (m *Manager) Events() <-chan Event {
	if m == nil {
		return nil
	}
	return m.eventCh
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ReconnectAttempts returns the number of automatic retries since the last
// successful connection.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastError returns the most recent connection failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SessionID returns the server-assigned session id for the live connection.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Connect opens a session. It is a no-op when a session is already active or
// connecting: no state changes, no network calls. Failures are logged and
// recorded (LastError) rather than returned; the status reverting to
// DISCONNECTED is the caller-visible signal.
func (m *Manager) Connect(ctx context.Context, opts ConnectOptions) {
	m.mu.Lock()
	if m.status != StatusDisconnected {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnecting
	m.intentional = false
	m.opts = opts
	m.mu.Unlock()
	m.notifyStatus(StatusConnecting)

	if err := m.dial(ctx, opts); err != nil {
		m.logger.Error("realtime connect failed", "error", err)
		m.mu.Lock()
		m.lastErr = err
		m.status = StatusDisconnected
		m.mu.Unlock()
		m.notifyStatus(StatusDisconnected)
		return
	}

	m.mu.Lock()
	m.status = StatusConnected
	m.attempts = 0
	m.lastErr = nil
	m.mu.Unlock()
	m.notifyStatus(StatusConnected)
}

// Disconnect tears the session down intentionally, suppressing automatic
// reconnection and cancelling any pending retry.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.attempts = 0
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	alreadyDown := m.status == StatusDisconnected
	m.status = StatusDisconnected
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	if !alreadyDown {
		m.notifyStatus(StatusDisconnected)
	}
}

// SendEvent forwards an arbitrary JSON payload to the transport. Failures are
// logged and returned; SendEvent never panics.
func (m *Manager) SendEvent(payload any) error {
	m.logClient(payload, "")
	if err := m.sendJSON(payload); err != nil {
		m.logger.Warn("send event failed", "error", err)
		return err
	}
	return nil
}

// SendUserText sends a typed user message. The session must be CONNECTED;
// callers are expected to Interrupt() first to stop in-flight agent speech.
func (m *Manager) SendUserText(text string) error {
	m.mu.Lock()
	connected := m.status == StatusConnected
	m.mu.Unlock()
	if !connected {
		return core.NewInvalidRequestError("realtime session is not connected")
	}
	frame := protocol.ClientUserText{Type: protocol.TypeUserText, Text: text}
	m.logClient(frame, "user_text")
	return m.sendJSON(frame)
}

// Interrupt asks the agent to stop any in-flight speech.
func (m *Manager) Interrupt() error {
	return m.sendControl(protocol.ControlInterrupt)
}

// Mute toggles input muting on the transport.
func (m *Manager) Mute(muted bool) error {
	op := protocol.ControlUnmute
	if muted {
		op = protocol.ControlMute
	}
	if err := m.sendControl(op); err != nil {
		return err
	}
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
	return nil
}

// Muted reports the last requested mute state.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Manager) sendControl(op string) error {
	frame := protocol.ClientControl{Type: protocol.TypeControl, Op: op}
	m.logClient(frame, "control."+op)
	return m.sendJSON(frame)
}

func (m *Manager) sendJSON(v any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return core.NewInvalidRequestError("realtime transport is not open")
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return core.NewTransportError("write", err)
	}
	return nil
}

func (m *Manager) dial(ctx context.Context, opts ConnectOptions) error {
	if opts.GetEphemeralKey == nil {
		return core.NewInvalidRequestError("GetEphemeralKey must not be nil")
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}

	key, err := opts.GetEphemeralKey(dialCtx)
	if err != nil {
		// A canonical error from the fetcher keeps its type so the retry
		// path can tell terminal credential failures from transient ones.
		var ce *core.Error
		if errors.As(err, &ce) {
			return ce
		}
		return core.NewAuthenticationError("fetch ephemeral key: " + err.Error())
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.NewAuthenticationError("ephemeral key is empty")
	}

	wsURL, err := websocketEndpoint(opts.URL)
	if err != nil {
		return err
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+key)

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return core.NewTransportError("dial "+wsURL, err)
		}
		return core.NewTransportError("dial", err)
	}

	hello := protocol.ClientHello{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.ProtocolVersion1,
		EphemeralKey:    key,
		Agent:           opts.Agent,
		AudioFormat:     protocol.ResolveAudioFormat(strings.ToLower(strings.TrimSpace(opts.Codec))),
		Context:         opts.ExtraContext,
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return core.NewTransportError("send hello", err)
	}
	m.logClient(redactedHello(hello), "hello")

	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.DialTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return core.NewTransportError("read hello_ack", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	first, err := decodeTextFrame(payload)
	if err != nil {
		_ = conn.Close()
		return core.NewAPIError("decode first frame: " + err.Error())
	}
	switch e := first.(type) {
	case HelloAckEvent:
		m.logServer(e.Ack, "hello_ack")
		m.mu.Lock()
		m.conn = conn
		m.gen++
		gen := m.gen
		m.sessionID = e.Ack.SessionID
		m.mu.Unlock()
		m.emit(e)
		go m.readLoop(conn, gen)
		return nil
	case ErrorEvent:
		_ = conn.Close()
		return &core.Error{Type: core.ErrAPI, Message: e.Message, Code: e.Code}
	default:
		_ = conn.Close()
		return core.NewAPIError("unexpected first frame type " + first.eventType())
	}
}

func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		event, decodeErr := decodeTextFrame(data)
		if decodeErr != nil {
			// Malformed peer frames are dropped, not fatal.
			m.logger.Warn("drop malformed frame", "error", decodeErr)
			continue
		}
		m.logServer(json.RawMessage(data), event.eventType())
		m.emit(event)
	}
}

func (m *Manager) handleDrop(gen int, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.intentional {
		// Stale loop or user-initiated close; nothing to recover.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.lastErr = core.NewTransportError("connection dropped", cause)
	m.status = StatusDisconnected
	m.mu.Unlock()

	m.logger.Warn("realtime connection dropped", "error", cause)
	m.notifyStatus(StatusDisconnected)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.intentional {
		m.mu.Unlock()
		return
	}
	if m.cfg.ReconnectMaxAttempts > 0 && m.attempts >= m.cfg.ReconnectMaxAttempts {
		m.mu.Unlock()
		m.logger.Error("reconnect attempts exhausted", "attempts", m.cfg.ReconnectMaxAttempts)
		return
	}
	delay := ReconnectDelay(m.attempts, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay, m.cfg.ReconnectJitter)
	m.attempts++
	attempt := m.attempts
	m.retryTimer = time.AfterFunc(delay, m.retry)
	m.mu.Unlock()

	m.logger.Info("scheduling reconnect", "attempt", attempt, "delay_ms", delay.Milliseconds())
}

func (m *Manager) retry() {
	m.mu.Lock()
	if m.intentional || m.status != StatusDisconnected {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnecting
	opts := m.opts
	m.mu.Unlock()
	m.notifyStatus(StatusConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()
	if err := m.dial(ctx, opts); err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.status = StatusDisconnected
		m.mu.Unlock()
		m.notifyStatus(StatusDisconnected)

		// Credential and request-shape failures will not heal on their own,
		// so stop retrying instead of hammering the gateway.
		var ce *core.Error
		if errors.As(err, &ce) && !ce.IsRetryable() {
			m.logger.Error("reconnect abandoned", "error", err)
			return
		}
		m.logger.Warn("reconnect attempt failed", "error", err)
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	m.status = StatusConnected
	m.attempts = 0
	m.lastErr = nil
	muted := m.muted
	m.mu.Unlock()
	m.notifyStatus(StatusConnected)

	// Restore mute state across the new transport.
	if muted {
		_ = m.Mute(true)
	}
}

func (m *Manager) emit(event Event) {
	if event == nil {
		return
	}
	select {
	case m.eventCh <- event:
	default:
		// Avoid deadlocking the read loop if the consumer stops draining.
	}
}

func (m *Manager) notifyStatus(s Status) {
	if m.onStatus != nil {
		m.onStatus(s)
	}
}

func (m *Manager) logClient(payload any, label string) {
	if m.events != nil {
		m.events.Client(payload, label)
	}
}

func (m *Manager) logServer(payload any, label string) {
	if m.events != nil {
		m.events.Server(payload, label)
	}
}

func redactedHello(hello protocol.ClientHello) protocol.ClientHello {
	hello.EphemeralKey = "ek_***"
	return hello
}

func websocketEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", core.NewInvalidRequestError("invalid realtime endpoint URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("realtime endpoint must use http(s) or ws(s)")
	}
	return u.String(), nil
}
