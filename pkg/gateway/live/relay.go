package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
)

const defaultRelayDialTimeout = 15 * time.Second

// RelayBackend opens agent sessions against the upstream realtime voice
// service. It authenticates with the gateway's provider key and speaks the
// same wire protocol the gateway serves to its own clients, so frames from
// upstream are forwarded verbatim.
type RelayBackend struct {
	URL    string
	APIKey string
	Logger *slog.Logger

	// DialTimeout bounds the upstream dial plus hello handshake. Zero means
	// 15 seconds.
	DialTimeout time.Duration
}

func (b *RelayBackend) Open(ctx context.Context, agent string, extraContext map[string]any) (Session, error) {
	endpoint, err := relayEndpoint(b.URL)
	if err != nil {
		return nil, err
	}

	timeout := b.DialTimeout
	if timeout <= 0 {
		timeout = defaultRelayDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+b.APIKey)

	dialer := &websocket.Dialer{}
	conn, _, err := dialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("dial upstream realtime: %w", err)
	}

	hello := protocol.ClientHello{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.ProtocolVersion1,
		Agent:           agent,
		Context:         extraContext,
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send upstream hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read upstream hello_ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode upstream first frame: %w", err)
	}
	switch envelope.Type {
	case protocol.TypeHelloAck:
	case protocol.TypeError:
		var serverErr protocol.ServerError
		_ = json.Unmarshal(payload, &serverErr)
		_ = conn.Close()
		return nil, fmt.Errorf("upstream refused session: %s (%s)", serverErr.Message, serverErr.Code)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("upstream first frame type %q, want hello_ack", envelope.Type)
	}

	s := &relaySession{
		conn:   conn,
		logger: b.Logger,
		events: make(chan json.RawMessage, 64),
	}
	go s.readPump()
	return s, nil
}

type relaySession struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan json.RawMessage

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *relaySession) Events() <-chan json.RawMessage { return s.events }

// readPump forwards upstream frames until the connection goes away, then
// closes the events channel so the relay handler tears the client down.
func (s *relaySession) readPump() {
	defer close(s.events)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case s.events <- json.RawMessage(data):
		default:
			if s.logger != nil {
				s.logger.Warn("drop upstream frame, client not keeping up")
			}
		}
	}
}

func (s *relaySession) HandleUserText(text string) error {
	return s.writeJSON(protocol.ClientUserText{Type: protocol.TypeUserText, Text: text})
}

func (s *relaySession) HandleControl(op string) error {
	return s.writeJSON(protocol.ClientControl{Type: protocol.TypeControl, Op: op})
}

func (s *relaySession) Close() error {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
	return nil
}

func (s *relaySession) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// relayEndpoint rewrites http(s) upstream URLs to their websocket scheme.
func relayEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid upstream realtime URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("upstream realtime URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}
