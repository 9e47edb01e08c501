// Package live implements the gateway's realtime session surface: ephemeral
// key minting, the agent backend abstraction, and the websocket relay that
// joins the two.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
)

// Session is one live agent conversation. Events carries the server frames
// to forward to the client, already encoded.
type Session interface {
	Events() <-chan json.RawMessage
	HandleUserText(text string) error
	HandleControl(op string) error
	Close() error
}

// Backend opens agent sessions. The production deployment points this at the
// upstream realtime voice service; tests and the local demo use EchoBackend.
type Backend interface {
	Open(ctx context.Context, agent string, extraContext map[string]any) (Session, error)
}

// EchoBackend is a self-contained agent backend: every user message is
// acknowledged with an assistant reply. Guard, when set, can trip a guardrail
// on the reply instead.
type EchoBackend struct {
	// Guard inspects the would-be reply and returns a category and rationale
	// when the reply should be blocked.
	Guard func(text string) (category, rationale string, tripped bool)
}

func (b *EchoBackend) Open(ctx context.Context, agent string, extraContext map[string]any) (Session, error) {
	return &echoSession{
		agent:  agent,
		guard:  b.Guard,
		events: make(chan json.RawMessage, 64),
	}, nil
}

type echoSession struct {
	agent  string
	guard  func(string) (string, string, bool)
	events chan json.RawMessage

	seq       atomic.Int64
	closeOnce sync.Once
}

func (s *echoSession) Events() <-chan json.RawMessage { return s.events }

func (s *echoSession) HandleUserText(text string) error {
	userID := fmt.Sprintf("item_%d", s.seq.Add(1))
	s.emit(protocol.ServerHistoryAdded{
		Type: protocol.TypeHistoryAdded,
		Item: protocol.HistoryItem{
			ItemID: userID,
			Type:   "message",
			Role:   "user",
			Status: "completed",
			Content: []protocol.ContentPart{
				{Type: "input_text", Text: text},
			},
		},
	})

	reply := fmt.Sprintf("[%s] You said: %s", s.agent, text)
	assistantID := fmt.Sprintf("item_%d", s.seq.Add(1))
	s.emit(protocol.ServerHistoryAdded{
		Type: protocol.TypeHistoryAdded,
		Item: protocol.HistoryItem{
			ItemID: assistantID,
			Type:   "message",
			Role:   "assistant",
			Status: "in_progress",
			Content: []protocol.ContentPart{
				{Type: "audio", Transcript: reply},
			},
		},
	})

	if s.guard != nil {
		if category, rationale, tripped := s.guard(reply); tripped {
			s.emit(protocol.ServerGuardrailTripped{
				Type:      protocol.TypeGuardrailTripped,
				ItemID:    assistantID,
				Category:  category,
				Rationale: rationale,
			})
			return nil
		}
	}

	s.emit(protocol.ServerTranscriptionCompleted{
		Type:       protocol.TypeTranscriptionCompleted,
		ItemID:     assistantID,
		Role:       "assistant",
		Transcript: reply,
	})
	return nil
}

func (s *echoSession) HandleControl(op string) error {
	switch op {
	case protocol.ControlInterrupt, protocol.ControlMute, protocol.ControlUnmute:
		return nil
	default:
		return fmt.Errorf("unknown control op %q", op)
	}
}

func (s *echoSession) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

// emit encodes and enqueues one frame, dropping it when the client is not
// keeping up.
func (s *echoSession) emit(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case s.events <- data:
	default:
	}
}
