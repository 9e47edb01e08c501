package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
)

func nextFrame(t *testing.T, s Session) []byte {
	t.Helper()
	select {
	case frame, ok := <-s.Events():
		if !ok {
			t.Fatalf("events channel closed")
		}
		return frame
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func decodeHistoryAdded(t *testing.T, frame []byte) protocol.ServerHistoryAdded {
	t.Helper()
	var added protocol.ServerHistoryAdded
	if err := json.Unmarshal(frame, &added); err != nil {
		t.Fatalf("decode history_added: %v", err)
	}
	if added.Type != protocol.TypeHistoryAdded {
		t.Fatalf("type=%q, want history_added", added.Type)
	}
	return added
}

func TestEchoBackend_UserTextRoundTrip(t *testing.T) {
	backend := &EchoBackend{}
	session, err := backend.Open(context.Background(), "prosper", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	if err := session.HandleUserText("how is my savings rate"); err != nil {
		t.Fatalf("HandleUserText: %v", err)
	}

	user := decodeHistoryAdded(t, nextFrame(t, session))
	if user.Item.Role != "user" || user.Item.Content[0].Text != "how is my savings rate" {
		t.Fatalf("user item=%+v", user.Item)
	}

	assistant := decodeHistoryAdded(t, nextFrame(t, session))
	if assistant.Item.Role != "assistant" || assistant.Item.Status != "in_progress" {
		t.Fatalf("assistant item=%+v", assistant.Item)
	}
	wantReply := "[prosper] You said: how is my savings rate"
	if assistant.Item.Content[0].Transcript != wantReply {
		t.Fatalf("reply=%q, want %q", assistant.Item.Content[0].Transcript, wantReply)
	}

	var completed protocol.ServerTranscriptionCompleted
	if err := json.Unmarshal(nextFrame(t, session), &completed); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if completed.Type != protocol.TypeTranscriptionCompleted {
		t.Fatalf("type=%q", completed.Type)
	}
	if completed.ItemID != assistant.Item.ItemID || completed.Transcript != wantReply {
		t.Fatalf("completion=%+v", completed)
	}
}

func TestEchoBackend_GuardTripsInsteadOfCompleting(t *testing.T) {
	backend := &EchoBackend{
		Guard: func(text string) (string, string, bool) {
			return "OFF_TOPIC", "not financial guidance", true
		},
	}
	session, err := backend.Open(context.Background(), "prosper", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	if err := session.HandleUserText("tell me a story"); err != nil {
		t.Fatalf("HandleUserText: %v", err)
	}

	decodeHistoryAdded(t, nextFrame(t, session)) // user
	assistant := decodeHistoryAdded(t, nextFrame(t, session))

	var tripped protocol.ServerGuardrailTripped
	if err := json.Unmarshal(nextFrame(t, session), &tripped); err != nil {
		t.Fatalf("decode guardrail frame: %v", err)
	}
	if tripped.Type != protocol.TypeGuardrailTripped {
		t.Fatalf("type=%q, want guardrail_tripped", tripped.Type)
	}
	if tripped.ItemID != assistant.Item.ItemID || tripped.Category != "OFF_TOPIC" {
		t.Fatalf("tripped=%+v", tripped)
	}

	select {
	case frame := <-session.Events():
		t.Fatalf("unexpected frame after guardrail trip: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEchoSession_ControlOps(t *testing.T) {
	backend := &EchoBackend{}
	session, err := backend.Open(context.Background(), "prosper", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	for _, op := range []string{protocol.ControlInterrupt, protocol.ControlMute, protocol.ControlUnmute} {
		if err := session.HandleControl(op); err != nil {
			t.Fatalf("HandleControl(%s): %v", op, err)
		}
	}
	if err := session.HandleControl("self_destruct"); err == nil {
		t.Fatalf("unknown control op accepted")
	}
}

func TestEchoSession_CloseIsIdempotent(t *testing.T) {
	backend := &EchoBackend{}
	session, err := backend.Open(context.Background(), "prosper", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-session.Events(); ok {
		t.Fatalf("events channel not closed")
	}
}
