package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
)

// Event is a decoded server frame emitted by Manager.Events().
type Event interface {
	eventType() string
}

// HelloAckEvent confirms session establishment.
type HelloAckEvent struct{ Ack protocol.ServerHelloAck }

func (e HelloAckEvent) eventType() string { return protocol.TypeHelloAck }

// HistoryAddedEvent reports one newly observed conversation item.
type HistoryAddedEvent struct{ Item protocol.HistoryItem }

func (e HistoryAddedEvent) eventType() string { return protocol.TypeHistoryAdded }

// HistoryUpdatedEvent reports in-place edits to known items.
type HistoryUpdatedEvent struct{ Items []protocol.HistoryItem }

func (e HistoryUpdatedEvent) eventType() string { return protocol.TypeHistoryUpdated }

// TranscriptionDeltaEvent streams a transcript fragment for one item.
type TranscriptionDeltaEvent struct {
	ItemID string
	Delta  string
}

func (e TranscriptionDeltaEvent) eventType() string { return protocol.TypeTranscriptionDelta }

// TranscriptionCompletedEvent finalizes an item's transcript.
type TranscriptionCompletedEvent struct {
	ItemID     string
	Role       string
	Transcript string
}

func (e TranscriptionCompletedEvent) eventType() string { return protocol.TypeTranscriptionCompleted }

// ToolStartEvent reports a function call the agent began executing.
type ToolStartEvent struct {
	ItemID    string
	Name      string
	Arguments map[string]any
}

func (e ToolStartEvent) eventType() string { return protocol.TypeAgentToolStart }

// ToolEndEvent reports a completed function call.
type ToolEndEvent struct {
	ItemID string
	Name   string
	Result json.RawMessage
}

func (e ToolEndEvent) eventType() string { return protocol.TypeAgentToolEnd }

// GuardrailTrippedEvent reports a moderation trip on agent output.
type GuardrailTrippedEvent struct {
	ItemID    string
	Category  string
	Rationale string
}

func (e GuardrailTrippedEvent) eventType() string { return protocol.TypeGuardrailTripped }

// ErrorEvent carries an error frame from the server.
type ErrorEvent struct {
	Code    string
	Message string
}

func (e ErrorEvent) eventType() string { return protocol.TypeError }

// UnknownEvent preserves frames this client version does not understand.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

func decodeTextFrame(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("frame missing type")
	}

	switch typ {
	case protocol.TypeHelloAck:
		var ack protocol.ServerHelloAck
		if err := json.Unmarshal(data, &ack); err != nil {
			return nil, fmt.Errorf("decode hello_ack: %w", err)
		}
		return HelloAckEvent{Ack: ack}, nil
	case protocol.TypeHistoryAdded:
		var added protocol.ServerHistoryAdded
		if err := json.Unmarshal(data, &added); err != nil {
			return nil, fmt.Errorf("decode history_added: %w", err)
		}
		return HistoryAddedEvent{Item: added.Item}, nil
	case protocol.TypeHistoryUpdated:
		var updated protocol.ServerHistoryUpdated
		if err := json.Unmarshal(data, &updated); err != nil {
			return nil, fmt.Errorf("decode history_updated: %w", err)
		}
		return HistoryUpdatedEvent{Items: updated.Items}, nil
	case protocol.TypeTranscriptionDelta:
		var delta protocol.ServerTranscriptionDelta
		if err := json.Unmarshal(data, &delta); err != nil {
			return nil, fmt.Errorf("decode transcription delta: %w", err)
		}
		return TranscriptionDeltaEvent{ItemID: delta.ItemID, Delta: delta.Delta}, nil
	case protocol.TypeTranscriptionCompleted:
		var completed protocol.ServerTranscriptionCompleted
		if err := json.Unmarshal(data, &completed); err != nil {
			return nil, fmt.Errorf("decode transcription completed: %w", err)
		}
		return TranscriptionCompletedEvent{
			ItemID:     completed.ItemID,
			Role:       completed.Role,
			Transcript: completed.Transcript,
		}, nil
	case protocol.TypeAgentToolStart:
		var start protocol.ServerAgentToolStart
		if err := json.Unmarshal(data, &start); err != nil {
			return nil, fmt.Errorf("decode agent_tool_start: %w", err)
		}
		return ToolStartEvent{ItemID: start.ItemID, Name: start.Name, Arguments: start.Arguments}, nil
	case protocol.TypeAgentToolEnd:
		var end protocol.ServerAgentToolEnd
		if err := json.Unmarshal(data, &end); err != nil {
			return nil, fmt.Errorf("decode agent_tool_end: %w", err)
		}
		return ToolEndEvent{ItemID: end.ItemID, Name: end.Name, Result: end.Result}, nil
	case protocol.TypeGuardrailTripped:
		var tripped protocol.ServerGuardrailTripped
		if err := json.Unmarshal(data, &tripped); err != nil {
			return nil, fmt.Errorf("decode guardrail_tripped: %w", err)
		}
		return GuardrailTrippedEvent{
			ItemID:    tripped.ItemID,
			Category:  tripped.Category,
			Rationale: tripped.Rationale,
		}, nil
	case protocol.TypeError:
		var serverErr protocol.ServerError
		if err := json.Unmarshal(data, &serverErr); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		return ErrorEvent{Code: serverErr.Code, Message: serverErr.Message}, nil
	default:
		return UnknownEvent{
			Type: typ,
			Raw:  append(json.RawMessage(nil), data...),
		}, nil
	}
}
