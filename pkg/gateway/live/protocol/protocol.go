// Package protocol defines the JSON wire frames exchanged over a realtime
// session websocket. Frames are discriminated by a top-level "type" field;
// unknown types are passed through to consumers rather than rejected.
package protocol

import "encoding/json"

const ProtocolVersion1 = 1

// Audio formats negotiated from the client's codec preference.
const (
	AudioFormatPCM16    = "pcm16"
	AudioFormatG711ULaw = "g711_ulaw"
	AudioFormatG711ALaw = "g711_alaw"
)

// ResolveAudioFormat maps a codec query value to a negotiated audio format.
// Unrecognized codecs (including the browser default "opus") fall back to
// pcm16 so server and client always agree on a concrete format.
func ResolveAudioFormat(codec string) string {
	switch codec {
	case "pcmu":
		return AudioFormatG711ULaw
	case "pcma":
		return AudioFormatG711ALaw
	default:
		return AudioFormatPCM16
	}
}

// Frame type discriminators.
const (
	TypeHello                  = "hello"
	TypeHelloAck               = "hello_ack"
	TypeUserText               = "user_text"
	TypeControl                = "control"
	TypeHistoryAdded           = "history_added"
	TypeHistoryUpdated         = "history_updated"
	TypeTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeAgentToolStart         = "agent_tool_start"
	TypeAgentToolEnd           = "agent_tool_end"
	TypeGuardrailTripped       = "guardrail_tripped"
	TypeError                  = "error"
)

// Control ops.
const (
	ControlInterrupt = "interrupt"
	ControlMute      = "mute"
	ControlUnmute    = "unmute"
)

// ClientHello opens a session. The ephemeral key authorizes exactly one
// session and is validated against the minting endpoint's records.
type ClientHello struct {
	Type            string         `json:"type"`
	ProtocolVersion int            `json:"protocol_version"`
	EphemeralKey    string         `json:"ephemeral_key"`
	Agent           string         `json:"agent"`
	AudioFormat     string         `json:"audio_format"`
	Context         map[string]any `json:"context,omitempty"`
}

// ServerHelloAck confirms session establishment.
type ServerHelloAck struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	Agent       string `json:"agent"`
	AudioFormat string `json:"audio_format"`
}

// ClientUserText carries a typed user message.
type ClientUserText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientControl carries interrupt/mute control ops.
type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// ContentPart is one element of a history item's heterogeneous content array.
// Only input_text (text) and audio (transcript) parts contribute display
// text; other kinds are carried opaquely.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// HistoryItem is a conversation item as reported by the agent backend.
type HistoryItem struct {
	ItemID  string        `json:"item_id"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ServerHistoryAdded reports one newly observed conversation item.
type ServerHistoryAdded struct {
	Type string      `json:"type"`
	Item HistoryItem `json:"item"`
}

// ServerHistoryUpdated reports the refreshed item list after in-place edits.
type ServerHistoryUpdated struct {
	Type  string        `json:"type"`
	Items []HistoryItem `json:"items"`
}

// ServerTranscriptionDelta streams one transcription fragment.
type ServerTranscriptionDelta struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// ServerTranscriptionCompleted finalizes an item's transcript.
type ServerTranscriptionCompleted struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Role       string `json:"role,omitempty"`
	Transcript string `json:"transcript"`
}

// ServerAgentToolStart reports a function call the agent began executing.
type ServerAgentToolStart struct {
	Type      string         `json:"type"`
	ItemID    string         `json:"item_id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ServerAgentToolEnd reports a completed function call. Result may be a JSON
// string or structured value; consumers parse strings opportunistically.
type ServerAgentToolEnd struct {
	Type   string          `json:"type"`
	ItemID string          `json:"item_id,omitempty"`
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result,omitempty"`
}

// ServerGuardrailTripped reports a moderation trip on agent output.
type ServerGuardrailTripped struct {
	Type      string `json:"type"`
	ItemID    string `json:"item_id,omitempty"`
	Category  string `json:"category"`
	Rationale string `json:"rationale,omitempty"`
}

// ServerError is a terminal or advisory error frame.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
