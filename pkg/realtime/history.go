package realtime

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/prosperlabs/prosper/pkg/eventlog"
	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
	"github.com/prosperlabs/prosper/pkg/transcript"
)

// Placeholder text literals shown while transcription is pending or failed.
const (
	placeholderTranscribing = "[Transcribing...]"
	placeholderInaudible    = "[inaudible]"
)

const guardrailCategoryNone = "NONE"

// HistoryAdapter translates decoded session events into transcript store
// mutations and enforces guardrail-driven message suppression.
//
// The suppression latch is a single global switch, not per-item: once an
// item with a tripped guardrail precedes a user message, every subsequent
// user message is dropped from the visible transcript until the next
// assistant item is observed.
type HistoryAdapter struct {
	store  *transcript.Store
	log    *eventlog.Log
	logger *slog.Logger
}

// NewHistoryAdapter wires an adapter to a transcript store. The event log is
// optional.
func NewHistoryAdapter(store *transcript.Store, log *eventlog.Log, logger *slog.Logger) *HistoryAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryAdapter{store: store, log: log, logger: logger}
}

// Handle dispatches one decoded event. Unknown events are ignored.
func (a *HistoryAdapter) Handle(event Event) {
	switch e := event.(type) {
	case HistoryAddedEvent:
		a.handleHistoryAdded(e.Item)
	case HistoryUpdatedEvent:
		a.handleHistoryUpdated(e.Items)
	case TranscriptionDeltaEvent:
		a.handleTranscriptionDelta(e)
	case TranscriptionCompletedEvent:
		a.handleTranscriptionCompleted(e)
	case ToolStartEvent:
		a.handleToolStart(e)
	case ToolEndEvent:
		a.handleToolEnd(e)
	case GuardrailTrippedEvent:
		a.handleGuardrailTripped(e)
	}
}

// extractMessageText pulls display text out of a heterogeneous content array.
// Only input_text and audio parts contribute; other kinds add nothing.
func extractMessageText(content []protocol.ContentPart) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		var text string
		switch c.Type {
		case "input_text":
			text = c.Text
		case "audio":
			text = c.Transcript
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func (a *HistoryAdapter) handleHistoryAdded(item protocol.HistoryItem) {
	if item.Type != "message" || item.ItemID == "" || item.Role == "" {
		return
	}

	isUser := item.Role == "user"
	text := extractMessageText(item.Content)

	if isUser {
		if blocked, prev := a.shouldSuppress(); blocked {
			a.store.SetBlocked(true)
			data := map[string]any{
				"blocked_item_id": item.ItemID,
			}
			if prev != nil {
				data["previous_item_id"] = prev.ItemID
				if prev.Guardrail != nil {
					data["category"] = prev.Guardrail.Category
					data["rationale"] = prev.Guardrail.Rationale
				}
			}
			a.store.AddBreadcrumb("user message blocked by guardrail", data)
			a.logger.Info("suppressed user message after guardrail trip", "item_id", item.ItemID)
			return
		}
		if text == "" {
			text = placeholderTranscribing
		}
	} else {
		// An assistant turn releases the suppression latch.
		a.store.SetBlocked(false)
	}

	a.store.AddMessage(item.ItemID, item.Role, text, false)

	if item.Role == "assistant" {
		a.store.UpdateItem(item.ItemID, func(it *transcript.Item) {
			it.Guardrail = &transcript.GuardrailResult{Status: transcript.StatusInProgress}
		})
	}
}

// shouldSuppress reports whether the next user message must be dropped, and
// returns the item whose guardrail tripped (when identifiable).
func (a *HistoryAdapter) shouldSuppress() (bool, *transcript.Item) {
	if a.store.Blocked() {
		if last, ok := a.store.LastAssistantMessage(); ok {
			return true, &last
		}
		return true, nil
	}
	last, ok := a.store.Last()
	if !ok || last.Guardrail == nil {
		return false, nil
	}
	category := strings.TrimSpace(last.Guardrail.Category)
	if category == "" || category == guardrailCategoryNone {
		return false, nil
	}
	return true, &last
}

func (a *HistoryAdapter) handleHistoryUpdated(items []protocol.HistoryItem) {
	for _, item := range items {
		if item.Type != "message" || item.ItemID == "" {
			continue
		}
		if text := extractMessageText(item.Content); text != "" {
			a.store.UpdateMessage(item.ItemID, text, false)
		}
	}
}

func (a *HistoryAdapter) handleTranscriptionDelta(e TranscriptionDeltaEvent) {
	if e.ItemID == "" {
		return
	}
	a.store.UpdateMessage(e.ItemID, e.Delta, true)
}

func (a *HistoryAdapter) handleTranscriptionCompleted(e TranscriptionCompletedEvent) {
	if e.ItemID == "" {
		return
	}
	final := e.Transcript
	if final == "" || final == "\n" {
		final = placeholderInaudible
	}
	a.store.UpdateMessage(e.ItemID, final, false)

	if e.Role == "user" {
		a.store.UpdateItem(e.ItemID, func(it *transcript.Item) {
			it.Status = transcript.StatusDone
		})
		return
	}
	// A guardrail that never explicitly resolved defaults to pass.
	a.store.UpdateItem(e.ItemID, func(it *transcript.Item) {
		if it.Guardrail == nil || it.Guardrail.Status == transcript.StatusInProgress {
			it.Guardrail = &transcript.GuardrailResult{
				Status:   transcript.StatusDone,
				Category: guardrailCategoryNone,
			}
		}
	})
}

func (a *HistoryAdapter) handleToolStart(e ToolStartEvent) {
	data := make(map[string]any, len(e.Arguments))
	for k, v := range e.Arguments {
		data[k] = v
	}
	a.store.AddBreadcrumb("function call: "+e.Name, data)
}

func (a *HistoryAdapter) handleToolEnd(e ToolEndEvent) {
	a.store.AddBreadcrumb("function call result: "+e.Name, map[string]any{
		"result": maybeParseJSON(e.Result, a.logger),
	})
}

func (a *HistoryAdapter) handleGuardrailTripped(e GuardrailTrippedEvent) {
	if a.log != nil {
		a.log.Server(e, "guardrail_tripped")
	}
	itemID := e.ItemID
	if itemID == "" {
		last, ok := a.store.LastAssistantMessage()
		if !ok {
			return
		}
		itemID = last.ItemID
	}
	a.store.UpdateItem(itemID, func(it *transcript.Item) {
		it.Guardrail = &transcript.GuardrailResult{
			Status:    transcript.StatusDone,
			Category:  e.Category,
			Rationale: e.Rationale,
		}
	})
}

// maybeParseJSON decodes a raw tool result. String payloads that contain
// parseable JSON are decoded one level deeper; anything unparseable is kept
// as-is.
func maybeParseJSON(raw json.RawMessage, logger *slog.Logger) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warn("failed to parse tool result JSON")
		return string(raw)
	}
	if s, ok := v.(string); ok {
		var nested any
		if err := json.Unmarshal([]byte(s), &nested); err == nil {
			return nested
		}
		return s
	}
	return v
}
