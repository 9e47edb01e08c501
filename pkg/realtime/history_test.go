package realtime

import (
	"encoding/json"
	"testing"

	"github.com/prosperlabs/prosper/pkg/gateway/live/protocol"
	"github.com/prosperlabs/prosper/pkg/transcript"
)

func newAdapter() (*HistoryAdapter, *transcript.Store) {
	store := transcript.NewStore(nil)
	return NewHistoryAdapter(store, nil, nil), store
}

func userMessage(id, text string) HistoryAddedEvent {
	return HistoryAddedEvent{Item: protocol.HistoryItem{
		ItemID: id,
		Type:   "message",
		Role:   "user",
		Content: []protocol.ContentPart{
			{Type: "input_text", Text: text},
		},
	}}
}

func assistantMessage(id, transcriptText string) HistoryAddedEvent {
	return HistoryAddedEvent{Item: protocol.HistoryItem{
		ItemID: id,
		Type:   "message",
		Role:   "assistant",
		Content: []protocol.ContentPart{
			{Type: "audio", Transcript: transcriptText},
		},
	}}
}

func TestHistoryAdapter_UserMessagePlaceholder(t *testing.T) {
	a, store := newAdapter()

	a.Handle(userMessage("item_1", ""))

	item, ok := store.Item("item_1")
	if !ok {
		t.Fatalf("item_1 missing")
	}
	if item.Title != "[Transcribing...]" {
		t.Fatalf("title=%q, want transcribing placeholder", item.Title)
	}

	a.Handle(TranscriptionCompletedEvent{ItemID: "item_1", Role: "user", Transcript: "hello"})
	item, _ = store.Item("item_1")
	if item.Title != "hello" {
		t.Fatalf("title=%q after completion", item.Title)
	}
	if item.Status != transcript.StatusDone {
		t.Fatalf("status=%s, want DONE", item.Status)
	}
}

func TestHistoryAdapter_InaudibleTranscript(t *testing.T) {
	for _, empty := range []string{"", "\n"} {
		a, store := newAdapter()
		a.Handle(assistantMessage("item_1", "..."))
		a.Handle(TranscriptionCompletedEvent{ItemID: "item_1", Role: "assistant", Transcript: empty})

		item, _ := store.Item("item_1")
		if item.Title != "[inaudible]" {
			t.Fatalf("transcript %q: title=%q, want [inaudible]", empty, item.Title)
		}
	}
}

func TestHistoryAdapter_GuardrailSuppressesFollowingUserMessages(t *testing.T) {
	a, store := newAdapter()

	a.Handle(assistantMessage("item_1", "questionable advice"))
	a.Handle(GuardrailTrippedEvent{ItemID: "item_1", Category: "OFF_TOPIC", Rationale: "not finance"})

	a.Handle(userMessage("item_2", "what about it"))
	if _, ok := store.Item("item_2"); ok {
		t.Fatalf("suppressed user message was stored")
	}
	if !store.Blocked() {
		t.Fatalf("store not latched after suppression")
	}

	// The latch is global: a second user message is dropped too.
	a.Handle(userMessage("item_3", "hello?"))
	if _, ok := store.Item("item_3"); ok {
		t.Fatalf("second user message stored while latched")
	}

	last, ok := store.Last()
	if !ok || last.Type != transcript.TypeBreadcrumb {
		t.Fatalf("expected breadcrumb, got %+v", last)
	}
	if last.Title != "user message blocked by guardrail" {
		t.Fatalf("breadcrumb title=%q", last.Title)
	}
	if last.Data["category"] != "OFF_TOPIC" {
		t.Fatalf("breadcrumb data=%v", last.Data)
	}

	// A fresh assistant turn releases the latch.
	a.Handle(assistantMessage("item_4", "back on track"))
	if store.Blocked() {
		t.Fatalf("latch not released by assistant message")
	}
	a.Handle(userMessage("item_5", "thanks"))
	if _, ok := store.Item("item_5"); !ok {
		t.Fatalf("user message after release was not stored")
	}
}

func TestHistoryAdapter_GuardrailTrippedTargetsLastAssistant(t *testing.T) {
	a, store := newAdapter()

	a.Handle(assistantMessage("item_1", "hmm"))
	a.Handle(GuardrailTrippedEvent{Category: "MODERATION", Rationale: "flagged"})

	item, _ := store.Item("item_1")
	if item.Guardrail == nil {
		t.Fatalf("guardrail result missing")
	}
	if item.Guardrail.Category != "MODERATION" || item.Guardrail.Status != transcript.StatusDone {
		t.Fatalf("guardrail=%+v", item.Guardrail)
	}
}

func TestHistoryAdapter_CompletionDefaultsGuardrailToPass(t *testing.T) {
	a, store := newAdapter()

	a.Handle(assistantMessage("item_1", "fine answer"))
	a.Handle(TranscriptionCompletedEvent{ItemID: "item_1", Role: "assistant", Transcript: "fine answer"})

	item, _ := store.Item("item_1")
	if item.Guardrail == nil || item.Guardrail.Status != transcript.StatusDone {
		t.Fatalf("guardrail=%+v, want resolved", item.Guardrail)
	}
	if item.Guardrail.Category != "NONE" {
		t.Fatalf("category=%q, want NONE", item.Guardrail.Category)
	}

	// Passing guardrail does not suppress the next user message.
	a.Handle(userMessage("item_2", "ok"))
	if _, ok := store.Item("item_2"); !ok {
		t.Fatalf("user message after passing guardrail was dropped")
	}
}

func TestHistoryAdapter_ToolBreadcrumbs(t *testing.T) {
	a, store := newAdapter()

	a.Handle(ToolStartEvent{
		ItemID:    "item_1",
		Name:      "get_dashboard",
		Arguments: map[string]any{"householdId": "h1"},
	})
	a.Handle(ToolEndEvent{
		ItemID: "item_1",
		Name:   "get_dashboard",
		Result: json.RawMessage(`"{\"netWorth\": 100}"`),
	})

	items := store.Items()
	if len(items) != 2 {
		t.Fatalf("items=%d, want 2", len(items))
	}
	if items[0].Title != "function call: get_dashboard" {
		t.Fatalf("start title=%q", items[0].Title)
	}
	if items[0].Data["householdId"] != "h1" {
		t.Fatalf("start data=%v", items[0].Data)
	}
	if items[1].Title != "function call result: get_dashboard" {
		t.Fatalf("end title=%q", items[1].Title)
	}
	// Stringified JSON results are decoded one level deeper.
	result, ok := items[1].Data["result"].(map[string]any)
	if !ok {
		t.Fatalf("result=%T, want decoded object", items[1].Data["result"])
	}
	if result["netWorth"] != float64(100) {
		t.Fatalf("result=%v", result)
	}
}

func TestHistoryAdapter_DeltaThenCompletion(t *testing.T) {
	a, store := newAdapter()

	a.Handle(assistantMessage("item_1", ""))
	a.Handle(TranscriptionDeltaEvent{ItemID: "item_1", Delta: "par"})
	a.Handle(TranscriptionDeltaEvent{ItemID: "item_1", Delta: "tial"})

	item, _ := store.Item("item_1")
	if item.Title != "partial" {
		t.Fatalf("title=%q after deltas", item.Title)
	}

	a.Handle(TranscriptionCompletedEvent{ItemID: "item_1", Role: "assistant", Transcript: "partial but final"})
	item, _ = store.Item("item_1")
	if item.Title != "partial but final" {
		t.Fatalf("title=%q, completion must replace deltas", item.Title)
	}
}

func TestHistoryAdapter_IgnoresNonMessageItems(t *testing.T) {
	a, store := newAdapter()

	a.Handle(HistoryAddedEvent{Item: protocol.HistoryItem{ItemID: "item_1", Type: "function_call"}})
	a.Handle(HistoryAddedEvent{Item: protocol.HistoryItem{Type: "message", Role: "user"}})

	if store.Len() != 0 {
		t.Fatalf("len=%d, want 0", store.Len())
	}
}
