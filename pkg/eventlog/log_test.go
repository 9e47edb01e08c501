package eventlog

import (
	"testing"
)

func TestLog_RecordsDirectionsInOrder(t *testing.T) {
	l := New()
	l.Client(map[string]any{"type": "hello"}, "hello")
	l.Server(map[string]any{"type": "hello_ack"}, "hello_ack")

	entries := l.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("len=%d, want 2", len(entries))
	}
	if entries[0].Direction != DirectionClient || entries[0].Label != "hello" {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[1].Direction != DirectionServer || entries[1].Label != "hello_ack" {
		t.Fatalf("entry 1 = %+v", entries[1])
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamp on entry")
	}
}

func TestLog_UnserializablePayloadStillLogged(t *testing.T) {
	l := New()
	l.Server(func() {}, "weird")

	entries := l.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("len=%d, want 1", len(entries))
	}
	if string(entries[0].Payload) != `"<unserializable>"` {
		t.Fatalf("payload=%s", entries[0].Payload)
	}
}

func TestLog_NilReceiverSafe(t *testing.T) {
	var l *Log
	l.Client("x", "")
	l.Server("y", "")
	if l.Len() != 0 {
		t.Fatalf("nil log len=%d", l.Len())
	}
	if l.Snapshot() != nil {
		t.Fatalf("nil log snapshot should be nil")
	}
}

func TestLog_SnapshotIsCopy(t *testing.T) {
	l := New()
	l.Client("a", "first")

	snap := l.Snapshot()
	snap[0].Label = "mutated"

	if l.Snapshot()[0].Label != "first" {
		t.Fatalf("snapshot mutation leaked into log")
	}
}
