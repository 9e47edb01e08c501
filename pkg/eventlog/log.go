// Package eventlog records every client- and server-originated session event
// for diagnostic display. It is a debugging aid, not a telemetry pipeline:
// entries are held in memory for the lifetime of the session and never
// evicted.
package eventlog

import (
	"encoding/json"
	"sync"
	"time"
)

// Direction marks which side of the connection produced an entry.
type Direction string

const (
	DirectionClient Direction = "client"
	DirectionServer Direction = "server"
)

// Entry is one logged event. Entries are append-only and never mutated.
type Entry struct {
	Direction Direction       `json:"direction"`
	Label     string          `json:"label,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Log accumulates entries in arrival order.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New returns an empty event log.
func New() *Log {
	return &Log{now: time.Now}
}

// Client records an outbound event.
func (l *Log) Client(payload any, label string) {
	l.append(DirectionClient, payload, label)
}

// Server records an inbound event.
func (l *Log) Server(payload any, label string) {
	l.append(DirectionServer, payload, label)
}

func (l *Log) append(dir Direction, payload any, label string) {
	if l == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads are arbitrary JSON-ish values; an unmarshalable one still
		// deserves a log line.
		raw = json.RawMessage(`"<unserializable>"`)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		Direction: dir,
		Label:     label,
		Payload:   raw,
		Timestamp: l.now(),
	})
}

// Snapshot returns a copy of all entries in insertion order.
func (l *Log) Snapshot() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
