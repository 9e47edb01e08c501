// Package transcript holds the ordered conversation transcript a realtime
// session renders: user/assistant messages keyed by externally assigned item
// ids, plus breadcrumb entries for tool traces and system context.
package transcript

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ItemType distinguishes chat bubbles from non-message entries.
type ItemType string

const (
	TypeMessage    ItemType = "MESSAGE"
	TypeBreadcrumb ItemType = "BREADCRUMB"
)

// Status tracks whether an item is still streaming.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// GuardrailResult records the moderation outcome attached to an assistant
// message. Category "NONE" means the check passed.
type GuardrailResult struct {
	Status    Status `json:"status"`
	Category  string `json:"category,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// Item is one transcript entry. Message items are created on first
// observation of a history event and mutated in place by later deltas; they
// are never deleted, only hidden.
type Item struct {
	ItemID    string           `json:"item_id"`
	Type      ItemType         `json:"type"`
	Role      string           `json:"role,omitempty"`
	Title     string           `json:"title"`
	Data      map[string]any   `json:"data,omitempty"`
	Status    Status           `json:"status"`
	Expanded  bool             `json:"expanded"`
	Timestamp string           `json:"timestamp"`
	CreatedAt time.Time        `json:"created_at"`
	Hidden    bool             `json:"is_hidden"`
	Guardrail *GuardrailResult `json:"guardrail_result,omitempty"`
}

// Store is the in-memory transcript for one session. All methods are safe for
// concurrent use; accessors return copies.
type Store struct {
	mu     sync.Mutex
	order  []string
	items  map[string]*Item
	logger *slog.Logger

	// blocked is the guardrail suppression latch: once a moderation trip is
	// observed, user messages are dropped from the visible transcript until
	// the next assistant message arrives.
	blocked bool

	now func() time.Time
}

// NewStore returns an empty transcript store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:  make(map[string]*Item),
		logger: logger,
		now:    time.Now,
	}
}

func (s *Store) timestamp() (string, time.Time) {
	now := s.now()
	return fmt.Sprintf("%s.%03d", now.Format("15:04:05"), now.Nanosecond()/1e6), now
}

// AddMessage inserts a new message item. Adding an id that already exists as
// a message is a no-op; streaming updates for known ids go through
// UpdateMessage instead.
func (s *Store) AddMessage(itemID, role, text string, hidden bool) {
	if itemID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[itemID]; ok && existing.Type == TypeMessage {
		s.logger.Warn("transcript message already exists, skipping",
			"item_id", itemID, "role", role)
		return
	}

	pretty, now := s.timestamp()
	s.items[itemID] = &Item{
		ItemID:    itemID,
		Type:      TypeMessage,
		Role:      role,
		Title:     text,
		Status:    StatusInProgress,
		Timestamp: pretty,
		CreatedAt: now,
		Hidden:    hidden,
	}
	s.order = append(s.order, itemID)
}

// UpdateMessage replaces a message's text, or appends to it when isDelta is
// true (streaming transcription deltas). Unknown ids and non-message items
// are ignored.
func (s *Store) UpdateMessage(itemID, text string, isDelta bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Type != TypeMessage {
		return
	}
	if isDelta {
		item.Title += text
		return
	}
	item.Title = text
}

// AddBreadcrumb appends a non-message entry (tool trace, system context).
func (s *Store) AddBreadcrumb(title string, data map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "breadcrumb-" + uuid.NewString()
	pretty, now := s.timestamp()
	s.items[id] = &Item{
		ItemID:    id,
		Type:      TypeBreadcrumb,
		Title:     title,
		Data:      data,
		Status:    StatusDone,
		Timestamp: pretty,
		CreatedAt: now,
	}
	s.order = append(s.order, id)
	return id
}

// UpdateItem applies a targeted mutation to the item with the given id.
func (s *Store) UpdateItem(itemID string, update func(*Item)) {
	if update == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[itemID]; ok {
		update(item)
	}
}

// ToggleExpand flips the expanded flag used by breadcrumb detail views.
func (s *Store) ToggleExpand(itemID string) {
	s.UpdateItem(itemID, func(item *Item) {
		item.Expanded = !item.Expanded
	})
}

// Item returns a copy of the item with the given id.
func (s *Store) Item(itemID string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Items returns a copy of all items in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

// Last returns a copy of the most recent item.
func (s *Store) Last() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Item{}, false
	}
	return *s.items[s.order[len(s.order)-1]], true
}

// LastAssistantMessage returns the most recent assistant message item.
func (s *Store) LastAssistantMessage() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		item := s.items[s.order[i]]
		if item.Type == TypeMessage && item.Role == "assistant" {
			return *item, true
		}
	}
	return Item{}, false
}

// Len returns the number of items, hidden included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// SetBlocked sets the guardrail suppression latch. Only the session history
// adapter mutates this.
func (s *Store) SetBlocked(blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = blocked
}

// Blocked reports whether user messages are currently suppressed.
func (s *Store) Blocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}
