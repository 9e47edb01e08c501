// Package picker implements the searchable single-selection widget model
// shared by the company, contact, engagement, and support-person admin
// screens: fetch on load, type-ahead filtering with a debounce, keyboard
// navigation, and selection that clears itself when the underlying list no
// longer contains the selected entry.
package picker

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce matches the UI's type-ahead delay.
const DefaultDebounce = 300 * time.Millisecond

// Picker is one instantiation of the generic searchable picker. All methods
// are safe for concurrent use.
type Picker[T any] struct {
	fetch    func(ctx context.Context, parentID string) ([]T, error)
	keyOf    func(T) string
	match    func(T, string) bool
	debounce time.Duration

	mu          sync.Mutex
	parentID    string
	items       []T
	query       string
	applied     string
	filtered    []T
	highlight   int
	selectedKey string
	loading     bool
	err         error
	timer       *time.Timer
}

// Config wires a picker instantiation.
type Config[T any] struct {
	// Fetch loads the candidate list, optionally scoped by a parent id
	// (e.g. contacts for a company).
	Fetch func(ctx context.Context, parentID string) ([]T, error)
	// KeyOf returns the stable identity of an entry.
	KeyOf func(T) string
	// Match reports whether an entry matches a filter query.
	Match func(T, string) bool
	// Debounce overrides the type-ahead delay; zero uses DefaultDebounce.
	Debounce time.Duration
}

// New constructs a picker. Fetch, KeyOf, and Match are required.
func New[T any](cfg Config[T]) *Picker[T] {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Picker[T]{
		fetch:     cfg.Fetch,
		keyOf:     cfg.KeyOf,
		match:     cfg.Match,
		debounce:  debounce,
		highlight: -1,
	}
}

// Load fetches the list for the given parent id. Call it on mount and
// whenever the parent selection changes. If the previously selected key is
// absent from the fresh list, the selection is cleared.
func (p *Picker[T]) Load(ctx context.Context, parentID string) error {
	p.mu.Lock()
	p.parentID = parentID
	p.loading = true
	p.err = nil
	p.mu.Unlock()

	items, err := p.fetch(ctx, parentID)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		p.err = err
		p.items = nil
		p.refilterLocked()
		return err
	}
	p.items = items
	if p.selectedKey != "" && !p.containsLocked(p.selectedKey) {
		p.selectedKey = ""
	}
	p.refilterLocked()
	return nil
}

// SetQuery updates the type-ahead query. Filtering is applied after the
// debounce interval; rapid keystrokes reset the timer.
func (p *Picker[T]) SetQuery(query string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = query
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.refilterLocked()
	})
}

// FlushQuery applies any pending query immediately, bypassing the debounce.
func (p *Picker[T]) FlushQuery() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.refilterLocked()
}

func (p *Picker[T]) refilterLocked() {
	p.applied = p.query
	if p.applied == "" {
		p.filtered = append([]T(nil), p.items...)
	} else {
		p.filtered = p.filtered[:0]
		for _, item := range p.items {
			if p.match(item, p.applied) {
				p.filtered = append(p.filtered, item)
			}
		}
	}
	if len(p.filtered) == 0 {
		p.highlight = -1
		return
	}
	if p.highlight < 0 || p.highlight >= len(p.filtered) {
		p.highlight = 0
	}
}

func (p *Picker[T]) containsLocked(key string) bool {
	for _, item := range p.items {
		if p.keyOf(item) == key {
			return true
		}
	}
	return false
}

// Filtered returns a copy of the currently visible entries.
func (p *Picker[T]) Filtered() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.filtered...)
}

// Loading reports whether a fetch is in flight.
func (p *Picker[T]) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the last fetch error, if any.
func (p *Picker[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// MoveDown advances the keyboard highlight, stopping at the end.
func (p *Picker[T]) MoveDown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.filtered) == 0 {
		return
	}
	if p.highlight < len(p.filtered)-1 {
		p.highlight++
	}
}

// MoveUp retreats the keyboard highlight, stopping at the start.
func (p *Picker[T]) MoveUp() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.filtered) == 0 {
		return
	}
	if p.highlight > 0 {
		p.highlight--
	}
}

// Highlighted returns the entry under the keyboard cursor.
func (p *Picker[T]) Highlighted() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	if p.highlight < 0 || p.highlight >= len(p.filtered) {
		return zero, false
	}
	return p.filtered[p.highlight], true
}

// Enter selects the highlighted entry.
func (p *Picker[T]) Enter() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	if p.highlight < 0 || p.highlight >= len(p.filtered) {
		return zero, false
	}
	item := p.filtered[p.highlight]
	p.selectedKey = p.keyOf(item)
	return item, true
}

// Escape clears the query and pending debounce without touching the
// selection.
func (p *Picker[T]) Escape() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.query = ""
	p.refilterLocked()
}

// Select picks an entry by key. Unknown keys are ignored.
func (p *Picker[T]) Select(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.containsLocked(key) {
		return false
	}
	p.selectedKey = key
	return true
}

// Selection returns the selected entry.
func (p *Picker[T]) Selection() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	if p.selectedKey == "" {
		return zero, false
	}
	for _, item := range p.items {
		if p.keyOf(item) == p.selectedKey {
			return item, true
		}
	}
	return zero, false
}

// ClearSelection implements the "change" affordance.
func (p *Picker[T]) ClearSelection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectedKey = ""
}
