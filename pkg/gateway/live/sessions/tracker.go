package sessions

import (
	"context"
	"fmt"
	"sync"
)

type Handle struct {
	Cancel func()
	Warn   func(code, message string) error
}

// Tracker registers live relay sessions so shutdown can warn, cancel, and
// wait for them. Sessions are bucketed by the ephemeral key that opened them
// so a single key cannot hold more than its allowed number of connections.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	perKey   map[string]int
	wg       sync.WaitGroup
}

type trackedSession struct {
	key    string
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
		perKey:   make(map[string]int),
	}
}

// Register tracks a session under its ephemeral key. maxPerKey <= 0 disables
// the per-key limit. Registering an existing session id replaces the old
// entry and cancels it.
func (t *Tracker) Register(sessionID, ephemeralKey string, maxPerKey int, h Handle) (unregister func(), err error) {
	if t == nil {
		return func() {}, nil
	}

	entry := &trackedSession{key: ephemeralKey, handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	if t.perKey == nil {
		t.perKey = make(map[string]int)
	}
	old := t.sessions[sessionID]
	if old == nil && maxPerKey > 0 && t.perKey[ephemeralKey] >= maxPerKey {
		t.mu.Unlock()
		return nil, fmt.Errorf("session limit reached for key (max %d)", maxPerKey)
	}
	t.sessions[sessionID] = entry
	t.perKey[ephemeralKey]++
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		if old.handle.Cancel != nil {
			old.handle.Cancel()
		}
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }, nil
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		if t.perKey != nil {
			if n := t.perKey[entry.key]; n <= 1 {
				delete(t.perKey, entry.key)
			} else {
				t.perKey[entry.key] = n - 1
			}
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) CountForKey(ephemeralKey string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.perKey[ephemeralKey]
}

func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}

	var warns []func(code, message string) error
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Warn == nil {
			continue
		}
		warns = append(warns, entry.handle.Warn)
	}
	t.mu.Unlock()

	for _, warn := range warns {
		_ = warn(code, message)
		sent++
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
