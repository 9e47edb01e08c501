package live

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Keybank mints and validates the short-lived ephemeral keys handed to
// browser clients by GET /api/session. Keys live in memory only; a gateway
// restart invalidates them, which matches their one-minute lifetime.
type Keybank struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewKeybank() *Keybank {
	return &Keybank{
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Mint issues a new key valid for ttl. Expired keys are swept on each mint.
func (b *Keybank) Mint(ttl time.Duration) string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand should not fail; derive from the clock if it does.
		copy(raw, []byte(time.Now().Format("20060102150405.000000000")))
	}
	key := "ek_" + hex.EncodeToString(raw)

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for k, exp := range b.keys {
		if now.After(exp) {
			delete(b.keys, k)
		}
	}
	b.keys[key] = now.Add(ttl)
	return key
}

// Validate reports whether the key was minted here and has not expired.
func (b *Keybank) Validate(key string) bool {
	if !strings.HasPrefix(key, "ek_") {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.keys[key]
	if !ok {
		return false
	}
	if b.now().After(exp) {
		delete(b.keys, key)
		return false
	}
	return true
}
