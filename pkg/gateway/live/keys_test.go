package live

import (
	"strings"
	"testing"
	"time"
)

func TestKeybank_MintAndValidate(t *testing.T) {
	b := NewKeybank()

	key := b.Mint(time.Minute)
	if !strings.HasPrefix(key, "ek_") {
		t.Fatalf("key=%q, want ek_ prefix", key)
	}
	if len(key) != len("ek_")+32 {
		t.Fatalf("key length=%d", len(key))
	}
	if !b.Validate(key) {
		t.Fatalf("freshly minted key rejected")
	}

	other := b.Mint(time.Minute)
	if other == key {
		t.Fatalf("mint returned duplicate key")
	}
}

func TestKeybank_RejectsUnknownAndUnprefixed(t *testing.T) {
	b := NewKeybank()
	if b.Validate("ek_0000000000000000000000000000dead") {
		t.Fatalf("unknown key accepted")
	}
	if b.Validate("sk-upstream-secret") {
		t.Fatalf("non-ephemeral key accepted")
	}
	if b.Validate("") {
		t.Fatalf("empty key accepted")
	}
}

func TestKeybank_Expiry(t *testing.T) {
	b := NewKeybank()
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }

	key := b.Mint(time.Minute)
	if !b.Validate(key) {
		t.Fatalf("key rejected before expiry")
	}

	now = now.Add(61 * time.Second)
	if b.Validate(key) {
		t.Fatalf("key accepted after expiry")
	}
	// Expired keys are removed on the failed check.
	if len(b.keys) != 0 {
		t.Fatalf("expired key retained: %v", b.keys)
	}
}

func TestKeybank_MintSweepsExpired(t *testing.T) {
	b := NewKeybank()
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }

	stale := b.Mint(time.Second)
	now = now.Add(2 * time.Second)
	fresh := b.Mint(time.Minute)

	if _, ok := b.keys[stale]; ok {
		t.Fatalf("stale key survived mint sweep")
	}
	if _, ok := b.keys[fresh]; !ok {
		t.Fatalf("fresh key missing")
	}
}
