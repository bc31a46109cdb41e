package signal

import (
	"strconv"
	"testing"
	"time"
)

func TestPingLimiterPerPair(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newPingLimiter(3 * time.Second)
	p.now = func() time.Time { return now }

	if !p.Allow("alice", "bob") {
		t.Fatal("first ping should pass")
	}
	if p.Allow("alice", "bob") {
		t.Fatal("second ping inside the cooldown should be refused")
	}
	if !p.Allow("alice", "carol") {
		t.Fatal("another target has its own budget")
	}
	if !p.Allow("bob", "alice") {
		t.Fatal("the reverse direction has its own budget")
	}

	now = now.Add(3 * time.Second)
	if !p.Allow("alice", "bob") {
		t.Fatal("ping after the cooldown should pass")
	}
}

func TestPingLimiterPrunesIdlePairs(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newPingLimiter(time.Second)
	p.now = func() time.Time { return now }

	for i := 0; i < maxTrackedPairs; i++ {
		p.Allow("a", strconv.Itoa(i))
	}
	now = now.Add(2 * time.Second)
	p.Allow("fresh", "pair")

	if len(p.limiters) != 1 {
		t.Fatalf("tracked pairs = %d, want 1 after pruning", len(p.limiters))
	}
}
