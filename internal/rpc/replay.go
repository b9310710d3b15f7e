package rpc

import (
	"sync"
	"time"

	"token-ledger/internal/domain"
)

// replayGuard remembers signatures of accepted mutating calls until their
// timestamp can no longer pass the skew check.
type replayGuard struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[string]time.Time
	order []replayEntry // insertion order, which is also expiry order
}

type replayEntry struct {
	key     string
	expires time.Time
}

func newReplayGuard(maxSkew time.Duration) *replayGuard {
	return &replayGuard{
		ttl:  2 * maxSkew,
		seen: make(map[string]time.Time),
	}
}

// claim records the signature of caller and reports false if it was
// already recorded.
func (g *replayGuard) claim(caller domain.Principal, signature string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(now)

	key := string(caller) + "/" + signature
	if _, ok := g.seen[key]; ok {
		return false
	}
	expires := now.Add(g.ttl)
	g.seen[key] = expires
	g.order = append(g.order, replayEntry{key: key, expires: expires})
	return true
}

func (g *replayGuard) prune(now time.Time) {
	n := 0
	for n < len(g.order) && !now.Before(g.order[n].expires) {
		delete(g.seen, g.order[n].key)
		n++
	}
	if n > 0 {
		g.order = append(g.order[:0], g.order[n:]...)
	}
}

func (g *replayGuard) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
