package dispatch

import (
	"sync"
	"time"
)

// Gate is the per-page mutual exclusion for sends. It is held from the
// start of an attempt until its cool-down ends.
type Gate struct {
	mu       sync.Mutex
	inFlight bool
	lastSend time.Time
}

// TryAcquire takes the gate, or reports false when an attempt holds it.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return false
	}
	g.inFlight = true
	return true
}

// Release frees the gate. sentAt is the dispatch time, zero if nothing fired.
func (g *Gate) Release(sentAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
	if !sentAt.IsZero() {
		g.lastSend = sentAt
	}
}

// InFlight reports whether an attempt holds the gate.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// LastSend is the time of the last dispatch through this gate.
func (g *Gate) LastSend() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSend
}
