package services

import (
	"sync"
	"time"

	"auction-engine/internal/clock"
)

// ActorGuard is per-actor admission control for bid attempts: a cooldown
// instant and an in-flight marker. It sheds duplicate and rapid-fire
// submissions before any store access. The store transaction stays correct
// even if the guard were bypassed.
//
// State is process-local and resets on restart, which is acceptable because
// a restart cannot corrupt the durable store.
type ActorGuard struct {
	mu        sync.Mutex
	inFlight  map[int64]struct{}
	cooldowns map[int64]time.Time
	clock     clock.Clock
}

func NewActorGuard(clk clock.Clock) *ActorGuard {
	return &ActorGuard{
		inFlight:  make(map[int64]struct{}),
		cooldowns: make(map[int64]time.Time),
		clock:     clk,
	}
}

// TryBegin atomically checks and sets the in-flight marker. A false return
// means another bid by this actor is still being processed and the new one
// must be rejected without blocking.
func (g *ActorGuard) TryBegin(actorID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[actorID]; busy {
		return false
	}
	g.inFlight[actorID] = struct{}{}
	return true
}

// End clears the in-flight marker. It must run on every exit path of a bid
// attempt so a failed attempt never locks the actor out.
func (g *ActorGuard) End(actorID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, actorID)
}

// OnCooldown reports whether the actor's cooldown instant is still in the
// future. Expired entries are dropped on the way out.
func (g *ActorGuard) OnCooldown(actorID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.cooldowns[actorID]
	if !ok {
		return false
	}
	if !g.clock.Now().Before(until) {
		delete(g.cooldowns, actorID)
		return false
	}
	return true
}

// SetCooldown starts a cooldown for the actor. Called only after an
// accepted bid; rejections do not consume cooldown.
func (g *ActorGuard) SetCooldown(actorID int64, d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldowns[actorID] = g.clock.Now().Add(d)
}

// Reset drops all transient state. Part of engine teardown.
func (g *ActorGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = make(map[int64]struct{})
	g.cooldowns = make(map[int64]time.Time)
}
