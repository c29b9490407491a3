package cache

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/pkg/logger"
)

// Kind scopes cache entries per entity projection. Each kind carries its own
// TTL: snapshots can be tens of seconds stale, the recent-bids list is read
// hardest right after a bid and stays fresher.
type Kind string

const (
	KindAuction  Kind = "auction"
	KindBids     Kind = "bids"
	KindBidCount Kind = "bid_count"
	KindActor    Kind = "actor"
)

type key struct {
	kind Kind
	id   int64
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Store is a process-local TTL cache over the durable store. It is a
// disposable projection: the write path never trusts it, so TTLs trade
// latency against staleness, not correctness. Eviction is TTL-only.
type Store struct {
	entries sync.Map // key -> entry
	ttls    map[Kind]time.Duration
	clock   clock.Clock
	log     logger.Logger
}

func New(ttls map[Kind]time.Duration, clk clock.Clock, log logger.Logger) *Store {
	copied := make(map[Kind]time.Duration, len(ttls))
	for k, v := range ttls {
		copied[k] = v
	}
	return &Store{
		ttls:  copied,
		clock: clk,
		log:   log,
	}
}

// Get returns the cached value, or a miss for absent and expired entries.
// Expired entries are removed on the way out rather than waiting for the
// sweep.
func (s *Store) Get(kind Kind, id int64) (interface{}, bool) {
	k := key{kind: kind, id: id}
	v, ok := s.entries.Load(k)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if !s.clock.Now().Before(e.expiresAt) {
		s.entries.Delete(k)
		return nil, false
	}
	return e.value, true
}

// Put stores value under the kind's configured TTL. A kind with no
// configured TTL is never cached.
func (s *Store) Put(kind Kind, id int64, value interface{}) {
	ttl, ok := s.ttls[kind]
	if !ok || ttl <= 0 {
		return
	}
	s.PutTTL(kind, id, value, ttl)
}

func (s *Store) PutTTL(kind Kind, id int64, value interface{}, ttl time.Duration) {
	s.entries.Store(key{kind: kind, id: id}, entry{
		value:     value,
		expiresAt: s.clock.Now().Add(ttl),
	})
}

func (s *Store) Invalidate(kind Kind, id int64) {
	s.entries.Delete(key{kind: kind, id: id})
}

// InvalidateAuction drops every projection of one auction: snapshot, recent
// bids and bid count. Writers call this after each committed change so no
// projection outlives the row it was derived from.
func (s *Store) InvalidateAuction(auctionID int64) {
	s.entries.Delete(key{kind: KindAuction, id: auctionID})
	s.entries.Delete(key{kind: KindBids, id: auctionID})
	s.entries.Delete(key{kind: KindBidCount, id: auctionID})
}

// Sweep removes entries whose expiry is at or before now and reports how
// many were dropped. Correctness never depends on it; Get rejects expired
// entries on its own.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	s.entries.Range(func(k, v interface{}) bool {
		if !now.Before(v.(entry).expiresAt) {
			s.entries.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Run sweeps periodically until ctx is cancelled. Meant to be started as its
// own goroutine.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(s.clock.Now()); removed > 0 {
				s.log.Debug("cache sweep", "removed", removed)
			}
		}
	}
}

func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Clear drops everything. Part of engine teardown.
func (s *Store) Clear() {
	s.entries.Range(func(k, _ interface{}) bool {
		s.entries.Delete(k)
		return true
	})
}
