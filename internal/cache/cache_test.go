package cache

import (
	"testing"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

func newTestStore(clk clock.Clock) *Store {
	return New(map[Kind]time.Duration{
		KindAuction:  30 * time.Second,
		KindBids:     10 * time.Second,
		KindBidCount: 10 * time.Second,
	}, clk, logger.NewNop())
}

func TestStore_GetPut(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(clk)

	_, ok := s.Get(KindAuction, 1)
	require.False(t, ok, "empty cache must miss")

	s.Put(KindAuction, 1, "snapshot")
	v, ok := s.Get(KindAuction, 1)
	require.True(t, ok)
	require.Equal(t, "snapshot", v)

	// Same id under a different kind is a separate entry.
	_, ok = s.Get(KindBids, 1)
	require.False(t, ok)
}

func TestStore_ExpiryIsAMiss(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(clk)

	s.Put(KindBids, 7, []int{1, 2})

	clk.Advance(9 * time.Second)
	_, ok := s.Get(KindBids, 7)
	require.True(t, ok, "entry inside TTL must hit")

	clk.Advance(2 * time.Second)
	_, ok = s.Get(KindBids, 7)
	require.False(t, ok, "entry past TTL must miss even without a sweep")
}

func TestStore_InvalidateUntilNextPut(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(clk)

	s.Put(KindAuction, 3, "v1")
	s.Invalidate(KindAuction, 3)

	_, ok := s.Get(KindAuction, 3)
	require.False(t, ok)
	_, ok = s.Get(KindAuction, 3)
	require.False(t, ok, "stays a miss until the next put")

	s.Put(KindAuction, 3, "v2")
	v, ok := s.Get(KindAuction, 3)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestStore_InvalidateAuctionDropsAllProjections(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(clk)

	s.Put(KindAuction, 5, "snapshot")
	s.Put(KindBids, 5, "bids")
	s.Put(KindBidCount, 5, 4)
	s.Put(KindAuction, 6, "other")

	s.InvalidateAuction(5)

	for _, kind := range []Kind{KindAuction, KindBids, KindBidCount} {
		_, ok := s.Get(kind, 5)
		require.False(t, ok, "kind %s must be dropped", kind)
	}
	_, ok := s.Get(KindAuction, 6)
	require.True(t, ok, "other auctions untouched")
}

func TestStore_Sweep(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(clk)

	s.Put(KindBids, 1, "short") // 10s TTL
	s.Put(KindAuction, 2, "long") // 30s TTL

	clk.Advance(15 * time.Second)
	removed := s.Sweep(clk.Now())
	require.Equal(t, 1, removed)
	require.Equal(t, 1, s.Len())

	_, ok := s.Get(KindAuction, 2)
	require.True(t, ok)
}

func TestStore_UnconfiguredKindNeverCached(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := newTestStore(clk)

	s.Put(KindActor, 9, "profile")
	_, ok := s.Get(KindActor, 9)
	require.False(t, ok)
}
