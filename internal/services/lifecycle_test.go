package services

import (
	"context"
	"testing"
	"time"

	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	clock     clock.Clock
	store     *fakeStore
	cache     *cache.Store
	notifier  *recordingNotifier
	lifecycle *LifecycleManager
}

func newLifecycleFixture(t *testing.T, clk clock.Clock) *lifecycleFixture {
	t.Helper()

	store := newFakeStore(clk)
	cacheStore := cache.New(map[cache.Kind]time.Duration{
		cache.KindAuction:  30 * time.Second,
		cache.KindBids:     10 * time.Second,
		cache.KindBidCount: 10 * time.Second,
	}, clk, logger.NewNop())
	notifier := &recordingNotifier{}
	dispatcher := NewEventDispatcher([]domain.Notifier{notifier}, time.Second, logger.NewNop())
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	lifecycle := NewLifecycleManager(store, cacheStore, dispatcher, clk, LifecycleConfig{
		SweepInterval:   0, // tests drive sweeps directly
		RecheckInterval: 50 * time.Millisecond,
		RetryAttempts:   3,
		RetryBackoff:    time.Millisecond,
	}, logger.NewNop())
	t.Cleanup(lifecycle.Stop)

	return &lifecycleFixture{
		clock:     clk,
		store:     store,
		cache:     cacheStore,
		notifier:  notifier,
		lifecycle: lifecycle,
	}
}

func (f *lifecycleFixture) seedAuction(t *testing.T, endsAt time.Time) int64 {
	t.Helper()
	id, err := f.store.CreateAuction(context.Background(), &domain.Auction{
		ScopeID:       1,
		OwnerID:       ownerID,
		Title:         "lot",
		StartingPrice: 100,
		CurrentPrice:  100,
		MinIncrement:  10,
		PaymentUnit:   "gold",
		CreatedAt:     f.clock.Now(),
		EndsAt:        endsAt,
		Status:        domain.AuctionActive,
	})
	require.NoError(t, err)
	return id
}

func TestLifecycle_ClosePicksLatestBidder(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()
	id := f.seedAuction(t, clk.Now().Add(time.Hour))

	_, err := f.store.PlaceBid(ctx, id, actorX, 110, false)
	require.NoError(t, err)
	_, err = f.store.PlaceBid(ctx, id, actorY, 120, false)
	require.NoError(t, err)

	ok, err := f.lifecycle.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	auction, err := f.store.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionEnded, auction.Status)
	require.Equal(t, actorY, auction.WinnerID)

	require.Eventually(t, func() bool {
		return len(f.notifier.closedEvents()) == 1
	}, time.Second, 5*time.Millisecond)
	event := f.notifier.closedEvents()[0]
	require.Equal(t, actorY, event.WinnerID)
	require.Equal(t, float64(120), event.WinningAmount)
}

func TestLifecycle_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()
	id := f.seedAuction(t, clk.Now().Add(time.Hour))

	ok, err := f.lifecycle.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	first, err := f.store.GetAuction(ctx, id)
	require.NoError(t, err)

	ok, err = f.lifecycle.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, ok, "second close is a success no-op")

	second, err := f.store.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, first, second, "state unchanged by the second close")

	require.Eventually(t, func() bool {
		return len(f.notifier.closedEvents()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Len(t, f.notifier.closedEvents(), 1, "only the closing call notifies")
}

func TestLifecycle_CloseWinnerReadInEndTransaction(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()
	id := f.seedAuction(t, clk.Now().Add(time.Hour))

	// Prime every cached projection at a state with one bidder, then commit
	// a later bid behind the cache's back. The recorded winner must be the
	// last committed bidder, not anything a stale read could have seen.
	_, err := f.store.PlaceBid(ctx, id, actorX, 110, false)
	require.NoError(t, err)
	_, err = snapshotThrough(ctx, f.store, f.cache, id)
	require.NoError(t, err)
	_, err = bidsThrough(ctx, f.store, f.cache, id, 1)
	require.NoError(t, err)

	_, err = f.store.PlaceBid(ctx, id, actorY, 120, false)
	require.NoError(t, err)

	ok, err := f.lifecycle.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	auction, err := f.store.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, actorY, auction.WinnerID)

	require.Eventually(t, func() bool {
		return len(f.notifier.closedEvents()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, float64(120), f.notifier.closedEvents()[0].WinningAmount)
}

func TestLifecycle_CloseNoBidsNoWinner(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()
	id := f.seedAuction(t, clk.Now().Add(time.Hour))

	ok, err := f.lifecycle.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	auction, err := f.store.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionEnded, auction.Status)
	require.Zero(t, auction.WinnerID)
}

func TestLifecycle_CloseInvalidatesCache(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()
	id := f.seedAuction(t, clk.Now().Add(time.Hour))

	_, err := snapshotThrough(ctx, f.store, f.cache, id)
	require.NoError(t, err)

	_, err = f.lifecycle.Close(ctx, id)
	require.NoError(t, err)

	_, ok := f.cache.Get(cache.KindAuction, id)
	require.False(t, ok)
}

func TestLifecycle_CloseRetriesTransientEnd(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()
	id := f.seedAuction(t, clk.Now().Add(time.Hour))

	f.store.endFailures = 2
	ok, err := f.lifecycle.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLifecycle_RecoverySweep(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()

	overdue := f.seedAuction(t, clk.Now().Add(time.Minute))
	_, err := f.store.PlaceBid(ctx, overdue, actorX, 110, false)
	require.NoError(t, err)
	future := f.seedAuction(t, clk.Now().Add(time.Hour))
	clk.Advance(2 * time.Minute)

	require.NoError(t, f.lifecycle.Recover(ctx))

	a, err := f.store.GetAuction(ctx, overdue)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionEnded, a.Status)
	require.Equal(t, actorX, a.WinnerID)

	b, err := f.store.GetAuction(ctx, future)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionActive, b.Status)
	require.Equal(t, 1, f.lifecycle.ActiveTimers(), "exactly one timer re-armed")
}

func TestLifecycle_ScheduleEndReplacesExistingTimer(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	id := f.seedAuction(t, clk.Now().Add(time.Hour))

	f.lifecycle.ScheduleEnd(id, clk.Now().Add(time.Hour))
	f.lifecycle.ScheduleEnd(id, clk.Now().Add(2*time.Hour))
	require.Equal(t, 1, f.lifecycle.ActiveTimers(), "one live handle per auction")

	f.lifecycle.CancelTimer(id)
	require.Equal(t, 0, f.lifecycle.ActiveTimers())
}

func TestLifecycle_TimerFires(t *testing.T) {
	t.Parallel()

	clk := clock.NewSystem()
	f := newLifecycleFixture(t, clk)
	id := f.seedAuction(t, clk.Now().Add(30*time.Millisecond))

	f.lifecycle.ScheduleEnd(id, clk.Now().Add(30*time.Millisecond))

	require.Eventually(t, func() bool {
		a, err := f.store.GetAuction(context.Background(), id)
		return err == nil && a.Status == domain.AuctionEnded
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.lifecycle.ActiveTimers() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestLifecycle_OverdueScheduleClosesImmediately(t *testing.T) {
	t.Parallel()

	clk := clock.NewSystem()
	f := newLifecycleFixture(t, clk)
	id := f.seedAuction(t, clk.Now().Add(-time.Second))

	f.lifecycle.ScheduleEnd(id, clk.Now().Add(-time.Second))

	require.Eventually(t, func() bool {
		a, err := f.store.GetAuction(context.Background(), id)
		return err == nil && a.Status == domain.AuctionEnded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLifecycle_CancelledTimerNeverCloses(t *testing.T) {
	t.Parallel()

	clk := clock.NewSystem()
	f := newLifecycleFixture(t, clk)
	id := f.seedAuction(t, clk.Now().Add(80*time.Millisecond))

	f.lifecycle.ScheduleEnd(id, clk.Now().Add(80*time.Millisecond))
	f.lifecycle.CancelTimer(id)

	time.Sleep(200 * time.Millisecond)
	a, err := f.store.GetAuction(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionActive, a.Status, "cancelled timer must not fire")
}

func TestLifecycle_SweepClosesExpired(t *testing.T) {
	t.Parallel()

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newLifecycleFixture(t, clk)
	ctx := context.Background()
	id := f.seedAuction(t, clk.Now().Add(-time.Minute))

	f.lifecycle.sweepExpired(ctx)

	a, err := f.store.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionEnded, a.Status)
}
