package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

type LifecycleConfig struct {
	// SweepInterval is how often the catch-up sweep closes auctions that
	// expired without their timer firing.
	SweepInterval time.Duration
	// RecheckInterval chunks long timer waits; after each chunk the timer
	// re-checks the auction is still active and exits early if not.
	RecheckInterval time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
}

// LifecycleManager owns auction expiry. Each active auction gets at most one
// cancellable timer; a periodic sweep and a startup recovery pass use the
// durable store as the single source of truth, so the in-memory timer table
// is only ever an optimization over it.
type LifecycleManager struct {
	store      domain.AuctionStore
	cache      *cache.Store
	dispatcher *EventDispatcher
	clock      clock.Clock
	cfg        LifecycleConfig
	log        logger.Logger

	mu     sync.Mutex
	timers map[int64]context.CancelFunc

	cron     *cron.Cron
	baseCtx  context.Context
	baseStop context.CancelFunc
}

func NewLifecycleManager(
	store domain.AuctionStore,
	cacheStore *cache.Store,
	dispatcher *EventDispatcher,
	clk clock.Clock,
	cfg LifecycleConfig,
	log logger.Logger,
) *LifecycleManager {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LifecycleManager{
		store:      store,
		cache:      cacheStore,
		dispatcher: dispatcher,
		clock:      clk,
		cfg:        cfg,
		log:        log,
		timers:     make(map[int64]context.CancelFunc),
		cron:       cron.New(),
		baseCtx:    ctx,
		baseStop:   cancel,
	}
}

// Start runs the recovery sweep, then arms the periodic catch-up sweep.
func (m *LifecycleManager) Start(ctx context.Context) error {
	if err := m.Recover(ctx); err != nil {
		return err
	}

	if m.cfg.SweepInterval > 0 {
		spec := fmt.Sprintf("@every %s", m.cfg.SweepInterval)
		if _, err := m.cron.AddFunc(spec, func() {
			m.sweepExpired(m.baseCtx)
		}); err != nil {
			return err
		}
		m.cron.Start()
	}
	return nil
}

// Stop cancels the sweep and every armed timer and clears the timer table.
func (m *LifecycleManager) Stop() {
	m.cron.Stop()
	m.baseStop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.timers {
		cancel()
		delete(m.timers, id)
	}
}

// ScheduleEnd arms the end timer for an auction, replacing any existing one.
// An end time already in the past closes the auction immediately; this is
// the restart-catch-up path.
func (m *LifecycleManager) ScheduleEnd(auctionID int64, endsAt time.Time) {
	m.cancelTimer(auctionID)

	delay := endsAt.Sub(m.clock.Now())
	if delay <= 0 {
		go m.fire(auctionID)
		return
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.mu.Lock()
	m.timers[auctionID] = cancel
	m.mu.Unlock()

	m.log.Info("auction end scheduled", "auction_id", auctionID, "delay", delay)
	go m.runTimer(ctx, auctionID, endsAt)
}

// CancelTimer removes the auction's timer, if armed. Safe to race against
// the timer having just fired: Close is idempotent.
func (m *LifecycleManager) CancelTimer(auctionID int64) {
	m.cancelTimer(auctionID)
}

func (m *LifecycleManager) cancelTimer(auctionID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.timers[auctionID]; ok {
		cancel()
		delete(m.timers, auctionID)
	}
}

// ActiveTimers reports how many timers are currently armed.
func (m *LifecycleManager) ActiveTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *LifecycleManager) runTimer(ctx context.Context, auctionID int64, endsAt time.Time) {
	defer m.deregister(auctionID)

	for {
		remaining := endsAt.Sub(m.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := remaining
		chunked := remaining > m.cfg.RecheckInterval
		if chunked {
			wait = m.cfg.RecheckInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !chunked {
			break
		}
		// Mid-wait re-check. The cached snapshot is good enough here:
		// Close re-verifies against the store before writing anything.
		if snapshot, err := snapshotThrough(ctx, m.store, m.cache, auctionID); err == nil {
			if snapshot.Status != domain.AuctionActive {
				m.log.Debug("timer exiting early, auction no longer active", "auction_id", auctionID)
				return
			}
		}
	}

	if _, err := m.Close(ctx, auctionID); err != nil {
		m.log.Error("timer close failed", "auction_id", auctionID, "error", err)
	}
}

func (m *LifecycleManager) deregister(auctionID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, auctionID)
}

func (m *LifecycleManager) fire(auctionID int64) {
	if _, err := m.Close(m.baseCtx, auctionID); err != nil {
		m.log.Error("immediate close failed", "auction_id", auctionID, "error", err)
	}
}

// Close ends the auction. The store picks the winner from the latest bid
// inside the end transaction, so a bid committing concurrently can never
// leave a stale winner. Close is idempotent: closing an already ended auction
// is a success no-op, which absorbs races between the timer and a manual
// finalize.
func (m *LifecycleManager) Close(ctx context.Context, auctionID int64) (bool, error) {
	outcome, err := m.endWithRetry(ctx, auctionID)
	if err != nil {
		return false, err
	}

	m.cache.InvalidateAuction(auctionID)
	m.cancelTimer(auctionID)

	if !outcome.Ended {
		// Someone else closed it first; their close already notified.
		return true, nil
	}

	m.dispatcher.AuctionClosed(domain.NewAuctionClosedEvent(auctionID, outcome.WinnerID, outcome.WinningAmount, m.clock.Now()))
	m.log.Info("auction closed", "auction_id", auctionID, "winner_id", outcome.WinnerID, "amount", outcome.WinningAmount)
	return true, nil
}

func (m *LifecycleManager) endWithRetry(ctx context.Context, auctionID int64) (*domain.CloseOutcome, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.RetryAttempts; attempt++ {
		outcome, err := m.store.EndAuction(ctx, auctionID)
		if err == nil {
			return outcome, nil
		}
		if !domain.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt == m.cfg.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

// Recover rebuilds scheduler state from the store after a restart: overdue
// auctions are closed immediately, the rest get their timers re-armed.
func (m *LifecycleManager) Recover(ctx context.Context) error {
	now := m.clock.Now()

	expired, err := m.store.GetExpiredActiveAuctions(ctx, now)
	if err != nil {
		return err
	}
	closed := 0
	for _, auction := range expired {
		if _, err := m.Close(ctx, auction.ID); err != nil {
			m.log.Error("recovery close failed", "auction_id", auction.ID, "error", err)
			continue
		}
		closed++
	}

	active, err := m.store.ListActiveAuctions(ctx)
	if err != nil {
		return err
	}
	rearmed := 0
	for _, auction := range active {
		if auction.EndsAt.After(now) {
			m.ScheduleEnd(auction.ID, auction.EndsAt)
			rearmed++
		} else if _, err := m.Close(ctx, auction.ID); err != nil {
			m.log.Error("recovery close failed", "auction_id", auction.ID, "error", err)
		}
	}

	m.log.Info("recovery sweep complete", "closed", closed, "rearmed", rearmed)
	return nil
}

func (m *LifecycleManager) sweepExpired(ctx context.Context) {
	expired, err := m.store.GetExpiredActiveAuctions(ctx, m.clock.Now())
	if err != nil {
		m.log.Error("expiry sweep failed", "error", err)
		return
	}
	closed := 0
	for _, auction := range expired {
		if _, err := m.Close(ctx, auction.ID); err != nil {
			m.log.Error("sweep close failed", "auction_id", auction.ID, "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		m.log.Info("expiry sweep closed auctions", "count", closed)
	}
}
