package services

import (
	"context"
	"errors"
	"time"

	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// BidServiceConfig carries the tunables of the bid path. Cooldown values are
// applied consistently by the bid's quick flag, only after accepted bids.
type BidServiceConfig struct {
	Cooldown      time.Duration
	QuickCooldown time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// BidService runs the bid path: guard admission, cached pre-check, the store
// transaction with bounded retry, then cache invalidation, cooldown and
// notification. Correctness lives in the store transaction; everything else
// here sheds load or reports outcomes.
type BidService struct {
	store      domain.AuctionStore
	cache      *cache.Store
	guard      *ActorGuard
	dispatcher *EventDispatcher
	clock      clock.Clock
	cfg        BidServiceConfig
	log        logger.Logger
}

func NewBidService(
	store domain.AuctionStore,
	cacheStore *cache.Store,
	guard *ActorGuard,
	dispatcher *EventDispatcher,
	clk clock.Clock,
	cfg BidServiceConfig,
	log logger.Logger,
) *BidService {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &BidService{
		store:      store,
		cache:      cacheStore,
		guard:      guard,
		dispatcher: dispatcher,
		clock:      clk,
		cfg:        cfg,
		log:        log,
	}
}

var _ domain.BidSubmitter = (*BidService)(nil)

// SubmitBid places a bid for actorID on auctionID. Business and admission
// failures come back as RejectionError; anything else is an internal failure
// the caller should render as "try again later".
func (s *BidService) SubmitBid(ctx context.Context, auctionID, actorID int64, amount float64, quickBid bool) (*domain.BidReceipt, error) {
	// Admission first: cooldown, then in-flight, before any store access.
	if s.guard.OnCooldown(actorID) {
		return nil, domain.ErrOnCooldown
	}
	if !s.guard.TryBegin(actorID) {
		return nil, domain.ErrBidInFlight
	}
	defer s.guard.End(actorID)

	// Cheap pre-check against the cached snapshot. Advisory only: the
	// transaction below re-reads the row and is the authority.
	if snapshot, err := s.snapshot(ctx, auctionID); err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return nil, domain.ErrAuctionNotFound
		}
		// Pre-check failures other than not-found fall through to the
		// transaction, which does its own read.
	} else if snapshot.Status != domain.AuctionActive {
		return nil, domain.ErrAuctionInactive
	}

	receipt, err := s.placeBidWithRetry(ctx, auctionID, actorID, amount, quickBid)
	if err != nil {
		if domain.IsRejection(err) {
			s.log.Debug("bid rejected",
				"auction_id", auctionID, "actor_id", actorID, "amount", amount, "reason", err)
			return nil, err
		}
		s.log.Error("bid failed",
			"auction_id", auctionID, "actor_id", actorID, "amount", amount, "error", err)
		return nil, err
	}

	// Required side effect of a committed bid: every projection of the
	// auction is dropped together.
	s.cache.InvalidateAuction(auctionID)

	cooldown := s.cfg.Cooldown
	if quickBid {
		cooldown = s.cfg.QuickCooldown
	}
	s.guard.SetCooldown(actorID, cooldown)

	s.dispatcher.BidAccepted(domain.NewBidAcceptedEvent(receipt, quickBid, s.clock.Now()))

	s.log.Info("bid accepted",
		"auction_id", auctionID, "actor_id", actorID,
		"amount", receipt.NewAmount, "previous_bidder", receipt.PreviousBidder)
	return receipt, nil
}

func (s *BidService) placeBidWithRetry(ctx context.Context, auctionID, actorID int64, amount float64, quickBid bool) (*domain.BidReceipt, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		receipt, err := s.store.PlaceBid(ctx, auctionID, actorID, amount, quickBid)
		if err == nil {
			return receipt, nil
		}
		if !domain.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt == s.cfg.RetryAttempts {
			break
		}
		// Linear backoff growth, matching the store's own busy handling.
		wait := s.cfg.RetryBackoff * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (s *BidService) snapshot(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	return snapshotThrough(ctx, s.store, s.cache, auctionID)
}
