package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type AuctionManagerConfig struct {
	MinDuration         time.Duration
	MaxDuration         time.Duration
	DefaultMinIncrement float64
}

// AuctionManager covers the non-bid operations: creating auctions, cached
// reads, per-scope listings and manual finalize.
type AuctionManager struct {
	store     domain.AuctionStore
	cache     *cache.Store
	lifecycle *LifecycleManager
	clock     clock.Clock
	cfg       AuctionManagerConfig
	log       logger.Logger
}

func NewAuctionManager(
	store domain.AuctionStore,
	cacheStore *cache.Store,
	lifecycle *LifecycleManager,
	clk clock.Clock,
	cfg AuctionManagerConfig,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		store:     store,
		cache:     cacheStore,
		lifecycle: lifecycle,
		clock:     clk,
		cfg:       cfg,
		log:       log,
	}
}

type CreateAuctionInput struct {
	ScopeID       int64
	OwnerID       int64
	Title         string
	Description   string
	StartingPrice float64
	MinIncrement  float64
	PaymentUnit   string
	Duration      time.Duration
}

// CreateAuction persists a new auction and arms its end timer. The end time
// is fixed here and never extended.
func (am *AuctionManager) CreateAuction(ctx context.Context, in CreateAuctionInput) (*domain.Auction, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.StartingPrice <= 0 {
		return nil, fmt.Errorf("starting price must be positive")
	}
	if in.Duration < am.cfg.MinDuration || in.Duration > am.cfg.MaxDuration {
		return nil, fmt.Errorf("duration must be between %s and %s", am.cfg.MinDuration, am.cfg.MaxDuration)
	}
	if in.MinIncrement <= 0 {
		in.MinIncrement = am.cfg.DefaultMinIncrement
	}

	now := am.clock.Now()
	auction := &domain.Auction{
		ScopeID:       in.ScopeID,
		OwnerID:       in.OwnerID,
		Title:         in.Title,
		Description:   in.Description,
		StartingPrice: in.StartingPrice,
		CurrentPrice:  in.StartingPrice,
		MinIncrement:  in.MinIncrement,
		PaymentUnit:   in.PaymentUnit,
		CreatedAt:     now,
		EndsAt:        now.Add(in.Duration),
		Status:        domain.AuctionActive,
	}

	id, err := am.store.CreateAuction(ctx, auction)
	if err != nil {
		return nil, err
	}
	auction.ID = id

	am.lifecycle.ScheduleEnd(id, auction.EndsAt)

	am.log.Info("auction created",
		"auction_id", id, "owner_id", in.OwnerID, "ends_at", auction.EndsAt)
	return auction, nil
}

// GetAuction returns the auction snapshot through the cache.
func (am *AuctionManager) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	return snapshotThrough(ctx, am.store, am.cache, auctionID)
}

// GetBids returns the most recent bids, newest first, through the cache.
func (am *AuctionManager) GetBids(ctx context.Context, auctionID int64, limit int) ([]*domain.Bid, error) {
	return bidsThrough(ctx, am.store, am.cache, auctionID, limit)
}

// GetBidCount returns the auction's bid count through the cache.
func (am *AuctionManager) GetBidCount(ctx context.Context, auctionID int64) (int, error) {
	return bidCountThrough(ctx, am.store, am.cache, auctionID)
}

// GetActorProfile returns the actor's bidding summary through the cache. The
// profile kind has the longest TTL in the cache: it is derived history and
// staleness there is harmless.
func (am *AuctionManager) GetActorProfile(ctx context.Context, actorID int64) (*domain.ActorProfile, error) {
	return actorThrough(ctx, am.store, am.cache, actorID)
}

// ListActive returns the scope's active auctions, soonest ending first.
// Listings are not cached: they are cheap, rare and cross-auction.
func (am *AuctionManager) ListActive(ctx context.Context, scopeID int64) ([]*domain.Auction, error) {
	return am.store.GetActiveAuctions(ctx, scopeID)
}

// Finalize closes an auction before its end time. Only the owner may do it.
// It races safely with the expiry timer because Close is idempotent.
func (am *AuctionManager) Finalize(ctx context.Context, auctionID, actorID int64) error {
	auction, err := am.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.OwnerID != actorID {
		return fmt.Errorf("only the owner can finalize auction %d", auctionID)
	}
	_, err = am.lifecycle.Close(ctx, auctionID)
	return err
}

// SetMessageRef records the presenter's rendered-message handle for the
// auction and drops the now stale snapshot.
func (am *AuctionManager) SetMessageRef(ctx context.Context, auctionID, messageRef int64) error {
	if err := am.store.SetMessageRef(ctx, auctionID, messageRef); err != nil {
		return err
	}
	am.cache.InvalidateAuction(auctionID)
	return nil
}
