package services

import (
	"context"

	"auction-engine/internal/cache"
	"auction-engine/internal/domain"
)

// Read-through helpers shared by the services. On a miss they fetch from the
// durable store and populate the cache under the kind's TTL. Store misses
// are never cached: caching absence would hide an auction created between
// the read and the write.

func snapshotThrough(ctx context.Context, store domain.AuctionStore, c *cache.Store, auctionID int64) (*domain.Auction, error) {
	if v, ok := c.Get(cache.KindAuction, auctionID); ok {
		return v.(*domain.Auction), nil
	}
	auction, err := store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.CurrentPrice < auction.StartingPrice {
		// Never cache a row the store should not have produced.
		return nil, &domain.InvariantError{AuctionID: auctionID, Detail: "current price below starting price"}
	}
	c.Put(cache.KindAuction, auctionID, auction)
	return auction, nil
}

// cachedBids remembers whether the fetch that produced it was truncated, so
// a later read with a larger limit knows the store may hold more rows.
type cachedBids struct {
	bids     []*domain.Bid
	complete bool
}

func bidsThrough(ctx context.Context, store domain.AuctionStore, c *cache.Store, auctionID int64, limit int) ([]*domain.Bid, error) {
	if v, ok := c.Get(cache.KindBids, auctionID); ok {
		cached := v.(cachedBids)
		if len(cached.bids) >= limit {
			return cached.bids[:limit], nil
		}
		if cached.complete {
			return cached.bids, nil
		}
		// The cached fetch was truncated below this limit; fall through and
		// re-fetch.
	}
	// Fetch more than asked so the next few reads with small limits hit.
	fetch := limit * 3
	if fetch < 20 {
		fetch = 20
	}
	bids, err := store.GetBids(ctx, auctionID, fetch)
	if err != nil {
		return nil, err
	}
	c.Put(cache.KindBids, auctionID, cachedBids{bids: bids, complete: len(bids) < fetch})
	if len(bids) >= limit {
		return bids[:limit], nil
	}
	return bids, nil
}

func actorThrough(ctx context.Context, store domain.AuctionStore, c *cache.Store, actorID int64) (*domain.ActorProfile, error) {
	if v, ok := c.Get(cache.KindActor, actorID); ok {
		return v.(*domain.ActorProfile), nil
	}
	profile, err := store.GetActorProfile(ctx, actorID)
	if err != nil {
		return nil, err
	}
	c.Put(cache.KindActor, actorID, profile)
	return profile, nil
}

func bidCountThrough(ctx context.Context, store domain.AuctionStore, c *cache.Store, auctionID int64) (int, error) {
	if v, ok := c.Get(cache.KindBidCount, auctionID); ok {
		return v.(int), nil
	}
	auction, err := store.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	c.Put(cache.KindBidCount, auctionID, auction.BidCount)
	return auction.BidCount, nil
}
