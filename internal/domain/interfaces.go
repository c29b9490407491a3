package domain

import (
	"context"
	"time"
)

// AuctionStore is the durable, transactional store holding auction and bid
// rows. It is the single source of truth: caches, guards and timers layered
// above it must tolerate being stale.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *Auction) (int64, error)
	GetAuction(ctx context.Context, auctionID int64) (*Auction, error)
	GetBids(ctx context.Context, auctionID int64, limit int) ([]*Bid, error)
	GetActiveAuctions(ctx context.Context, scopeID int64) ([]*Auction, error)
	ListActiveAuctions(ctx context.Context) ([]*Auction, error)
	GetExpiredActiveAuctions(ctx context.Context, now time.Time) ([]*Auction, error)
	GetActorProfile(ctx context.Context, actorID int64) (*ActorProfile, error)

	// PlaceBid runs the whole accept-bid validation and mutation as one
	// transaction, re-reading the auction row under a lock. It returns a
	// RejectionError for business failures and a TransientError for
	// contention worth retrying.
	PlaceBid(ctx context.Context, auctionID, actorID int64, amount float64, quickBid bool) (*BidReceipt, error)

	// EndAuction marks the auction ended, picking the winner from the latest
	// bid inside the same transaction so a bid committing concurrently can
	// never produce a stale winner. Calling it on an already ended auction
	// reports Ended false with no error.
	EndAuction(ctx context.Context, auctionID int64) (*CloseOutcome, error)

	// SetMessageRef attaches the rendered-message handle a presenter created
	// for this auction.
	SetMessageRef(ctx context.Context, auctionID, messageRef int64) error
}

// Notifier consumes lifecycle and bid-accepted events. Calls are
// fire-and-forget from the engine's perspective: a notifier failure must
// never roll back or block the transaction that produced the event.
type Notifier interface {
	BidAccepted(ctx context.Context, event *BidAcceptedEvent) error
	AuctionClosed(ctx context.Context, event *AuctionClosedEvent) error
}

// BidSubmitter is the capability the excluded command/UI layer gets from the
// engine: one entry point per user gesture, whatever widget produced it.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, auctionID, actorID int64, amount float64, quickBid bool) (*BidReceipt, error)
}
