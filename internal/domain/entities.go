package domain

import (
	"time"
)

// Auction is a time-bounded competitive-bid record with a single eventual
// winner. CurrentPrice never decreases and EndsAt is fixed at creation.
type Auction struct {
	ID            int64
	ScopeID       int64
	OwnerID       int64
	Title         string
	Description   string
	StartingPrice float64
	CurrentPrice  float64
	MinIncrement  float64
	PaymentUnit   string
	CreatedAt     time.Time
	EndsAt        time.Time
	Status        AuctionStatus
	WinnerID      int64 // 0 = no winner
	BidCount      int
	UpdatedAt     time.Time
	MessageRef    int64 // handle of the rendered message, 0 if unset
}

type AuctionStatus int

const (
	AuctionActive AuctionStatus = iota
	AuctionEnded
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Bid is an immutable, timestamped offer against an auction. Bids are
// append-only; the latest one determines the current price and, at closing,
// the winner.
type Bid struct {
	ID        int64
	AuctionID int64
	ActorID   int64
	Amount    float64
	CreatedAt time.Time
	QuickBid  bool
}

// BidReceipt is returned by the store after a committed bid so the caller can
// notify the outbid actor. PreviousBidder is 0 when there was no prior bid or
// when the prior bid belongs to the same actor.
type BidReceipt struct {
	BidID          int64
	AuctionID      int64
	ActorID        int64
	PreviousBidder int64
	PreviousAmount float64
	NewAmount      float64
	BidCount       int
}

// ActorProfile is a presentational summary of an actor's bidding history.
// It is derived, cached with a long TTL and never consulted on the write
// path.
type ActorProfile struct {
	ActorID     int64
	TotalBids   int
	AuctionsWon int
	LastBidAt   time.Time // zero when the actor never bid
}

// CloseOutcome reports what EndAuction did. The winner fields are only
// meaningful when Ended is true; WinnerID 0 means the auction closed with no
// bids.
type CloseOutcome struct {
	Ended         bool
	WinnerID      int64
	WinningAmount float64
}

// MinimumBid is the smallest acceptable next bid for the auction's current
// state.
func (a *Auction) MinimumBid() float64 {
	return a.CurrentPrice + a.MinIncrement
}
