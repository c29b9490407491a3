package domain

import (
	"time"

	"github.com/google/uuid"
)

// Events carried to notifiers. EventID lets downstream consumers that see
// the same event on several transports (pub/sub, websocket) de-duplicate.

type BidAcceptedEvent struct {
	EventID        string    `json:"event_id"`
	AuctionID      int64     `json:"auction_id"`
	ActorID        int64     `json:"actor_id"`
	Amount         float64   `json:"amount"`
	PreviousBidder int64     `json:"previous_bidder,omitempty"`
	PreviousAmount float64   `json:"previous_amount,omitempty"`
	BidCount       int       `json:"bid_count"`
	QuickBid       bool      `json:"quick_bid"`
	Timestamp      time.Time `json:"timestamp"`
}

type AuctionClosedEvent struct {
	EventID       string    `json:"event_id"`
	AuctionID     int64     `json:"auction_id"`
	WinnerID      int64     `json:"winner_id,omitempty"`
	WinningAmount float64   `json:"winning_amount,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewBidAcceptedEvent(receipt *BidReceipt, quickBid bool, now time.Time) *BidAcceptedEvent {
	return &BidAcceptedEvent{
		EventID:        uuid.NewString(),
		AuctionID:      receipt.AuctionID,
		ActorID:        receipt.ActorID,
		Amount:         receipt.NewAmount,
		PreviousBidder: receipt.PreviousBidder,
		PreviousAmount: receipt.PreviousAmount,
		BidCount:       receipt.BidCount,
		QuickBid:       quickBid,
		Timestamp:      now,
	}
}

func NewAuctionClosedEvent(auctionID, winnerID int64, winningAmount float64, now time.Time) *AuctionClosedEvent {
	return &AuctionClosedEvent{
		EventID:       uuid.NewString(),
		AuctionID:     auctionID,
		WinnerID:      winnerID,
		WinningAmount: winningAmount,
		Timestamp:     now,
	}
}
