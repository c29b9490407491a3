package websocket

import (
	"context"

	"auction-engine/internal/domain"
)

// LiveFeedNotifier pushes engine events to the auction's websocket watchers.
type LiveFeedNotifier struct {
	connManager *ConnectionManager
}

func NewLiveFeedNotifier(connManager *ConnectionManager) *LiveFeedNotifier {
	return &LiveFeedNotifier{connManager: connManager}
}

var _ domain.Notifier = (*LiveFeedNotifier)(nil)

type feedMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func (n *LiveFeedNotifier) BidAccepted(ctx context.Context, event *domain.BidAcceptedEvent) error {
	n.connManager.Broadcast(event.AuctionID, feedMessage{Type: "bid_accepted", Payload: event})
	return nil
}

func (n *LiveFeedNotifier) AuctionClosed(ctx context.Context, event *domain.AuctionClosedEvent) error {
	n.connManager.Broadcast(event.AuctionID, feedMessage{Type: "auction_closed", Payload: event})
	return nil
}
