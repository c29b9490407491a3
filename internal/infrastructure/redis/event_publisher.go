package redis

import (
	"context"
	"encoding/json"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
)

// EventPublisher fans engine events onto a pub/sub channel for external
// presenters (message renderers, dashboards). It is one of the notifiers
// behind the event dispatcher, so a Redis outage never touches the bid path.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

var _ domain.Notifier = (*EventPublisher)(nil)

type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func (p *EventPublisher) BidAccepted(ctx context.Context, event *domain.BidAcceptedEvent) error {
	return p.publish(ctx, envelope{Type: "bid_accepted", Payload: event})
}

func (p *EventPublisher) AuctionClosed(ctx context.Context, event *domain.AuctionClosedEvent) error {
	return p.publish(ctx, envelope{Type: "auction_closed", Payload: event})
}

func (p *EventPublisher) publish(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}
