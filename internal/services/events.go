package services

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// EventDispatcher is the boundary between the transaction path and
// presentation. Services hand it events synchronously; it delivers them to
// the registered notifiers from its own goroutine, so a slow or failing
// notifier can never propagate into a commit.
type EventDispatcher struct {
	notifiers []domain.Notifier
	queue     chan dispatchItem
	timeout   time.Duration
	log       logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	mu      sync.Mutex
	stopped bool
}

type dispatchItem struct {
	bid    *domain.BidAcceptedEvent
	closed *domain.AuctionClosedEvent
}

const defaultQueueSize = 256

func NewEventDispatcher(notifiers []domain.Notifier, deliveryTimeout time.Duration, log logger.Logger) *EventDispatcher {
	return &EventDispatcher{
		notifiers: notifiers,
		queue:     make(chan dispatchItem, defaultQueueSize),
		timeout:   deliveryTimeout,
		log:       log,
		done:      make(chan struct{}),
	}
}

func (d *EventDispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Stop closes the queue and waits for the worker to drain it. Events emitted
// after Stop are dropped, so late timer goroutines cannot hit a closed
// channel.
func (d *EventDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
		<-d.done
	})
}

// BidAccepted enqueues the event without blocking. If the queue is full the
// event is dropped and logged; presentation is best-effort.
func (d *EventDispatcher) BidAccepted(event *domain.BidAcceptedEvent) {
	d.enqueue(dispatchItem{bid: event})
}

func (d *EventDispatcher) AuctionClosed(event *domain.AuctionClosedEvent) {
	d.enqueue(dispatchItem{closed: event})
}

func (d *EventDispatcher) enqueue(item dispatchItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.log.Warn("dispatcher stopped, dropping event")
		return
	}
	select {
	case d.queue <- item:
	default:
		d.log.Warn("event queue full, dropping event")
	}
}

func (d *EventDispatcher) run() {
	defer close(d.done)

	for item := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		for _, n := range d.notifiers {
			var err error
			switch {
			case item.bid != nil:
				err = n.BidAccepted(ctx, item.bid)
			case item.closed != nil:
				err = n.AuctionClosed(ctx, item.closed)
			}
			if err != nil {
				d.log.Error("notifier failed", "error", err)
			}
		}
		cancel()
	}
}
