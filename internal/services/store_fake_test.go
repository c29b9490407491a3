package services

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
)

// fakeStore is an in-memory AuctionStore with the same validation order as
// the MySQL implementation. Its mutex plays the role of the row lock.
type fakeStore struct {
	mu    sync.Mutex
	clock clock.Clock

	auctions map[int64]*domain.Auction
	bids     map[int64][]*domain.Bid

	nextAuctionID int64
	nextBidID     int64

	// Remaining transient failures to inject, per operation.
	placeBidFailures int
	endFailures      int
}

func newFakeStore(clk clock.Clock) *fakeStore {
	return &fakeStore{
		clock:    clk,
		auctions: make(map[int64]*domain.Auction),
		bids:     make(map[int64][]*domain.Bid),
	}
}

func (f *fakeStore) CreateAuction(ctx context.Context, a *domain.Auction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAuctionID++
	copied := *a
	copied.ID = f.nextAuctionID
	f.auctions[copied.ID] = &copied
	return copied.ID, nil
}

func (f *fakeStore) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeStore) GetBids(ctx context.Context, auctionID int64, limit int) ([]*domain.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.bids[auctionID]
	var out []*domain.Bid
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *all[i]
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeStore) GetActiveAuctions(ctx context.Context, scopeID int64) ([]*domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Auction
	for _, a := range f.auctions {
		if a.ScopeID == scopeID && a.Status == domain.AuctionActive {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveAuctions(ctx context.Context) ([]*domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Auction
	for _, a := range f.auctions {
		if a.Status == domain.AuctionActive {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) GetExpiredActiveAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Auction
	for _, a := range f.auctions {
		if a.Status == domain.AuctionActive && !a.EndsAt.After(now) {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) PlaceBid(ctx context.Context, auctionID, actorID int64, amount float64, quickBid bool) (*domain.BidReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.placeBidFailures > 0 {
		f.placeBidFailures--
		return nil, &domain.TransientError{Op: "place bid", Err: context.DeadlineExceeded}
	}

	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	if a.Status != domain.AuctionActive {
		return nil, domain.ErrAuctionInactive
	}
	if actorID == a.OwnerID {
		return nil, domain.ErrSelfBid
	}
	now := f.clock.Now()
	if !now.Before(a.EndsAt) {
		return nil, domain.ErrAuctionExpired
	}
	minimum := a.CurrentPrice + a.MinIncrement
	if amount < minimum {
		return nil, domain.BelowMinimum(minimum)
	}

	var previousBidder int64
	previousAmount := a.CurrentPrice
	if existing := f.bids[auctionID]; len(existing) > 0 {
		last := existing[len(existing)-1]
		previousBidder = last.ActorID
		previousAmount = last.Amount
	}

	f.nextBidID++
	f.bids[auctionID] = append(f.bids[auctionID], &domain.Bid{
		ID:        f.nextBidID,
		AuctionID: auctionID,
		ActorID:   actorID,
		Amount:    amount,
		CreatedAt: now,
		QuickBid:  quickBid,
	})
	a.CurrentPrice = amount
	a.BidCount++
	a.UpdatedAt = now

	if previousBidder == actorID {
		previousBidder = 0
	}
	return &domain.BidReceipt{
		BidID:          f.nextBidID,
		AuctionID:      auctionID,
		ActorID:        actorID,
		PreviousBidder: previousBidder,
		PreviousAmount: previousAmount,
		NewAmount:      amount,
		BidCount:       a.BidCount,
	}, nil
}

func (f *fakeStore) EndAuction(ctx context.Context, auctionID int64) (*domain.CloseOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.endFailures > 0 {
		f.endFailures--
		return nil, &domain.TransientError{Op: "end auction", Err: context.DeadlineExceeded}
	}

	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	if a.Status != domain.AuctionActive {
		return &domain.CloseOutcome{Ended: false}, nil
	}

	// Winner read and status flip happen under the same lock, like the row
	// lock in the MySQL implementation.
	var winnerID int64
	var winningAmount float64
	if bids := f.bids[auctionID]; len(bids) > 0 {
		last := bids[len(bids)-1]
		winnerID = last.ActorID
		winningAmount = last.Amount
	}
	a.Status = domain.AuctionEnded
	a.WinnerID = winnerID
	a.UpdatedAt = f.clock.Now()
	return &domain.CloseOutcome{Ended: true, WinnerID: winnerID, WinningAmount: winningAmount}, nil
}

func (f *fakeStore) GetActorProfile(ctx context.Context, actorID int64) (*domain.ActorProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile := &domain.ActorProfile{ActorID: actorID}
	for _, bids := range f.bids {
		for _, b := range bids {
			if b.ActorID != actorID {
				continue
			}
			profile.TotalBids++
			if b.CreatedAt.After(profile.LastBidAt) {
				profile.LastBidAt = b.CreatedAt
			}
		}
	}
	for _, a := range f.auctions {
		if a.Status == domain.AuctionEnded && a.WinnerID == actorID {
			profile.AuctionsWon++
		}
	}
	return profile, nil
}

func (f *fakeStore) SetMessageRef(ctx context.Context, auctionID, messageRef int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[auctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	a.MessageRef = messageRef
	return nil
}

// recordingNotifier captures delivered events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	bids   []*domain.BidAcceptedEvent
	closed []*domain.AuctionClosedEvent
	fail   bool
}

func (n *recordingNotifier) BidAccepted(ctx context.Context, event *domain.BidAcceptedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return context.Canceled
	}
	n.bids = append(n.bids, event)
	return nil
}

func (n *recordingNotifier) AuctionClosed(ctx context.Context, event *domain.AuctionClosedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return context.Canceled
	}
	n.closed = append(n.closed, event)
	return nil
}

func (n *recordingNotifier) bidEvents() []*domain.BidAcceptedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.BidAcceptedEvent(nil), n.bids...)
}

func (n *recordingNotifier) closedEvents() []*domain.AuctionClosedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.AuctionClosedEvent(nil), n.closed...)
}
