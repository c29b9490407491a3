package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"

	"github.com/go-sql-driver/mysql"
)

// AuctionRepository is the durable store. Its PlaceBid transaction is the
// single point of serialization for concurrent bids on one auction: the row
// lock taken by FOR UPDATE, not any in-memory structure, decides who commits
// first.
type AuctionRepository struct {
	db    *sql.DB
	clock clock.Clock
}

func NewAuctionRepository(db *sql.DB, clk clock.Clock) *AuctionRepository {
	return &AuctionRepository{db: db, clock: clk}
}

var _ domain.AuctionStore = (*AuctionRepository)(nil)

// Migrate creates the schema and indexes.
func (r *AuctionRepository) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS auctions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			scope_id BIGINT NOT NULL,
			owner_id BIGINT NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			starting_price DOUBLE NOT NULL,
			current_price DOUBLE NOT NULL,
			min_increment DOUBLE NOT NULL,
			payment_unit VARCHAR(64) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			ends_at DATETIME(6) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			winner_id BIGINT NOT NULL DEFAULT 0,
			bid_count INT NOT NULL DEFAULT 0,
			updated_at DATETIME(6) NOT NULL,
			message_ref BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS bids (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			auction_id BIGINT NOT NULL,
			actor_id BIGINT NOT NULL,
			amount DOUBLE NOT NULL,
			created_at DATETIME(6) NOT NULL,
			is_quick TINYINT(1) NOT NULL DEFAULT 0,
			CONSTRAINT fk_bids_auction FOREIGN KEY (auction_id) REFERENCES auctions (id)
		)`,
		`CREATE INDEX idx_auctions_scope ON auctions (scope_id)`,
		`CREATE INDEX idx_auctions_status_ends ON auctions (status, ends_at)`,
		`CREATE INDEX idx_bids_auction_created ON bids (auction_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			var mysqlErr *mysql.MySQLError
			// 1061: duplicate key name; indexes already exist.
			if errors.As(err, &mysqlErr) && mysqlErr.Number == 1061 {
				continue
			}
			return err
		}
	}
	return nil
}

const auctionColumns = `id, scope_id, owner_id, title, description, starting_price, current_price,
	min_increment, payment_unit, created_at, ends_at, status, winner_id, bid_count, updated_at, message_ref`

func (r *AuctionRepository) CreateAuction(ctx context.Context, a *domain.Auction) (int64, error) {
	query := `
        INSERT INTO auctions (scope_id, owner_id, title, description, starting_price, current_price,
            min_increment, payment_unit, created_at, ends_at, status, winner_id, bid_count, updated_at, message_ref)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
    `
	res, err := r.db.ExecContext(ctx, query,
		a.ScopeID, a.OwnerID, a.Title, a.Description, a.StartingPrice, a.CurrentPrice,
		a.MinIncrement, a.PaymentUnit, a.CreatedAt, a.EndsAt, a.Status.String(), a.CreatedAt, a.MessageRef)
	if err != nil {
		return 0, classify("create auction", err)
	}
	return res.LastInsertId()
}

func (r *AuctionRepository) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, classify("get auction", err)
	}
	return auction, nil
}

func (r *AuctionRepository) GetBids(ctx context.Context, auctionID int64, limit int) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, actor_id, amount, created_at, is_quick
        FROM bids
        WHERE auction_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `
	rows, err := r.db.QueryContext(ctx, query, auctionID, limit)
	if err != nil {
		return nil, classify("get bids", err)
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.ActorID, &bid.Amount, &bid.CreatedAt, &bid.QuickBid); err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}
	return bids, rows.Err()
}

func (r *AuctionRepository) GetActiveAuctions(ctx context.Context, scopeID int64) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + `
        FROM auctions
        WHERE scope_id = ? AND status = 'active'
        ORDER BY ends_at ASC
        LIMIT 50`
	return r.queryAuctions(ctx, query, scopeID)
}

func (r *AuctionRepository) ListActiveAuctions(ctx context.Context) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = 'active'`
	return r.queryAuctions(ctx, query)
}

func (r *AuctionRepository) GetExpiredActiveAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = 'active' AND ends_at <= ?`
	return r.queryAuctions(ctx, query, now)
}

// PlaceBid runs the whole accept-bid flow inside one transaction. The
// auction row is re-read under FOR UPDATE so two concurrent bidders are
// serialized and the second one validates against the first one's price.
func (r *AuctionRepository) PlaceBid(ctx context.Context, auctionID, actorID int64, amount float64, quickBid bool) (*domain.BidReceipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin bid tx", err)
	}
	defer tx.Rollback()

	var (
		ownerID       int64
		startingPrice float64
		currentPrice  float64
		minIncrement  float64
		status        string
		endsAt        time.Time
		bidCount      int
	)
	err = tx.QueryRowContext(ctx, `
        SELECT owner_id, starting_price, current_price, min_increment, status, ends_at, bid_count
        FROM auctions WHERE id = ? FOR UPDATE
    `, auctionID).Scan(&ownerID, &startingPrice, &currentPrice, &minIncrement, &status, &endsAt, &bidCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, classify("lock auction row", err)
	}

	// Validation order: active, not owner, not expired, minimum increment.
	if status != domain.AuctionActive.String() {
		return nil, domain.ErrAuctionInactive
	}
	if actorID == ownerID {
		return nil, domain.ErrSelfBid
	}
	now := r.clock.Now()
	if !now.Before(endsAt) {
		return nil, domain.ErrAuctionExpired
	}
	if currentPrice < startingPrice {
		return nil, &domain.InvariantError{AuctionID: auctionID, Detail: "current price below starting price"}
	}
	minimum := currentPrice + minIncrement
	if amount < minimum {
		return nil, domain.BelowMinimum(minimum)
	}

	// Previous highest bid, for outbid notification. No prior bid means the
	// previous amount is the price the auction opened at.
	var previousBidder int64
	previousAmount := currentPrice
	err = tx.QueryRowContext(ctx, `
        SELECT actor_id, amount FROM bids
        WHERE auction_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, auctionID).Scan(&previousBidder, &previousAmount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("read previous bid", err)
	}

	res, err := tx.ExecContext(ctx, `
        INSERT INTO bids (auction_id, actor_id, amount, created_at, is_quick)
        VALUES (?, ?, ?, ?, ?)
    `, auctionID, actorID, amount, now, quickBid)
	if err != nil {
		return nil, classify("insert bid", err)
	}
	bidID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE auctions
        SET current_price = ?, bid_count = bid_count + 1, updated_at = ?
        WHERE id = ?
    `, amount, now, auctionID); err != nil {
		return nil, classify("update auction price", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit bid tx", err)
	}

	if previousBidder == actorID {
		// The actor outbid themselves; nobody to notify.
		previousBidder = 0
	}
	return &domain.BidReceipt{
		BidID:          bidID,
		AuctionID:      auctionID,
		ActorID:        actorID,
		PreviousBidder: previousBidder,
		PreviousAmount: previousAmount,
		NewAmount:      amount,
		BidCount:       bidCount + 1,
	}, nil
}

// EndAuction locks the auction row, reads the winning bid under that lock and
// flips the status in the same transaction. The row lock serializes it against
// PlaceBid, so the recorded winner is always the last committed bidder.
func (r *AuctionRepository) EndAuction(ctx context.Context, auctionID int64) (*domain.CloseOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin end tx", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
        SELECT status FROM auctions WHERE id = ? FOR UPDATE
    `, auctionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, classify("lock auction row", err)
	}
	if status != domain.AuctionActive.String() {
		return &domain.CloseOutcome{Ended: false}, nil
	}

	var winnerID int64
	var winningAmount float64
	err = tx.QueryRowContext(ctx, `
        SELECT actor_id, amount FROM bids
        WHERE auction_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, auctionID).Scan(&winnerID, &winningAmount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("read winning bid", err)
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE auctions
        SET status = 'ended', winner_id = ?, updated_at = ?
        WHERE id = ?
    `, winnerID, r.clock.Now(), auctionID); err != nil {
		return nil, classify("end auction", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit end tx", err)
	}

	return &domain.CloseOutcome{Ended: true, WinnerID: winnerID, WinningAmount: winningAmount}, nil
}

// GetActorProfile aggregates the actor's bid history. The two counts come
// from separate statements; a profile is presentational and tolerates that.
func (r *AuctionRepository) GetActorProfile(ctx context.Context, actorID int64) (*domain.ActorProfile, error) {
	profile := &domain.ActorProfile{ActorID: actorID}

	var lastBidAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*), MAX(created_at) FROM bids WHERE actor_id = ?
    `, actorID).Scan(&profile.TotalBids, &lastBidAt)
	if err != nil {
		return nil, classify("count actor bids", err)
	}
	if lastBidAt.Valid {
		profile.LastBidAt = lastBidAt.Time
	}

	err = r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM auctions WHERE winner_id = ? AND status = 'ended'
    `, actorID).Scan(&profile.AuctionsWon)
	if err != nil {
		return nil, classify("count actor wins", err)
	}
	return profile, nil
}

func (r *AuctionRepository) SetMessageRef(ctx context.Context, auctionID, messageRef int64) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE auctions SET message_ref = ?, updated_at = ? WHERE id = ?
    `, messageRef, r.clock.Now(), auctionID)
	if err != nil {
		return classify("set message ref", err)
	}
	return nil
}

func (r *AuctionRepository) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]*domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query auctions", err)
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		auction     domain.Auction
		description sql.NullString
		status      string
	)
	err := row.Scan(
		&auction.ID, &auction.ScopeID, &auction.OwnerID, &auction.Title, &description,
		&auction.StartingPrice, &auction.CurrentPrice, &auction.MinIncrement, &auction.PaymentUnit,
		&auction.CreatedAt, &auction.EndsAt, &status, &auction.WinnerID, &auction.BidCount,
		&auction.UpdatedAt, &auction.MessageRef)
	if err != nil {
		return nil, err
	}
	auction.Description = description.String
	switch status {
	case domain.AuctionActive.String():
		auction.Status = domain.AuctionActive
	case domain.AuctionEnded.String():
		auction.Status = domain.AuctionEnded
	default:
		return nil, &domain.InvariantError{AuctionID: auction.ID, Detail: "unknown status " + status}
	}
	return &auction, nil
}

// classify wraps lock waits and deadlocks as transient so the services retry
// them with backoff instead of surfacing them directly.
func classify(op string, err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1205: lock wait timeout, 1213: deadlock victim.
		if mysqlErr.Number == 1205 || mysqlErr.Number == 1213 {
			return &domain.TransientError{Op: op, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return err
}
