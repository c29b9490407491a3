package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AuctionHandler is the thin HTTP surface the excluded command/UI layer
// plugs into. It translates between JSON and the engine; all invariants live
// below it.
type AuctionHandler struct {
	auctions    *services.AuctionManager
	bids        domain.BidSubmitter
	connManager *websocket.ConnectionManager
	log         logger.Logger
}

func NewAuctionHandler(
	auctions *services.AuctionManager,
	bids domain.BidSubmitter,
	connManager *websocket.ConnectionManager,
	log logger.Logger,
) *AuctionHandler {
	return &AuctionHandler{
		auctions:    auctions,
		bids:        bids,
		connManager: connManager,
		log:         log,
	}
}

func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions", h.ListActive)
	g.GET("/auctions/:id", h.GetAuction)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/finalize", h.Finalize)
	g.GET("/auctions/:id/watch", h.Watch)
	g.GET("/actors/:id", h.GetActorProfile)
}

type createAuctionRequest struct {
	ScopeID       int64   `json:"scope_id"`
	OwnerID       int64   `json:"owner_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	StartingPrice float64 `json:"starting_price"`
	MinIncrement  float64 `json:"min_increment"`
	PaymentUnit   string  `json:"payment_unit"`
	DurationHours int     `json:"duration_hours"`
}

type auctionResponse struct {
	AuctionID    int64     `json:"auction_id"`
	Title        string    `json:"title"`
	CurrentPrice float64   `json:"current_price"`
	MinimumBid   float64   `json:"minimum_bid"`
	PaymentUnit  string    `json:"payment_unit"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"`
	WinnerID     int64     `json:"winner_id,omitempty"`
	BidCount     int       `json:"bid_count"`
}

func toAuctionResponse(a *domain.Auction) auctionResponse {
	return auctionResponse{
		AuctionID:    a.ID,
		Title:        a.Title,
		CurrentPrice: a.CurrentPrice,
		MinimumBid:   a.MinimumBid(),
		PaymentUnit:  a.PaymentUnit,
		EndsAt:       a.EndsAt,
		Status:       a.Status.String(),
		WinnerID:     a.WinnerID,
		BidCount:     a.BidCount,
	}
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req createAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	auction, err := h.auctions.CreateAuction(c.Request().Context(), services.CreateAuctionInput{
		ScopeID:       req.ScopeID,
		OwnerID:       req.OwnerID,
		Title:         req.Title,
		Description:   req.Description,
		StartingPrice: req.StartingPrice,
		MinIncrement:  req.MinIncrement,
		PaymentUnit:   req.PaymentUnit,
		Duration:      time.Duration(req.DurationHours) * time.Hour,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auctionID, err := paramID(c)
	if err != nil {
		return err
	}
	auction, err := h.auctions.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "auction not found"})
		}
		h.log.Error("failed to load auction", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "please try again later"})
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) ListActive(c echo.Context) error {
	scopeID, _ := strconv.ParseInt(c.QueryParam("scope_id"), 10, 64)
	auctions, err := h.auctions.ListActive(c.Request().Context(), scopeID)
	if err != nil {
		h.log.Error("failed to list auctions", "scope_id", scopeID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "please try again later"})
	}
	out := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toAuctionResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

type placeBidRequest struct {
	ActorID  int64   `json:"actor_id"`
	Amount   float64 `json:"amount"`
	QuickBid bool    `json:"quick_bid"`
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	auctionID, err := paramID(c)
	if err != nil {
		return err
	}
	var req placeBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	receipt, err := h.bids.SubmitBid(c.Request().Context(), auctionID, req.ActorID, req.Amount, req.QuickBid)
	if err != nil {
		return h.renderBidError(c, auctionID, req.ActorID, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bid_id":          receipt.BidID,
		"amount":          receipt.NewAmount,
		"previous_bidder": receipt.PreviousBidder,
		"previous_amount": receipt.PreviousAmount,
		"bid_count":       receipt.BidCount,
	})
}

// renderBidError keeps the error split visible at the edge: rejections say
// exactly what to fix, anything else stays generic.
func (h *AuctionHandler) renderBidError(c echo.Context, auctionID, actorID int64, err error) error {
	var rejection *domain.RejectionError
	if errors.As(err, &rejection) {
		body := map[string]interface{}{"rejected": string(rejection.Reason)}
		status := http.StatusConflict
		switch rejection.Reason {
		case domain.RejectionNotFound:
			status = http.StatusNotFound
		case domain.RejectionBelowMinimum:
			body["minimum_bid"] = rejection.MinimumBid
		case domain.RejectionCooldown, domain.RejectionInFlight:
			status = http.StatusTooManyRequests
		}
		return c.JSON(status, body)
	}
	h.log.Error("bid failed", "auction_id", auctionID, "actor_id", actorID, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "please try again later"})
}

type finalizeRequest struct {
	ActorID int64 `json:"actor_id"`
}

func (h *AuctionHandler) Finalize(c echo.Context) error {
	auctionID, err := paramID(c)
	if err != nil {
		return err
	}
	var req finalizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.auctions.Finalize(c.Request().Context(), auctionID, req.ActorID); err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "auction not found"})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ended"})
}

func (h *AuctionHandler) GetActorProfile(c echo.Context) error {
	actorID, err := paramID(c)
	if err != nil {
		return err
	}
	profile, err := h.auctions.GetActorProfile(c.Request().Context(), actorID)
	if err != nil {
		h.log.Error("failed to load actor profile", "actor_id", actorID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "please try again later"})
	}
	body := map[string]interface{}{
		"actor_id":     profile.ActorID,
		"total_bids":   profile.TotalBids,
		"auctions_won": profile.AuctionsWon,
	}
	if !profile.LastBidAt.IsZero() {
		body["last_bid_at"] = profile.LastBidAt
	}
	return c.JSON(http.StatusOK, body)
}

func (h *AuctionHandler) Watch(c echo.Context) error {
	auctionID, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.connManager.Subscribe(c.Response(), c.Request(), auctionID); err != nil {
		h.log.Error("websocket upgrade failed", "auction_id", auctionID, "error", err)
		return err
	}
	return nil
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid auction id")
	}
	return id, nil
}
