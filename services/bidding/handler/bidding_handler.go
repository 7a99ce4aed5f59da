package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"marketplace-bidding/internal/auth"
	bidding "marketplace-bidding/internal/biddingService"
	model "marketplace-bidding/internal/models"
	"marketplace-bidding/services/bidding/helpers"
	"marketplace-bidding/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_services.go -package=handler marketplace-bidding/services/bidding/handler BiddingServiceInterface,CatalogServiceInterface,AccountServiceInterface

type BiddingServiceInterface interface {
	SubmitBid(ctx context.Context, bidder bidding.Bidder, productID string, bidPrice int64) (model.Bid, error)
	ListBids(ctx context.Context, productID string) ([]model.Bid, error)
	ListUserBids(ctx context.Context, userID string) ([]model.UserBid, error)
	DecideBid(ctx context.Context, ownerID, productID, bidID string, status model.BidStatus) (model.Bid, error)
	WatchProduct(ctx context.Context, productID string) (<-chan model.ProductView, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// SubmitBidHandler handles POST /bids
func (h *BiddingHandler) SubmitBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}

	caller, _ := auth.Caller(c)
	bid, err := h.service.SubmitBid(c.Request.Context(), bidding.Bidder{UserID: caller.UserID, Email: caller.Email}, req.ProductID, *req.BidPrice)
	if err != nil {
		helpers.RespondError(c, "SubmitBidHandler", err, map[string]any{
			"product_id": req.ProductID,
			"user_id":    caller.UserID,
			"bid_price":  *req.BidPrice,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("SubmitBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.BidID,
		"product_id": bid.ProductID,
		"user_id":    bid.UserID,
		"bid_price":  bid.BidPrice,
	})
}

// ListBidsHandler handles GET /ads/:product_id/bids
func (h *BiddingHandler) ListBidsHandler(c *gin.Context) {
	productID := c.Param("product_id")
	bids, err := h.service.ListBids(c.Request.Context(), productID)
	if err != nil {
		helpers.RespondError(c, "ListBidsHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("ListBidsHandler", "bids retrieved successfully", map[string]any{
		"product_id": productID,
		"count":      len(bids),
	})
}

// BidStepsHandler handles GET /ads/:product_id/bid-steps?price=
func (h *BiddingHandler) BidStepsHandler(c *gin.Context) {
	price, err := strconv.ParseInt(c.Query("price"), 10, 64)
	if err != nil || price < 0 {
		if err == nil {
			err = errors.New("price must not be negative")
		}
		helpers.HandleBindError(c, "BidStepsHandler", err)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.BidStepResponse{
		Price: price,
		Up:    bidding.StepBid(price, bidding.StepUp),
		Down:  bidding.StepBid(price, bidding.StepDown),
	}, "bid steps computed")
}

// DecideBidHandler handles POST /ads/:product_id/bids/:bid_id/decision
func (h *BiddingHandler) DecideBidHandler(c *gin.Context) {
	var req helpers.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DecideBidHandler", err)
		return
	}

	productID, bidID := c.Param("product_id"), c.Param("bid_id")
	caller, _ := auth.Caller(c)
	fields := map[string]any{
		"product_id": productID,
		"bid_id":     bidID,
		"owner_id":   caller.UserID,
		"status":     req.Status,
	}

	bid, err := h.service.DecideBid(c.Request.Context(), caller.UserID, productID, bidID, model.BidStatus(req.Status))
	if err != nil {
		// the decision is persisted even when the bidder could not be told
		if bid.BidID != "" {
			fields["persisted"] = true
		}
		helpers.RespondError(c, "DecideBidHandler", err, fields)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "bid "+string(bid.Status))
	helpers.LogSuccess("DecideBidHandler", "bid decided", fields)
}

// ListUserBidsHandler handles GET /me/bids
func (h *BiddingHandler) ListUserBidsHandler(c *gin.Context) {
	caller, _ := auth.Caller(c)
	bids, err := h.service.ListUserBids(c.Request.Context(), caller.UserID)
	if err != nil {
		helpers.RespondError(c, "ListUserBidsHandler", err, map[string]any{"user_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToUserBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("ListUserBidsHandler", "bids retrieved successfully", map[string]any{
		"user_id": caller.UserID,
		"count":   len(bids),
	})
}
