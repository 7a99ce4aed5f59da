package helpers

import (
	"time"

	catalog "marketplace-bidding/internal/catalogService"
	model "marketplace-bidding/internal/models"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	BidPrice  *int64 `json:"bid_price" binding:"required"`
}

type BidResponse struct {
	BidID       string `json:"bid_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	BidPrice    int64  `json:"bid_price"`
	Status      string `json:"status"`
	TimeStamp   string `json:"time_stamp"`
}

type UserBidResponse struct {
	BidResponse
	HighestBid      int64 `json:"highest_bid"`
	IsHighestBidder bool  `json:"is_highest_bidder"`
}

type DecisionRequest struct {
	Status string `json:"status" binding:"required,oneof=accepted rejected"`
}

type BidStepResponse struct {
	Price int64 `json:"price"`
	Up    int64 `json:"up"`
	Down  int64 `json:"down"`
}

type CreateProductRequest struct {
	ProductName        string   `json:"product_name" binding:"required"`
	ProductDescription string   `json:"product_description" binding:"required"`
	Location           string   `json:"location" binding:"required"`
	MinimumBidPrice    int64    `json:"minimum_bid_price"`
	ImageURLs          []string `json:"image_urls" binding:"required"`
}

type ProductResponse struct {
	ProductID          string   `json:"product_id"`
	UserID             string   `json:"user_id"`
	ProductName        string   `json:"product_name"`
	ProductDescription string   `json:"product_description"`
	Location           string   `json:"location"`
	MinimumBidPrice    int64    `json:"minimum_bid_price"`
	CurrentBid         int64    `json:"current_bid"`
	NumberOfBidders    int64    `json:"number_of_bidders"`
	ImageURLs          []string `json:"image_urls"`
	Timestamp          string   `json:"timestamp"`
}

type SearchResultResponse struct {
	Product ProductResponse `json:"product"`
	Score   float64         `json:"score"`
}

type ProductViewResponse struct {
	Product ProductResponse `json:"product"`
	Bids    []BidResponse   `json:"bids"`
}

type ProfileRequest struct {
	Email     string `json:"email" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
}

type ProfileResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

type AddPaymentMethodRequest struct {
	CardToken string `json:"card_token" binding:"required"`
}

type PaymentMethodResponse struct {
	ID              string `json:"id"`
	PaymentMethodID string `json:"payment_method_id"`
	CreatedAt       string `json:"created_at"`
}

// Relay DTOs keep the camelCase wire format mobile clients already send
type PaymentMethodRelayRequest struct {
	CardToken string `json:"cardToken"`
}

type PaymentMethodRelayResponse struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

type SendEmailRequest struct {
	Email    string `json:"email"`
	BidPrice int64  `json:"bidPrice"`
	Status   string `json:"status"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func ToBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:       b.BidID,
		ProductID:   b.ProductID,
		ProductName: b.ProductName,
		UserID:      b.UserID,
		Email:       b.Email,
		BidPrice:    b.BidPrice,
		Status:      string(b.Status),
		TimeStamp:   formatTime(b.TimeStamp),
	}
}

func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}

func ToUserBidResponses(bids []model.UserBid) []UserBidResponse {
	out := make([]UserBidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, UserBidResponse{
			BidResponse:     ToBidResponse(b.Bid),
			HighestBid:      b.HighestBid,
			IsHighestBidder: b.IsHighestBidder,
		})
	}
	return out
}

func ToProductResponse(p model.Product) ProductResponse {
	images := p.ImageURLs
	if images == nil {
		images = []string{}
	}
	return ProductResponse{
		ProductID:          p.ProductID,
		UserID:             p.UserID,
		ProductName:        p.ProductName,
		ProductDescription: p.ProductDescription,
		Location:           p.Location,
		MinimumBidPrice:    p.MinimumBidPrice,
		CurrentBid:         p.CurrentBid,
		NumberOfBidders:    p.NumberOfBidders,
		ImageURLs:          images,
		Timestamp:          formatTime(p.Timestamp),
	}
}

func ToProductResponses(products []model.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, ToProductResponse(p))
	}
	return out
}

func ToSearchResultResponses(results []catalog.SearchResult) []SearchResultResponse {
	out := make([]SearchResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResultResponse{Product: ToProductResponse(r.Product), Score: r.Score})
	}
	return out
}

func ToProductViewResponse(v model.ProductView) ProductViewResponse {
	return ProductViewResponse{
		Product: ToProductResponse(v.Product),
		Bids:    ToBidResponses(v.Bids),
	}
}

func ToProfileResponse(u model.User) ProfileResponse {
	return ProfileResponse{UserID: u.UserID, Email: u.Email, FirstName: u.FirstName}
}

func ToPaymentMethodResponses(methods []model.PaymentMethod) []PaymentMethodResponse {
	out := make([]PaymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, ToPaymentMethodResponse(m))
	}
	return out
}

func ToPaymentMethodResponse(m model.PaymentMethod) PaymentMethodResponse {
	return PaymentMethodResponse{
		ID:              m.ID,
		PaymentMethodID: m.PaymentMethodID,
		CreatedAt:       formatTime(m.CreatedAt),
	}
}
