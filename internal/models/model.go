package models

import "time"

// BidStatus is the owner's decision on a bid
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// Valid reports whether s is a known status
func (s BidStatus) Valid() bool {
	switch s {
	case BidPending, BidAccepted, BidRejected:
		return true
	}
	return false
}

// Decided reports whether s is a final owner decision
func (s BidStatus) Decided() bool {
	return s == BidAccepted || s == BidRejected
}

// User represents a marketplace participant
type User struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
}

// PaymentMethod is a provider-side payment method reference saved for a user
type PaymentMethod struct {
	ID              string    `json:"id"`
	PaymentMethodID string    `json:"paymentMethodId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Product represents an ad listing open to bidding
type Product struct {
	ProductID          string    `json:"productId"`
	UserID             string    `json:"userId"`
	ProductName        string    `json:"productName"`
	ProductDescription string    `json:"productDescription"`
	Location           string    `json:"location"`
	MinimumBidPrice    int64     `json:"minimumBidPrice"`
	CurrentBid         int64     `json:"currentBid"`
	NumberOfBidders    int64     `json:"numberOfBidders"`
	ImageURLs          []string  `json:"imageUrls,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Aggregate holds the denormalized bid summary stored on a product
type Aggregate struct {
	CurrentBid      int64 `json:"currentBid"`
	NumberOfBidders int64 `json:"numberOfBidders"`
}

// Bid represents a user's price offer on a product
type Bid struct {
	BidID       string    `json:"bidId"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	BidPrice    int64     `json:"bidPrice"`
	Status      BidStatus `json:"status"`
	TimeStamp   time.Time `json:"timeStamp"`
	// Notified is set once the bidder has been told about the decision
	Notified bool `json:"notified,omitempty"`
}

// UserBid is one of the caller's bids joined with the product's current bid
type UserBid struct {
	Bid
	HighestBid      int64 `json:"highestBid"`
	IsHighestBidder bool  `json:"isHighestBidder"`
}

// ProductView is a product together with its bids, ordered for display
type ProductView struct {
	Product Product `json:"product"`
	Bids    []Bid   `json:"bids"`
}
