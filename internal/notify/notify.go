// Package notify delivers bid decision emails to bidders.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrSendFailed is returned by senders when delivery did not succeed
var ErrSendFailed = errors.New("notify: send failed")

// Message is one bid decision addressed to a bidder
type Message struct {
	Email    string `json:"email"`
	BidPrice int64  `json:"bidPrice"`
	Status   string `json:"status"`
}

// Validate rejects messages that cannot be delivered
func (m Message) Validate() error {
	if m.Email == "" {
		return fmt.Errorf("%w: empty recipient", ErrSendFailed)
	}
	if m.Status == "" {
		return fmt.Errorf("%w: empty status", ErrSendFailed)
	}
	return nil
}

// Subject returns the email subject line for m
func (m Message) Subject() string {
	return "Your Bid Status: " + m.Status
}

// Body returns the plain text body for m in the given currency
func (m Message) Body(currency string) string {
	return fmt.Sprintf("Your bid of %s %d has been %s.", currency, m.BidPrice, m.Status)
}

// Sender delivers a decision message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

//go:generate mockgen -destination=mock_sender.go -package=notify marketplace-bidding/internal/notify Sender
