package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrBidNotFound         = errors.New("bid not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrPartialWrite        = errors.New("partial write failure")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// business logic errors
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrSelfBid           = errors.New("cannot bid on your own product")
	ErrDuplicateBid      = errors.New("already placed a bid on this product")
	ErrNotProductOwner   = errors.New("caller does not own the product")
	ErrBidAlreadyDecided = errors.New("bid already decided")
)

// notification errors
var (
	ErrEmailLookupFailed  = errors.New("bidder email lookup failed")
	ErrNotificationFailed = errors.New("notification failed")
)
