package bidding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/internal/config"
	"marketplace-bidding/internal/metrics"
	"marketplace-bidding/internal/models"
	"marketplace-bidding/internal/notify"
	"marketplace-bidding/internal/repository"
	"marketplace-bidding/utils"
)

// BidStep is the fixed increment used by the price stepper
const BidStep int64 = 100

const defaultTimeout = 10 * time.Second

// Bidder is the authenticated caller placing a bid
type Bidder struct {
	UserID string
	Email  string
}

// Direction selects the way StepBid moves a price
type Direction int

const (
	StepDown Direction = iota - 1
	_
	StepUp
)

// StepBid moves price one step in dir, never below zero
func StepBid(price int64, dir Direction) int64 {
	next := price + int64(dir)*BidStep
	if next < 0 {
		return 0
	}
	return next
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithTimeout bounds every service operation
func WithTimeout(d time.Duration) Option {
	return func(s *BiddingService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCurrentBidPolicy selects how a new bid changes the product's current
// bid: config.PolicyLatest overwrites it, config.PolicyHighest keeps the max.
func WithCurrentBidPolicy(policy string) Option {
	return func(s *BiddingService) {
		s.policy = policy
	}
}

// WithClock overrides the time source used for bid timestamps
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) {
		s.now = now
	}
}

// BiddingService defines the business logic for marketplace bidding
type BiddingService struct {
	repo    repository.MarketDB
	sender  notify.Sender
	timeout time.Duration
	policy  string
	now     func() time.Time
	tracer  trace.Tracer
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.MarketDB, sender notify.Sender, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:    repo,
		sender:  sender,
		timeout: defaultTimeout,
		policy:  config.PolicyLatest,
		now:     time.Now,
		tracer:  otel.Tracer("marketplace-bidding/bidding"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BiddingService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, context.CancelFunc, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "bidding."+name, trace.WithAttributes(attrs...))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, cancel, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SubmitBid validates and records a bid. The self-bid and duplicate checks
// run inside the same store transaction as the writes.
func (s *BiddingService) SubmitBid(ctx context.Context, bidder Bidder, productID string, bidPrice int64) (bid models.Bid, err error) {
	ctx, cancel, span := s.start(ctx, "SubmitBid",
		attribute.String("product.id", productID),
		attribute.String("user.id", bidder.UserID),
		attribute.Int64("bid.price", bidPrice))
	defer cancel()
	defer func() {
		metrics.BidsSubmitted.WithLabelValues(submitResult(err)).Inc()
		finish(span, err)
	}()

	if bidder.UserID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}
	if productID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing productId", biddingerrors.ErrInvalidRequest)
	}
	if bidPrice < 0 {
		return models.Bid{}, fmt.Errorf("service: %w - negative bid price", biddingerrors.ErrInvalidRequest)
	}

	email := bidder.Email
	if email == "" {
		email, err = s.lookupEmail(ctx, bidder.UserID)
		if err != nil {
			return models.Bid{}, err
		}
	}

	bid = models.Bid{
		UserID:    bidder.UserID,
		Email:     email,
		ProductID: productID,
		BidPrice:  bidPrice,
		Status:    models.BidPending,
		TimeStamp: s.now().UTC(),
	}

	bid, product, err := s.repo.AppendBid(ctx, bid, s.applier(bidder.UserID, bidPrice))
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to record bid on product %s by user %s: %w", productID, bidder.UserID, err)
	}

	utils.Debug("bid recorded", map[string]any{
		"bid_id":            bid.BidID,
		"product_id":        productID,
		"user_id":           bidder.UserID,
		"current_bid":       product.CurrentBid,
		"number_of_bidders": product.NumberOfBidders,
	})
	return bid, nil
}

// lookupEmail returns the stored email of userID, or "" when the user has
// no profile yet
func (s *BiddingService) lookupEmail(ctx context.Context, userID string) (string, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, biddingerrors.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("service: failed to look up bidder %s: %w", userID, err)
	}
	return user.Email, nil
}

// applier enforces the bidding rules against the transaction's snapshot
func (s *BiddingService) applier(userID string, bidPrice int64) repository.BidApplier {
	return func(product models.Product, prior []models.Bid) (models.Aggregate, error) {
		if product.UserID == userID {
			return models.Aggregate{}, fmt.Errorf("service: %w - product %s", biddingerrors.ErrSelfBid, product.ProductID)
		}
		if len(prior) > 0 {
			return models.Aggregate{}, fmt.Errorf("service: %w - product %s", biddingerrors.ErrDuplicateBid, product.ProductID)
		}

		current := bidPrice
		if s.policy == config.PolicyHighest && product.CurrentBid > current {
			current = product.CurrentBid
		}
		return models.Aggregate{
			CurrentBid:      current,
			NumberOfBidders: product.NumberOfBidders + 1,
		}, nil
	}
}

func submitResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, biddingerrors.ErrSelfBid):
		return "self_bid"
	case errors.Is(err, biddingerrors.ErrDuplicateBid):
		return "duplicate"
	case errors.Is(err, biddingerrors.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, biddingerrors.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, biddingerrors.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

// SortBids orders bids by price descending, then timestamp ascending, then id
func SortBids(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		a, b := bids[i], bids[j]
		if a.BidPrice != b.BidPrice {
			return a.BidPrice > b.BidPrice
		}
		if !a.TimeStamp.Equal(b.TimeStamp) {
			return a.TimeStamp.Before(b.TimeStamp)
		}
		return a.BidID < b.BidID
	})
}

// ListBids returns every bid on a product, highest first
func (s *BiddingService) ListBids(ctx context.Context, productID string) (bids []models.Bid, err error) {
	ctx, cancel, span := s.start(ctx, "ListBids", attribute.String("product.id", productID))
	defer cancel()
	defer func() { finish(span, err) }()

	if productID == "" {
		return nil, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidRequest)
	}

	bids, err = s.repo.GetBidsByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for product %s: %w", productID, err)
	}
	SortBids(bids)
	return bids, nil
}

// ListUserBids returns the caller's bids with each product's current bid.
// Bids whose product no longer exists are skipped.
func (s *BiddingService) ListUserBids(ctx context.Context, userID string) (out []models.UserBid, err error) {
	ctx, cancel, span := s.start(ctx, "ListUserBids", attribute.String("user.id", userID))
	defer cancel()
	defer func() { finish(span, err) }()

	if userID == "" {
		return nil, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}

	bids, err := s.repo.GetBidsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for user %s: %w", userID, err)
	}

	products := make(map[string]*models.Product)
	out = make([]models.UserBid, 0, len(bids))
	for _, b := range bids {
		p, seen := products[b.ProductID]
		if !seen {
			product, err := s.repo.GetProduct(ctx, b.ProductID)
			switch {
			case errors.Is(err, biddingerrors.ErrProductNotFound):
				products[b.ProductID] = nil
			case err != nil:
				return nil, fmt.Errorf("service: failed to get product %s: %w", b.ProductID, err)
			default:
				p = &product
				products[b.ProductID] = p
			}
		}
		if p == nil {
			continue
		}
		if p.ProductName != "" {
			b.ProductName = p.ProductName
		}
		out = append(out, models.UserBid{
			Bid:             b,
			HighestBid:      p.CurrentBid,
			IsHighestBidder: b.BidPrice == p.CurrentBid,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeStamp.After(out[j].TimeStamp) })
	return out, nil
}

// DecideBid records the owner's decision on a bid and notifies the bidder.
// Repeating the current decision sends nothing once the bidder has been
// notified, and retries the email otherwise. Reversing a decision fails with
// ErrBidAlreadyDecided. When the notification fails the decision stays
// persisted and the returned error wraps the notification failure.
func (s *BiddingService) DecideBid(ctx context.Context, ownerID, productID, bidID string, status models.BidStatus) (bid models.Bid, err error) {
	ctx, cancel, span := s.start(ctx, "DecideBid",
		attribute.String("product.id", productID),
		attribute.String("bid.id", bidID),
		attribute.String("bid.status", string(status)))
	defer cancel()
	defer func() { finish(span, err) }()

	if ownerID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}
	if productID == "" || bidID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing productId or bidId", biddingerrors.ErrInvalidRequest)
	}
	if !status.Decided() {
		return models.Bid{}, fmt.Errorf("service: %w - status must be accepted or rejected", biddingerrors.ErrInvalidRequest)
	}

	guard := func(product models.Product, current models.Bid) (models.BidStatus, bool, error) {
		if product.UserID != ownerID {
			return "", false, fmt.Errorf("service: %w - product %s", biddingerrors.ErrNotProductOwner, productID)
		}
		if current.Status == status {
			return status, false, nil
		}
		if current.Status.Decided() {
			return "", false, fmt.Errorf("service: %w - bid %s is %s", biddingerrors.ErrBidAlreadyDecided, bidID, current.Status)
		}
		return status, true, nil
	}

	bid, written, err := s.repo.SetBidStatus(ctx, productID, bidID, guard)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to decide bid %s: %w", bidID, err)
	}
	if written {
		metrics.BidDecisions.WithLabelValues(string(status)).Inc()
	} else if bid.Notified {
		return bid, nil
	}

	if err := s.notify(ctx, bid.UserID, bid.BidPrice, status); err != nil {
		return bid, err
	}
	if err := s.repo.MarkBidNotified(ctx, productID, bidID); err != nil {
		// the email went out; a later repeat may send it again
		utils.Warn("failed to record decision notification", map[string]any{
			"product_id": productID,
			"bid_id":     bidID,
			"error":      err.Error(),
		})
		return bid, nil
	}
	bid.Notified = true
	return bid, nil
}

// NotifyDecision emails the bidder about the owner's decision
func (s *BiddingService) NotifyDecision(ctx context.Context, bidderUserID string, bidPrice int64, status models.BidStatus) (err error) {
	ctx, cancel, span := s.start(ctx, "NotifyDecision",
		attribute.String("user.id", bidderUserID),
		attribute.String("bid.status", string(status)))
	defer cancel()
	defer func() { finish(span, err) }()

	if !status.Decided() {
		return fmt.Errorf("service: %w - status must be accepted or rejected", biddingerrors.ErrInvalidRequest)
	}
	return s.notify(ctx, bidderUserID, bidPrice, status)
}

func (s *BiddingService) notify(ctx context.Context, bidderUserID string, bidPrice int64, status models.BidStatus) error {
	if bidderUserID == "" {
		metrics.Notifications.WithLabelValues("lookup_failed").Inc()
		return fmt.Errorf("service: %w - empty bidder id", biddingerrors.ErrEmailLookupFailed)
	}

	user, err := s.repo.GetUser(ctx, bidderUserID)
	if err != nil {
		metrics.Notifications.WithLabelValues("lookup_failed").Inc()
		return fmt.Errorf("service: %w - user %s: %w", biddingerrors.ErrEmailLookupFailed, bidderUserID, err)
	}
	if user.Email == "" {
		metrics.Notifications.WithLabelValues("lookup_failed").Inc()
		return fmt.Errorf("service: %w - user %s has no email", biddingerrors.ErrEmailLookupFailed, bidderUserID)
	}

	msg := notify.Message{Email: user.Email, BidPrice: bidPrice, Status: string(status)}
	if err := s.sender.Send(ctx, msg); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("service: %w - user %s: %w", biddingerrors.ErrNotificationFailed, bidderUserID, err)
	}

	metrics.Notifications.WithLabelValues("sent").Inc()
	utils.Info("decision notification sent", map[string]any{
		"user_id":   bidderUserID,
		"bid_price": bidPrice,
		"status":    status,
	})
	return nil
}

// WatchProduct streams a fresh view of the product and its bids, starting
// with the current state and then after every committed change, until ctx
// is done. It fails up front with ErrProductNotFound for unknown products.
func (s *BiddingService) WatchProduct(ctx context.Context, productID string) (<-chan models.ProductView, error) {
	if productID == "" {
		return nil, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidRequest)
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, err := s.repo.WatchProduct(ctx, productID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("service: failed to watch product %s: %w", productID, err)
	}

	// subscribe before the first read so no change is missed in between
	first, err := s.view(ctx, productID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan models.ProductView, 1)
	out <- first
	go func() {
		defer cancel()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				v, err := s.view(ctx, productID)
				if err != nil {
					if ctx.Err() == nil {
						utils.Warn("WatchProduct: snapshot failed", map[string]any{
							"product_id": productID,
							"error":      err.Error(),
						})
					}
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *BiddingService) view(ctx context.Context, productID string) (models.ProductView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return models.ProductView{}, fmt.Errorf("service: failed to get product %s: %w", productID, err)
	}
	bids, err := s.repo.GetBidsByProduct(ctx, productID)
	if err != nil {
		return models.ProductView{}, fmt.Errorf("service: failed to get bids for product %s: %w", productID, err)
	}
	SortBids(bids)
	return models.ProductView{Product: product, Bids: bids}, nil
}
