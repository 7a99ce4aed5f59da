package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"marketplace-bidding/internal/biddingerrors"
	model "marketplace-bidding/internal/models"
	"marketplace-bidding/internal/store"
)

//go:generate mockgen -destination=mock_repository.go -package=repository marketplace-bidding/internal/repository MarketDB

// BidApplier validates a bid against a consistent snapshot of the product and
// the bidder's earlier bids on it, and returns the product's new aggregate.
// It runs inside the write transaction; returning an error aborts it.
type BidApplier func(product model.Product, priorBids []model.Bid) (model.Aggregate, error)

// StatusGuard decides which status to persist on a bid. It returns write=false
// to leave the bid untouched.
type StatusGuard func(product model.Product, bid model.Bid) (next model.BidStatus, write bool, err error)

// MarketDB defines the storage interface for the marketplace
type MarketDB interface {
	CreateProduct(ctx context.Context, product model.Product) (model.Product, error)
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	AppendBid(ctx context.Context, bid model.Bid, apply BidApplier) (model.Bid, model.Product, error)
	GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error)
	GetBid(ctx context.Context, productID, bidID string) (model.Bid, error)
	SetBidStatus(ctx context.Context, productID, bidID string, guard StatusGuard) (model.Bid, bool, error)
	MarkBidNotified(ctx context.Context, productID, bidID string) error
	GetUser(ctx context.Context, userID string) (model.User, error)
	SaveUser(ctx context.Context, user model.User) error
	AppendPaymentMethod(ctx context.Context, userID string, pm model.PaymentMethod) (model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID string) ([]model.PaymentMethod, error)
	WatchProduct(ctx context.Context, productID string) (<-chan struct{}, error)
}

// Data layout:
//
//	ads/{productId}                         product
//	ads/{productId}/bids/{bidId}            per-product bid index
//	bids/{userId}/{bidId}                   per-user bid index
//	users/{userId}                          user record
//	users/{userId}/paymentMethods/{id}      saved payment methods
func adPath(productID string) string { return store.Join("ads", productID) }
func adBidPath(productID, bidID string) string { return store.Join("ads", productID, "bids", bidID) }
func userBidsPath(userID string) string { return store.Join("bids", userID) }
func userBidPath(userID, bidID string) string { return store.Join("bids", userID, bidID) }
func userPath(userID string) string { return store.Join("users", userID) }
func paymentMethodsPath(userID string) string { return store.Join("users", userID, "paymentMethods") }

// productDoc is the stored shape of ads/{productId}
type productDoc struct {
	model.Product
	Bids map[string]model.Bid `json:"bids,omitempty"`
}

// StoreRepo implements MarketDB on a hierarchical Store
type StoreRepo struct {
	store store.Store
}

// NewStoreRepo creates a repository backed by s
func NewStoreRepo(s store.Store) *StoreRepo {
	return &StoreRepo{store: s}
}

// checkIDs rejects ids that would address a different path
func checkIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" || strings.ContainsAny(id, "/.#$[]") {
			return fmt.Errorf("%w: malformed id %q", biddingerrors.ErrInvalidRequest, id)
		}
	}
	return nil
}

// classify maps store failures onto the domain taxonomy
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrPartialCommit):
		return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrPartialWrite, err)
	case errors.Is(err, store.ErrInvalidPath):
		return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrUpstreamUnavailable, err)
	}
}

func decodeProduct(raw []byte) (productDoc, error) {
	var doc productDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return productDoc{}, fmt.Errorf("decode product: %w", err)
	}
	for id, b := range doc.Bids {
		doc.Bids[id] = normalizeBid(b)
	}
	return doc, nil
}

// normalizeBid reads bids stored without a known status as pending
func normalizeBid(b model.Bid) model.Bid {
	if !b.Status.Valid() {
		b.Status = model.BidPending
	}
	return b
}

func decodeBids(children []store.Child) ([]model.Bid, error) {
	bids := make([]model.Bid, 0, len(children))
	for _, c := range children {
		var b model.Bid
		if err := json.Unmarshal(c.Value, &b); err != nil {
			return nil, fmt.Errorf("decode bid %s: %w", c.Key, err)
		}
		if b.BidID == "" {
			b.BidID = c.Key
		}
		bids = append(bids, normalizeBid(b))
	}
	return bids, nil
}

// getProductDoc reads ads/{productId} through get, which is either the store
// or a transaction view
func getProductDoc(get func(string) ([]byte, error), productID string) (productDoc, error) {
	raw, err := get(adPath(productID))
	if errors.Is(err, store.ErrNotFound) {
		return productDoc{}, fmt.Errorf("product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return productDoc{}, err
	}
	doc, err := decodeProduct(raw)
	if err != nil {
		return productDoc{}, err
	}
	if doc.ProductID == "" {
		doc.ProductID = productID
	}
	return doc, nil
}

// CreateProduct stores a new product, generating its id when empty
func (r *StoreRepo) CreateProduct(ctx context.Context, product model.Product) (model.Product, error) {
	if product.ProductID == "" {
		product.ProductID = r.store.NewKey()
	}
	if err := checkIDs(product.ProductID, product.UserID); err != nil {
		return model.Product{}, err
	}
	if err := r.store.Set(ctx, adPath(product.ProductID), product); err != nil {
		return model.Product{}, classify("create product "+product.ProductID, err)
	}
	return product, nil
}

// GetProduct returns a product without its bids
func (r *StoreRepo) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	if err := checkIDs(productID); err != nil {
		return model.Product{}, err
	}
	doc, err := getProductDoc(func(p string) ([]byte, error) { return r.store.Get(ctx, p) }, productID)
	if errors.Is(err, biddingerrors.ErrProductNotFound) {
		return model.Product{}, err
	}
	if err != nil {
		return model.Product{}, classify("get product "+productID, err)
	}
	return doc.Product, nil
}

// ListProducts returns every product in key order
func (r *StoreRepo) ListProducts(ctx context.Context) ([]model.Product, error) {
	raw, err := r.store.Get(ctx, "ads")
	if errors.Is(err, store.ErrNotFound) {
		return []model.Product{}, nil
	}
	if err != nil {
		return nil, classify("list products", err)
	}
	children, err := store.Children(raw)
	if err != nil {
		return nil, classify("list products", err)
	}
	products := make([]model.Product, 0, len(children))
	for _, c := range children {
		doc, err := decodeProduct(c.Value)
		if err != nil {
			return nil, err
		}
		if doc.ProductID == "" {
			doc.ProductID = c.Key
		}
		products = append(products, doc.Product)
	}
	return products, nil
}

// AppendBid records bid under both bid indexes and updates the product
// aggregate in one transaction. The bid takes the product's name. The product and the bidder's earlier bids on
// it are read inside the same transaction and handed to apply, so concurrent
// submissions for the same (user, product) pair cannot both pass its checks.
func (r *StoreRepo) AppendBid(ctx context.Context, bid model.Bid, apply BidApplier) (model.Bid, model.Product, error) {
	if err := checkIDs(bid.UserID, bid.ProductID); err != nil {
		return model.Bid{}, model.Product{}, err
	}
	var (
		product   model.Product
		domainErr error
	)

	err := r.store.RunTransaction(ctx, func(tx store.Txn) error {
		doc, err := getProductDoc(tx.Get, bid.ProductID)
		if err != nil {
			if errors.Is(err, biddingerrors.ErrProductNotFound) {
				domainErr = err
			}
			return err
		}

		userRaw, err := tx.Get(userBidsPath(bid.UserID))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		matches, err := store.QueryEqual(userRaw, "productId", bid.ProductID)
		if err != nil {
			return err
		}
		prior, err := decodeBids(matches)
		if err != nil {
			return err
		}

		agg, err := apply(doc.Product, prior)
		if err != nil {
			domainErr = err
			return err
		}

		if bid.BidID == "" {
			bid.BidID = r.store.NewKey()
		}
		bid.ProductName = doc.ProductName
		if err := tx.Set(userBidPath(bid.UserID, bid.BidID), bid); err != nil {
			return err
		}
		if err := tx.Set(adBidPath(bid.ProductID, bid.BidID), bid); err != nil {
			return err
		}
		if err := tx.Update(adPath(bid.ProductID), map[string]any{
			"currentBid":      agg.CurrentBid,
			"numberOfBidders": agg.NumberOfBidders,
		}); err != nil {
			return err
		}

		product = doc.Product
		product.CurrentBid = agg.CurrentBid
		product.NumberOfBidders = agg.NumberOfBidders
		return nil
	})
	if domainErr != nil {
		return model.Bid{}, model.Product{}, domainErr
	}
	if err != nil {
		return model.Bid{}, model.Product{}, classify(fmt.Sprintf("append bid by %s on %s", bid.UserID, bid.ProductID), err)
	}
	return bid, product, nil
}

// GetBidsByProduct returns the product's bids from the per-product index in
// key order
func (r *StoreRepo) GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error) {
	if err := checkIDs(productID); err != nil {
		return nil, err
	}
	raw, err := r.store.Get(ctx, adPath(productID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get bids for product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return nil, classify("get bids for product "+productID, err)
	}

	var doc struct {
		Bids json.RawMessage `json:"bids"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", productID, err)
	}
	children, err := store.Children(doc.Bids)
	if err != nil {
		return nil, classify("get bids for product "+productID, err)
	}
	return decodeBids(children)
}

// GetBidsByUser returns all bids placed by a user
func (r *StoreRepo) GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error) {
	if err := checkIDs(userID); err != nil {
		return nil, err
	}
	raw, err := r.store.Get(ctx, userBidsPath(userID))
	if errors.Is(err, store.ErrNotFound) {
		return []model.Bid{}, nil
	}
	if err != nil {
		return nil, classify("get bids for user "+userID, err)
	}
	children, err := store.Children(raw)
	if err != nil {
		return nil, classify("get bids for user "+userID, err)
	}
	return decodeBids(children)
}

// GetBid returns one bid from the per-product index
func (r *StoreRepo) GetBid(ctx context.Context, productID, bidID string) (model.Bid, error) {
	if err := checkIDs(productID, bidID); err != nil {
		return model.Bid{}, err
	}
	doc, err := getProductDoc(func(p string) ([]byte, error) { return r.store.Get(ctx, p) }, productID)
	if errors.Is(err, biddingerrors.ErrProductNotFound) {
		return model.Bid{}, err
	}
	if err != nil {
		return model.Bid{}, classify("get bid "+bidID, err)
	}
	bid, ok := doc.Bids[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("bid %s on product %s: %w", bidID, productID, biddingerrors.ErrBidNotFound)
	}
	if bid.BidID == "" {
		bid.BidID = bidID
	}
	return bid, nil
}

// SetBidStatus persists the status chosen by guard on both copies of a bid.
// It reports whether anything was written.
func (r *StoreRepo) SetBidStatus(ctx context.Context, productID, bidID string, guard StatusGuard) (model.Bid, bool, error) {
	return r.updateBid(ctx, "set status of bid "+bidID, productID, bidID, func(product model.Product, bid *model.Bid) (bool, error) {
		next, write, err := guard(product, *bid)
		if err != nil || !write {
			return false, err
		}
		bid.Status = next
		bid.Notified = false
		return true, nil
	})
}

// MarkBidNotified records on both copies that the bidder was told about the
// decision
func (r *StoreRepo) MarkBidNotified(ctx context.Context, productID, bidID string) error {
	_, _, err := r.updateBid(ctx, "mark bid "+bidID+" notified", productID, bidID, func(_ model.Product, bid *model.Bid) (bool, error) {
		if bid.Notified {
			return false, nil
		}
		bid.Notified = true
		return true, nil
	})
	return err
}

// updateBid runs change against the stored bid in one transaction and writes
// both copies when it reports a change. Errors returned by change are passed
// through unwrapped.
func (r *StoreRepo) updateBid(ctx context.Context, op, productID, bidID string, change func(model.Product, *model.Bid) (bool, error)) (model.Bid, bool, error) {
	if err := checkIDs(productID, bidID); err != nil {
		return model.Bid{}, false, err
	}
	var (
		result    model.Bid
		written   bool
		domainErr error
	)

	err := r.store.RunTransaction(ctx, func(tx store.Txn) error {
		written = false
		doc, err := getProductDoc(tx.Get, productID)
		if err != nil {
			if errors.Is(err, biddingerrors.ErrProductNotFound) {
				domainErr = err
			}
			return err
		}
		bid, ok := doc.Bids[bidID]
		if !ok {
			domainErr = fmt.Errorf("bid %s on product %s: %w", bidID, productID, biddingerrors.ErrBidNotFound)
			return domainErr
		}
		if bid.BidID == "" {
			bid.BidID = bidID
		}

		write, err := change(doc.Product, &bid)
		if err != nil {
			domainErr = err
			return err
		}
		result = bid
		if !write {
			return nil
		}

		if err := tx.Set(adBidPath(productID, bidID), bid); err != nil {
			return err
		}
		if err := tx.Set(userBidPath(bid.UserID, bidID), bid); err != nil {
			return err
		}
		written = true
		return nil
	})
	if domainErr != nil {
		return model.Bid{}, false, domainErr
	}
	if err != nil {
		return model.Bid{}, false, classify(op, err)
	}
	return result, written, nil
}

// GetUser returns the user record
func (r *StoreRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	if err := checkIDs(userID); err != nil {
		return model.User{}, err
	}
	raw, err := r.store.Get(ctx, userPath(userID))
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, fmt.Errorf("user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, classify("get user "+userID, err)
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.User{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	if u.UserID == "" {
		u.UserID = userID
	}
	return u, nil
}

// SaveUser writes the profile fields, keeping saved payment methods
func (r *StoreRepo) SaveUser(ctx context.Context, user model.User) error {
	if err := checkIDs(user.UserID); err != nil {
		return err
	}
	err := r.store.Update(ctx, userPath(user.UserID), map[string]any{
		"userId":    user.UserID,
		"email":     user.Email,
		"firstName": user.FirstName,
	})
	return classify("save user "+user.UserID, err)
}

// AppendPaymentMethod pushes a payment method reference under the user
func (r *StoreRepo) AppendPaymentMethod(ctx context.Context, userID string, pm model.PaymentMethod) (model.PaymentMethod, error) {
	if err := checkIDs(userID); err != nil {
		return model.PaymentMethod{}, err
	}
	if pm.ID == "" {
		pm.ID = r.store.NewKey()
	}
	if err := r.store.Set(ctx, store.Join(paymentMethodsPath(userID), pm.ID), pm); err != nil {
		return model.PaymentMethod{}, classify("append payment method for "+userID, err)
	}
	return pm, nil
}

// ListPaymentMethods returns the user's saved payment methods in insertion order
func (r *StoreRepo) ListPaymentMethods(ctx context.Context, userID string) ([]model.PaymentMethod, error) {
	if err := checkIDs(userID); err != nil {
		return nil, err
	}
	raw, err := r.store.Get(ctx, paymentMethodsPath(userID))
	if errors.Is(err, store.ErrNotFound) {
		return []model.PaymentMethod{}, nil
	}
	if err != nil {
		return nil, classify("list payment methods for "+userID, err)
	}
	children, err := store.Children(raw)
	if err != nil {
		return nil, classify("list payment methods for "+userID, err)
	}
	methods := make([]model.PaymentMethod, 0, len(children))
	for _, c := range children {
		var pm model.PaymentMethod
		if err := json.Unmarshal(c.Value, &pm); err != nil {
			return nil, fmt.Errorf("decode payment method %s: %w", c.Key, err)
		}
		if pm.ID == "" {
			pm.ID = c.Key
		}
		methods = append(methods, pm)
	}
	return methods, nil
}

// WatchProduct signals every committed change to the product or its bids
// until ctx is done
func (r *StoreRepo) WatchProduct(ctx context.Context, productID string) (<-chan struct{}, error) {
	if err := checkIDs(productID); err != nil {
		return nil, err
	}
	events, err := r.store.Subscribe(ctx, adPath(productID))
	if err != nil {
		return nil, classify("watch product "+productID, err)
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range events {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}
