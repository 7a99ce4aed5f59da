package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/internal/config"
	model "marketplace-bidding/internal/models"
	"marketplace-bidding/internal/store"
)

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// Helper to create a new Product
func newProduct(productID, ownerID string, minimum int64) model.Product {
	return model.Product{
		ProductID:          productID,
		UserID:             ownerID,
		ProductName:        fmt.Sprintf("Product %s", productID),
		ProductDescription: fmt.Sprintf("%s description", productID),
		Location:           "Nairobi",
		MinimumBidPrice:    minimum,
		ImageURLs:          []string{"https://img.example.com/" + productID},
		Timestamp:          baseTime,
	}
}

// Helper to create a new Bid
func newBid(productID, userID string, price int64) model.Bid {
	return model.Bid{
		UserID:    userID,
		Email:     userID + "@example.com",
		ProductID: productID,
		BidPrice:  price,
		Status:    model.BidPending,
		TimeStamp: baseTime.Add(time.Minute),
	}
}

// latest sets currentBid to the incoming price and counts every bid
func latest(price int64) BidApplier {
	return func(p model.Product, _ []model.Bid) (model.Aggregate, error) {
		return model.Aggregate{CurrentBid: price, NumberOfBidders: p.NumberOfBidders + 1}, nil
	}
}

func newRepo(t *testing.T, products ...model.Product) *StoreRepo {
	t.Helper()
	repo := NewStoreRepo(store.NewMemoryStore())
	for _, p := range products {
		_, err := repo.CreateProduct(context.Background(), p)
		require.NoError(t, err)
	}
	return repo
}

func TestStoreRepo_CreateAndGetProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t)

	created, err := repo.CreateProduct(ctx, newProduct("", "owner", 100))
	require.NoError(t, err)
	require.NotEmpty(t, created.ProductID, "id is generated when empty")

	got, err := repo.GetProduct(ctx, created.ProductID)
	require.NoError(t, err)
	require.Equal(t, created, got)

	_, err = repo.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)

	_, err = repo.GetProduct(ctx, "a/b")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidRequest)

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestStoreRepo_ListProducts_Empty(t *testing.T) {
	t.Parallel()

	products, err := newRepo(t).ListProducts(context.Background())
	require.NoError(t, err)
	require.NotNil(t, products)
	require.Empty(t, products)
}

// Test AppendBid
func TestStoreRepo_AppendBid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, newProduct("p1", "owner", 100))

	tests := []struct {
		name    string
		bid     model.Bid
		wantErr error
	}{
		{name: "valid_bid", bid: newBid("p1", "user1", 150)},
		{name: "second_bidder", bid: newBid("p1", "user2", 120)},
		{name: "product_not_found", bid: newBid("pX", "user1", 150), wantErr: biddingerrors.ErrProductNotFound},
		{name: "empty_product_id", bid: newBid("", "user1", 150), wantErr: biddingerrors.ErrInvalidRequest},
		{name: "empty_user_id", bid: newBid("p1", "", 150), wantErr: biddingerrors.ErrInvalidRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bid, product, err := repo.AppendBid(ctx, tc.bid, latest(tc.bid.BidPrice))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, bid.BidID)
			require.Equal(t, tc.bid.BidPrice, product.CurrentBid)

			fromProduct, err := repo.GetBid(ctx, tc.bid.ProductID, bid.BidID)
			require.NoError(t, err)
			require.Equal(t, bid, fromProduct)

			byUser, err := repo.GetBidsByUser(ctx, tc.bid.UserID)
			require.NoError(t, err)
			require.Contains(t, byUser, bid, "bid is stored under both indexes")
		})
	}

	product, err := repo.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(120), product.CurrentBid)
	require.Equal(t, int64(2), product.NumberOfBidders)

	bids, err := repo.GetBidsByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
}

func TestStoreRepo_AppendBid_ApplierSeesPriorBids(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, newProduct("p1", "owner", 0), newProduct("p2", "owner", 0))

	_, _, err := repo.AppendBid(ctx, newBid("p2", "user1", 5), latest(5))
	require.NoError(t, err)

	var seen []model.Bid
	capture := func(p model.Product, prior []model.Bid) (model.Aggregate, error) {
		seen = prior
		return model.Aggregate{CurrentBid: 10, NumberOfBidders: p.NumberOfBidders + 1}, nil
	}
	_, _, err = repo.AppendBid(ctx, newBid("p1", "user1", 10), capture)
	require.NoError(t, err)
	require.Empty(t, seen, "bids on other products are not prior bids")

	_, _, err = repo.AppendBid(ctx, newBid("p1", "user1", 12), capture)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Equal(t, int64(10), seen[0].BidPrice)
}

func TestStoreRepo_AppendBid_ApplierErrorAborts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, newProduct("p1", "owner", 0))

	reject := func(model.Product, []model.Bid) (model.Aggregate, error) {
		return model.Aggregate{}, biddingerrors.ErrDuplicateBid
	}
	_, _, err := repo.AppendBid(ctx, newBid("p1", "user1", 10), reject)
	require.ErrorIs(t, err, biddingerrors.ErrDuplicateBid)
	require.False(t, errors.Is(err, biddingerrors.ErrUpstreamUnavailable))

	bids, err := repo.GetBidsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Empty(t, bids, "nothing is written when the applier fails")

	product, err := repo.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Zero(t, product.NumberOfBidders)
}

// Concurrent first bids from one user: the applier runs serialized, so only
// one may observe an empty history.
func TestStoreRepo_AppendBid_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, newProduct("p1", "owner", 0))

	once := func(p model.Product, prior []model.Bid) (model.Aggregate, error) {
		if len(prior) > 0 {
			return model.Aggregate{}, biddingerrors.ErrDuplicateBid
		}
		return model.Aggregate{CurrentBid: 1, NumberOfBidders: p.NumberOfBidders + 1}, nil
	}

	const n = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.AppendBid(ctx, newBid("p1", "user1", 1), once)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, success)
	product, err := repo.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(1), product.NumberOfBidders)
}

func TestStoreRepo_GetBidsByProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, newProduct("p1", "owner", 0))

	bids, err := repo.GetBidsByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, bids)

	_, err = repo.GetBidsByProduct(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)
}

func TestStoreRepo_GetBidsByUser_None(t *testing.T) {
	t.Parallel()

	bids, err := newRepo(t).GetBidsByUser(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, bids)
	require.Empty(t, bids)
}

func TestStoreRepo_GetBid_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, newProduct("p1", "owner", 0))

	_, err := repo.GetBid(ctx, "p1", "nope")
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	_, err = repo.GetBid(ctx, "px", "nope")
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)
}

func TestStoreRepo_SetBidStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, newProduct("p1", "owner", 0))
	bid, _, err := repo.AppendBid(ctx, newBid("p1", "user1", 50), latest(50))
	require.NoError(t, err)

	accept := func(_ model.Product, b model.Bid) (model.BidStatus, bool, error) {
		if b.Status.Decided() {
			return b.Status, false, nil
		}
		return model.BidAccepted, true, nil
	}

	updated, written, err := repo.SetBidStatus(ctx, "p1", bid.BidID, accept)
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, model.BidAccepted, updated.Status)

	byUser, err := repo.GetBidsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, model.BidAccepted, byUser[0].Status, "both copies carry the status")

	again, written, err := repo.SetBidStatus(ctx, "p1", bid.BidID, accept)
	require.NoError(t, err)
	require.False(t, written)
	require.Equal(t, model.BidAccepted, again.Status)

	guardErr := errors.New("not yours")
	_, _, err = repo.SetBidStatus(ctx, "p1", bid.BidID, func(model.Product, model.Bid) (model.BidStatus, bool, error) {
		return "", false, guardErr
	})
	require.ErrorIs(t, err, guardErr)

	_, _, err = repo.SetBidStatus(ctx, "p1", "nope", accept)
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
}

// backends returns a fresh store per backend for tests that run on both
func backends() map[string]func(t *testing.T) store.Store {
	return map[string]func(t *testing.T) store.Store{
		"memory": func(*testing.T) store.Store { return store.NewMemoryStore() },
		"redis": func(t *testing.T) store.Store {
			mr := miniredis.RunT(t)
			s, err := store.NewRedisStore(context.Background(), &config.RedisConfig{Addr: mr.Addr(), Prefix: "test"})
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStoreRepo_BidsWithoutStatusArePending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemoryStore()
	repo := NewStoreRepo(st)
	_, err := repo.CreateProduct(ctx, newProduct("p1", "owner", 0))
	require.NoError(t, err)

	legacy := map[string]any{"userId": "user1", "productId": "p1", "bidPrice": 70}
	require.NoError(t, st.Set(ctx, "ads/p1/bids/b1", legacy))
	require.NoError(t, st.Set(ctx, "bids/user1/b1", map[string]any{"userId": "user1", "productId": "p1", "bidPrice": 70, "status": "bogus"}))

	byProduct, err := repo.GetBidsByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	require.Equal(t, model.BidPending, byProduct[0].Status)

	byUser, err := repo.GetBidsByUser(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, model.BidPending, byUser[0].Status)

	bid, err := repo.GetBid(ctx, "p1", "b1")
	require.NoError(t, err)
	require.Equal(t, "b1", bid.BidID)
	require.Equal(t, model.BidPending, bid.Status)
}

func TestStoreRepo_MarkBidNotified(t *testing.T) {
	for name, open := range backends() {
		open := open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := NewStoreRepo(open(t))
			_, err := repo.CreateProduct(ctx, newProduct("p1", "owner", 0))
			require.NoError(t, err)
			bid, _, err := repo.AppendBid(ctx, newBid("p1", "user1", 50), latest(50))
			require.NoError(t, err)

			decide := func(model.Product, model.Bid) (model.BidStatus, bool, error) {
				return model.BidRejected, true, nil
			}
			_, _, err = repo.SetBidStatus(ctx, "p1", bid.BidID, decide)
			require.NoError(t, err)

			require.NoError(t, repo.MarkBidNotified(ctx, "p1", bid.BidID))
			require.NoError(t, repo.MarkBidNotified(ctx, "p1", bid.BidID), "marking twice is a no-op")

			stored, err := repo.GetBid(ctx, "p1", bid.BidID)
			require.NoError(t, err)
			require.True(t, stored.Notified)
			require.Equal(t, model.BidRejected, stored.Status)
			byUser, err := repo.GetBidsByUser(ctx, "user1")
			require.NoError(t, err)
			require.True(t, byUser[0].Notified, "both copies carry the flag")

			// a new status write clears the flag
			_, _, err = repo.SetBidStatus(ctx, "p1", bid.BidID, func(model.Product, model.Bid) (model.BidStatus, bool, error) {
				return model.BidAccepted, true, nil
			})
			require.NoError(t, err)
			stored, err = repo.GetBid(ctx, "p1", bid.BidID)
			require.NoError(t, err)
			require.False(t, stored.Notified)

			require.ErrorIs(t, repo.MarkBidNotified(ctx, "p1", "nope"), biddingerrors.ErrBidNotFound)
			require.ErrorIs(t, repo.MarkBidNotified(ctx, "px", bid.BidID), biddingerrors.ErrProductNotFound)
		})
	}
}

func TestStoreRepo_Users(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.GetUser(ctx, "u1")
	require.ErrorIs(t, err, biddingerrors.ErrUserNotFound)

	pm, err := repo.AppendPaymentMethod(ctx, "u1", model.PaymentMethod{PaymentMethodID: "pm_123", CreatedAt: baseTime})
	require.NoError(t, err)
	require.NotEmpty(t, pm.ID)

	require.NoError(t, repo.SaveUser(ctx, model.User{UserID: "u1", Email: "u1@example.com", FirstName: "Ann"}))
	require.NoError(t, repo.SaveUser(ctx, model.User{UserID: "u1", Email: "new@example.com", FirstName: "Ann"}))

	u, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.User{UserID: "u1", Email: "new@example.com", FirstName: "Ann"}, u)

	methods, err := repo.ListPaymentMethods(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []model.PaymentMethod{pm}, methods, "saving a profile keeps payment methods")

	methods, err = repo.ListPaymentMethods(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, methods)
}

func TestStoreRepo_WatchProduct(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := newRepo(t, newProduct("p1", "owner", 0))

	changes, err := repo.WatchProduct(ctx, "p1")
	require.NoError(t, err)

	_, _, err = repo.AppendBid(ctx, newBid("p1", "user1", 10), latest(10))
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change signal")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
