package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/internal/models"
	"marketplace-bidding/internal/repository"
	"marketplace-bidding/internal/store"
)

func validInput() ProductInput {
	return ProductInput{
		ProductName:        "Vintage Lamp",
		ProductDescription: "Brass desk lamp in working order",
		Location:           "Nairobi",
		MinimumBidPrice:    500,
		ImageURLs:          []string{"https://img.example.com/lamp.jpg"},
	}
}

func newStoreBacked(t *testing.T) *CatalogService {
	t.Helper()
	return NewCatalogService(repository.NewStoreRepo(store.NewMemoryStore()), time.Second)
}

func TestCatalogService_CreateProduct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		owner         string
		mutate        func(in *ProductInput)
		expectedError error
	}{
		{name: "valid", owner: "owner", mutate: func(*ProductInput) {}},
		{name: "zero_minimum", owner: "owner", mutate: func(in *ProductInput) { in.MinimumBidPrice = 0 }},
		{name: "three_images", owner: "owner", mutate: func(in *ProductInput) {
			in.ImageURLs = []string{"https://a.example.com/1", "https://a.example.com/2", "https://a.example.com/3"}
		}},
		{name: "no_owner", owner: "", mutate: func(*ProductInput) {}, expectedError: biddingerrors.ErrNotAuthenticated},
		{name: "blank_name", owner: "owner", mutate: func(in *ProductInput) { in.ProductName = "   " }, expectedError: biddingerrors.ErrInvalidRequest},
		{name: "negative_minimum", owner: "owner", mutate: func(in *ProductInput) { in.MinimumBidPrice = -1 }, expectedError: biddingerrors.ErrInvalidRequest},
		{name: "no_images", owner: "owner", mutate: func(in *ProductInput) { in.ImageURLs = nil }, expectedError: biddingerrors.ErrInvalidRequest},
		{name: "four_images", owner: "owner", mutate: func(in *ProductInput) {
			in.ImageURLs = []string{"https://a.example.com/1", "https://a.example.com/2", "https://a.example.com/3", "https://a.example.com/4"}
		}, expectedError: biddingerrors.ErrInvalidRequest},
		{name: "bad_image_url", owner: "owner", mutate: func(in *ProductInput) { in.ImageURLs = []string{"not a url"} }, expectedError: biddingerrors.ErrInvalidRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newStoreBacked(t)
			in := validInput()
			tc.mutate(&in)

			product, err := s.CreateProduct(context.Background(), tc.owner, in)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, product.ProductID)
			require.Equal(t, tc.owner, product.UserID)
			require.Equal(t, in.MinimumBidPrice, product.CurrentBid, "current bid starts at the minimum")
			require.Zero(t, product.NumberOfBidders)

			got, err := s.GetProduct(context.Background(), product.ProductID)
			require.NoError(t, err)
			require.Equal(t, product.ProductName, got.ProductName)
		})
	}
}

func TestCatalogService_ListProducts_NewestFirst(t *testing.T) {
	t.Parallel()

	s := newStoreBacked(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"First", "Second", "Third"} {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		in := validInput()
		in.ProductName = name
		_, err := s.CreateProduct(context.Background(), "owner", in)
		require.NoError(t, err)
	}

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	require.Equal(t, "Third", products[0].ProductName)
	require.Equal(t, "First", products[2].ProductName)
}

func TestCatalogService_SearchProducts(t *testing.T) {
	t.Parallel()

	s := newStoreBacked(t)
	for _, in := range []ProductInput{
		{ProductName: "Vintage Lamp", ProductDescription: "Brass desk lamp", Location: "Nairobi", ImageURLs: []string{"https://x.example.com/1"}},
		{ProductName: "Office Chair", ProductDescription: "Ergonomic mesh chair", Location: "Mombasa", ImageURLs: []string{"https://x.example.com/2"}},
		{ProductName: "Bicycle", ProductDescription: "Mountain bike", Location: "Kisumu", ImageURLs: []string{"https://x.example.com/3"}},
	} {
		_, err := s.CreateProduct(context.Background(), "owner", in)
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		query     string
		wantFirst string
		wantNone  bool
	}{
		{name: "exact_word", query: "lamp", wantFirst: "Vintage Lamp"},
		{name: "typo", query: "chiar", wantFirst: "Office Chair"},
		{name: "location", query: "mombasa", wantFirst: "Office Chair"},
		{name: "unrelated", query: "xylophone", wantNone: true},
		{name: "blank", query: "  ", wantNone: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			results, err := s.SearchProducts(context.Background(), tc.query, 10)
			require.NoError(t, err)
			if tc.wantNone {
				require.Empty(t, results)
				return
			}
			require.NotEmpty(t, results)
			require.Equal(t, tc.wantFirst, results[0].Product.ProductName)
			for _, r := range results {
				require.GreaterOrEqual(t, r.Score, MinSearchScore)
			}
		})
	}

	results, err := s.SearchProducts(context.Background(), "lamp", 1)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 1)
}

func TestCatalogService_RepoErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockMarketDB(ctrl)
	s := NewCatalogService(mockRepo, time.Second)

	mockRepo.EXPECT().GetProduct(gomock.Any(), "missing").Return(models.Product{}, biddingerrors.ErrProductNotFound)
	_, err := s.GetProduct(context.Background(), "missing")
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)

	mockRepo.EXPECT().ListProducts(gomock.Any()).Return(nil, biddingerrors.ErrUpstreamUnavailable)
	_, err = s.SearchProducts(context.Background(), "lamp", 5)
	require.ErrorIs(t, err, biddingerrors.ErrUpstreamUnavailable)

	_, err = s.GetProduct(context.Background(), "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidRequest)
}
