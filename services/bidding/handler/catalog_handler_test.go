package handler

import (
	"fmt"
	"net/http"
	"testing"

	"marketplace-bidding/internal/biddingerrors"
	catalog "marketplace-bidding/internal/catalogService"
	model "marketplace-bidding/internal/models"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestCreateProductHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockCatalogServiceInterface(ctrl)
	handler := NewCatalogHandler(mockService)

	router := newRouter(asCaller("owner1", ""))
	router.POST("/ads", handler.CreateProductHandler)

	valid := map[string]any{
		"product_name":        "Desk Lamp",
		"product_description": "Brass lamp",
		"location":            "Nairobi",
		"minimum_bid_price":   500,
		"image_urls":          []string{"https://img.example.com/1.jpg"},
	}

	t.Run("created", func(t *testing.T) {
		mockService.EXPECT().CreateProduct(gomock.Any(), "owner1", catalog.ProductInput{
			ProductName:        "Desk Lamp",
			ProductDescription: "Brass lamp",
			Location:           "Nairobi",
			MinimumBidPrice:    500,
			ImageURLs:          []string{"https://img.example.com/1.jpg"},
		}).Return(model.Product{
			ProductID:       "p1",
			UserID:          "owner1",
			ProductName:     "Desk Lamp",
			MinimumBidPrice: 500,
			CurrentBid:      500,
			ImageURLs:       []string{"https://img.example.com/1.jpg"},
			Timestamp:       testTime,
		}, nil)

		w, resp := doJSON(t, router, http.MethodPost, "/ads", valid)
		require.Equal(t, http.StatusCreated, w.Code)

		data := resp["data"].(map[string]any)
		require.Equal(t, "p1", data["product_id"])
		require.Equal(t, 500.0, data["current_bid"])
		require.Equal(t, 0.0, data["number_of_bidders"])
	})

	t.Run("missing_fields", func(t *testing.T) {
		w, resp := doJSON(t, router, http.MethodPost, "/ads", map[string]any{"product_name": "x"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "invalid request payload", resp["message"])
	})

	t.Run("service_validation", func(t *testing.T) {
		mockService.EXPECT().CreateProduct(gomock.Any(), "owner1", gomock.Any()).
			Return(model.Product{}, fmt.Errorf("service: %w - ImageURLs: url", biddingerrors.ErrInvalidRequest))

		w, _ := doJSON(t, router, http.MethodPost, "/ads", valid)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetProductHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockCatalogServiceInterface(ctrl)
	handler := NewCatalogHandler(mockService)

	router := newRouter()
	router.GET("/ads/:product_id", handler.GetProductHandler)

	mockService.EXPECT().GetProduct(gomock.Any(), "p1").Return(model.Product{ProductID: "p1"}, nil)
	mockService.EXPECT().GetProduct(gomock.Any(), "nope").Return(model.Product{}, biddingerrors.ErrProductNotFound)

	w, resp := doJSON(t, router, http.MethodGet, "/ads/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]any)
	require.Equal(t, "p1", data["product_id"])
	require.Equal(t, []any{}, data["image_urls"])

	w, resp = doJSON(t, router, http.MethodGet, "/ads/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "product not found", resp["message"])
}

func TestListProductsHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockCatalogServiceInterface(ctrl)
	handler := NewCatalogHandler(mockService)

	router := newRouter()
	router.GET("/ads", handler.ListProductsHandler)

	mockService.EXPECT().ListProducts(gomock.Any()).Return([]model.Product{{ProductID: "p2"}, {ProductID: "p1"}}, nil)

	w, resp := doJSON(t, router, http.MethodGet, "/ads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"], 2)
}

func TestSearchProductsHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := NewMockCatalogServiceInterface(ctrl)
	handler := NewCatalogHandler(mockService)

	router := newRouter()
	router.GET("/ads/search", handler.SearchProductsHandler)

	tests := []struct {
		name           string
		path           string
		mockSetup      func()
		expectedStatus int
	}{
		{
			name: "default_limit",
			path: "/ads/search?q=lamp",
			mockSetup: func() {
				mockService.EXPECT().SearchProducts(gomock.Any(), "lamp", 0).Return([]catalog.SearchResult{
					{Product: model.Product{ProductID: "p1"}, Score: 1},
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "explicit_limit",
			path: "/ads/search?q=chair&limit=5",
			mockSetup: func() {
				mockService.EXPECT().SearchProducts(gomock.Any(), "chair", 5).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bad_limit",
			path:           "/ads/search?q=lamp&limit=ten",
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "empty_query",
			path: "/ads/search",
			mockSetup: func() {
				mockService.EXPECT().SearchProducts(gomock.Any(), "", 0).Return([]catalog.SearchResult{}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "store_unavailable",
			path: "/ads/search?q=desk",
			mockSetup: func() {
				mockService.EXPECT().SearchProducts(gomock.Any(), "desk", 0).
					Return(nil, fmt.Errorf("service: %w", biddingerrors.ErrUpstreamUnavailable))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tc.mockSetup()
			w, resp := doJSON(t, router, http.MethodGet, tc.path, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			if w.Code == http.StatusOK {
				_, ok := resp["data"].([]any)
				require.True(t, ok)
			}
		})
	}
}
