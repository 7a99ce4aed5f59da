package handler

import (
	"context"
	"net/http"
	"strconv"

	"marketplace-bidding/internal/auth"
	catalog "marketplace-bidding/internal/catalogService"
	model "marketplace-bidding/internal/models"
	"marketplace-bidding/services/bidding/helpers"
	"marketplace-bidding/utils"

	"github.com/gin-gonic/gin"
)

type CatalogServiceInterface interface {
	CreateProduct(ctx context.Context, ownerID string, in catalog.ProductInput) (model.Product, error)
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]catalog.SearchResult, error)
}

type CatalogHandler struct {
	service CatalogServiceInterface
}

func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// CreateProductHandler handles POST /ads
func (h *CatalogHandler) CreateProductHandler(c *gin.Context) {
	var req helpers.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateProductHandler", err)
		return
	}

	caller, _ := auth.Caller(c)
	product, err := h.service.CreateProduct(c.Request.Context(), caller.UserID, catalog.ProductInput{
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		Location:           req.Location,
		MinimumBidPrice:    req.MinimumBidPrice,
		ImageURLs:          req.ImageURLs,
	})
	if err != nil {
		helpers.RespondError(c, "CreateProductHandler", err, map[string]any{"user_id": caller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToProductResponse(product), "product created successfully")
	helpers.LogSuccess("CreateProductHandler", "product created successfully", map[string]any{
		"product_id": product.ProductID,
		"user_id":    product.UserID,
	})
}

// GetProductHandler handles GET /ads/:product_id
func (h *CatalogHandler) GetProductHandler(c *gin.Context) {
	productID := c.Param("product_id")
	product, err := h.service.GetProduct(c.Request.Context(), productID)
	if err != nil {
		helpers.RespondError(c, "GetProductHandler", err, map[string]any{"product_id": productID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProductResponse(product), "product retrieved successfully")
}

// ListProductsHandler handles GET /ads
func (h *CatalogHandler) ListProductsHandler(c *gin.Context) {
	products, err := h.service.ListProducts(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "ListProductsHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProductResponses(products), "products retrieved successfully")
	helpers.LogSuccess("ListProductsHandler", "products retrieved successfully", map[string]any{"count": len(products)})
}

// SearchProductsHandler handles GET /ads/search?q=&limit=
func (h *CatalogHandler) SearchProductsHandler(c *gin.Context) {
	query := c.Query("q")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			helpers.HandleBindError(c, "SearchProductsHandler", strconv.ErrSyntax)
			return
		}
		limit = n
	}

	results, err := h.service.SearchProducts(c.Request.Context(), query, limit)
	if err != nil {
		helpers.RespondError(c, "SearchProductsHandler", err, map[string]any{"query": query})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToSearchResultResponses(results), "search completed")
	helpers.LogSuccess("SearchProductsHandler", "search completed", map[string]any{
		"query": query,
		"count": len(results),
	})
}
