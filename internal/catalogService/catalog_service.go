package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xrash/smetrics"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/internal/models"
	"marketplace-bidding/internal/repository"
)

// MinSearchScore is the fuzzy score below which search results are dropped
const MinSearchScore = 0.7

const defaultSearchLimit = 20

// ProductInput is what an owner supplies when posting an ad
type ProductInput struct {
	ProductName        string   `validate:"required,max=120"`
	ProductDescription string   `validate:"required,max=2000"`
	Location           string   `validate:"required,max=120"`
	MinimumBidPrice    int64    `validate:"gte=0"`
	ImageURLs          []string `validate:"min=1,max=3,dive,required,url"`
}

// SearchResult is a product and its fuzzy match score
type SearchResult struct {
	Product models.Product `json:"product"`
	Score   float64        `json:"score"`
}

// CatalogService manages product listings
type CatalogService struct {
	repo     repository.MarketDB
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time
}

// NewCatalogService creates a new CatalogService instance
func NewCatalogService(repo repository.MarketDB, timeout time.Duration) *CatalogService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CatalogService{
		repo:     repo,
		validate: validator.New(),
		timeout:  timeout,
		now:      time.Now,
	}
}

// CreateProduct posts a new ad owned by ownerID. The current bid starts at
// the minimum price.
func (s *CatalogService) CreateProduct(ctx context.Context, ownerID string, in ProductInput) (models.Product, error) {
	if ownerID == "" {
		return models.Product{}, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}
	in.ProductName = strings.TrimSpace(in.ProductName)
	in.ProductDescription = strings.TrimSpace(in.ProductDescription)
	in.Location = strings.TrimSpace(in.Location)
	if err := s.validate.Struct(in); err != nil {
		return models.Product{}, fmt.Errorf("service: %w - %s", biddingerrors.ErrInvalidRequest, biddingerrors.DescribeValidation(err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.repo.CreateProduct(ctx, models.Product{
		UserID:             ownerID,
		ProductName:        in.ProductName,
		ProductDescription: in.ProductDescription,
		Location:           in.Location,
		MinimumBidPrice:    in.MinimumBidPrice,
		CurrentBid:         in.MinimumBidPrice,
		NumberOfBidders:    0,
		ImageURLs:          in.ImageURLs,
		Timestamp:          s.now().UTC(),
	})
	if err != nil {
		return models.Product{}, fmt.Errorf("service: failed to create product for %s: %w", ownerID, err)
	}
	return product, nil
}

// GetProduct returns one product
func (s *CatalogService) GetProduct(ctx context.Context, productID string) (models.Product, error) {
	if productID == "" {
		return models.Product{}, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, fmt.Errorf("service: failed to get product %s: %w", productID, err)
	}
	return product, nil
}

// ListProducts returns all products, newest first
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Timestamp.After(products[j].Timestamp)
	})
	return products, nil
}

// SearchProducts ranks products by Jaro-Winkler similarity of query to their
// name, description or location, best first
func (s *CatalogService) SearchProducts(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(products))
	for _, p := range products {
		score := max3(
			fieldScore(q, p.ProductName),
			fieldScore(q, p.ProductDescription),
			fieldScore(q, p.Location),
		)
		if score < MinSearchScore {
			continue
		}
		results = append(results, SearchResult{Product: p, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// fieldScore compares q with the whole field and with each of its words, so
// a short query can match one word of a long description
func fieldScore(q, field string) float64 {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		return 0
	}
	best := jaroWinkler(q, field)
	for _, w := range strings.Fields(field) {
		best = math.Max(best, jaroWinkler(q, w))
	}
	return best
}

func jaroWinkler(a, b string) float64 {
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }
