// Package payments exchanges client card tokens for saved payment methods.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentmethod"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/internal/config"
	"marketplace-bidding/utils"
)

// Provider creates a payment method from a card token
type Provider interface {
	CreatePaymentMethod(ctx context.Context, cardToken string) (string, error)
}

//go:generate mockgen -destination=mock_provider.go -package=payments marketplace-bidding/internal/payments Provider

// StripeProvider creates card payment methods through the Stripe API
type StripeProvider struct {
	methods paymentmethod.Client
}

// NewStripeProvider creates a provider from cfg. client defaults to an
// http.Client with cfg.Timeout.
func NewStripeProvider(cfg config.PaymentsConfig, client *http.Client) *StripeProvider {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        client,
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     utils.StandardLogger(),
	}
	if base := strings.TrimRight(cfg.StripeBaseURL, "/"); base != "" {
		backendCfg.URL = stripe.String(base)
	}

	return &StripeProvider{
		methods: paymentmethod.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.StripeSecretKey,
		},
	}
}

// CreatePaymentMethod creates a card payment method and returns its id
func (p *StripeProvider) CreatePaymentMethod(ctx context.Context, cardToken string) (string, error) {
	if cardToken == "" {
		return "", fmt.Errorf("payments: %w - empty card token", biddingerrors.ErrInvalidRequest)
	}

	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{Token: stripe.String(cardToken)},
	}
	params.Context = ctx

	pm, err := p.methods.New(params)
	if err != nil {
		return "", classify(err)
	}
	if pm == nil || pm.ID == "" {
		return "", fmt.Errorf("payments: %w: malformed stripe response", biddingerrors.ErrUpstreamUnavailable)
	}
	return pm.ID, nil
}

// classify maps Stripe failures: client errors other than auth and rate
// limiting are the caller's fault, everything else is upstream
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("payments: %w: %v", biddingerrors.ErrUpstreamUnavailable, err)
	}
	code := se.HTTPStatusCode
	if code >= 400 && code < 500 && code != http.StatusUnauthorized && code != http.StatusTooManyRequests {
		return fmt.Errorf("payments: %w - %s", biddingerrors.ErrInvalidRequest, se.Msg)
	}
	return fmt.Errorf("payments: %w: stripe returned %d: %s", biddingerrors.ErrUpstreamUnavailable, code, se.Msg)
}
