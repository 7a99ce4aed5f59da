package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/internal/config"
)

func TestStripeProvider_CreatePaymentMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		token     string
		status    int
		body      string
		wantID    string
		wantError error
	}{
		{name: "success", token: "tok_visa", status: http.StatusOK, body: `{"id":"pm_123","object":"payment_method"}`, wantID: "pm_123"},
		{name: "card_declined", token: "tok_bad", status: http.StatusPaymentRequired, body: `{"error":{"message":"Your card was declined.","type":"card_error"}}`, wantError: biddingerrors.ErrInvalidRequest},
		{name: "bad_key", token: "tok_visa", status: http.StatusUnauthorized, body: `{"error":{"message":"Invalid API Key"}}`, wantError: biddingerrors.ErrUpstreamUnavailable},
		{name: "stripe_down", token: "tok_visa", status: http.StatusBadGateway, body: `oops`, wantError: biddingerrors.ErrUpstreamUnavailable},
		{name: "malformed_response", token: "tok_visa", status: http.StatusOK, body: `{}`, wantError: biddingerrors.ErrUpstreamUnavailable},
		{name: "empty_token", token: "", wantError: biddingerrors.ErrInvalidRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/payment_methods", r.URL.Path)
				require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
				require.NoError(t, r.ParseForm())
				require.Equal(t, "card", r.PostForm.Get("type"))
				require.Equal(t, tc.token, r.PostForm.Get("card[token]"))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewStripeProvider(config.PaymentsConfig{StripeBaseURL: srv.URL + "/", StripeSecretKey: "sk_test"}, srv.Client())
			id, err := p.CreatePaymentMethod(context.Background(), tc.token)
			if tc.wantError != nil {
				require.ErrorIs(t, err, tc.wantError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, id)
		})
	}
}

func TestStripeProvider_Retries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"api_error"}}`))
	}))
	defer srv.Close()

	cfg := config.PaymentsConfig{StripeBaseURL: srv.URL, StripeSecretKey: "sk_test"}
	_, err := NewStripeProvider(cfg, srv.Client()).CreatePaymentMethod(context.Background(), "tok_visa")
	require.ErrorIs(t, err, biddingerrors.ErrUpstreamUnavailable)
	require.Equal(t, int32(1), calls.Load(), "zero max_network_retries makes a single attempt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewStripeProvider(cfg, srv.Client()).CreatePaymentMethod(ctx, "tok_visa")
	require.ErrorIs(t, err, biddingerrors.ErrUpstreamUnavailable, "a cancelled context never reaches stripe")
	require.Equal(t, int32(1), calls.Load())
}
