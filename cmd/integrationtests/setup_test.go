package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	account "marketplace-bidding/internal/accountService"
	"marketplace-bidding/internal/auth"
	bidding "marketplace-bidding/internal/biddingService"
	catalog "marketplace-bidding/internal/catalogService"
	"marketplace-bidding/internal/notify"
	"marketplace-bidding/internal/payments"
	"marketplace-bidding/internal/repository"
	"marketplace-bidding/internal/server"
	"marketplace-bidding/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
)

const testSecret = "integration-secret"

// testEnv is one server wired on a fresh in-memory store
type testEnv struct {
	router   *gin.Engine
	sender   *notify.MockSender
	provider *payments.MockProvider
	issuer   *auth.Issuer
}

// SetupTestEnv initializes the router with an in-memory store for integration testing.
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	sender := notify.NewMockSender(ctrl)
	provider := payments.NewMockProvider(ctrl)

	repo := repository.NewStoreRepo(store.NewMemoryStore())
	router := server.SetupRouter(server.Deps{
		Bidding:  bidding.NewBiddingService(repo, sender, bidding.WithTimeout(5*time.Second)),
		Catalog:  catalog.NewCatalogService(repo, 5*time.Second),
		Accounts: account.NewAccountService(repo, provider, 5*time.Second),
		Mailer:   sender,
		Verifier: auth.NewVerifier(testSecret),
	})

	return &testEnv{
		router:   router,
		sender:   sender,
		provider: provider,
		issuer:   auth.NewIssuer(testSecret, time.Hour),
	}
}

// Token mints a bearer token for userID
func (e *testEnv) Token(t *testing.T, userID, email string) string {
	t.Helper()
	token, err := e.issuer.Issue(userID, email)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and
// returns the envelope's data (or the whole envelope on failure)
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, token string, body any) (any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, token, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if w.Code < 300 {
			return resp["data"], w
		}
	}

	return resp, w
}

// CreateAd posts an ad as ownerToken and returns its id
func (e *testEnv) CreateAd(t *testing.T, ownerToken, name string, minimum int64) string {
	t.Helper()
	data, w := ExecuteRequestAndParse(t, e.router, "POST", "/ads", ownerToken, map[string]any{
		"product_name":        name,
		"product_description": name + " in good condition",
		"location":            "Nairobi",
		"minimum_bid_price":   minimum,
		"image_urls":          []string{"https://img.example.com/" + name + ".jpg"},
	})
	if w.Code != 201 {
		t.Fatalf("creating ad %q: status %d body %s", name, w.Code, w.Body.String())
	}
	return data.(map[string]any)["product_id"].(string)
}
