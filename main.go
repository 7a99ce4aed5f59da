package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	account "marketplace-bidding/internal/accountService"
	"marketplace-bidding/internal/auth"
	bidding "marketplace-bidding/internal/biddingService"
	catalog "marketplace-bidding/internal/catalogService"
	"marketplace-bidding/internal/config"
	model "marketplace-bidding/internal/models"
	"marketplace-bidding/internal/notify"
	"marketplace-bidding/internal/payments"
	"marketplace-bidding/internal/repository"
	"marketplace-bidding/internal/server"
	"marketplace-bidding/internal/store"
	"marketplace-bidding/utils"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	utils.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"backend": cfg.Store.Backend, "error": err.Error()})
	}
	defer st.Close()

	repo := repository.NewStoreRepo(st)
	if cfg.SeedDemoData {
		prepopulateProducts(ctx, repo)
	}

	mailer, err := notify.NewMailer(cfg.Notify.SMTP, cfg.Notify.Currency, nil)
	if err != nil {
		utils.Fatal("failed to set up mailer", map[string]any{"error": err.Error()})
	}
	var sender notify.Sender = mailer
	if cfg.Notify.RelayURL != "" {
		sender = notify.NewRelaySender(cfg.Notify.RelayURL, cfg.Notify.RelayToken, nil)
	}

	timeout := cfg.Bidding.OperationTimeout
	biddingSvc := bidding.NewBiddingService(repo, sender,
		bidding.WithTimeout(timeout),
		bidding.WithCurrentBidPolicy(cfg.Bidding.CurrentBidPolicy),
	)
	catalogSvc := catalog.NewCatalogService(repo, timeout)
	accountSvc := account.NewAccountService(repo, payments.NewStripeProvider(cfg.Payments, nil), timeout)

	router := server.SetupRouter(server.Deps{
		Bidding:           biddingSvc,
		Catalog:           catalogSvc,
		Accounts:          accountSvc,
		Mailer:            mailer,
		Verifier:          auth.NewVerifier(cfg.Auth.JWTSecret),
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		utils.Info("starting marketplace server", map[string]any{
			"addr":    srv.Addr,
			"backend": cfg.Store.Backend,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("server failed", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == config.BackendRedis {
		return store.NewRedisStore(ctx, &cfg.Redis)
	}
	return store.NewMemoryStore(), nil
}

// prepopulateProducts adds sample ads so a fresh server has something to bid on
func prepopulateProducts(ctx context.Context, repo repository.MarketDB) {
	now := time.Now().UTC()
	products := []model.Product{
		{ProductID: "demo-lamp", UserID: "demo-seller", ProductName: "Brass desk lamp", ProductDescription: "Warm light, works fine", Location: "Nairobi", MinimumBidPrice: 500},
		{ProductID: "demo-chair", UserID: "demo-seller", ProductName: "Oak chair", ProductDescription: "Solid wood dining chair", Location: "Mombasa", MinimumBidPrice: 1200},
		{ProductID: "demo-bike", UserID: "demo-seller", ProductName: "Mountain bike", ProductDescription: "21 gears, new tyres", Location: "Kisumu", MinimumBidPrice: 8000},
	}

	for i, p := range products {
		if _, err := repo.GetProduct(ctx, p.ProductID); err == nil {
			continue
		}
		p.CurrentBid = p.MinimumBidPrice
		p.ImageURLs = []string{"https://example.com/img/" + p.ProductID + ".jpg"}
		p.Timestamp = now.Add(time.Duration(i) * time.Second)
		if _, err := repo.CreateProduct(ctx, p); err != nil {
			utils.Warn("failed to seed product", map[string]any{"product_id": p.ProductID, "error": err.Error()})
		}
	}
}

// configPath returns the config file path from env or defaults to "config.yaml"
func configPath() string {
	if p := os.Getenv("MARKET_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
