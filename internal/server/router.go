package server

import (
	"net/http"

	"marketplace-bidding/internal/auth"
	"marketplace-bidding/internal/notify"
	handler "marketplace-bidding/services/bidding/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the HTTP surface is built from
type Deps struct {
	Bidding  handler.BiddingServiceInterface
	Catalog  handler.CatalogServiceInterface
	Accounts handler.AccountServiceInterface
	// Mailer backs the /send-email relay. It must deliver directly, never
	// through the relay itself.
	Mailer   notify.Sender
	Verifier *auth.Verifier

	RequestsPerSecond float64
	Burst             int
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(RateLimitMiddleware(d.RequestsPerSecond, d.Burst))

	biddingHandler := handler.NewBiddingHandler(d.Bidding)
	catalogHandler := handler.NewCatalogHandler(d.Catalog)
	accountHandler := handler.NewAccountHandler(d.Accounts)
	relayHandler := handler.NewRelayHandler(d.Accounts, d.Mailer)

	requireAuth := auth.RequireAuth(d.Verifier)

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Hello from server!")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	bids := router.Group("/bids", requireAuth)
	{
		bids.POST("", biddingHandler.SubmitBidHandler)
	}

	ads := router.Group("/ads")
	{
		ads.GET("", catalogHandler.ListProductsHandler)
		ads.POST("", requireAuth, catalogHandler.CreateProductHandler)
		ads.GET("/search", catalogHandler.SearchProductsHandler)
		ads.GET("/:product_id", catalogHandler.GetProductHandler)
		ads.GET("/:product_id/bids", biddingHandler.ListBidsHandler)
		ads.GET("/:product_id/bid-steps", biddingHandler.BidStepsHandler)
		ads.GET("/:product_id/watch", biddingHandler.WatchProductHandler)
		ads.POST("/:product_id/bids/:bid_id/decision", requireAuth, biddingHandler.DecideBidHandler)
	}

	me := router.Group("/me", requireAuth)
	{
		me.GET("", accountHandler.GetProfileHandler)
		me.PUT("", accountHandler.SaveProfileHandler)
		me.GET("/bids", biddingHandler.ListUserBidsHandler)
		me.GET("/payment-methods", accountHandler.ListPaymentMethodsHandler)
		me.POST("/payment-methods", accountHandler.AddPaymentMethodHandler)
	}

	router.POST("/payment-method", requireAuth, relayHandler.PaymentMethodHandler)
	router.POST("/send-email", requireAuth, relayHandler.SendEmailHandler)

	return router
}
