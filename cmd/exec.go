package cmd

import (
	"log"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"scan-gate/config"
	"scan-gate/handlers"
	"scan-gate/internal/pbstore"
	_ "scan-gate/migrations"
	"scan-gate/security"
	"scan-gate/services"
	"scan-gate/utils"
)

// Start runs the system of record: the authoritative scan endpoint, the
// reconciliation merge endpoint, and the bulk refresh listing the agents
// cache from.
func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	pn := newPubNub(cfg)

	// Initialize services
	recordStore := pbstore.New(app)
	scanService := services.NewScanService(recordStore, pn, cfg.ScanFeedPrefix)
	mergeService := services.NewMergeService(recordStore, pn)
	ticketService := services.NewTicketService(recordStore)

	// Initialize handlers
	limiter := security.NewRateLimiter(redisClient, cfg.ScanRateLimit)
	scanHandler := handlers.NewScanHandler(app, scanService, limiter)
	syncHandler := handlers.NewSyncHandler(app, mergeService)
	ticketHandler := handlers.NewTicketHandler(app, ticketService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Scan endpoint
		e.Router.POST("/api/v1/scan", scanHandler.Scan)

		// Reconciliation endpoint
		e.Router.POST("/api/v1/sync/batch", syncHandler.MergeBatch)

		// Ticket endpoints
		e.Router.GET("/api/v1/tickets", ticketHandler.List)
		e.Router.POST("/api/v1/tickets", ticketHandler.Issue)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func newPubNub(cfg *config.Config) *pubnub.PubNub {
	if cfg.PubNubPublishKey == "" {
		return nil
	}

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	return pubnub.NewPubNub(pnConfig)
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}
