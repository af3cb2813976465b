package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	"ticket-storefront/config"
	"ticket-storefront/internal/backend"
	"ticket-storefront/internal/catalog"
	"ticket-storefront/internal/checkout"
	"ticket-storefront/internal/handlers"
	"ticket-storefront/internal/payment"
	"ticket-storefront/internal/receipts"
	"ticket-storefront/internal/session"
	"ticket-storefront/monitoring"
	"ticket-storefront/security"
	"ticket-storefront/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		if cfg.IsDevelopment() {
			return err
		}
		slog.Error("invalid configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis. The connection is checked when serving so commands
	// like inquiry and migrate run without it.
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	monitor := monitoring.NewMonitor()

	breaker := utils.NewCircuitBreaker("backend",
		backend.WithBackendFailures(),
		utils.WithStateChange(func(name string, from, to utils.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			monitor.SetBreakerState(name, int(to))
		}),
	)

	client, err := newBackendClient(cfg,
		backend.WithBreaker(breaker),
		backend.WithMonitor(monitor),
	)
	if err != nil {
		return err
	}

	// Initialize services
	sessions := session.NewRegistry(
		session.RedisStorageFactory(redisClient, cfg.StorageTTL),
		client,
		cfg.SessionIdleTTL,
		monitor,
		session.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	checkoutService := checkout.NewService(
		checkout.NewRedisStore(redisClient, cfg.CheckoutTTL),
		cfg.PaymentGatewayBaseURL,
		monitor,
	)
	catalogService := catalog.NewService(client.For(nil), redisClient, catalog.Config{
		CacheTTL:    cfg.CatalogCacheTTL,
		RetryDelay:  cfg.CatalogRetryDelay,
		LoadCeiling: cfg.CatalogLoadCeiling,
		ImageBase:   cfg.ImageBaseURL,
	})
	receiptStore := receipts.NewPocketBaseStore(app)
	limiter := security.NewRateLimiter(redisClient, nil)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(client, sessions)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, client, sessions, receiptStore)
	paymentHandler := handlers.NewPaymentHandler(client, sessions, receiptStore)
	orderHandler := handlers.NewOrderHandler(client, sessions, receiptStore)
	adminHandler := handlers.NewAdminHandler(redisClient, sessions, breaker)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.IsDevelopment(),
	})
	app.RootCmd.AddCommand(newInquiryCommand(cfg))

	// Start background tasks
	go sessions.Run(ctx, cfg.SweepInterval)
	if cfg.EnableMetrics {
		go monitor.Serve(ctx, ":"+cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if err := utils.ConnectRedis(ctx, redisClient); err != nil {
			return err
		}

		if cfg.PubNubEnabled() {
			watcher := payment.NewWatcher(payment.Config{
				SubscribeKey: cfg.PubNubSubscribeKey,
				SecretKey:    cfg.PubNubSecretKey,
				CipherKey:    cfg.PubNubCipherKey,
				UUID:         cfg.PubNubUUID,
				Channel:      cfg.PubNubPaymentChannel,
			}, receiptStore)
			go watcher.Run(ctx)
		}

		api := e.Router.Group("/api/v1")

		// Auth endpoints
		api.POST("/auth/login", authHandler.Login).
			BindFunc(limiter.AntiBot(), limiter.Limit("login", cfg.RateLimitLogin, cfg.RateLimitWindow))
		api.POST("/auth/register", authHandler.Register).BindFunc(limiter.AntiBot())
		api.POST("/auth/reset-password", authHandler.ResetPassword)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/session", authHandler.Session)
		api.GET("/preferences", authHandler.GetPreferences)
		api.PUT("/preferences", authHandler.PutPreferences)

		// Catalog endpoints
		api.GET("/ticket-groups", catalogHandler.ListGroups)
		api.GET("/ticket-groups/{id}", catalogHandler.GetProfile)
		api.GET("/ticket-groups/{id}/variants", catalogHandler.GetVariants)

		// Checkout endpoints
		api.GET("/checkout", checkoutHandler.View)
		api.POST("/checkout/items", checkoutHandler.AddItem)
		api.PUT("/checkout/items/{itemId}/tickets/{ticketId}", checkoutHandler.SetQuantity)
		api.DELETE("/checkout/items/{itemId}", checkoutHandler.RemoveItem)
		api.POST("/checkout/items/{itemId}/select", checkoutHandler.SelectItem)
		api.POST("/checkout/guest", checkoutHandler.SetGuest)
		api.POST("/checkout/payment", checkoutHandler.SetPayment)
		api.POST("/checkout/terms", checkoutHandler.AcceptTerms)
		api.POST("/checkout/discount", checkoutHandler.SetDiscount)
		api.POST("/checkout/continue", checkoutHandler.Continue)
		api.POST("/checkout/back", checkoutHandler.Back)
		api.POST("/checkout/complete", checkoutHandler.Complete).
			BindFunc(limiter.Limit("checkout", cfg.RateLimitCheckout, cfg.RateLimitWindow))

		// Payment endpoints
		api.GET("/payment/banks", paymentHandler.ListBanks)

		// Order endpoints
		api.GET("/orders", orderHandler.ListOrders)
		api.GET("/orders/inquiry", orderHandler.Inquiry)
		api.GET("/orders/receipts", orderHandler.ListReceipts)
		api.GET("/orders/{id}", orderHandler.GetOrder)
		api.GET("/orders/{id}/confirmation", orderHandler.Confirmation)

		// Test endpoint for payment simulation
		if cfg.IsDevelopment() {
			api.POST("/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", adminHandler.Health)

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func newBackendClient(cfg *config.Config, opts ...backend.Option) (*backend.Client, error) {
	opts = append([]backend.Option{
		backend.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeout}),
	}, opts...)

	client, err := backend.NewClient(cfg.APIBaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	return client, nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
