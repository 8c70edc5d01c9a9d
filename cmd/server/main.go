package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nexushours/backend/internal/alerts"
	"github.com/nexushours/backend/internal/config"
	"github.com/nexushours/backend/internal/database"
	"github.com/nexushours/backend/internal/events"
	"github.com/nexushours/backend/internal/handlers"
	mW "github.com/nexushours/backend/internal/middleware"
	"github.com/nexushours/backend/internal/services"
	"github.com/spf13/viper"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("nats.url", "NATS_URL")
	viper.BindEnv("nats.subject_prefix", "NATS_SUBJECT_PREFIX")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry", "JWT_EXPIRY")

	viper.BindEnv("ledger.allow_member_overdraft", "LEDGER_ALLOW_MEMBER_OVERDRAFT")
	viper.BindEnv("ledger.abuse_queue_key", "LEDGER_ABUSE_QUEUE_KEY")
	viper.BindEnv("ledger.max_transfer_amount", "LEDGER_MAX_TRANSFER_AMOUNT")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	ledgerCfg := config.LoadLedgerConfig()
	natsCfg := config.LoadNATSConfig()

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := events.Connect(natsCfg)
	defer publisher.Close()

	federationService := services.NewFederationService(db)
	walletService := services.NewWalletService(db, ledgerCfg, federationService)
	orgService := services.NewOrgService(db)
	transactionService := services.NewTransactionService(db, redisClient, walletService, publisher, ledgerCfg)
	transferRequestService := services.NewTransferRequestService(db, redisClient, walletService, orgService, publisher, ledgerCfg)
	alertService := services.NewAlertService(db)
	exchangeService := services.NewExchangeService(db, redisClient, walletService, publisher, ledgerCfg)
	authService := services.NewAuthService(db, redisClient)

	orgHandler := handlers.NewOrgHandler(orgService)
	federationHandler := handlers.NewFederationHandler(federationService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Abuse analysis worker drains the transaction queue in the background.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if redisClient != nil {
		worker := alerts.NewWorker(redisClient, alerts.NoopDetector{}, alertService, ledgerCfg)
		go worker.Run(workerCtx)
	} else {
		log.Println("[ALERTS] Redis unavailable, abuse analysis worker disabled")
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/transfers", transactionService.CreateTransfer)
			r.Get("/transactions", transactionService.ListTransactions)
			r.Get("/transactions/{txId}", transactionService.GetTransaction)
			r.Get("/accounts/balance-enquiry", transactionService.BalanceEnquiry)

			// Transfer request workflow
			r.Post("/transfer-requests", transferRequestService.HandleCreate)
			r.Post("/transfer-requests/{requestId}/approve", transferRequestService.HandleApprove)
			r.Post("/transfer-requests/{requestId}/reject", transferRequestService.HandleReject)
			r.Post("/transfer-requests/{requestId}/cancel", transferRequestService.HandleCancel)
			r.Get("/orgs/{orgId}/transfer-requests", transferRequestService.HandleList)

			// Organization provisioning
			r.Post("/orgs/{orgId}/owner", orgHandler.InitializeOwner)
			r.Post("/orgs/{orgId}/wallet", orgHandler.EnsureWallet)
			r.Get("/orgs/{orgId}/members", orgHandler.ListMembers)

			// Abuse alert triage
			r.Get("/alerts", alertService.HandleList)
			r.Put("/alerts/{alertId}/status", alertService.HandleUpdateStatus)

			// Exchanges and reviews
			r.Post("/exchanges/{exchangeId}/complete", exchangeService.HandleComplete)
			r.Post("/exchanges/{exchangeId}/cancel", exchangeService.HandleCancel)
			r.Post("/exchanges/{exchangeId}/reviews", exchangeService.HandleSubmitReview)

			// Federation partnerships
			r.Put("/federation/partnerships", federationHandler.UpdatePartnership)
			r.Get("/federation/partnerships", federationHandler.ListPartnerships)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
