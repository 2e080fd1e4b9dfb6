package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/config"
	"github.com/pipelabs/tradegate/internal/handler"
	"github.com/pipelabs/tradegate/internal/llm"
	"github.com/pipelabs/tradegate/internal/middleware"
	"github.com/pipelabs/tradegate/internal/pkg/logger"
	"github.com/pipelabs/tradegate/internal/repository"
	"github.com/pipelabs/tradegate/internal/service"
	"github.com/pipelabs/tradegate/internal/vault"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// 2. Initialize Persistence
	// Postgres is required: credentials and scopes live there.
	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	clientRepo := repository.NewPostgresClientRepo(db)
	credRepo := repository.NewPostgresCredentialRepo(db)
	pairRepo := repository.NewPostgresPairRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)

	// Redis carries usage counters and idempotency replays (memory fallback).
	var usageRepo service.UsageRepo
	var idemStore middleware.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedis(cfg)
		if err != nil {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err.Error())
		} else {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
			usageRepo = repository.NewRedisUsageRepo(redisClient)
			idemStore = middleware.NewRedisIdempotencyStore(redisClient,
				time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
		}
	}
	if usageRepo == nil {
		usageRepo = service.NewMemoryUsageRepo()
	}
	if idemStore == nil {
		idemStore = middleware.NewInMemIdempotencyStore()
	}

	// 3. Initialize Core Services
	credVault, err := vault.New(cfg.Vault.MasterSecret, cfg.Vault.Salt)
	if err != nil {
		log.Fatalf("Failed to initialize vault: %v", err)
	}

	bridgeClient := bridge.New(cfg.Bridge.BaseURL, cfg.Bridge.Timeout())
	llmClient := llm.New(cfg.Agent.BaseURL, cfg.Agent.APIKey)

	clientManager := service.NewClientManager(clientRepo, cfg.Risk.QPS, cfg.Risk.Burst)
	resolver := service.NewScopeResolver(clientRepo, credRepo, pairRepo, cfg.Risk)
	validator := service.NewValidator(usageRepo)
	executor := service.NewExecutor(bridgeClient, validator, usageRepo, cfg.Risk.OrderSize)
	interpreter := service.NewInterpreter(executor, bridgeClient)
	agent := service.NewAgent(llmClient, executor, interpreter, cfg.Agent)
	provisioner := service.NewProvisioner(bridgeClient, credVault, clientRepo, credRepo)
	credSvc := service.NewCredentialService(clientRepo, credRepo, credVault, provisioner)

	auditSvc := service.NewAuditService(auditRepo, cfg.Audit.LogDir, cfg.Audit.BufferSize)
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	auditSvc.StartCleanup(cleanupCtx, time.Duration(cfg.Database.AuditRetentionDays)*24*time.Hour)

	// 4. Initialize Handlers
	credHandler := handler.NewCredentialHandler(credSvc)
	scopeHandler := handler.NewScopeHandler(resolver)
	commandHandler := handler.NewCommandHandler(resolver, interpreter)
	chatHandler := handler.NewChatHandler(resolver, agent, auditSvc)
	tradingHandler := handler.NewTradingHandler(resolver, executor, bridgeClient)
	auditHandler := handler.NewAuditHandler(auditSvc)
	adminHandler := handler.NewAdminHandler(clientRepo, pairRepo, clientManager)

	// 5. Setup Router
	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware(auditSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "tradegate"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, clientManager, clientRepo))
	v1.Use(middleware.RateLimitMiddleware(clientManager))
	v1.Use(middleware.IdempotencyMiddleware(idemStore))
	{
		v1.GET("/scope", scopeHandler.Get)

		v1.GET("/credentials", credHandler.List)
		v1.POST("/credentials/reinitialize", credHandler.Reinitialize)

		v1.POST("/commands", commandHandler.Run)
		v1.POST("/chat", chatHandler.Chat)
		v1.GET("/chat/history", chatHandler.History)

		v1.GET("/portfolio", tradingHandler.Portfolio)
		v1.GET("/orders", tradingHandler.Orders)
		v1.GET("/history", tradingHandler.History)
		v1.GET("/price", tradingHandler.Price)
		v1.POST("/orders/place", tradingHandler.PlaceOrder)
		v1.POST("/orders/cancel", tradingHandler.CancelOrder)

		v1.GET("/audit", auditHandler.List)

		// Credential mutation requires the admin key on top of client auth.
		admin := v1.Group("")
		admin.Use(middleware.AdminMiddleware(cfg))
		{
			admin.POST("/credentials", credHandler.Create)
			admin.DELETE("/credentials/:id", credHandler.Delete)
		}
	}

	// Client onboarding is admin-only and predates any gateway key, so it
	// sits outside the client-auth group.
	adminV1 := r.Group("/v1/admin")
	adminV1.Use(middleware.AdminMiddleware(cfg))
	{
		adminV1.POST("/clients", adminHandler.CreateClient)
		adminV1.GET("/clients", adminHandler.ListClients)
		adminV1.PUT("/clients/:id", adminHandler.UpdateClient)
		adminV1.POST("/pairs", adminHandler.AddPair)
		adminV1.DELETE("/pairs/:id", adminHandler.RemovePair)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("TradeGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cancelCleanup()
	auditSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	logger.Info("Server exiting")
}
