package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/connector"
	"github.com/GoPolymarket/botfleet/internal/container"
	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/gateway"
	"github.com/GoPolymarket/botfleet/internal/handler"
	"github.com/GoPolymarket/botfleet/internal/middleware"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/repository"
	"github.com/GoPolymarket/botfleet/internal/service"
	"github.com/GoPolymarket/botfleet/internal/telemetry"
	"github.com/GoPolymarket/botfleet/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 0. Initialize Logger
	logger.Init("info")

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	// 2. Initialize Persistence
	// Broker (Redis > in-process)
	var broker telemetry.Broker
	var redisClient *repository.RedisClient
	if cfg.Broker.Addr != "" {
		rc, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis", "addr", cfg.Broker.Addr)
			redisClient = rc
			broker = repository.NewRedisBroker(rc)
		} else {
			logger.Error("⚠️ Failed to connect to Redis, workers will not be reachable", "error", err)
		}
	}
	if broker == nil {
		broker = telemetry.NewMemoryBroker()
	}

	// History and audit persistence (Postgres > Redis > local file)
	var historyRepo service.HistoryRepo
	var auditRepo service.AuditRepo
	var pgIdempotency *repository.PostgresIdempotencyStore
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
			pgHistory := repository.NewPostgresHistoryRepo(db)
			pgAudit := repository.NewPostgresAuditRepo(db)
			if err := pgHistory.Migrate(rootCtx); err != nil {
				logger.Error("⚠️ Failed to migrate history table, history will be file-only", "error", err)
			} else {
				historyRepo = pgHistory
			}
			if err := pgAudit.Migrate(rootCtx); err != nil {
				logger.Error("⚠️ Failed to migrate audit table", "error", err)
			} else {
				auditRepo = pgAudit
				startupCleanup(rootCtx, "audit", pgAudit, cfg.Audit.Retention)
			}
			idem := repository.NewPostgresIdempotencyStore(db, cfg.Server.IdempotencyTTL)
			if err := idem.Migrate(rootCtx); err != nil {
				logger.Error("⚠️ Failed to migrate idempotency table", "error", err)
			} else {
				pgIdempotency = idem
				startupCleanup(rootCtx, "idempotency", idem, cfg.Server.IdempotencyTTL)
			}
		} else {
			logger.Error("⚠️ Failed to connect to DB, history will be file-only", "error", err)
		}
	}
	if auditRepo == nil && redisClient != nil {
		redisAudit := repository.NewRedisAuditRepo(redisClient, "", 0)
		startupCleanup(rootCtx, "audit", redisAudit, cfg.Audit.Retention)
		auditRepo = redisAudit
	}

	// 3. Initialize Core Services
	store := credentials.NewStore(cfg)
	custodian, err := wallet.NewCustodian(cfg, store)
	if err != nil {
		log.Fatalf("Failed to initialize wallet custodian: %v", err)
	}

	registry := connector.NewRegistry(store, nil)
	registry.InitializeAll(rootCtx)

	stateSvc := service.NewAccountStateService(cfg, registry)
	stateSvc.Start(rootCtx)

	historySvc, err := service.NewHistoryService(cfg.Paths.Data, cfg.Accounts.HistoryFile, cfg.Accounts.DumpInterval, stateSvc, historyRepo)
	if err != nil {
		log.Fatalf("Failed to initialize history service: %v", err)
	}
	historySvc.Start(rootCtx)

	accountSvc := service.NewAccountService(store, custodian, registry, stateSvc)

	var runtime container.Runtime
	docker, err := container.NewDocker()
	if err != nil {
		logger.Error("⚠️ Docker client unavailable, fleet operations disabled", "error", err)
	} else {
		runtime = docker
	}

	var canceller service.OrderCanceller
	if gw := gateway.NewClient(cfg); gw.Enabled() {
		canceller = gw
	} else {
		logger.Warn("⚠️ gateway.base_url not set, open orders will not be cancelled on stop")
	}

	fleet := service.NewFleetOrchestrator(cfg, runtime, broker, accountSvc, canceller)
	fleet.Start(rootCtx)

	botSvc := service.NewBotService(accountSvc, store, fleet)

	auditSvc, err := service.NewAuditService(cfg.Audit.LogDir, cfg.Audit.Retention, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	// Idempotency (Redis > Postgres > in-process)
	var idemStore middleware.IdempotencyStore
	switch {
	case redisClient != nil:
		idemStore = repository.NewRedisIdempotencyStore(redisClient, cfg.Server.IdempotencyTTL)
	case pgIdempotency != nil:
		idemStore = pgIdempotency
	default:
		idemStore = middleware.NewInMemIdempotencyStore(cfg.Server.IdempotencyTTL)
	}

	// 4. Initialize Handlers
	api := &handler.API{
		Accounts: handler.NewAccountHandler(accountSvc),
		State:    handler.NewStateHandler(stateSvc, historySvc),
		Bots:     handler.NewBotHandler(botSvc),
		Workers:  handler.NewWorkerHandler(fleet),
		Audit:    handler.NewAuditHandler(auditSvc),
	}

	// 5. Setup Router
	r := gin.Default()

	// Global Middleware
	r.Use(middleware.AuditMiddleware(auditSvc, "/health", cfg.Metrics.Path))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "botfleet"})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	if cfg.Auth.AdminKey == "" {
		logger.Warn("⚠️ auth.admin_key not set, the API is unauthenticated")
	}
	if cfg.Server.ReadOnly {
		logger.Warn("🔒 Read-only mode enabled")
	}

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AdminMiddleware(cfg))
	v1.Use(middleware.RateLimitMiddleware(middleware.NewClientLimiter(cfg.RateLimit)))
	v1.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	api.Register(v1, middleware.IdempotencyMiddleware(idemStore))

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 BotFleet started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	fleet.Close()
	historySvc.Close()
	stateSvc.Stop()
	auditSvc.Close()
	if docker != nil {
		docker.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	stopRoot()

	logger.Info("Server exiting")
}

type cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// startupCleanup drops expired rows. Failures are logged and startup continues.
func startupCleanup(ctx context.Context, what string, c cleaner, olderThan time.Duration) {
	if err := c.Cleanup(ctx, olderThan); err != nil {
		logger.Warn("⚠️ "+what+" cleanup failed", "error", err, "older_than", olderThan)
	}
}
