package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/listas-backoffice-go/internal/config"
	"github.com/boddenberg/listas-backoffice-go/internal/handler"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/blobstore"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/cache"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/gateway"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/migrate"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/postgres"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/resilience"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/spreadsheet"
	"github.com/boddenberg/listas-backoffice-go/internal/port"
	"github.com/boddenberg/listas-backoffice-go/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, cfg.Environment)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("environment", cfg.Environment),
		zap.Bool("run_migrations", cfg.RunMigrations),
		zap.Bool("s3_enabled", cfg.S3Bucket != ""),
		zap.Bool("redis_enabled", cfg.RedisAddr != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("webhook_dedupe_ttl", cfg.WebhookDedupeTTL),
	)
	if cfg.PaymentGatewayAPIKey == "" {
		logger.Warn("PAYMENT_GATEWAY_API_KEY not set: platform charges will fail")
	}
	if !cfg.IsDev() && cfg.PaymentWebhookToken == "" {
		logger.Warn("PAYMENT_WEBHOOK_TOKEN not set: webhook deliveries are not authenticated")
	}

	ctx := context.Background()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(ctx, "listas-backoffice", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Database ---
	if cfg.RunMigrations {
		if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		logger.Info("migrations applied")
	}
	db, err := postgres.New(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	store := postgres.NewStore(db)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Webhook ledger ---
	var ledger port.EventLedger
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		redisLedger := cache.NewRedisLedger(rdb)
		if err := redisLedger.Ping(ctx); err != nil {
			logger.Warn("redis unreachable at startup, ledger lookups will fall back to the database guard", zap.Error(err))
		}
		ledger = redisLedger
		logger.Info("webhook ledger: redis", zap.String("addr", cfg.RedisAddr))
	} else {
		memLedger := cache.NewMemoryLedger(cfg.WebhookDedupeTTL)
		defer memLedger.Close()
		ledger = memLedger
		logger.Info("webhook ledger: in-memory")
	}

	// --- Blob store ---
	var blobs port.BlobStore
	if cfg.S3Bucket != "" {
		s3Store, err := blobstore.NewS3(ctx, blobstore.Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, resilience.NewCircuitBreaker("blob-store"), resilienceCfg, metrics, logger)
		if err != nil {
			logger.Fatal("failed to init blob store", zap.Error(err))
		}
		blobs = s3Store
		logger.Info("blob store: s3", zap.String("bucket", cfg.S3Bucket))
	} else {
		blobs = blobstore.NewMemory()
		logger.Warn("S3_BUCKET not set: receipts and form files are kept in memory")
	}

	// --- Payment gateway ---
	gw := gateway.New(cfg.PaymentGatewayURL, cfg.HTTPTimeout, cfg.ChargeExpiry,
		resilience.NewCircuitBreaker("payment-gateway"), resilienceCfg, metrics, logger)

	// --- Services ---
	audit := service.NewAudit(store, logger)
	engine := service.NewEngine(audit, metrics, logger)
	protocols := service.NewProtocols()

	services := handler.Services{
		Store:       store,
		Auth:        service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, logger),
		Clients:     service.NewClientService(store, cfg.DefaultServiceCost, logger),
		Lists:       service.NewListService(store, engine, protocols, spreadsheet.Excel{}, logger),
		ListGroups:  service.NewListGroupService(store, engine, logger),
		Forms:       service.NewFormService(store, logger),
		Submissions: service.NewSubmissionService(store, blobs, engine, protocols, logger),
		Payments: service.NewPaymentService(store, gw, blobs, ledger, engine, protocols, audit,
			service.PaymentConfig{
				PlatformAPIKey: cfg.PaymentGatewayAPIKey,
				ForcePlatform:  cfg.IsDev(),
				WebhookToken:   cfg.PaymentWebhookToken,
				DedupeTTL:      cfg.WebhookDedupeTTL,
			}, metrics, logger),
		Dashboard: service.NewDashboardService(store, logger),
	}

	// --- Router ---
	router := handler.NewRouter(services, cfg.CORSAllowedOrigins, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
