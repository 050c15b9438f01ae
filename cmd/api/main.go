package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-candidate-tracker/config"
	_ "go-candidate-tracker/docs" // Important for Swagger
	"go-candidate-tracker/internal/delivery/http/middleware"
	v1 "go-candidate-tracker/internal/delivery/http/v1"
	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/internal/repository/memory"
	"go-candidate-tracker/internal/repository/postgres"
	"go-candidate-tracker/internal/usecase"
	"go-candidate-tracker/pkg/audit"
	"go-candidate-tracker/pkg/database"
	"go-candidate-tracker/pkg/exchangerate"
	"go-candidate-tracker/pkg/logger"
	"go-candidate-tracker/pkg/photo"
	redisclient "go-candidate-tracker/pkg/redis"
	"go-candidate-tracker/pkg/validation"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

// @title           Candidate Tracker API
// @version         1.0
// @description     Candidate records, edit drafts, photos and salary conversion.
// @host            localhost:8080
// @BasePath        /v1
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Setup Logger
	logger.Init(cfg.LogLevel)
	logger.Log.Info("Starting candidate tracker", "port", cfg.Port, "store", cfg.StoreDriver)
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	auditLog := audit.New(cfg.AuditServiceName, cfg.AppEnv)
	defer func() { _ = auditLog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probes := map[string]usecase.Probe{}

	// 3. Setup Storage
	var store domain.CandidateStore
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		dbPool, err := database.NewPostgresConnection(ctx, cfg.DBUrl)
		if err != nil {
			logger.Log.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := postgres.EnsureSchema(ctx, dbPool); err != nil {
			logger.Log.Error("Failed to prepare database schema", "error", err)
			os.Exit(1)
		}
		store = postgres.NewCandidateRepository(dbPool)
		probes["database"] = dbPool.Ping
	default:
		logger.Log.Warn("Using in-memory candidate store; data is lost on restart")
		store = memory.NewCandidateRepository()
	}

	// 4. Setup Redis (optional)
	var redisClient *goredis.Client
	redisClient, err = redisclient.Connect(ctx, redisclient.Config{
		URL:      cfg.UpstashRedisURL,
		Password: cfg.UpstashRedisPassword,
	})
	switch {
	case errors.Is(err, redisclient.ErrNotConfigured):
	case err != nil:
		logger.Log.Warn("Redis unavailable, rate limiting falls back to memory", "error", err)
	default:
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error {
			return redisclient.HealthCheck(ctx, redisClient)
		}
	}

	// 5. Setup Photos
	photoOpts := photo.Options{MaxDimension: cfg.PhotoMaxDimension}
	if cfg.PhotoMirrorBucket != "" {
		s3Client, err := photo.NewS3Client(ctx, photo.S3Config{
			Provider:        photo.S3Provider(cfg.S3Provider),
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.PhotoMirrorBucket,
			WasabiEndpoint:  cfg.WasabiEndpoint,
		})
		if err != nil {
			logger.Log.Warn("Photo mirror disabled", "error", err)
		} else {
			photoOpts.Mirror = photo.NewS3Mirror(s3Client, cfg.PhotoMirrorBucket)
		}
	}
	photos, err := photo.NewManager(cfg.PhotosDir, photoOpts)
	if err != nil {
		logger.Log.Error("Failed to prepare photos directory", "error", err)
		os.Exit(1)
	}

	// 6. Setup UseCases
	rates := exchangerate.NewClient(exchangerate.Config{
		Endpoints:      cfg.ExchangeRateEndpoints,
		ConnectTimeout: cfg.ExchangeRateConnectTimeout,
		ReadTimeout:    cfg.ExchangeRateReadTimeout,
		UserAgent:      cfg.ExchangeRateUserAgent,
	}, logger.Component("exchange_rate"))

	candidateUC := usecase.NewCandidateUsecase(store, auditLog)
	details := usecase.NewDetailWatcher(store, rates, time.Now)
	drafts := usecase.NewDraftRegistry(store, photos, cfg.DraftIdleTimeout, usecase.EditorOptions{
		Validate: validation.New(),
		Logger:   logger.Component("candidate_editor"),
		Audit:    auditLog,
	})
	go drafts.Run(ctx)

	limiter := middleware.NewRateLimiter(redisClient, auditLog)
	go limiter.Cleanup(ctx, time.Minute)

	// 7. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		CandidateUC:  candidateUC,
		Drafts:       drafts,
		Details:      details,
		Photos:       photos,
		RateLimiter:  limiter,
		Audit:        auditLog,
		Config:       cfg,
		Health:       usecase.NewHealthUsecase(probes),
	})

	// 8. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// open event streams end when shutdown starts
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
			stop()
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}
