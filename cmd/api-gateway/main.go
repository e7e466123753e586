package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civic-reports/internal/config"
	"civic-reports/internal/detector"
	"civic-reports/internal/handler"
	"civic-reports/internal/ingest"
	"civic-reports/internal/metrics"
	"civic-reports/internal/queue/rabbitmq"
	"civic-reports/internal/repository"
	"civic-reports/internal/retry"
	"civic-reports/internal/storage/contentstore"
	minioclient "civic-reports/internal/storage/minio"
	"civic-reports/pkg/database/postgres"
	redisclient "civic-reports/pkg/database/redis"
	"civic-reports/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.Println("Starting API Gateway...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	checks := map[string]handler.HealthCheck{}

	// Issue store
	var issues repository.Repository
	switch cfg.RepositoryDriver {
	case "sqlite":
		store, err := repository.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		defer store.Close()
		issues = store
		checks["database"] = store.Ping
	default:
		manager := postgres.NewPoolManager(cfg.PostgresURL, postgres.DefaultManagerOptions(), postgres.RunMigrations)
		_ = manager.Start(ctx)
		defer manager.Close()
		issues = repository.NewPostgres(manager)
		checks["database"] = manager.Ping
	}

	// Blob store
	log.Println("Connecting to Minio...")
	blobs, err := minioclient.NewClient(ctx, minioclient.Options{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		UseSSL:        cfg.MinioUseSSL,
		Bucket:        cfg.BlobBucket,
		PublicBaseURL: cfg.BlobPublicBaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Minio: %v", err)
	}

	// Redis holds the read cache and content-address anchors
	log.Println("Connecting to Redis...")
	redisClient, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	checks["redis"] = redisClient.Ping

	ml := detector.NewClient(cfg.MLServerURL, cfg.MLTimeout)
	checks["mlServer"] = ml.Health

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := ingest.Deps{
		Blobs:      blobs,
		Content:    contentstore.New(redisClient, blobs, cfg.ContentStoreTTL),
		Detector:   ml,
		Repository: issues,
		Metrics:    metrics.New(reg),
	}

	if cfg.EventsEnabled {
		log.Println("Connecting to RabbitMQ...")
		rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("Warning: issue events disabled: %v", err)
		} else {
			defer rabbitClient.Close()
			deps.Events = rabbitClient
		}
	}

	opts := ingest.DefaultOptions()
	opts.Retry = retry.Config{
		MaxAttempts:   cfg.RetryMaxAttempts,
		BaseDelay:     cfg.RetryBaseDelay,
		MaxDelay:      cfg.RetryMaxDelay,
		BackoffFactor: cfg.RetryBackoffFactor,
	}
	opts.MLTimeout = cfg.MLTimeout
	opts.RequestTimeout = cfg.RequestTimeout
	pipeline := ingest.New(deps, opts)

	var auth gin.HandlerFunc
	switch {
	case cfg.KeycloakJWKSURL != "":
		authenticator, err := security.NewKeycloak(cfg.KeycloakJWKSURL, cfg.KeycloakClientID)
		if err != nil {
			log.Fatalf("Failed to initialize Keycloak auth: %v", err)
		}
		defer authenticator.Close()
		auth = authenticator.Middleware()
	case cfg.JWTSecret != "":
		auth = security.NewHS256(cfg.JWTSecret).Middleware()
	default:
		log.Println("Warning: no JWT_SECRET or KEYCLOAK_JWKS_URL set, submissions are unauthenticated")
	}

	router := gin.Default()
	handler.NewHandler(handler.Deps{
		Pipeline: pipeline,
		Issues:   issues,
		Cache:    redisClient,
		Links:    blobs,
		Checks:   checks,
	}).Register(router, auth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("API Gateway listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
