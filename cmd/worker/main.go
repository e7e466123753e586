package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civic-reports/internal/config"
	"civic-reports/internal/queue/rabbitmq"
	"civic-reports/internal/retry"
	minioclient "civic-reports/internal/storage/minio"
	"civic-reports/internal/worker"
)

func main() {
	log.Println("Starting Thumbnail Worker...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

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

	log.Println("Connecting to RabbitMQ...")
	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitClient.Close()

	log.Println("Successfully connected to all services")

	processor := worker.NewProcessor(blobs, cfg.ThumbnailWidth, retry.Config{
		MaxAttempts:   cfg.RetryMaxAttempts,
		BaseDelay:     cfg.RetryBaseDelay,
		MaxDelay:      cfg.RetryMaxDelay,
		BackoffFactor: cfg.RetryBackoffFactor,
	})

	msgs, err := rabbitClient.Consume(cfg.WorkerPoolSize)
	if err != nil {
		log.Fatalf("Failed to start consuming: %v", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Worker is running. Press Ctrl+C to exit.")
	worker.NewPool(processor, cfg.WorkerPoolSize, 5*time.Minute).Run(runCtx, msgs)

	log.Println("Worker stopped")
}
