package main

import (
	"context"
	"log"
	"time"

	"civic-reports/internal/config"
	"civic-reports/internal/repository"
	"civic-reports/pkg/database/postgres"
)

func main() {
	log.Println("Starting migration runner...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.RepositoryDriver == "sqlite" {
		store, err := repository.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to migrate SQLite: %v", err)
		}
		store.Close()
		log.Println("Migration runner finished successfully.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewClient(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	log.Println("Connected to database. Running migrations...")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migration runner finished successfully.")
}
