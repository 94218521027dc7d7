package main

import (
	"context"
	"log"
	"time"

	"github.com/signon/signon/internal/accounts"
	"github.com/signon/signon/internal/config"
	"github.com/signon/signon/internal/database"
)

// Applies the Postgres schema for the account store. Run once before first
// start or after pulling schema changes.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Postgres.URI == "" {
		log.Fatal("POSTGRES_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.ConnectPostgres(ctx, cfg.Postgres.URI, 10*time.Second)
	if err != nil {
		log.Fatalf("cannot connect to Postgres: %v", err)
	}
	defer db.Close()

	if err := accounts.NewPostgresStore(db).Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("account store schema is up to date")
}
