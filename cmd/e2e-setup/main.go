// File: cmd/e2e-setup/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"studio-sync-engine/internal/config"
	pg "studio-sync-engine/internal/infra/db/postgres"
	red "studio-sync-engine/internal/infra/redis"
)

// This script sets up a clean, predictable state for manual end-to-end
// testing: schema applied, history emptied, Redis wiped.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "schema file to apply")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// --- Connect to Postgres ---
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	// --- Connect to Redis ---
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean Redis: cached feeds, pending snapshots, submit guards.
	log.Println("[1/3] Wiping Redis...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	// 2. Apply the schema. CREATE IF NOT EXISTS, so reruns are harmless.
	log.Println("[2/3] Applying schema...")
	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("failed to read schema %s: %v", *schemaPath, err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	// 3. Empty the result history.
	log.Println("[3/3] Truncating history...")
	if _, err := pool.Exec(ctx, `TRUNCATE history_items`); err != nil {
		log.Fatalf("failed to truncate history_items: %v", err)
	}

	log.Println("--- E2E Environment Setup Complete ---")
	log.Println("Seed a demo feed with: go run ./cmd/seed")
}
