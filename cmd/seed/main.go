// File: cmd/seed/main.go
//
// Seeds a demo user's result history so the gateway has something to show
// on a fresh database. Safe to re-run: items land on their (user, kind,
// source) slot, so a second pass overwrites instead of duplicating.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain/model"
	pg "studio-sync-engine/internal/infra/db/postgres"
	"studio-sync-engine/internal/infra/security"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "demo-user", "user to seed history for")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 16 && len(encKey) != 24 && len(encKey) != 32 {
		encKey = "0123456789abcdef0123456789abcdef"
	}
	cipher, err := security.NewContentCipher(encKey)
	if err != nil {
		log.Fatalf("content cipher: %v", err)
	}
	repo := pg.NewHistoryRepo(pool, cipher, cfg.History.Keep)

	now := time.Now()
	seed := []model.HistoryItem{
		{
			Kind:      model.ContentText,
			SourceID:  "seed-job-1",
			Content:   "The cartographer drew coastlines from memory, and the memory was wrong in ways that made the map better.",
			Meta:      map[string]string{"prompt": "a flawed map", "genre": "literary"},
			CreatedAt: now.Add(-48 * time.Hour),
		},
		{
			Kind:      model.ContentText,
			SourceID:  "seed-job-2",
			Content:   "Nobody had ever asked the ferryman where he slept.",
			Meta:      map[string]string{"prompt": "the ferryman", "genre": "mystery"},
			CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			Kind:      model.ContentAudio,
			SourceID:  "9001",
			MediaRef:  "blob://narrations/seed-9001.mp3",
			Meta:      map[string]string{"voice": "v-harbor", "format": "mp3"},
			CreatedAt: now.Add(-20 * time.Hour),
		},
	}

	for i := range seed {
		seed[i].UserID = *userID
		if err := repo.Record(ctx, nil, &seed[i]); err != nil {
			log.Fatalf("record %s/%s: %v", seed[i].Kind, seed[i].SourceID, err)
		}
		fmt.Printf("seeded: %-5s %s (id=%s)\n", seed[i].Kind, seed[i].SourceID, seed[i].ID)
	}

	fmt.Printf("history seeded for user %s\n", *userID)
}
