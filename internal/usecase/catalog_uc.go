// File: internal/usecase/catalog_uc.go
package usecase

import (
	"context"
	"sync"
	"time"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/metrics"
)

// Compile-time check
var _ CatalogUseCase = (*catalogUC)(nil)

type CatalogUseCase interface {
	// ListVoices returns the narration voice catalog. The catalog is
	// global and changes rarely, so it is cached in-process.
	ListVoices(ctx context.Context) ([]model.Voice, error)
}

type catalogUC struct {
	studio adapter.StudioAdapter
	ttl    time.Duration

	mu        sync.Mutex
	voices    []model.Voice
	fetchedAt time.Time
}

func NewCatalogUseCase(studio adapter.StudioAdapter, ttl time.Duration) *catalogUC {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &catalogUC{studio: studio, ttl: ttl}
}

func (c *catalogUC) ListVoices(ctx context.Context) ([]model.Voice, error) {
	c.mu.Lock()
	if c.voices != nil && time.Since(c.fetchedAt) < c.ttl {
		out := make([]model.Voice, len(c.voices))
		copy(out, c.voices)
		c.mu.Unlock()
		metrics.IncCacheRequest("voices", "hit")
		return out, nil
	}
	c.mu.Unlock()
	metrics.IncCacheRequest("voices", "miss")

	voices, err := c.studio.ListVoices(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.voices = voices
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	out := make([]model.Voice, len(voices))
	copy(out, voices)
	return out, nil
}
