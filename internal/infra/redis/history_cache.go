package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/repository"
	"studio-sync-engine/internal/infra/metrics"
)

// cacheSchemaVersion guards the envelope layout. Bump it whenever the
// HistoryItem JSON shape changes; stale envelopes are discarded on read.
const cacheSchemaVersion = 3

type cacheEnvelope struct {
	Version int                 `json:"version"`
	SavedAt time.Time           `json:"saved_at"`
	Items   []model.HistoryItem `json:"items"`
}

var _ repository.HistoryCache = (*HistoryCache)(nil)

// HistoryCache keeps the freshest known history feed per user so reads
// stay cheap between reconciliations.
type HistoryCache struct {
	client *Client
	ttl    time.Duration
}

func NewHistoryCache(client *Client, ttl time.Duration) *HistoryCache {
	return &HistoryCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *HistoryCache) cacheKey(userID string) string {
	return fmt.Sprintf("history:%s", userID)
}

func (c *HistoryCache) Load(ctx context.Context, userID string) ([]model.HistoryItem, bool, error) {
	data, err := c.client.Get(ctx, c.cacheKey(userID))
	if err != nil {
		if IsNil(err) {
			metrics.IncCacheRequest("history", "miss")
			return nil, false, nil
		}
		return nil, false, err
	}

	var env cacheEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil || env.Version != cacheSchemaVersion {
		// Unreadable or outdated envelope counts as a miss.
		metrics.IncCacheRequest("history", "miss")
		_ = c.Invalidate(ctx, userID)
		return nil, false, nil
	}
	metrics.IncCacheRequest("history", "hit")
	return env.Items, true, nil
}

func (c *HistoryCache) Store(ctx context.Context, userID string, items []model.HistoryItem) error {
	env := cacheEnvelope{
		Version: cacheSchemaVersion,
		SavedAt: time.Now(),
		Items:   items,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.cacheKey(userID), data, c.ttl)
}

func (c *HistoryCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.cacheKey(userID))
}
