package repository

import (
	"context"
	"time"

	"studio-sync-engine/internal/domain/model"
)

// HistoryRepository is the durable (authoritative) result store.
type HistoryRepository interface {
	// Record inserts the item and trims the user's feed to the configured
	// retention in the same transaction. Inserting an existing id is an
	// upsert, so replays are harmless.
	Record(ctx context.Context, tx Tx, item *model.HistoryItem) error
	// Replace swaps an item for its superseding version (same id). Used
	// when an ephemeral audio reference is upgraded to a durable one.
	Replace(ctx context.Context, tx Tx, item *model.HistoryItem) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]model.HistoryItem, error)
	// PruneOlderThan removes items past the retention horizon, feed-wide.
	PruneOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}

// HistoryCache is the fast, expiring local cache of a user's feed. It is
// versioned: a schema bump or TTL expiry turns reads into misses instead
// of resurrecting stale shapes.
type HistoryCache interface {
	// Load returns (items, true) on a fresh hit and (nil, false) on miss,
	// expiry or version mismatch.
	Load(ctx context.Context, userID string) ([]model.HistoryItem, bool, error)
	Store(ctx context.Context, userID string, items []model.HistoryItem) error
	Invalidate(ctx context.Context, userID string) error
}
