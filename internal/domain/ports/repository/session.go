package repository

import (
	"context"

	"studio-sync-engine/internal/domain/model"
)

// SessionStateRepository persists the registry's pending set so a restarted
// engine (or a reconnecting UI) can rehydrate in-flight work. The snapshot
// is rewritten on every registry mutation.
type SessionStateRepository interface {
	SavePending(ctx context.Context, userID string, entries []model.TrackedEntry) error
	LoadPending(ctx context.Context, userID string) ([]model.TrackedEntry, error)
	Clear(ctx context.Context, userID string) error
}
