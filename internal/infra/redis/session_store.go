package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/repository"
)

var _ repository.SessionStateRepository = (*SessionStore)(nil)

// SessionStore persists the pending-entry snapshot a session leaves behind,
// so a restarted gateway can pick up in-flight generations.
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

func NewSessionStore(client *Client) repository.SessionStateRepository {
	return &SessionStore{
		client: client,
		ttl:    24 * time.Hour, // Snapshots older than a day are useless; reconciliation covers the rest.
	}
}

type pendingSnapshot struct {
	SavedAt time.Time            `json:"saved_at"`
	Entries []model.TrackedEntry `json:"entries"`
}

func (s *SessionStore) pendingKey(userID string) string {
	return fmt.Sprintf("pending:%s", userID)
}

func (s *SessionStore) SavePending(ctx context.Context, userID string, entries []model.TrackedEntry) error {
	if len(entries) == 0 {
		return s.Clear(ctx, userID)
	}
	snap := pendingSnapshot{SavedAt: time.Now(), Entries: entries}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.pendingKey(userID), data, s.ttl)
}

func (s *SessionStore) LoadPending(ctx context.Context, userID string) ([]model.TrackedEntry, error) {
	data, err := s.client.Get(ctx, s.pendingKey(userID))
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, err
	}

	var snap pendingSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return snap.Entries, nil
}

func (s *SessionStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.pendingKey(userID))
}
