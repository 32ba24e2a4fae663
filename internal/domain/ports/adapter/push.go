package adapter

import (
	"context"

	"studio-sync-engine/internal/domain/model"
)

// PushHandler receives events from a push subscription. Implementations
// must tolerate duplicates, reordering and replays of resolved entities;
// the stream promises nothing beyond best effort.
type PushHandler interface {
	HandleEvent(ev model.ChannelEvent)
	// ChannelDown signals that the scope's stream can no longer be trusted
	// (receive error, closed subscription). The handler is expected to fall
	// back to polling for everything still in flight.
	ChannelDown(scope model.Scope, err error)
}

// PushSubscription is one user's set of scope streams.
type PushSubscription interface {
	Close() error
}

// PushStreamAdapter opens the server-pushed event streams for a user.
type PushStreamAdapter interface {
	Subscribe(ctx context.Context, userID string, h PushHandler) (PushSubscription, error)
}
