package telegram

import (
	"context"
	"log"
	"sync"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier implements adapter.Notifier for local/dev runs.
// It logs notices instead of sending real Telegram messages.
type NoopNotifier struct {
	mu    sync.RWMutex
	chats map[string]int64
}

// NewNoopNotifier constructs the noop notifier.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{chats: make(map[string]int64)}
}

func (n *NoopNotifier) Register(userID string, chatID int64) {
	n.mu.Lock()
	n.chats[userID] = chatID
	n.mu.Unlock()
}

func (n *NoopNotifier) Unregister(userID string) {
	n.mu.Lock()
	delete(n.chats, userID)
	n.mu.Unlock()
}

// Notify logs the notice that would have been sent.
func (n *NoopNotifier) Notify(ctx context.Context, userID string, notice model.Notice) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	n.mu.RLock()
	chatID := n.chats[userID]
	n.mu.RUnlock()
	log.Printf("[noop-telegram] to user %s (chat %d): %s %s", userID, chatID, notice.Code, notice.Message)
	return nil
}
