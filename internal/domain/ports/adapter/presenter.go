package adapter

import (
	"context"

	"studio-sync-engine/internal/domain/model"
)

// Presenter is the narrow surface the engine pushes derived state through.
// Implementations must not block: pushes happen on the engine's paths.
type Presenter interface {
	// ActiveChanged fires on every registry mutation with the derived view.
	ActiveChanged(userID string, snap model.SessionSnapshot)
	// HistoryChanged fires after every reconciliation pass with the merged,
	// deduplicated, descending-time feed.
	HistoryChanged(userID string, items []model.HistoryItem)
	BalanceChanged(userID string, b model.Balance)
	GrantsChanged(userID string, gs []model.Grant)
	// Notice delivers terminal success/failure/timeout and idle signals.
	Notice(userID string, n model.Notice)
}

// UIPresenter is a Presenter bound to live UI connections, able to report
// whether anyone is currently attached for a user.
type UIPresenter interface {
	Presenter
	HasSubscribers(userID string) bool
}

// Notifier delivers a notice out-of-band when no UI is attached (e.g. a
// messenger ping). Failures are logged, never propagated to the engine.
type Notifier interface {
	// Register links a user to a messenger chat. A user with no link gets
	// no offline notices; Notify is then a no-op for them.
	Register(userID string, chatID int64)
	Unregister(userID string)
	Notify(ctx context.Context, userID string, n model.Notice) error
}
