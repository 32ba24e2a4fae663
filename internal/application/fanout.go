// File: internal/application/fanout.go
package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/metrics"
)

// Compile-time check
var _ adapter.Presenter = (*PresenterFanout)(nil)

// PresenterFanout routes engine output. Derived state (active set,
// history, balance) always goes to the UI layer, which replays it on
// attach. Notices additionally fall back to the out-of-band notifier when
// no UI is connected, so a user who closed the tab still learns their
// generation finished.
type PresenterFanout struct {
	ui       adapter.UIPresenter
	notifier adapter.Notifier
	log      zerolog.Logger
}

func NewPresenterFanout(ui adapter.UIPresenter, notifier adapter.Notifier, logger *zerolog.Logger) *PresenterFanout {
	return &PresenterFanout{
		ui:       ui,
		notifier: notifier,
		log:      logger.With().Str("component", "presenter_fanout").Logger(),
	}
}

func (f *PresenterFanout) ActiveChanged(userID string, snap model.SessionSnapshot) {
	f.ui.ActiveChanged(userID, snap)
}

func (f *PresenterFanout) HistoryChanged(userID string, items []model.HistoryItem) {
	f.ui.HistoryChanged(userID, items)
}

func (f *PresenterFanout) BalanceChanged(userID string, b model.Balance) {
	f.ui.BalanceChanged(userID, b)
}

func (f *PresenterFanout) GrantsChanged(userID string, gs []model.Grant) {
	f.ui.GrantsChanged(userID, gs)
}

func (f *PresenterFanout) Notice(userID string, n model.Notice) {
	if f.ui.HasSubscribers(userID) {
		f.ui.Notice(userID, n)
		metrics.IncNoticeSent(string(n.Code), "ui")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.notifier.Notify(ctx, userID, n); err != nil {
			f.log.Warn().Err(err).Str("user_id", userID).Str("code", string(n.Code)).Msg("offline notice failed")
		}
	}()
}
