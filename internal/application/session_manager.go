// File: internal/application/session_manager.go
package application

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/domain/ports/repository"
	"studio-sync-engine/internal/usecase"
)

// engine is what the manager needs from a tracker: the session surface
// plus the push-handler side it wires into the stream.
type engine interface {
	usecase.SessionTracker
	adapter.PushHandler
}

type engineHandle struct {
	eng engine
	sub adapter.PushSubscription
}

// SessionManager owns one tracking engine per user: creation on first
// touch, push subscription, rehydration of pending work, idle reaping and
// the shutdown cascade.
type SessionManager struct {
	cfg       config.SyncConfig
	studio    adapter.StudioAdapter
	delivery  usecase.ResultDelivery
	history   usecase.HistoryUseCase
	account   usecase.AccountUseCase
	guard     repository.AdmissionGuard
	states    repository.SessionStateRepository
	streams   adapter.PushStreamAdapter
	presenter adapter.Presenter
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	engines map[string]*engineHandle
	closed  bool
}

func NewSessionManager(
	ctx context.Context,
	cfg config.SyncConfig,
	studio adapter.StudioAdapter,
	delivery usecase.ResultDelivery,
	history usecase.HistoryUseCase,
	account usecase.AccountUseCase,
	guard repository.AdmissionGuard,
	states repository.SessionStateRepository,
	streams adapter.PushStreamAdapter,
	presenter adapter.Presenter,
	logger *zerolog.Logger,
) *SessionManager {
	ctx, cancel := context.WithCancel(ctx)
	return &SessionManager{
		cfg:       cfg,
		studio:    studio,
		delivery:  delivery,
		history:   history,
		account:   account,
		guard:     guard,
		states:    states,
		streams:   streams,
		presenter: presenter,
		log:       logger.With().Str("component", "session_manager").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		engines:   make(map[string]*engineHandle),
	}
}

// Engine returns the user's tracking engine, creating it on first touch.
// Creation subscribes the push channels and rehydrates pending work from
// the previous process.
func (m *SessionManager) Engine(ctx context.Context, userID string) (usecase.SessionTracker, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if h, ok := m.engines[userID]; ok {
		m.mu.Unlock()
		return h.eng, nil
	}

	eng := usecase.NewSessionTracker(
		m.ctx, userID, m.cfg,
		m.studio, m.delivery, m.history, m.account,
		m.guard, m.states, m.presenter, &m.log,
	)
	sub, err := m.streams.Subscribe(m.ctx, userID, eng)
	if err != nil {
		// The engine still works without push: the grace window arms a
		// poller for every entry that never hears from the channel.
		m.log.Warn().Err(err).Str("user_id", userID).Msg("push subscribe failed, running on poll fallback")
		sub = nil
	}
	m.engines[userID] = &engineHandle{eng: eng, sub: sub}
	m.mu.Unlock()

	admitted, err := eng.Rehydrate(ctx)
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("rehydration failed")
	} else if admitted > 0 {
		m.log.Info().Str("user_id", userID).Int("admitted", admitted).Msg("rehydrated pending entries")
	}
	return eng, nil
}

// Peek returns the engine without creating one.
func (m *SessionManager) Peek(userID string) (usecase.SessionTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.engines[userID]
	if !ok {
		return nil, false
	}
	return h.eng, true
}

// CloseSession tears down one user's engine. The pending snapshot it
// leaves behind makes the next Engine call pick the work back up.
func (m *SessionManager) CloseSession(userID string) {
	m.mu.Lock()
	h, ok := m.engines[userID]
	if ok {
		delete(m.engines, userID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.teardown(userID, h)
}

// SweepIdle closes engines that have been inactive past maxIdle and have
// nothing in flight. Engines still tracking work are never reaped.
func (m *SessionManager) SweepIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	var victims []string
	for userID, h := range m.engines {
		if time.Since(h.eng.LastActivity()) < maxIdle {
			continue
		}
		if h.eng.Snapshot().ActiveCount > 0 {
			continue
		}
		victims = append(victims, userID)
	}
	handles := make([]*engineHandle, 0, len(victims))
	for _, userID := range victims {
		handles = append(handles, m.engines[userID])
		delete(m.engines, userID)
	}
	m.mu.Unlock()

	for i, h := range handles {
		m.teardown(victims[i], h)
	}
	if len(victims) > 0 {
		m.log.Info().Int("closed", len(victims)).Msg("idle sessions swept")
	}
	return len(victims)
}

// SessionCount reports how many engines are live.
func (m *SessionManager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

func (m *SessionManager) teardown(userID string, h *engineHandle) {
	if h.sub != nil {
		if err := h.sub.Close(); err != nil {
			m.log.Warn().Err(err).Str("user_id", userID).Msg("push unsubscribe failed")
		}
	}
	h.eng.Close()
}

// Close tears down every engine. Subscriptions close before trackers so
// no event races a final pending snapshot.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	handles := m.engines
	m.engines = make(map[string]*engineHandle)
	m.mu.Unlock()

	for userID, h := range handles {
		m.teardown(userID, h)
	}
	m.cancel()
}
