package web

import (
	"context"
	"strings"
	"sync"
	"time"

	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/usecase"
)

// --- Mock engine and directory ---

type mockEngine struct {
	mu           sync.Mutex
	userID       string
	snap         model.SessionSnapshot
	submitErr    error
	items        []model.HistoryItem
	historyErr   error
	historyCalls int
	refreshCalls int
	closed       bool
}

func (m *mockEngine) UserID() string { return m.userID }

func (m *mockEngine) SubmitStory(ctx context.Context, p model.StoryParams) (model.TrackedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return model.TrackedEntry{}, m.submitErr
	}
	return model.NewStoryEntry("job-1", p), nil
}

func (m *mockEngine) SubmitNarration(ctx context.Context, p model.NarrationParams) (model.TrackedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return model.TrackedEntry{}, m.submitErr
	}
	return model.NewNarrationEntry(41, p), nil
}

func (m *mockEngine) Snapshot() model.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockEngine) History(ctx context.Context) ([]model.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.items, nil
}

func (m *mockEngine) RefreshAccount(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
}

func (m *mockEngine) Rehydrate(ctx context.Context) (int, error) { return 0, nil }

func (m *mockEngine) LastActivity() time.Time { return time.Now() }

func (m *mockEngine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockEngine) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}

type mockDirectory struct {
	mu        sync.Mutex
	engines   map[string]*mockEngine
	engineErr error
	closed    []string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{engines: make(map[string]*mockEngine)}
}

func (m *mockDirectory) Engine(ctx context.Context, userID string) (usecase.SessionTracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engineErr != nil {
		return nil, m.engineErr
	}
	eng, ok := m.engines[userID]
	if !ok {
		eng = &mockEngine{userID: userID}
		m.engines[userID] = eng
	}
	return eng, nil
}

func (m *mockDirectory) CloseSession(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, userID)
}

func (m *mockDirectory) seed(eng *mockEngine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[eng.userID] = eng
}

func (m *mockDirectory) closedUsers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.closed))
	copy(out, m.closed)
	return out
}

// --- Mock use cases ---

type mockCatalogUC struct {
	voices []model.Voice
	err    error
}

func (m *mockCatalogUC) ListVoices(ctx context.Context) ([]model.Voice, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.voices, nil
}

type mockAccountUC struct {
	balance model.Balance
	grants  []model.Grant
	err     error
}

func (m *mockAccountUC) RefreshBalance(ctx context.Context, userID string) (model.Balance, error) {
	if m.err != nil {
		return model.Balance{}, m.err
	}
	return m.balance, nil
}

func (m *mockAccountUC) RefreshGrants(ctx context.Context, userID string) ([]model.Grant, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.grants, nil
}

func (m *mockAccountUC) Overview(ctx context.Context, userID string) (model.Balance, []model.Grant, error) {
	if m.err != nil {
		return model.Balance{}, nil, m.err
	}
	return m.balance, m.grants, nil
}

type mockDelivery struct {
	paths map[string]string
}

func (m *mockDelivery) Deliver(ctx context.Context, userID string, entry model.TrackedEntry, rep adapter.StatusReport) (model.HistoryItem, error) {
	return model.HistoryItem{}, nil
}

func (m *mockDelivery) ScheduleUpgrade(userID string, item model.HistoryItem, onUpgraded func(model.HistoryItem)) {
}

func (m *mockDelivery) SpoolPath(name string) (string, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", domain.ErrInvalidArgument
	}
	if p, ok := m.paths[name]; ok {
		return p, nil
	}
	return "", domain.ErrContentUnavailable
}

func (m *mockDelivery) SweepSpool(olderThan time.Duration) (int, error) { return 0, nil }

// --- Mock notifier ---

type mockNotifier struct {
	mu           sync.Mutex
	registered   map[string]int64
	unregistered []string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{registered: make(map[string]int64)}
}

func (m *mockNotifier) Register(userID string, chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[userID] = chatID
}

func (m *mockNotifier) Unregister(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = append(m.unregistered, userID)
}

func (m *mockNotifier) Notify(ctx context.Context, userID string, n model.Notice) error {
	return nil
}

func (m *mockNotifier) chatFor(userID string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.registered[userID]
	return id, ok
}
