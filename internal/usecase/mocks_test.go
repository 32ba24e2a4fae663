// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// testSyncConfig returns engine timings shrunk to milliseconds so tests
// run in real time without multi-second sleeps.
func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PushGrace:          40 * time.Millisecond,
		StoryPollEvery:     25 * time.Millisecond,
		NarrationPollEvery: 20 * time.Millisecond,
		MaxPollAttempts:    5,
		MaxActiveStories:   3,
		DuplicateWindow:    time.Second,
		RateLimit:          100,
		RateWindow:         time.Minute,
		RehydrateWindow:    10 * time.Minute,
		IdleNoticeDelay:    50 * time.Millisecond,
		StatusTimeout:      time.Second,
	}
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// ---- Studio fake ----

type fakeStudio struct {
	mu          sync.Mutex
	nextJob     int
	nextTask    int64
	submitErr   error
	statusErr   error
	jobReports  map[string]adapter.StatusReport
	taskReports map[int64]adapter.StatusReport
	probes      map[string]int // status probes per id
	content     []byte
	contentType string
	fetchErr    error
	balance     model.Balance
	grants      []model.Grant
	voices      []model.Voice
	voicesCalls int
}

var _ adapter.StudioAdapter = (*fakeStudio)(nil)

func newFakeStudio() *fakeStudio {
	return &fakeStudio{
		jobReports:  map[string]adapter.StatusReport{},
		taskReports: map[int64]adapter.StatusReport{},
		probes:      map[string]int{},
		content:     []byte("once upon a time"),
		contentType: "text/plain",
		balance:     model.Balance{Credits: 42, UpdatedAt: time.Now()},
	}
}

func (f *fakeStudio) SubmitStory(ctx context.Context, userID string, p model.StoryParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextJob++
	return fmt.Sprintf("job-%d", f.nextJob), nil
}

func (f *fakeStudio) StoryStatus(ctx context.Context, jobID string) (adapter.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[jobID]++
	if f.statusErr != nil {
		return adapter.StatusReport{}, f.statusErr
	}
	if rep, ok := f.jobReports[jobID]; ok {
		return rep, nil
	}
	return adapter.StatusReport{Status: string(model.JobStatusRunning)}, nil
}

func (f *fakeStudio) SubmitNarration(ctx context.Context, userID string, p model.NarrationParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.nextTask++
	return f.nextTask, nil
}

func (f *fakeStudio) NarrationStatus(ctx context.Context, taskID int64) (adapter.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[fmt.Sprintf("task-%d", taskID)]++
	if f.statusErr != nil {
		return adapter.StatusReport{}, f.statusErr
	}
	if rep, ok := f.taskReports[taskID]; ok {
		return rep, nil
	}
	return adapter.StatusReport{Status: string(model.TaskStatusRendering)}, nil
}

func (f *fakeStudio) FetchContent(ctx context.Context, ref string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	return f.content, f.contentType, nil
}

func (f *fakeStudio) Balance(ctx context.Context, userID string) (model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeStudio) Grants(ctx context.Context, userID string) ([]model.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants, nil
}

func (f *fakeStudio) ListVoices(ctx context.Context) ([]model.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voicesCalls++
	return f.voices, nil
}

func (f *fakeStudio) setJobReport(jobID string, rep adapter.StatusReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobReports[jobID] = rep
}

func (f *fakeStudio) setTaskReport(taskID int64, rep adapter.StatusReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskReports[taskID] = rep
}

func (f *fakeStudio) probeCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes[id]
}

// ---- Presenter fake ----

type recordPresenter struct {
	mu        sync.Mutex
	snapshots []model.SessionSnapshot
	feeds     [][]model.HistoryItem
	balances  []model.Balance
	grants    [][]model.Grant
	notices   []model.Notice
}

var _ adapter.Presenter = (*recordPresenter)(nil)

func newRecordPresenter() *recordPresenter { return &recordPresenter{} }

func (p *recordPresenter) ActiveChanged(userID string, snap model.SessionSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snap)
}

func (p *recordPresenter) HistoryChanged(userID string, items []model.HistoryItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeds = append(p.feeds, items)
}

func (p *recordPresenter) BalanceChanged(userID string, b model.Balance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = append(p.balances, b)
}

func (p *recordPresenter) GrantsChanged(userID string, gs []model.Grant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants = append(p.grants, gs)
}

func (p *recordPresenter) Notice(userID string, n model.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
}

func (p *recordPresenter) lastSnapshot() (model.SessionSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return model.SessionSnapshot{}, false
	}
	return p.snapshots[len(p.snapshots)-1], true
}

func (p *recordPresenter) noticeCount(code model.NoticeCode) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, it := range p.notices {
		if it.Code == code {
			n++
		}
	}
	return n
}

func (p *recordPresenter) feedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.feeds)
}

func (p *recordPresenter) lastFeed() []model.HistoryItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.feeds) == 0 {
		return nil
	}
	return p.feeds[len(p.feeds)-1]
}

func (p *recordPresenter) findNotice(code model.NoticeCode) (model.Notice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.notices {
		if n.Code == code {
			return n, true
		}
	}
	return model.Notice{}, false
}

// ---- Admission guard fake ----

type memGuard struct {
	mu         sync.Mutex
	fps        map[string]bool
	allow      bool
	reserveErr error
	allowErr   error
	released   []string
}

var _ repository.AdmissionGuard = (*memGuard)(nil)

func newMemGuard() *memGuard {
	return &memGuard{fps: map[string]bool{}, allow: true}
}

func (g *memGuard) ReserveFingerprint(ctx context.Context, userID, fp string, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reserveErr != nil {
		return false, g.reserveErr
	}
	if g.fps[userID+":"+fp] {
		return false, nil
	}
	g.fps[userID+":"+fp] = true
	return true, nil
}

func (g *memGuard) ReleaseFingerprint(ctx context.Context, userID, fp string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.fps, userID+":"+fp)
	g.released = append(g.released, fp)
	return nil
}

func (g *memGuard) AllowSubmit(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.allowErr != nil {
		return false, g.allowErr
	}
	return g.allow, nil
}

// ---- Session state fake ----

type memSessions struct {
	mu      sync.Mutex
	pending map[string][]model.TrackedEntry
	saves   int
	loadErr error
}

var _ repository.SessionStateRepository = (*memSessions)(nil)

func newMemSessions() *memSessions {
	return &memSessions{pending: map[string][]model.TrackedEntry{}}
}

func (m *memSessions) SavePending(ctx context.Context, userID string, entries []model.TrackedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.TrackedEntry, len(entries))
	copy(cp, entries)
	m.pending[userID] = cp
	m.saves++
	return nil
}

func (m *memSessions) LoadPending(ctx context.Context, userID string) ([]model.TrackedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	cp := make([]model.TrackedEntry, len(m.pending[userID]))
	copy(cp, m.pending[userID])
	return cp, nil
}

func (m *memSessions) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, userID)
	return nil
}

func (m *memSessions) stored(userID string) []model.TrackedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.TrackedEntry, len(m.pending[userID]))
	copy(cp, m.pending[userID])
	return cp
}

// ---- Result delivery fake ----

type fakeDelivery struct {
	mu         sync.Mutex
	deliverErr error
	ephemeral  bool
	delivered  []model.TrackedEntry
	upgrades   []model.HistoryItem
	runUpgrade bool
}

var _ ResultDelivery = (*fakeDelivery)(nil)

func (d *fakeDelivery) Deliver(ctx context.Context, userID string, entry model.TrackedEntry, rep adapter.StatusReport) (model.HistoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deliverErr != nil {
		return model.HistoryItem{}, d.deliverErr
	}
	d.delivered = append(d.delivered, entry)
	item := model.HistoryItem{
		ID:        "hist-" + entry.ID,
		UserID:    userID,
		Kind:      entry.Kind,
		SourceID:  entry.ID,
		Content:   "content-" + entry.ID,
		CreatedAt: time.Now(),
		Ephemeral: d.ephemeral,
	}
	if d.ephemeral {
		item.MediaRef = "/api/v1/media/" + entry.ID + ".mp3"
		item.Meta = map[string]string{"spool": entry.ID + ".mp3", "content_type": "audio/mpeg"}
	}
	return item, nil
}

func (d *fakeDelivery) ScheduleUpgrade(userID string, item model.HistoryItem, onUpgraded func(model.HistoryItem)) {
	d.mu.Lock()
	d.upgrades = append(d.upgrades, item)
	run := d.runUpgrade
	d.mu.Unlock()
	if run && onUpgraded != nil {
		onUpgraded(item.WithDurableRef("https://blobs.test/" + item.SourceID))
	}
}

func (d *fakeDelivery) SpoolPath(name string) (string, error) {
	return "", domain.ErrContentUnavailable
}

func (d *fakeDelivery) SweepSpool(olderThan time.Duration) (int, error) { return 0, nil }

func (d *fakeDelivery) deliveredCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

func (d *fakeDelivery) upgradesCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.upgrades)
}

// ---- History use case fake ----

type fakeHistoryUC struct {
	mu       sync.Mutex
	stored   []model.HistoryItem
	recorded []model.HistoryItem
	upgraded []model.HistoryItem
	feedErr  error
}

var _ HistoryUseCase = (*fakeHistoryUC)(nil)

func (h *fakeHistoryUC) Feed(ctx context.Context, userID string, live []model.HistoryItem) ([]model.HistoryItem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.feedErr != nil {
		return nil, h.feedErr
	}
	return MergeHistory(nil, h.stored, live), nil
}

func (h *fakeHistoryUC) RecordResolved(ctx context.Context, item *model.HistoryItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, *item)
	return nil
}

func (h *fakeHistoryUC) UpgradeItem(ctx context.Context, item model.HistoryItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upgraded = append(h.upgraded, item)
	return nil
}

func (h *fakeHistoryUC) Invalidate(ctx context.Context, userID string) error { return nil }

func (h *fakeHistoryUC) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (h *fakeHistoryUC) recordedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recorded)
}

// ---- Account use case fake ----

type fakeAccountUC struct {
	mu           sync.Mutex
	balance      model.Balance
	grants       []model.Grant
	balanceCalls int
	grantsCalls  int
}

var _ AccountUseCase = (*fakeAccountUC)(nil)

func (a *fakeAccountUC) RefreshBalance(ctx context.Context, userID string) (model.Balance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balanceCalls++
	return a.balance, nil
}

func (a *fakeAccountUC) RefreshGrants(ctx context.Context, userID string) ([]model.Grant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grantsCalls++
	return a.grants, nil
}

func (a *fakeAccountUC) Overview(ctx context.Context, userID string) (model.Balance, []model.Grant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balanceCalls++
	a.grantsCalls++
	return a.balance, a.grants, nil
}

func (a *fakeAccountUC) refreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balanceCalls
}

func (a *fakeAccountUC) grantsCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grantsCalls
}

// ---- Tracker harness ----

type trackerDeps struct {
	studio    *fakeStudio
	delivery  *fakeDelivery
	history   *fakeHistoryUC
	account   *fakeAccountUC
	guard     *memGuard
	sessions  *memSessions
	presenter *recordPresenter
}

func newTrackerDeps() *trackerDeps {
	return &trackerDeps{
		studio:    newFakeStudio(),
		delivery:  &fakeDelivery{},
		history:   &fakeHistoryUC{},
		account:   &fakeAccountUC{},
		guard:     newMemGuard(),
		sessions:  newMemSessions(),
		presenter: newRecordPresenter(),
	}
}

func (d *trackerDeps) newTracker(t *testing.T, cfg config.SyncConfig) *trackerUC {
	t.Helper()
	tr := NewSessionTracker(
		context.Background(), "user-1", cfg,
		d.studio, d.delivery, d.history, d.account,
		d.guard, d.sessions, d.presenter, newTestLogger(),
	)
	t.Cleanup(tr.Close)
	return tr
}
