// File: internal/usecase/tracker_uc.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/domain/ports/repository"
	"studio-sync-engine/internal/infra/metrics"
)

// Compile-time checks
var _ SessionTracker = (*trackerUC)(nil)
var _ adapter.PushHandler = (*trackerUC)(nil)

// SessionTracker is one user's generation engine: it owns the in-flight
// registry, arbitrates racing terminal signals from push and poll, and
// keeps the presentation layer fed with derived state.
type SessionTracker interface {
	UserID() string
	SubmitStory(ctx context.Context, p model.StoryParams) (model.TrackedEntry, error)
	SubmitNarration(ctx context.Context, p model.NarrationParams) (model.TrackedEntry, error)
	Snapshot() model.SessionSnapshot
	// History runs a reconciliation pass and returns the merged feed.
	History(ctx context.Context) ([]model.HistoryItem, error)
	RefreshAccount(ctx context.Context)
	// Rehydrate re-admits pending entries a previous process left behind.
	// Returns how many entries were re-admitted.
	Rehydrate(ctx context.Context) (int, error)
	LastActivity() time.Time
	Close()
}

// liveCap bounds the per-session list of freshly resolved items; the
// durable store holds everything beyond it.
const liveCap = 100

type trackerUC struct {
	userID    string
	cfg       config.SyncConfig
	studio    adapter.StudioAdapter
	delivery  ResultDelivery
	history   HistoryUseCase
	account   AccountUseCase
	guard     repository.AdmissionGuard
	sessions  repository.SessionStateRepository
	presenter adapter.Presenter
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	reg       *registry
	polls     map[string]*pollState
	confirmed map[model.Scope]bool
	live      []model.HistoryItem
	idleTimer *time.Timer
	lastTouch time.Time
	closed    bool
}

func NewSessionTracker(
	ctx context.Context,
	userID string,
	cfg config.SyncConfig,
	studio adapter.StudioAdapter,
	delivery ResultDelivery,
	history HistoryUseCase,
	account AccountUseCase,
	guard repository.AdmissionGuard,
	sessions repository.SessionStateRepository,
	presenter adapter.Presenter,
	logger *zerolog.Logger,
) *trackerUC {
	ctx, cancel := context.WithCancel(ctx)
	return &trackerUC{
		userID:    userID,
		cfg:       cfg,
		studio:    studio,
		delivery:  delivery,
		history:   history,
		account:   account,
		guard:     guard,
		sessions:  sessions,
		presenter: presenter,
		log:       logger.With().Str("component", "tracker").Str("user_id", userID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		reg:       newRegistry(),
		polls:     make(map[string]*pollState),
		confirmed: make(map[model.Scope]bool),
		lastTouch: time.Now(),
	}
}

func (t *trackerUC) UserID() string { return t.userID }

func (t *trackerUC) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTouch
}

func (t *trackerUC) touchLocked() {
	t.lastTouch = time.Now()
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
}

// ---- Submission ----

func (t *trackerUC) SubmitStory(ctx context.Context, p model.StoryParams) (model.TrackedEntry, error) {
	if err := p.Validate(); err != nil {
		return model.TrackedEntry{}, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return model.TrackedEntry{}, domain.ErrSessionClosed
	}
	if t.reg.countKind(model.ContentText) >= t.cfg.MaxActiveStories {
		t.mu.Unlock()
		return model.TrackedEntry{}, domain.ErrTooManyActive
	}
	t.touchLocked()
	t.mu.Unlock()

	fp := p.Fingerprint()
	if err := t.admit(ctx, fp); err != nil {
		return model.TrackedEntry{}, err
	}

	jobID, err := t.studio.SubmitStory(ctx, t.userID, p)
	if err != nil {
		// The submission never reached the queue; let an immediate retry in.
		_ = t.guard.ReleaseFingerprint(ctx, t.userID, fp)
		return model.TrackedEntry{}, err
	}

	entry := model.NewStoryEntry(jobID, p)
	t.admitEntry(entry)
	return entry, nil
}

func (t *trackerUC) SubmitNarration(ctx context.Context, p model.NarrationParams) (model.TrackedEntry, error) {
	if err := p.Validate(); err != nil {
		return model.TrackedEntry{}, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return model.TrackedEntry{}, domain.ErrSessionClosed
	}
	t.touchLocked()
	t.mu.Unlock()

	fp := p.Fingerprint()
	if err := t.admit(ctx, fp); err != nil {
		return model.TrackedEntry{}, err
	}

	taskID, err := t.studio.SubmitNarration(ctx, t.userID, p)
	if err != nil {
		_ = t.guard.ReleaseFingerprint(ctx, t.userID, fp)
		return model.TrackedEntry{}, err
	}

	entry := model.NewNarrationEntry(taskID, p)
	t.admitEntry(entry)
	return entry, nil
}

// admit runs the pre-submission guards. Guard infrastructure errors fail
// open: these are UX safeguards, and the server stays authoritative.
func (t *trackerUC) admit(ctx context.Context, fp string) error {
	ok, err := t.guard.AllowSubmit(ctx, t.userID, t.cfg.RateLimit, t.cfg.RateWindow)
	if err != nil {
		t.log.Warn().Err(err).Msg("rate guard unavailable")
	} else if !ok {
		return domain.ErrRateLimited
	}

	ok, err = t.guard.ReserveFingerprint(ctx, t.userID, fp, t.cfg.DuplicateWindow)
	if err != nil {
		t.log.Warn().Err(err).Msg("duplicate guard unavailable")
	} else if !ok {
		return domain.ErrDuplicateSubmission
	}
	return nil
}

// admitEntry registers a fresh entry and schedules its push grace window.
func (t *trackerUC) admitEntry(entry model.TrackedEntry) {
	key := entry.Key()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if !t.reg.add(entry) {
		// Same upstream id resubmitted; the existing entry keeps coverage.
		t.mu.Unlock()
		return
	}
	ps := &pollState{}
	t.polls[key] = ps
	ps.grace = time.AfterFunc(t.cfg.PushGrace, func() { t.armFromGrace(key) })
	snap := t.snapshotLocked()
	t.mu.Unlock()

	metrics.IncEntriesActive(string(entry.Kind))
	t.presenter.ActiveChanged(t.userID, snap)
	t.savePending()
}

// ---- Push channel ----

func scopeForKind(kind model.ContentKind) model.Scope {
	if kind == model.ContentAudio {
		return model.ScopeTasks
	}
	return model.ScopeJobs
}

func keyForEvent(ev model.ChannelEvent) string {
	if ev.Scope == model.ScopeTasks {
		return string(model.ContentAudio) + ":" + ev.EntityID
	}
	return string(model.ContentText) + ":" + ev.EntityID
}

// HandleEvent is the push entry point. Duplicates, reordering and replays
// of resolved entities are all absorbed here or at the completion gate.
func (t *trackerUC) HandleEvent(ev model.ChannelEvent) {
	switch ev.Scope {
	case model.ScopeBalance:
		t.markConfirmed(ev.Scope)
		go t.refreshBalance()
		return
	case model.ScopeGrants:
		t.markConfirmed(ev.Scope)
		go t.refreshGrants()
		return
	}

	key := keyForEvent(ev)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.confirmed[ev.Scope] = true
	entry, ok := t.reg.get(key)
	if !ok {
		// Already resolved or never ours; replays stop here.
		t.mu.Unlock()
		return
	}
	if !entry.TerminalStatus(ev.NewStatus) {
		changed := t.reg.setStatus(key, ev.NewStatus)
		snap := t.snapshotLocked()
		t.mu.Unlock()
		if changed {
			t.presenter.ActiveChanged(t.userID, snap)
			t.savePending()
		}
		return
	}
	t.mu.Unlock()

	t.handleTerminal(key, adapter.StatusReport{Status: ev.NewStatus, ResultRef: ev.ResultRef, Error: ev.Error}, "push")
}

func (t *trackerUC) markConfirmed(scope model.Scope) {
	t.mu.Lock()
	t.confirmed[scope] = true
	t.mu.Unlock()
}

// ChannelDown arms the poll fallback for every entry the scope covers.
// Arming is idempotent: an entry already polling keeps its one timer.
func (t *trackerUC) ChannelDown(scope model.Scope, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirmed[scope] = false
	if t.closed {
		return
	}

	var kind model.ContentKind
	switch scope {
	case model.ScopeJobs:
		kind = model.ContentText
	case model.ScopeTasks:
		kind = model.ContentAudio
	default:
		// Balance and grant scopes carry no per-entry state to cover.
		return
	}

	for _, key := range t.reg.keys() {
		if e, ok := t.reg.get(key); ok && e.Kind == kind {
			t.armLocked(key, false)
		}
	}
}

// ---- Completion arbiter ----

// handleTerminal is the single gate every terminal signal passes through.
// Removing the entry and reading the gate result is one atomic step under
// the lock; a second signal for the same key observes absence and stops.
// Side effects run only on the goroutine that won the removal.
func (t *trackerUC) handleTerminal(key string, rep adapter.StatusReport, channel string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	entry, existed := t.reg.remove(key)
	if !existed {
		t.mu.Unlock()
		return
	}
	t.stopChannelStateLocked(key)
	snap := t.snapshotLocked()
	empty := t.reg.len() == 0
	t.mu.Unlock()

	metrics.DecEntriesActive(string(entry.Kind))
	t.presenter.ActiveChanged(t.userID, snap)
	t.savePending()

	switch {
	case rep.Status == model.StatusTimedOut:
		metrics.IncEntryResolved(string(entry.Kind), "timed_out", channel)
		metrics.IncPollTimeout(string(entry.Kind))
		go t.surfaceTimeout(entry, empty)
	case entry.SucceededStatus(rep.Status):
		metrics.IncEntryResolved(string(entry.Kind), "completed", channel)
		go t.deliverSuccess(entry, rep)
	default:
		metrics.IncEntryResolved(string(entry.Kind), "failed", channel)
		go t.surfaceFailure(entry, rep, empty)
	}
}

// stopChannelStateLocked releases the entry's channel state: the pending
// grace timer and the poll loop. Mandatory on every exit path.
func (t *trackerUC) stopChannelStateLocked(key string) {
	ps, ok := t.polls[key]
	if !ok {
		return
	}
	if ps.grace != nil {
		ps.grace.Stop()
		ps.grace = nil
	}
	if ps.cancel != nil {
		ps.cancel()
		ps.cancel = nil
	}
	delete(t.polls, key)
}

func (t *trackerUC) deliverSuccess(entry model.TrackedEntry, rep adapter.StatusReport) {
	ctx, cancel := context.WithTimeout(t.ctx, 60*time.Second)
	defer cancel()

	item, err := t.delivery.Deliver(ctx, t.userID, entry, rep)
	if err != nil {
		// The job finished but its artifact is gone; surface it like a
		// failure, without inventing history.
		t.log.Warn().Err(err).Str("entry", entry.Key()).Msg("result fetch failed")
		t.presenter.Notice(t.userID, model.Notice{
			Code:    model.NoticeFailed,
			Kind:    entry.Kind,
			RefID:   entry.ID,
			Message: "The result could not be retrieved.",
			At:      time.Now(),
		})
		t.refreshBalance()
		return
	}

	if err := t.history.RecordResolved(ctx, &item); err != nil {
		// Keep going: the item still reaches the feed via the live list,
		// and the next reconciliation pass can heal the store.
		t.log.Warn().Err(err).Str("entry", entry.Key()).Msg("history record failed")
	}

	t.appendLive(item)
	t.reconcile(ctx)
	t.refreshBalance()

	code := model.NoticeStoryReady
	if entry.Kind == model.ContentAudio {
		code = model.NoticeNarrationReady
	}
	t.presenter.Notice(t.userID, model.Notice{
		Code:  code,
		Kind:  entry.Kind,
		RefID: entry.ID,
		At:    time.Now(),
	})

	if item.Ephemeral {
		t.delivery.ScheduleUpgrade(t.userID, item, t.onUpgraded)
	}
}

func (t *trackerUC) surfaceFailure(entry model.TrackedEntry, rep adapter.StatusReport, wasEmpty bool) {
	msg := rep.Error
	if msg == "" {
		msg = "The generation failed on the server."
	}
	t.presenter.Notice(t.userID, model.Notice{
		Code:    model.NoticeFailed,
		Kind:    entry.Kind,
		RefID:   entry.ID,
		Message: msg,
		At:      time.Now(),
	})
	// A failed job may still have consumed or refunded quota server-side.
	t.refreshBalance()
	if wasEmpty {
		t.scheduleIdleNotice()
	}
}

func (t *trackerUC) surfaceTimeout(entry model.TrackedEntry, wasEmpty bool) {
	t.presenter.Notice(t.userID, model.Notice{
		Code:    model.NoticeTimedOut,
		Kind:    entry.Kind,
		RefID:   entry.ID,
		Message: "This is taking longer than expected. The server may still finish it.",
		At:      time.Now(),
	})
	if wasEmpty {
		t.scheduleIdleNotice()
	}
}

// onUpgraded swaps the ephemeral item for its durable replacement in the
// session-live list and re-publishes the feed.
func (t *trackerUC) onUpgraded(upgraded model.HistoryItem) {
	t.mu.Lock()
	for i, it := range t.live {
		if mergeKey(it) == mergeKey(upgraded) {
			t.live[i] = upgraded
			break
		}
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(t.ctx, 15*time.Second)
	defer cancel()
	t.reconcile(ctx)
}

func (t *trackerUC) appendLive(item model.HistoryItem) {
	t.mu.Lock()
	t.live = append(t.live, item)
	if len(t.live) > liveCap {
		t.live = t.live[len(t.live)-liveCap:]
	}
	t.mu.Unlock()
}

func (t *trackerUC) liveCopy() []model.HistoryItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.HistoryItem, len(t.live))
	copy(out, t.live)
	return out
}

// reconcile runs a merge pass and pushes the feed to the presentation
// layer.
func (t *trackerUC) reconcile(ctx context.Context) {
	feed, err := t.history.Feed(ctx, t.userID, t.liveCopy())
	if err != nil {
		t.log.Warn().Err(err).Msg("history feed unavailable")
		return
	}
	t.presenter.HistoryChanged(t.userID, feed)
}

func (t *trackerUC) refreshBalance() {
	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()
	if _, err := t.account.RefreshBalance(ctx, t.userID); err != nil {
		t.log.Warn().Err(err).Msg("balance refresh failed")
	}
}

func (t *trackerUC) refreshGrants() {
	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()
	if _, err := t.account.RefreshGrants(ctx, t.userID); err != nil {
		t.log.Warn().Err(err).Msg("grants refresh failed")
	}
}

func (t *trackerUC) scheduleIdleNotice() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.idleTimer != nil {
		t.idleTimer.Stop()
	}
	t.idleTimer = time.AfterFunc(t.cfg.IdleNoticeDelay, func() {
		t.mu.Lock()
		idle := !t.closed && t.reg.len() == 0
		t.mu.Unlock()
		if idle {
			t.presenter.Notice(t.userID, model.Notice{
				Code:    model.NoticeIdle,
				Message: "All done. Nothing is generating right now.",
				At:      time.Now(),
			})
		}
	})
}

// ---- Views ----

func (t *trackerUC) snapshotLocked() model.SessionSnapshot {
	return model.SessionSnapshot{
		UserID:      t.userID,
		ActiveCount: t.reg.len(),
		Active:      t.reg.snapshot(),
	}
}

func (t *trackerUC) Snapshot() model.SessionSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *trackerUC) History(ctx context.Context) ([]model.HistoryItem, error) {
	t.mu.Lock()
	t.touchLocked()
	t.mu.Unlock()

	feed, err := t.history.Feed(ctx, t.userID, t.liveCopy())
	if err != nil {
		return nil, err
	}
	t.presenter.HistoryChanged(t.userID, feed)
	return feed, nil
}

func (t *trackerUC) RefreshAccount(ctx context.Context) {
	t.mu.Lock()
	t.touchLocked()
	t.mu.Unlock()
	if _, _, err := t.account.Overview(ctx, t.userID); err != nil {
		t.log.Warn().Err(err).Msg("account refresh failed")
	}
}

// ---- Rehydration ----

// Rehydrate re-admits entries from the pending snapshot a previous process
// saved. Only entries created within the staleness window and not already
// terminal come back; everything older is left to reconciliation. Push
// never replays what completed while we were gone, so re-admitted entries
// go straight to polling with an immediate first probe.
func (t *trackerUC) Rehydrate(ctx context.Context) (int, error) {
	entries, err := t.sessions.LoadPending(ctx, t.userID)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-t.cfg.RehydrateWindow)
	admitted := 0

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, domain.ErrSessionClosed
	}
	for _, e := range entries {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		if e.TerminalStatus(e.Status) {
			continue
		}
		if !t.reg.add(e) {
			continue
		}
		key := e.Key()
		t.polls[key] = &pollState{}
		metrics.IncEntriesActive(string(e.Kind))
		t.armLocked(key, true)
		admitted++
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.presenter.ActiveChanged(t.userID, snap)
	t.savePending()
	return admitted, nil
}

// savePending persists the registry so a restart can rehydrate. Runs with
// its own deadline; the caller never holds the lock here.
func (t *trackerUC) savePending() {
	t.mu.Lock()
	entries := t.reg.snapshot()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.sessions.SavePending(ctx, t.userID, entries); err != nil {
		t.log.Warn().Err(err).Msg("pending snapshot save failed")
	}
}

// ---- Teardown ----

// Close stops every timer and poll loop and leaves a final pending
// snapshot behind. In-flight work is the server's problem from here on.
func (t *trackerUC) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
	for key := range t.polls {
		t.stopChannelStateLocked(key)
	}
	remaining := t.reg.snapshot()
	t.mu.Unlock()

	for _, e := range remaining {
		metrics.DecEntriesActive(string(e.Kind))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.sessions.SavePending(ctx, t.userID, remaining); err != nil {
		t.log.Warn().Err(err).Msg("final pending snapshot failed")
	}

	t.cancel()
}
