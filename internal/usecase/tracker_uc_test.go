package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
)

func storyParams(prompt string) model.StoryParams {
	return model.StoryParams{Prompt: prompt, Genre: "fantasy", Length: "short", Language: "en"}
}

func narrationParams(text string) model.NarrationParams {
	return model.NarrationParams{Text: text, VoiceID: "v-1", Format: "mp3"}
}

// quietConfig keeps the grace window far away so tests that are not about
// polling never see a probe.
func quietConfig() config.SyncConfig {
	cfg := testSyncConfig()
	cfg.PushGrace = 10 * time.Second
	cfg.StoryPollEvery = 10 * time.Second
	cfg.NarrationPollEvery = 10 * time.Second
	return cfg
}

func TestSubmitStory_TracksAndPersists(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	e, err := tr.SubmitStory(context.Background(), storyParams("a dragon learns to knit"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if e.Kind != model.ContentText || e.ID == "" {
		t.Fatalf("unexpected entry: %+v", e)
	}

	snap := tr.Snapshot()
	if snap.ActiveCount != 1 || snap.Active[0].ID != e.ID {
		t.Fatalf("expected the submitted entry in the snapshot, got %+v", snap)
	}

	waitUntil(t, time.Second, func() bool {
		stored := deps.sessions.stored("user-1")
		return len(stored) == 1 && stored[0].ID == e.ID
	}, "pending snapshot not persisted")

	if _, ok := deps.presenter.lastSnapshot(); !ok {
		t.Fatal("expected an active-set push to the presenter")
	}
}

func TestSubmitStory_ValidationRejectsEmptyPrompt(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	_, err := tr.SubmitStory(context.Background(), model.StoryParams{Prompt: "   "})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got: %v", err)
	}
}

func TestSubmitStory_CapAppliesToStoriesOnly(t *testing.T) {
	deps := newTrackerDeps()
	cfg := quietConfig()
	cfg.MaxActiveStories = 2
	tr := deps.newTracker(t, cfg)
	ctx := context.Background()

	if _, err := tr.SubmitStory(ctx, storyParams("one")); err != nil {
		t.Fatalf("submit one: %v", err)
	}
	if _, err := tr.SubmitStory(ctx, storyParams("two")); err != nil {
		t.Fatalf("submit two: %v", err)
	}
	if _, err := tr.SubmitStory(ctx, storyParams("three")); !errors.Is(err, domain.ErrTooManyActive) {
		t.Fatalf("expected ErrTooManyActive, got: %v", err)
	}
	// Narrations are not counted against the story cap.
	if _, err := tr.SubmitNarration(ctx, narrationParams("read me")); err != nil {
		t.Fatalf("narration should still be admitted: %v", err)
	}
}

func TestSubmit_DuplicateWithinWindow(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())
	ctx := context.Background()
	p := storyParams("same prompt")

	if _, err := tr.SubmitStory(ctx, p); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := tr.SubmitStory(ctx, p); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got: %v", err)
	}
	// A different payload is a different fingerprint.
	if _, err := tr.SubmitStory(ctx, storyParams("other prompt")); err != nil {
		t.Fatalf("distinct submit: %v", err)
	}
}

func TestSubmit_FailedSubmissionReleasesFingerprint(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())
	ctx := context.Background()
	p := storyParams("flaky")

	deps.studio.mu.Lock()
	deps.studio.submitErr = errors.New("upstream 503")
	deps.studio.mu.Unlock()

	if _, err := tr.SubmitStory(ctx, p); err == nil {
		t.Fatal("expected the submission error to surface")
	}

	deps.studio.mu.Lock()
	deps.studio.submitErr = nil
	deps.studio.mu.Unlock()

	// The fingerprint was released, so an immediate retry is admitted.
	if _, err := tr.SubmitStory(ctx, p); err != nil {
		t.Fatalf("retry after failed submit should pass the guard: %v", err)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	deps := newTrackerDeps()
	deps.guard.mu.Lock()
	deps.guard.allow = false
	deps.guard.mu.Unlock()
	tr := deps.newTracker(t, quietConfig())

	_, err := tr.SubmitStory(context.Background(), storyParams("again"))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got: %v", err)
	}
}

func TestSubmit_GuardOutageFailsOpen(t *testing.T) {
	deps := newTrackerDeps()
	deps.guard.mu.Lock()
	deps.guard.allowErr = errors.New("redis down")
	deps.guard.reserveErr = errors.New("redis down")
	deps.guard.mu.Unlock()
	tr := deps.newTracker(t, quietConfig())

	if _, err := tr.SubmitStory(context.Background(), storyParams("still works")); err != nil {
		t.Fatalf("guard outage must not block submissions: %v", err)
	}
}

func TestPushTerminal_ResolvesAndReplayIsDropped(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	e, err := tr.SubmitStory(context.Background(), storyParams("finish me"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ev := model.ChannelEvent{
		Scope:     model.ScopeJobs,
		EntityID:  e.ID,
		NewStatus: string(model.JobStatusCompleted),
		ResultRef: "ref-1",
		At:        time.Now(),
	}
	tr.HandleEvent(ev)

	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeStoryReady) == 1
	}, "success notice not delivered")
	waitUntil(t, 2*time.Second, func() bool {
		return deps.account.refreshCount() >= 1
	}, "balance not refreshed after success")

	// A replayed completion for the same entity finds no entry and stops
	// at the gate.
	tr.HandleEvent(ev)
	time.Sleep(100 * time.Millisecond)

	if n := deps.presenter.noticeCount(model.NoticeStoryReady); n != 1 {
		t.Fatalf("expected exactly 1 success notice, got %d", n)
	}
	if n := deps.history.recordedCount(); n != 1 {
		t.Fatalf("expected exactly 1 history record, got %d", n)
	}
	if snap := tr.Snapshot(); snap.ActiveCount != 0 {
		t.Fatalf("expected an empty registry, got %d active", snap.ActiveCount)
	}
}

func TestCompletionGate_ConcurrentSignalsResolveOnce(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	e, err := tr.SubmitStory(context.Background(), storyParams("contended"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	rep := adapter.StatusReport{Status: string(model.JobStatusCompleted), ResultRef: "ref-9"}

	const K = 32
	var wg sync.WaitGroup
	wg.Add(K)
	for i := 0; i < K; i++ {
		go func() {
			defer wg.Done()
			tr.handleTerminal(e.Key(), rep, "push")
		}()
	}
	wg.Wait()

	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeStoryReady) >= 1
	}, "no success notice after concurrent terminals")
	time.Sleep(100 * time.Millisecond)

	if n := deps.presenter.noticeCount(model.NoticeStoryReady); n != 1 {
		t.Fatalf("expected exactly 1 success notice, got %d", n)
	}
	if n := deps.delivery.deliveredCount(); n != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", n)
	}
	if n := deps.history.recordedCount(); n != 1 {
		t.Fatalf("expected exactly 1 history record, got %d", n)
	}
}

func TestPushConfirmedWithinGrace_PollerStaysDormant(t *testing.T) {
	deps := newTrackerDeps()
	cfg := testSyncConfig()
	tr := deps.newTracker(t, cfg)

	e, err := tr.SubmitStory(context.Background(), storyParams("push is alive"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Any event on the scope within the grace window counts as proof of
	// push delivery, terminal or not.
	tr.HandleEvent(model.ChannelEvent{
		Scope:     model.ScopeJobs,
		EntityID:  e.ID,
		NewStatus: string(model.JobStatusRunning),
		At:        time.Now(),
	})

	time.Sleep(cfg.PushGrace + 4*cfg.StoryPollEvery)
	if n := deps.studio.probeCount(e.ID); n != 0 {
		t.Fatalf("expected a dormant poller, saw %d probes", n)
	}
}

func TestSilentChannel_ArmsAfterGracePlusInterval(t *testing.T) {
	deps := newTrackerDeps()
	cfg := testSyncConfig()
	tr := deps.newTracker(t, cfg)

	start := time.Now()
	e, err := tr.SubmitStory(context.Background(), storyParams("nobody pushed"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return deps.studio.probeCount(e.ID) >= 1
	}, "poller never armed on a silent channel")

	// The first probe comes one full interval after the grace expiry,
	// never earlier.
	if since := time.Since(start); since < cfg.PushGrace+cfg.StoryPollEvery {
		t.Fatalf("first probe fired too early: %v", since)
	}
}

func TestChannelDown_ArmsWithoutWaitingForGrace(t *testing.T) {
	deps := newTrackerDeps()
	cfg := quietConfig()
	cfg.StoryPollEvery = 25 * time.Millisecond
	tr := deps.newTracker(t, cfg)

	e, err := tr.SubmitStory(context.Background(), storyParams("channel lost"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	tr.ChannelDown(model.ScopeJobs, errors.New("stream reset"))
	waitUntil(t, 2*time.Second, func() bool {
		return deps.studio.probeCount(e.ID) >= 1
	}, "channel-down did not arm the poller")
}

func TestChannelDown_OtherScopeLeavesEntriesDormant(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	e, err := tr.SubmitStory(context.Background(), storyParams("unrelated outage"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	tr.ChannelDown(model.ScopeTasks, errors.New("stream reset"))
	time.Sleep(150 * time.Millisecond)
	if n := deps.studio.probeCount(e.ID); n != 0 {
		t.Fatalf("a task-scope outage must not arm story pollers, saw %d probes", n)
	}
}

func TestPoll_TerminalStatusResolvesEntry(t *testing.T) {
	deps := newTrackerDeps()
	cfg := testSyncConfig()
	cfg.PushGrace = 5 * time.Millisecond
	cfg.StoryPollEvery = 20 * time.Millisecond
	tr := deps.newTracker(t, cfg)

	e, err := tr.SubmitStory(context.Background(), storyParams("poll finds it"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	deps.studio.setJobReport(e.ID, adapter.StatusReport{
		Status:    string(model.JobStatusCompleted),
		ResultRef: "ref-poll",
	})

	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeStoryReady) == 1
	}, "polled completion not delivered")

	if n := deps.studio.probeCount(e.ID); n != 1 {
		t.Fatalf("loop should stop on the terminal probe, saw %d probes", n)
	}
	if snap := tr.Snapshot(); snap.ActiveCount != 0 {
		t.Fatalf("expected an empty registry, got %d active", snap.ActiveCount)
	}
}

func TestPollTimeout_BudgetBoundary(t *testing.T) {
	deps := newTrackerDeps()
	cfg := testSyncConfig()
	cfg.PushGrace = 5 * time.Millisecond
	cfg.StoryPollEvery = 15 * time.Millisecond
	cfg.MaxPollAttempts = 3
	tr := deps.newTracker(t, cfg)

	e, err := tr.SubmitStory(context.Background(), storyParams("never finishes"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeTimedOut) == 1
	}, "timeout notice not delivered")

	// The budget admits exactly MaxPollAttempts pending probes; the next
	// one resolves the entry timed out.
	if n := deps.studio.probeCount(e.ID); n != cfg.MaxPollAttempts+1 {
		t.Fatalf("expected %d probes, got %d", cfg.MaxPollAttempts+1, n)
	}
	if n := deps.account.refreshCount(); n != 0 {
		t.Fatalf("a timeout must not refresh the balance, saw %d refreshes", n)
	}
	if n := deps.history.recordedCount(); n != 0 {
		t.Fatalf("a timeout must not write history, saw %d records", n)
	}
	if snap := tr.Snapshot(); snap.ActiveCount != 0 {
		t.Fatalf("expected an empty registry, got %d active", snap.ActiveCount)
	}
}

func TestPoll_ProbeErrorsBurnTheBudget(t *testing.T) {
	deps := newTrackerDeps()
	cfg := testSyncConfig()
	cfg.PushGrace = 5 * time.Millisecond
	cfg.StoryPollEvery = 15 * time.Millisecond
	cfg.MaxPollAttempts = 2
	deps.studio.mu.Lock()
	deps.studio.statusErr = errors.New("status endpoint down")
	deps.studio.mu.Unlock()
	tr := deps.newTracker(t, cfg)

	if _, err := tr.SubmitStory(context.Background(), storyParams("dead backend")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeTimedOut) == 1
	}, "a dead status endpoint must still time the entry out")
}

func TestRehydrate_FiltersStaleAndTerminal(t *testing.T) {
	deps := newTrackerDeps()
	cfg := quietConfig()
	ctx := context.Background()

	fresh := model.TrackedEntry{
		Kind: model.ContentText, ID: "job-9", Status: string(model.JobStatusRunning),
		CreatedAt: time.Now().Add(-time.Minute),
	}
	stale := model.TrackedEntry{
		Kind: model.ContentText, ID: "job-old", Status: string(model.JobStatusRunning),
		CreatedAt: time.Now().Add(-20 * time.Minute),
	}
	done := model.TrackedEntry{
		Kind: model.ContentText, ID: "job-done", Status: string(model.JobStatusCompleted),
		CreatedAt: time.Now().Add(-time.Minute),
	}
	if err := deps.sessions.SavePending(ctx, "user-1", []model.TrackedEntry{fresh, stale, done}); err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	deps.studio.setJobReport("job-9", adapter.StatusReport{
		Status:    string(model.JobStatusCompleted),
		ResultRef: "ref-rehydrated",
	})

	tr := deps.newTracker(t, cfg)
	admitted, err := tr.Rehydrate(ctx)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if admitted != 1 {
		t.Fatalf("expected 1 re-admitted entry, got %d", admitted)
	}

	// Re-admitted entries probe immediately; the poll interval here is far
	// longer than the test, so only an immediate first probe can resolve.
	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeStoryReady) == 1
	}, "rehydrated entry did not resolve from its immediate probe")

	if n := deps.studio.probeCount("job-old"); n != 0 {
		t.Fatalf("stale entry must not be probed, saw %d", n)
	}
	if n := deps.studio.probeCount("job-done"); n != 0 {
		t.Fatalf("terminal entry must not be probed, saw %d", n)
	}
}

func TestFailure_SurfacesErrorRefreshesBalanceThenIdles(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	e, err := tr.SubmitStory(context.Background(), storyParams("doomed"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	tr.HandleEvent(model.ChannelEvent{
		Scope:     model.ScopeJobs,
		EntityID:  e.ID,
		NewStatus: string(model.JobStatusFailed),
		Error:     "model refused the prompt",
		At:        time.Now(),
	})

	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeFailed) == 1
	}, "failure notice not delivered")

	n, ok := deps.presenter.findNotice(model.NoticeFailed)
	if !ok || n.Message != "model refused the prompt" {
		t.Fatalf("expected the server error to surface verbatim, got %+v", n)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return deps.account.refreshCount() >= 1
	}, "failure must refresh the balance")
	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeIdle) == 1
	}, "idle notice not delivered after the registry emptied")
}

func TestIdleNotice_CanceledByNewActivity(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())
	ctx := context.Background()

	e, err := tr.SubmitStory(ctx, storyParams("first"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	tr.HandleEvent(model.ChannelEvent{
		Scope:     model.ScopeJobs,
		EntityID:  e.ID,
		NewStatus: string(model.JobStatusFailed),
		At:        time.Now(),
	})
	// New work lands before the idle delay elapses; the registry is no
	// longer empty when the timer fires.
	if _, err := tr.SubmitStory(ctx, storyParams("second")); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := deps.presenter.noticeCount(model.NoticeIdle); n != 0 {
		t.Fatalf("idle notice must not fire while work is active, got %d", n)
	}
}

func TestNarration_PushResolveSchedulesUpgrade(t *testing.T) {
	deps := newTrackerDeps()
	deps.delivery.ephemeral = true
	deps.delivery.runUpgrade = true
	tr := deps.newTracker(t, quietConfig())

	e, err := tr.SubmitNarration(context.Background(), narrationParams("read this aloud"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	tr.HandleEvent(model.ChannelEvent{
		Scope:     model.ScopeTasks,
		EntityID:  e.ID,
		NewStatus: string(model.TaskStatusDone),
		ResultRef: "audio-ref",
		At:        time.Now(),
	})

	waitUntil(t, 2*time.Second, func() bool {
		return deps.presenter.noticeCount(model.NoticeNarrationReady) == 1
	}, "narration notice not delivered")
	waitUntil(t, 2*time.Second, func() bool {
		return deps.delivery.upgradesCount() == 1
	}, "ephemeral item not scheduled for upgrade")

	// The synchronous upgrade callback republishes the feed with the
	// durable reference swapped in.
	waitUntil(t, 2*time.Second, func() bool {
		for _, it := range deps.presenter.lastFeed() {
			if it.SourceID == e.ID && !it.Ephemeral && it.MediaRef == "https://blobs.test/"+e.ID {
				return true
			}
		}
		return false
	}, "feed does not carry the durable reference")
}

func TestBalanceAndGrantEvents_TriggerRefresh(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	tr.HandleEvent(model.ChannelEvent{Scope: model.ScopeBalance, At: time.Now()})
	waitUntil(t, 2*time.Second, func() bool {
		return deps.account.refreshCount() >= 1
	}, "balance event did not trigger a refresh")

	tr.HandleEvent(model.ChannelEvent{Scope: model.ScopeGrants, At: time.Now()})
	waitUntil(t, 2*time.Second, func() bool {
		return deps.account.grantsCount() >= 1
	}, "grant event did not trigger a refresh")
}

func TestHandleEvent_UnknownEntityIsDropped(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())

	tr.HandleEvent(model.ChannelEvent{
		Scope:     model.ScopeJobs,
		EntityID:  "never-submitted",
		NewStatus: string(model.JobStatusCompleted),
		At:        time.Now(),
	})
	time.Sleep(100 * time.Millisecond)

	if n := deps.presenter.noticeCount(model.NoticeStoryReady); n != 0 {
		t.Fatalf("an event for an unknown entity must be dropped, got %d notices", n)
	}
	if n := deps.history.recordedCount(); n != 0 {
		t.Fatalf("expected no history writes, got %d", n)
	}
}

func TestClose_RejectsNewWorkAndKeepsPendingSnapshot(t *testing.T) {
	deps := newTrackerDeps()
	tr := deps.newTracker(t, quietConfig())
	ctx := context.Background()

	e, err := tr.SubmitStory(ctx, storyParams("survives restarts"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	tr.Close()

	if _, err := tr.SubmitStory(ctx, storyParams("too late")); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got: %v", err)
	}

	stored := deps.sessions.stored("user-1")
	if len(stored) != 1 || stored[0].ID != e.ID {
		t.Fatalf("expected the in-flight entry in the final snapshot, got %+v", stored)
	}

	// Late events on a closed engine are ignored.
	tr.HandleEvent(model.ChannelEvent{
		Scope:     model.ScopeJobs,
		EntityID:  e.ID,
		NewStatus: string(model.JobStatusCompleted),
		At:        time.Now(),
	})
	time.Sleep(100 * time.Millisecond)
	if n := deps.presenter.noticeCount(model.NoticeStoryReady); n != 0 {
		t.Fatalf("closed engine must not act on events, got %d notices", n)
	}
}
