// File: internal/usecase/poller.go
package usecase

import (
	"context"
	"time"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/metrics"
)

// pollState is the fallback machinery attached to one registry entry.
// Guarded by the tracker's lock. Lifecycle: dormant (grace timer pending)
// -> armed (loop running) -> gone (entry resolved, state deleted).
type pollState struct {
	attempts int
	armed    bool
	grace    *time.Timer
	cancel   context.CancelFunc
}

// armFromGrace runs when an entry's push grace window expires. If the
// entry's scope confirmed push delivery within the window the poller stays
// dormant; otherwise the loop starts.
func (t *trackerUC) armFromGrace(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	ps, ok := t.polls[key]
	if !ok {
		return
	}
	ps.grace = nil
	entry, ok := t.reg.get(key)
	if !ok {
		return
	}
	if t.confirmed[scopeForKind(entry.Kind)] {
		return
	}
	t.armLocked(key, false)
}

// armLocked starts the poll loop for key. Callers hold t.mu. Idempotent:
// an armed entry keeps its one loop. With immediate set the first probe
// fires before the first interval elapses.
func (t *trackerUC) armLocked(key string, immediate bool) {
	if t.closed {
		return
	}
	ps, ok := t.polls[key]
	if !ok || ps.armed {
		return
	}
	entry, ok := t.reg.get(key)
	if !ok {
		return
	}
	ps.armed = true
	if ps.grace != nil {
		ps.grace.Stop()
		ps.grace = nil
	}
	loopCtx, cancel := context.WithCancel(t.ctx)
	ps.cancel = cancel
	metrics.IncPollArm(string(entry.Kind))
	go t.pollLoop(loopCtx, key, entry.Kind, immediate)
}

func (t *trackerUC) pollInterval(kind model.ContentKind) time.Duration {
	if kind == model.ContentAudio {
		return t.cfg.NarrationPollEvery
	}
	return t.cfg.StoryPollEvery
}

func (t *trackerUC) pollLoop(ctx context.Context, key string, kind model.ContentKind, immediate bool) {
	if immediate {
		if t.pollTick(ctx, key, kind) {
			return
		}
	}
	ticker := time.NewTicker(t.pollInterval(kind))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.pollTick(ctx, key, kind) {
				return
			}
		}
	}
}

// pollTick probes the entry once. Returns true when the loop should stop:
// the entry resolved, timed out, or left the registry through another
// channel. Probe errors burn an attempt too, so a dead backend cannot
// keep an entry alive forever.
func (t *trackerUC) pollTick(ctx context.Context, key string, kind model.ContentKind) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return true
	}
	entry, ok := t.reg.get(key)
	t.mu.Unlock()
	if !ok {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, t.cfg.StatusTimeout)
	var (
		rep adapter.StatusReport
		err error
	)
	if kind == model.ContentAudio {
		rep, err = t.studio.NarrationStatus(probeCtx, entry.TaskID)
	} else {
		rep, err = t.studio.StoryStatus(probeCtx, entry.ID)
	}
	cancel()

	if err != nil {
		metrics.IncPollTick(string(kind), "error")
		t.log.Debug().Err(err).Str("entry", key).Msg("status probe failed")
		return t.burnAttempt(key)
	}

	if entry.TerminalStatus(rep.Status) {
		metrics.IncPollTick(string(kind), "terminal")
		t.handleTerminal(key, rep, "poll")
		return true
	}

	metrics.IncPollTick(string(kind), "pending")
	if t.burnAttempt(key) {
		return true
	}

	if rep.Status != "" {
		t.mu.Lock()
		changed := t.reg.setStatus(key, rep.Status)
		snap := t.snapshotLocked()
		t.mu.Unlock()
		if changed {
			t.presenter.ActiveChanged(t.userID, snap)
			t.savePending()
		}
	}
	return false
}

// burnAttempt spends one attempt of the entry's poll budget and fires the
// timeout transition when the budget runs out. Exactly MaxPollAttempts
// pending ticks keep the entry alive; one more resolves it timed out.
func (t *trackerUC) burnAttempt(key string) bool {
	t.mu.Lock()
	ps, ok := t.polls[key]
	if !ok {
		t.mu.Unlock()
		return true
	}
	ps.attempts++
	over := ps.attempts > t.cfg.MaxPollAttempts
	t.mu.Unlock()

	if over {
		t.handleTerminal(key, adapter.StatusReport{Status: model.StatusTimedOut}, "poll")
		return true
	}
	return false
}
