// File: cmd/demo/main.go
//
// Standalone walkthrough of the tracking engine: submits a story and a
// narration against an in-memory studio, lets the poll fallback resolve
// them, then prints the reconciled feed. Needs no Postgres, Redis or
// network; everything runs in-process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/worker"
	"studio-sync-engine/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	logger := zerolog.New(out).Level(zerolog.WarnLevel)

	cfg := config.SyncConfig{
		PushGrace:          300 * time.Millisecond,
		StoryPollEvery:     500 * time.Millisecond,
		NarrationPollEvery: 400 * time.Millisecond,
		MaxPollAttempts:    60,
		MaxActiveStories:   5,
		DuplicateWindow:    2 * time.Second,
		RateLimit:          30,
		RateWindow:         time.Minute,
		RehydrateWindow:    10 * time.Minute,
		IdleNoticeDelay:    10 * time.Second,
		StatusTimeout:      2 * time.Second,
	}

	studio := newDemoStudio(1200 * time.Millisecond)
	presenter := newConsolePresenter()
	histUC := &memoryHistory{}

	spoolDir, err := os.MkdirTemp("", "studio-demo-spool")
	if err != nil {
		log.Fatalf("spool dir: %v", err)
	}
	defer os.RemoveAll(spoolDir)

	wpool := worker.NewPool(2, &logger)
	wpool.Start(ctx)
	defer wpool.Stop()

	delivery, err := usecase.NewResultDelivery(studio, &memoryBlobs{}, histUC, wpool, spoolDir, "demo-narrations", &logger)
	if err != nil {
		log.Fatalf("result delivery: %v", err)
	}
	accountUC := usecase.NewAccountUseCase(studio, presenter)

	tracker := usecase.NewSessionTracker(
		ctx, "demo-user", cfg,
		studio, delivery, histUC, accountUC,
		&memoryGuard{}, &memoryStates{}, presenter, &logger,
	)
	defer tracker.Close()

	fmt.Println("== studio sync engine demo ==")

	story, err := tracker.SubmitStory(ctx, model.StoryParams{
		Prompt: "A lighthouse keeper finds a message in a bottle.",
		Genre:  "mystery",
		Length: "short",
	})
	if err != nil {
		log.Fatalf("submit story: %v", err)
	}
	fmt.Printf("submitted story   %-8s (tracking as %s)\n", story.ID, story.Key())

	voices, err := studio.ListVoices(ctx)
	if err != nil {
		log.Fatalf("list voices: %v", err)
	}
	narration, err := tracker.SubmitNarration(ctx, model.NarrationParams{
		Text:    "The sea was calm the morning the bottle came ashore.",
		VoiceID: voices[0].ID,
		Format:  "mp3",
	})
	if err != nil {
		log.Fatalf("submit narration: %v", err)
	}
	fmt.Printf("submitted narration %-6s (voice %s)\n", narration.ID, voices[0].Name)

	// The demo never opens a push channel, so the grace window arms a
	// poller for both entries. Wait for their terminal notices.
	if !presenter.waitNotices(2, 20*time.Second) {
		log.Fatalf("generations did not finish in time")
	}

	tracker.RefreshAccount(ctx)

	feed, err := tracker.History(ctx)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	fmt.Println("\nreconciled feed, newest first:")
	for _, item := range feed {
		ref := item.MediaRef
		if ref == "" {
			ref = fmt.Sprintf("%d chars of text", len(item.Content))
		}
		fmt.Printf("  %-5s %-8s %s\n", item.Kind, item.SourceID, ref)
	}
	fmt.Println("\ndemo complete")
}

// ---- In-memory studio ----

// demoStudio resolves every submission a fixed delay after it arrives.
type demoStudio struct {
	delay time.Duration

	mu       sync.Mutex
	started  map[string]time.Time
	nextJob  int
	nextTask int64
	spent    int64
}

func newDemoStudio(delay time.Duration) *demoStudio {
	return &demoStudio{delay: delay, started: make(map[string]time.Time), nextTask: 100}
}

func (s *demoStudio) SubmitStory(ctx context.Context, userID string, p model.StoryParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJob++
	s.spent += 5
	id := fmt.Sprintf("job-%d", s.nextJob)
	s.started["story:"+id] = time.Now()
	return id, nil
}

func (s *demoStudio) StoryStatus(ctx context.Context, jobID string) (adapter.StatusReport, error) {
	s.mu.Lock()
	begun, ok := s.started["story:"+jobID]
	s.mu.Unlock()
	if !ok {
		return adapter.StatusReport{}, fmt.Errorf("unknown job %s", jobID)
	}
	if time.Since(begun) < s.delay {
		return adapter.StatusReport{Status: string(model.JobStatusRunning)}, nil
	}
	return adapter.StatusReport{Status: string(model.JobStatusCompleted), ResultRef: "story/" + jobID}, nil
}

func (s *demoStudio) SubmitNarration(ctx context.Context, userID string, p model.NarrationParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTask++
	s.spent += 2
	s.started["task:"+strconv.FormatInt(s.nextTask, 10)] = time.Now()
	return s.nextTask, nil
}

func (s *demoStudio) NarrationStatus(ctx context.Context, taskID int64) (adapter.StatusReport, error) {
	key := "task:" + strconv.FormatInt(taskID, 10)
	s.mu.Lock()
	begun, ok := s.started[key]
	s.mu.Unlock()
	if !ok {
		return adapter.StatusReport{}, fmt.Errorf("unknown task %d", taskID)
	}
	if time.Since(begun) < s.delay {
		return adapter.StatusReport{Status: string(model.TaskStatusRendering)}, nil
	}
	return adapter.StatusReport{Status: string(model.TaskStatusDone), ResultRef: fmt.Sprintf("audio/%d", taskID)}, nil
}

func (s *demoStudio) FetchContent(ctx context.Context, ref string) ([]byte, string, error) {
	if strings.HasPrefix(ref, "story/") {
		return []byte("The keeper pried the cork loose and unrolled a chart of a coastline no map had ever shown."), "text/plain; charset=utf-8", nil
	}
	return []byte("ID3demo-audio-bytes"), "audio/mpeg", nil
}

func (s *demoStudio) Balance(ctx context.Context, userID string) (model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Balance{Credits: 100 - s.spent, UpdatedAt: time.Now()}, nil
}

func (s *demoStudio) Grants(ctx context.Context, userID string) ([]model.Grant, error) {
	return []model.Grant{{Name: "narration_minutes", Remaining: 42}}, nil
}

func (s *demoStudio) ListVoices(ctx context.Context) ([]model.Voice, error) {
	return []model.Voice{
		{ID: "v-harbor", Name: "Harbor", Language: "en", Style: "calm"},
		{ID: "v-gale", Name: "Gale", Language: "en", Style: "dramatic"},
	}, nil
}

// ---- In-memory ports ----

type memoryBlobs struct{}

func (memoryBlobs) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	return fmt.Sprintf("blob://%s/%s", bucket, name), nil
}

type memoryGuard struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	count int
}

func (g *memoryGuard) ReserveFingerprint(ctx context.Context, userID, fp string, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]time.Time)
	}
	if at, ok := g.seen[fp]; ok && time.Since(at) < window {
		return false, nil
	}
	g.seen[fp] = time.Now()
	return true, nil
}

func (g *memoryGuard) ReleaseFingerprint(ctx context.Context, userID, fp string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, fp)
	return nil
}

func (g *memoryGuard) AllowSubmit(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count++
	return g.count <= limit, nil
}

type memoryStates struct {
	mu      sync.Mutex
	pending map[string][]model.TrackedEntry
}

func (s *memoryStates) SavePending(ctx context.Context, userID string, entries []model.TrackedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[string][]model.TrackedEntry)
	}
	s.pending[userID] = append([]model.TrackedEntry(nil), entries...)
	return nil
}

func (s *memoryStates) LoadPending(ctx context.Context, userID string) ([]model.TrackedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TrackedEntry(nil), s.pending[userID]...), nil
}

func (s *memoryStates) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
	return nil
}

// memoryHistory stands in for the Postgres-backed history use-case.
type memoryHistory struct {
	mu    sync.Mutex
	items []model.HistoryItem
}

func (h *memoryHistory) Feed(ctx context.Context, userID string, live []model.HistoryItem) ([]model.HistoryItem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	merged := usecase.MergeHistory(nil, h.items, live)
	return merged, nil
}

func (h *memoryHistory) RecordResolved(ctx context.Context, item *model.HistoryItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if item.ID == "" {
		item.ID = fmt.Sprintf("hist-%d", len(h.items)+1)
	}
	h.items = append(h.items, *item)
	sort.Slice(h.items, func(i, j int) bool { return h.items[i].CreatedAt.After(h.items[j].CreatedAt) })
	return nil
}

func (h *memoryHistory) UpgradeItem(ctx context.Context, item model.HistoryItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.items {
		if h.items[i].ID == item.ID {
			h.items[i] = item
		}
	}
	return nil
}

func (h *memoryHistory) Invalidate(ctx context.Context, userID string) error { return nil }

func (h *memoryHistory) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.items[:0]
	var pruned int64
	for _, it := range h.items {
		if it.CreatedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, it)
	}
	h.items = kept
	return pruned, nil
}

// ---- Console presenter ----

type consolePresenter struct {
	mu       sync.Mutex
	terminal int
	waiters  []chan struct{}
}

func newConsolePresenter() *consolePresenter { return &consolePresenter{} }

func (p *consolePresenter) ActiveChanged(userID string, snap model.SessionSnapshot) {
	fmt.Printf("  [active]  %d in flight\n", snap.ActiveCount)
}

func (p *consolePresenter) HistoryChanged(userID string, items []model.HistoryItem) {
	fmt.Printf("  [history] %d items in feed\n", len(items))
}

func (p *consolePresenter) BalanceChanged(userID string, b model.Balance) {
	fmt.Printf("  [balance] %d credits\n", b.Credits)
}

func (p *consolePresenter) GrantsChanged(userID string, gs []model.Grant) {
	for _, g := range gs {
		fmt.Printf("  [grant]   %s: %d remaining\n", g.Name, g.Remaining)
	}
}

func (p *consolePresenter) Notice(userID string, n model.Notice) {
	fmt.Printf("  [notice]  %s %s: %s\n", n.Code, n.RefID, n.Message)
	switch n.Code {
	case model.NoticeStoryReady, model.NoticeNarrationReady, model.NoticeFailed, model.NoticeTimedOut:
		p.mu.Lock()
		p.terminal++
		for _, w := range p.waiters {
			close(w)
		}
		p.waiters = nil
		p.mu.Unlock()
	}
}

// waitNotices blocks until n terminal notices arrived or the timeout hit.
func (p *consolePresenter) waitNotices(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		if p.terminal >= n {
			p.mu.Unlock()
			return true
		}
		w := make(chan struct{})
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		remain := time.Until(deadline)
		if remain <= 0 {
			return false
		}
		select {
		case <-w:
		case <-time.After(remain):
			return false
		}
	}
}
