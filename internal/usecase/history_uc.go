// File: internal/usecase/history_uc.go
package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v4"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/repository"
	"studio-sync-engine/internal/infra/metrics"
)

// Compile-time check
var _ HistoryUseCase = (*historyUC)(nil)

type HistoryUseCase interface {
	// Feed builds the reconciled result feed: cached, persisted and live
	// items merged, deduplicated and ordered newest first. The merged feed
	// is written back to the cache.
	Feed(ctx context.Context, userID string, live []model.HistoryItem) ([]model.HistoryItem, error)
	// RecordResolved durably stores one finished generation.
	RecordResolved(ctx context.Context, item *model.HistoryItem) error
	// UpgradeItem persists the durable media ref that replaced an
	// ephemeral one.
	UpgradeItem(ctx context.Context, item model.HistoryItem) error
	Invalidate(ctx context.Context, userID string) error
	// PruneOlderThan drops items past the retention horizon, feed-wide.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type historyUC struct {
	repo  repository.HistoryRepository
	cache repository.HistoryCache
	tm    repository.TransactionManager
	limit int
}

func NewHistoryUseCase(repo repository.HistoryRepository, cache repository.HistoryCache, tm repository.TransactionManager, limit int) *historyUC {
	if limit <= 0 {
		limit = 50
	}
	return &historyUC{repo: repo, cache: cache, tm: tm, limit: limit}
}

func mergeKey(it model.HistoryItem) string {
	if it.SourceID != "" {
		return string(it.Kind) + ":" + it.SourceID
	}
	return string(it.Kind) + ":" + it.ID
}

// MergeHistory folds the three result sources into one feed. The map is
// seeded from cached, overwritten by persisted (authoritative), then by
// live (most recent). Identity is the source id within a kind; order is
// strictly descending by creation time. Merging its own output back in
// changes nothing.
func MergeHistory(cached, persisted, live []model.HistoryItem) []model.HistoryItem {
	merged := make(map[string]model.HistoryItem, len(cached)+len(persisted)+len(live))
	for _, src := range [][]model.HistoryItem{cached, persisted, live} {
		for _, it := range src {
			merged[mergeKey(it)] = it
		}
	}

	out := make([]model.HistoryItem, 0, len(merged))
	for _, it := range merged {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return mergeKey(out[i]) > mergeKey(out[j])
	})
	return out
}

// FilterKind narrows a merged feed to one content kind. Display
// partitioning is always a filter over the merged feed, never a separate
// merge.
func FilterKind(items []model.HistoryItem, kind model.ContentKind) []model.HistoryItem {
	out := make([]model.HistoryItem, 0, len(items))
	for _, it := range items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

func (h *historyUC) Feed(ctx context.Context, userID string, live []model.HistoryItem) ([]model.HistoryItem, error) {
	cached, hit, err := h.cache.Load(ctx, userID)
	if err != nil {
		// A broken cache read degrades to a plain store load.
		cached, hit = nil, false
	}

	origin := "store"
	persisted, perr := h.repo.ListByUser(ctx, nil, userID, h.limit)
	if perr != nil {
		if !hit && len(live) == 0 {
			return nil, perr
		}
		// Degrade to whatever we have; the next pass heals the feed.
		persisted = nil
		origin = "cache"
		if !hit {
			origin = "live"
		}
	}

	merged := MergeHistory(cached, persisted, live)
	metrics.ObserveMergeSize(len(merged))
	if len(merged) > h.limit {
		merged = merged[:h.limit]
	}
	metrics.IncHistoryFeed(origin)

	// Write-back is best effort; a failed store only costs the next load
	// a trip to the database.
	_ = h.cache.Store(ctx, userID, merged)

	return merged, nil
}

func (h *historyUC) RecordResolved(ctx context.Context, item *model.HistoryItem) error {
	err := h.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return h.repo.Record(ctx, tx, item)
	})
	if err != nil {
		return err
	}
	metrics.IncHistoryRecord(string(item.Kind))
	return nil
}

func (h *historyUC) UpgradeItem(ctx context.Context, item model.HistoryItem) error {
	err := h.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return h.repo.Replace(ctx, tx, &item)
	})
	if err != nil {
		metrics.IncHistoryUpgrade("failed")
		return err
	}
	metrics.IncHistoryUpgrade("ok")
	return h.cache.Invalidate(ctx, item.UserID)
}

func (h *historyUC) Invalidate(ctx context.Context, userID string) error {
	return h.cache.Invalidate(ctx, userID)
}

func (h *historyUC) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var pruned int64
	err := h.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		n, err := h.repo.PruneOlderThan(ctx, tx, cutoff)
		pruned = n
		return err
	})
	return pruned, err
}
