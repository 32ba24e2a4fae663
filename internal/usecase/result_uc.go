// File: internal/usecase/result_uc.go
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/logging"
	"studio-sync-engine/internal/infra/metrics"
	"studio-sync-engine/internal/infra/worker"
)

// Compile-time check
var _ ResultDelivery = (*resultDelivery)(nil)

type ResultDelivery interface {
	// Deliver retrieves the final artifact for a resolved entry and shapes
	// the history item to record. Audio lands in the local spool first so
	// playback can start before the durable upload finishes.
	Deliver(ctx context.Context, userID string, entry model.TrackedEntry, rep adapter.StatusReport) (model.HistoryItem, error)
	// ScheduleUpgrade queues the durable upload for an ephemeral item.
	// onUpgraded runs only after the durable ref is persisted.
	ScheduleUpgrade(userID string, item model.HistoryItem, onUpgraded func(upgraded model.HistoryItem))
	// SpoolPath resolves a spooled file name for serving.
	SpoolPath(name string) (string, error)
	// SweepSpool removes spooled artifacts older than the given age.
	SweepSpool(olderThan time.Duration) (int, error)
}

type resultDelivery struct {
	studio  adapter.StudioAdapter
	blobs   adapter.BlobStoreAdapter
	history HistoryUseCase
	pool    *worker.Pool
	spool   string
	bucket  string
	log     zerolog.Logger
}

func NewResultDelivery(
	studio adapter.StudioAdapter,
	blobs adapter.BlobStoreAdapter,
	history HistoryUseCase,
	pool *worker.Pool,
	spoolDir, bucket string,
	logger *zerolog.Logger,
) (*resultDelivery, error) {
	if spoolDir == "" {
		spoolDir = filepath.Join(os.TempDir(), "studio-spool")
	}
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &resultDelivery{
		studio:  studio,
		blobs:   blobs,
		history: history,
		pool:    pool,
		spool:   spoolDir,
		bucket:  bucket,
		log:     logger.With().Str("component", "result_delivery").Logger(),
	}, nil
}

func (d *resultDelivery) Deliver(ctx context.Context, userID string, entry model.TrackedEntry, rep adapter.StatusReport) (model.HistoryItem, error) {
	defer logging.TraceDuration(&d.log, "ResultDelivery.Deliver")()
	data, contentType, err := d.studio.FetchContent(ctx, rep.ResultRef)
	if err != nil {
		return model.HistoryItem{}, err
	}

	item := model.HistoryItem{
		UserID:    userID,
		Kind:      entry.Kind,
		SourceID:  entry.ID,
		Meta:      entry.Meta,
		CreatedAt: time.Now(),
	}

	if entry.Kind == model.ContentText {
		item.Content = string(data)
		return item, nil
	}

	// Audio: spool locally and hand out a short-lived media ref. The
	// durable upload happens later; the user is never blocked on it.
	name := spoolName(entry, contentType)
	path := filepath.Join(d.spool, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return model.HistoryItem{}, fmt.Errorf("spool artifact: %w", err)
	}

	item.Content = entry.Meta["text"]
	item.MediaRef = "/api/v1/media/" + name
	item.Ephemeral = true
	if item.Meta == nil {
		item.Meta = map[string]string{}
	}
	item.Meta["spool"] = name
	item.Meta["content_type"] = contentType
	return item, nil
}

func (d *resultDelivery) ScheduleUpgrade(userID string, item model.HistoryItem, onUpgraded func(upgraded model.HistoryItem)) {
	if !item.Ephemeral {
		return
	}
	name := item.Meta["spool"]
	contentType := item.Meta["content_type"]
	if name == "" {
		return
	}
	path := filepath.Join(d.spool, name)

	err := d.pool.Submit(func(ctx context.Context) error {
		data, err := os.ReadFile(path)
		if err != nil {
			metrics.IncHistoryUpgrade("failed")
			return fmt.Errorf("read spooled artifact %s: %w", name, err)
		}

		url, err := d.blobs.Upload(ctx, d.bucket, name, data, contentType)
		if err != nil {
			// The ephemeral ref stays valid; the user keeps their result.
			metrics.IncHistoryUpgrade("failed")
			d.log.Warn().Err(err).Str("user_id", userID).Str("spool", name).Msg("durable upload failed, keeping ephemeral ref")
			return nil
		}

		upgraded := item.WithDurableRef(url)
		if err := d.history.UpgradeItem(ctx, upgraded); err != nil {
			d.log.Warn().Err(err).Str("user_id", userID).Str("spool", name).Msg("durable ref persist failed")
			return nil
		}

		// Release the ephemeral resource only once the durable ref is live.
		_ = os.Remove(path)
		if onUpgraded != nil {
			onUpgraded(upgraded)
		}
		return nil
	})
	if err != nil {
		metrics.IncHistoryUpgrade("failed")
		d.log.Warn().Err(err).Str("user_id", userID).Msg("upgrade not scheduled")
	}
}

func (d *resultDelivery) SweepSpool(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(d.spool)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(d.spool, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// SpoolPath resolves a spooled file name to its absolute path, refusing
// names that escape the spool directory.
func (d *resultDelivery) SpoolPath(name string) (string, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return "", domain.ErrInvalidArgument
	}
	path := filepath.Join(d.spool, name)
	if _, err := os.Stat(path); err != nil {
		return "", domain.ErrContentUnavailable
	}
	return path, nil
}

func spoolName(entry model.TrackedEntry, contentType string) string {
	return fmt.Sprintf("%s_%d%s", entry.ID, time.Now().UnixNano(), extForContentType(contentType))
}

func extForContentType(ct string) string {
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return ".mp3"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "wav"):
		return ".wav"
	default:
		return ".bin"
	}
}
