package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/infra/metrics"
)

// HistoryPruner is the minimal interface the worker needs from the history
// use-case. Any type implementing PruneOlderThan can be passed.
type HistoryPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SpoolSweeper removes aged artifacts from the local media spool.
type SpoolSweeper interface {
	SweepSpool(olderThan time.Duration) (int, error)
}

// IdleSweeper closes sessions inactive past maxIdle and reports how many.
// application.SessionManager implements it.
type IdleSweeper interface {
	SweepIdle(maxIdle time.Duration) int
}

// MaintenanceWorker runs the periodic housekeeping pass on a cron schedule:
// prune history past retention, drop aged spool artifacts, close idle sessions.
type MaintenanceWorker struct {
	schedule    cron.Schedule
	retention   time.Duration
	spoolMaxAge time.Duration
	sessionIdle time.Duration

	history  HistoryPruner
	delivery SpoolSweeper
	sessions IdleSweeper
	log      *zerolog.Logger
}

// NewMaintenanceWorker parses the cron expression up front so a bad schedule
// fails at startup, not at the first tick. Standard five-field expressions only.
func NewMaintenanceWorker(cfg config.MaintenanceConfig, retention time.Duration, history HistoryPruner, delivery SpoolSweeper, sessions IdleSweeper, logger *zerolog.Logger) (*MaintenanceWorker, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse maintenance cron %q: %w", cfg.Cron, err)
	}
	maintLog := logger.With().Str("component", "MaintenanceWorker").Logger()
	return &MaintenanceWorker{
		schedule:    schedule,
		retention:   retention,
		spoolMaxAge: cfg.SpoolMaxAge,
		sessionIdle: cfg.SessionIdle,
		history:     history,
		delivery:    delivery,
		sessions:    sessions,
		log:         &maintLog,
	}, nil
}

func (w *MaintenanceWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting maintenance worker")
	timer := time.NewTimer(time.Until(w.schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping maintenance worker")
			return ctx.Err()
		case <-timer.C:
			w.runOnce(ctx)
			timer.Reset(time.Until(w.schedule.Next(time.Now())))
		}
	}
}

// runOnce executes one pass with a bounded deadline. Tasks are independent;
// one failing does not skip the rest.
func (w *MaintenanceWorker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	pruned, err := w.history.PruneOlderThan(runCtx, time.Now().Add(-w.retention))
	if err != nil {
		metrics.IncMaintenanceRun("history_prune", "failed")
		w.log.Error().Err(err).Msg("history prune failed")
	} else {
		metrics.IncMaintenanceRun("history_prune", "ok")
		metrics.AddMaintenanceRemoved("history_prune", int(pruned))
		if pruned > 0 {
			w.log.Info().Int64("count", pruned).Msg("history items pruned")
		}
	}

	swept, err := w.delivery.SweepSpool(w.spoolMaxAge)
	if err != nil {
		metrics.IncMaintenanceRun("spool_sweep", "failed")
		w.log.Error().Err(err).Msg("spool sweep failed")
	} else {
		metrics.IncMaintenanceRun("spool_sweep", "ok")
		metrics.AddMaintenanceRemoved("spool_sweep", swept)
		if swept > 0 {
			w.log.Info().Int("count", swept).Msg("spool artifacts removed")
		}
	}

	closed := w.sessions.SweepIdle(w.sessionIdle)
	metrics.IncMaintenanceRun("session_sweep", "ok")
	metrics.AddMaintenanceRemoved("session_sweep", closed)
	if closed > 0 {
		w.log.Info().Int("count", closed).Msg("idle sessions closed")
	}
}
