// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/infra/metrics"
)

// A very small worker pool for background delivery work (artifact
// downloads, durable uploads). Submission never blocks the caller.

type Task func(ctx context.Context) error

type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		jobs: make(chan Task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
		log:  logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the workers. They exit when ctx is canceled or Stop is
// called, whichever comes first.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case task := <-p.jobs:
			metrics.SetWorkerQueueDepth(len(p.jobs))
			if task == nil {
				continue
			}
			if err := task(ctx); err != nil {
				p.log.Error().Err(err).Int("worker", id).Msg("task error")
			}
		}
	}
}

func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Submit enqueues a task. A full queue rejects instead of blocking; the
// caller decides whether the work can be retried or shrugged off.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		metrics.SetWorkerQueueDepth(len(p.jobs))
		return nil
	default:
		metrics.IncWorkerDropped()
		return errors.New("worker queue full")
	}
}
