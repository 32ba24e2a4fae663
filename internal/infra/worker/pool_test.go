//go:build !integration

package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(2, testLogger())
	p.Start(ctx)
	defer p.Stop()

	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		err := p.Submit(func(ctx context.Context) error {
			done <- struct{}{}
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d never ran", i)
		}
	}
}

func TestPool_RejectsWhenSaturated(t *testing.T) {
	// Never started, so the queue only drains by capacity. One worker
	// means four slots.
	p := NewPool(1, testLogger())

	task := func(ctx context.Context) error { return nil }
	for i := 0; i < 4; i++ {
		if err := p.Submit(task); err != nil {
			t.Fatalf("submit %d should fit in the queue: %v", i, err)
		}
	}
	if err := p.Submit(task); err == nil {
		t.Fatal("expected a full queue to reject the task")
	}
}

func TestPool_RejectsNilTask(t *testing.T) {
	p := NewPool(1, testLogger())
	if err := p.Submit(nil); err == nil {
		t.Fatal("expected nil task to be rejected")
	}
}
