package ratelimit

import (
	"context"
	"sync"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// sideEffect is the audit entry and broker event produced by one RecordUsage call.
// Either field may be nil when the matching sink is not configured.
type sideEffect struct {
	entry *models.UsageLog
	event *models.UsageEvent
}

// dispatcher runs usage side effects on a fixed pool of workers so that
// audit and broker latency stay off the chat turn.
type dispatcher struct {
	jobs    chan sideEffect
	apply   func(ctx context.Context, job sideEffect)
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
}

func newDispatcher(bufferSize int, apply func(ctx context.Context, job sideEffect)) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		jobs:   make(chan sideEffect, bufferSize),
		apply:  apply,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (d *dispatcher) start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.apply(d.ctx, job)
	}
}

// enqueue never blocks. It reports false when the buffer is full or the
// dispatcher has been stopped.
func (d *dispatcher) enqueue(job sideEffect) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	select {
	case d.jobs <- job:
		return true
	default:
		return false
	}
}

// stop drains the queued jobs and waits for the workers to exit.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}
