// Package worker runs best-effort side effects (notifications, revocations,
// event publishing) off the request path.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/backoff"
	"github.com/akylbek/payment-system/credential-payments/internal/metrics"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

type Config struct {
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Dispatcher is a fixed worker pool. Every task gets its own timeout and is
// retried with exponential backoff; the final error is logged, never returned.
type Dispatcher struct {
	cfg     Config
	tasks   chan task
	workers sync.WaitGroup

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}

	d := &Dispatcher{
		cfg:   cfg,
		tasks: make(chan task, cfg.QueueSize),
	}
	d.idle = sync.NewCond(&d.mu)
	for i := 0; i < cfg.Workers; i++ {
		d.workers.Add(1)
		go d.work()
	}
	return d
}

// Dispatch queues fn and returns immediately. When the queue is full the
// task gets its own goroutine instead of blocking the caller.
func (d *Dispatcher) Dispatch(name string, fn func(ctx context.Context) error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		telemetry.Logger.Warn("Dispatcher closed, dropping task", zap.String("task", name))
		metrics.SideEffectsTotal.WithLabelValues(name, "dropped").Inc()
		return
	}
	d.pending++
	d.mu.Unlock()

	// tasks stays open while this task is pending.
	t := task{name: name, fn: fn}
	select {
	case d.tasks <- t:
	default:
		go d.run(t)
	}
}

// Wait blocks until every dispatched task, including tasks dispatched by
// other tasks, has finished.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}

// Close drains outstanding work, nested tasks included, then stops the
// workers. Tasks dispatched after Close are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for d.pending > 0 {
		d.idle.Wait()
	}
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) done() {
	d.mu.Lock()
	d.pending--
	if d.pending == 0 {
		d.idle.Broadcast()
	}
	d.mu.Unlock()
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for t := range d.tasks {
		d.run(t)
	}
}

func (d *Dispatcher) run(t task) {
	defer d.done()

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		lastErr = d.call(t)
		if lastErr == nil {
			metrics.SideEffectsTotal.WithLabelValues(t.name, "ok").Inc()
			return
		}
		if attempt == d.cfg.MaxAttempts-1 {
			break
		}

		delay := d.calculateBackoff(attempt)
		telemetry.Logger.Warn("Side effect failed, retrying",
			zap.String("task", t.name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		time.Sleep(delay)
	}

	metrics.SideEffectsTotal.WithLabelValues(t.name, "failed").Inc()
	telemetry.Logger.Error("Side effect gave up",
		zap.String("task", t.name),
		zap.Int("attempts", d.cfg.MaxAttempts),
		zap.Error(lastErr),
	)
}

func (d *Dispatcher) call(t task) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
	}()
	return t.fn(ctx)
}

func (d *Dispatcher) calculateBackoff(attempt int) time.Duration {
	return backoff.Exponential(attempt, d.cfg.BaseDelay, d.cfg.MaxDelay, d.cfg.Jitter)
}
