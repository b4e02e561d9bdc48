// Package worker runs background handoff tasks on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrClosed    = errors.New("worker pool is shut down")
)

// Task is one unit of background work. ctx is cancelled only when Shutdown
// gives up waiting, never when the submitting request ends.
type Task func(ctx context.Context)

// Pool is a bounded queue drained by a fixed number of workers.
type Pool struct {
	workers int
	queue   chan Task
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool

	started  atomic.Bool
	done     chan struct{}
	inFlight atomic.Int64

	taskCtx    context.Context
	cancelTask context.CancelFunc
}

// NewPool creates a pool. Call Run to start the workers.
func NewPool(workers, queueSize int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:    workers,
		queue:      make(chan Task, queueSize),
		log:        log.With(zap.String("component", "worker")),
		done:       make(chan struct{}),
		taskCtx:    ctx,
		cancelTask: cancel,
	}
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until the queue is closed and drained.
// Cancelling ctx stops intake; queued tasks still run.
func (p *Pool) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("worker pool already running")
	}
	defer close(p.done)

	stop := context.AfterFunc(ctx, p.close)
	defer stop()

	p.log.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.queue)))

	var g errgroup.Group
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for t := range p.queue {
				p.exec(t)
			}
			return nil
		})
	}
	err := g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

func (p *Pool) exec(t Task) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	t(p.taskCtx)
}

func (p *Pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Shutdown stops intake and waits for queued and running tasks. When ctx
// expires first, running tasks see their context cancelled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.close()
	if !p.started.Load() {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.log.Warn("worker pool shutdown timed out",
			zap.Int("queued", len(p.queue)), zap.Int64("in_flight", p.inFlight.Load()))
		p.cancelTask()
		return ctx.Err()
	}
}

// Pending reports queued plus running tasks.
func (p *Pool) Pending() int {
	return len(p.queue) + int(p.inFlight.Load())
}
