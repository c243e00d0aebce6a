package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/metrics"
)

// Future completes when its task has run.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed when the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type poolJob struct {
	task   Task
	future *Future
}

// Pool runs tasks on a fixed number of goroutines fed by a bounded buffer.
// Tasks run under the pool's own context, not the submitter's.
type Pool struct {
	size   int
	jobs   chan poolJob
	logger *zap.Logger

	mu      sync.RWMutex
	handler Handler
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool with size workers and room for depth waiting tasks.
// Tasks submitted before Start wait in the buffer.
func NewPool(size, depth int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 1
	}
	if depth < 0 {
		depth = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:   size,
		jobs:   make(chan poolJob, depth),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start(h Handler) error {
	if h == nil {
		return ErrNoHandler
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStopped
	}
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.handler = h
	p.started = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.size), zap.Int("depth", cap(p.jobs)))
	return nil
}

// Submit queues t without blocking. It fails with ErrQueueFull when the
// buffer is full.
func (p *Pool) Submit(t Task) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrStopped
	}
	f := newFuture()
	select {
	case p.jobs <- poolJob{task: t, future: f}:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return f, nil
	default:
		return nil, ErrQueueFull
	}
}

// SubmitWait queues t, waiting for buffer space until ctx ends.
func (p *Pool) SubmitWait(ctx context.Context, t Task) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrStopped
	}
	f := newFuture()
	select {
	case p.jobs <- poolJob{task: t, future: f}:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Schedule implements Scheduler.
func (p *Pool) Schedule(_ context.Context, t Task) error {
	_, err := p.Submit(t)
	return err
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When
// ctx ends first, running tasks are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	started := p.started
	p.mu.Unlock()

	if !started {
		for j := range p.jobs {
			j.future.complete(ErrStopped)
		}
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for j := range p.jobs {
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		err := p.run(j.task)
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
			p.logger.Error("task failed",
				zap.String("kind", string(j.task.Kind)),
				zap.String("video_id", j.task.VideoID.String()),
				zap.Error(err),
			)
		}
		metrics.WorkerTasksTotal.WithLabelValues(string(j.task.Kind), status).Inc()
		j.future.complete(err)
	}
}

func (p *Pool) run(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return p.handler(p.ctx, t)
}
