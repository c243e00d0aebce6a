package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clipreview/backend/internal/metrics"
	"github.com/clipreview/backend/pkg/queue"
)

// QueueScheduler publishes tasks to the Redis queue for cmd/worker.
type QueueScheduler struct {
	queue  *queue.Queue
	logger *zap.Logger
}

// NewQueueScheduler creates a scheduler backed by q.
func NewQueueScheduler(q *queue.Queue, logger *zap.Logger) *QueueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueScheduler{queue: q, logger: logger}
}

// Schedule enqueues t.
func (s *QueueScheduler) Schedule(ctx context.Context, t Task) error {
	job, err := s.queue.Enqueue(ctx, queue.JobType(t.Kind), t)
	if err != nil {
		return fmt.Errorf("enqueue %s task: %w", t.Kind, err)
	}
	s.logger.Debug("task enqueued", zap.String("job_id", job.ID), zap.String("kind", string(t.Kind)), zap.String("video_id", t.VideoID.String()))
	return nil
}

// TaskFromJob decodes the task carried by a queue job.
func TaskFromJob(job *queue.Job) (Task, error) {
	var t Task
	if err := json.Unmarshal(job.Payload, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	switch t.Kind {
	case KindProcess, KindTranscribe:
	default:
		return Task{}, fmt.Errorf("unknown task kind: %q", t.Kind)
	}
	if string(t.Kind) != string(job.Type) {
		return Task{}, fmt.Errorf("job type %s does not match task kind %s", job.Type, t.Kind)
	}
	return t, nil
}

// Consumer drains the Redis queue into a Pool. Failed tasks are dead-lettered.
type Consumer struct {
	queue  *queue.Queue
	pool   *Pool
	logger *zap.Logger
}

// NewConsumer creates a consumer. pool must already be started.
func NewConsumer(q *queue.Queue, pool *Pool, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{queue: q, pool: pool, logger: logger}
}

// Run starts the consumer loop: dequeue, run on the pool, dead-letter on error.
func (c *Consumer) Run(ctx context.Context) {
	depthTicker := time.NewTicker(15 * time.Second)
	defer depthTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("task consumer stopping")
			return
		case <-depthTicker.C:
			if n, err := c.queue.Depth(ctx); err == nil {
				metrics.WorkerQueueDepth.Set(float64(n))
			}
		default:
		}

		job, err := c.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("dequeue error", zap.Error(err))
			sleepCtx(ctx, queue.ErrorBackoff)
			continue
		}
		if job == nil {
			continue
		}

		t, err := TaskFromJob(job)
		if err != nil {
			c.deadLetter(job, err)
			continue
		}
		c.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("kind", string(t.Kind)))
		future, err := c.pool.SubmitWait(ctx, t)
		if err != nil {
			c.requeue(job)
			continue
		}
		go c.await(job, future)
	}
}

func (c *Consumer) await(job *queue.Job, f *Future) {
	<-f.Done()
	if f.err != nil {
		c.deadLetter(job, f.err)
	}
}

func (c *Consumer) deadLetter(job *queue.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.queue.DeadLetter(ctx, job, cause); err != nil {
		c.logger.Error("dead-letter failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// requeue hands a job that was dequeued during shutdown back to the queue.
func (c *Consumer) requeue(job *queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.queue.Requeue(ctx, job); err != nil {
		c.logger.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
