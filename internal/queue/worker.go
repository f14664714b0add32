package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Handler executes one job for a user and returns a JSON-serializable
// result. A returned error marks the job failed.
type Handler func(ctx context.Context, userID int) (any, error)

// Worker drains a queue: it promotes due scheduled jobs, pops the pending
// list and runs the registered handler for each job, tracking the started
// set so the inspector can see live jobs.
type Worker struct {
	queue    *Queue
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewWorker(queue *Queue, logger *zap.Logger) *Worker {
	return &Worker{
		queue:    queue,
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a job function name.
func (w *Worker) Register(fn string, h Handler) {
	w.handlers[fn] = h
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started", zap.String("queue", w.queue.Name()))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping", zap.String("queue", w.queue.Name()))
			return ctx.Err()
		default:
		}

		if _, err := w.queue.PromoteDue(ctx); err != nil {
			w.logger.Error("Failed to promote due jobs", zap.Error(err))
		}

		jobID, err := w.queue.popPending(ctx, time.Second)
		if err != nil {
			if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
				w.logger.Error("Failed to pop pending job", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}

		w.runJob(ctx, jobID)
	}
}

func (w *Worker) runJob(ctx context.Context, jobID string) {
	job, err := w.queue.FetchJob(ctx, jobID)
	if err != nil {
		w.logger.Error("Failed to load popped job",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return
	}

	handler, ok := w.handlers[job.Func]
	if !ok {
		w.logger.Error("No handler registered for job function",
			zap.String("job_id", job.ID),
			zap.String("func", job.Func),
		)
		w.queue.markFailed(ctx, job, fmt.Sprintf("no handler for %q", job.Func))
		return
	}

	if err := w.queue.markStarted(ctx, job); err != nil {
		w.logger.Warn("Failed to mark job started",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}

	w.logger.Info("Executing job",
		zap.String("job_id", job.ID),
		zap.String("func", job.Func),
		zap.Int("user_id", job.UserID),
	)

	func() {
		// A panicking handler fails the job, never the worker loop.
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Handler panic recovered",
					zap.String("job_id", job.ID),
					zap.Any("panic", r),
				)
				w.queue.markFailed(ctx, job, fmt.Sprintf("panic: %v", r))
			}
		}()

		result, err := handler(WithJob(ctx, job), job.UserID)
		if err != nil {
			w.logger.Error("Job failed",
				zap.String("job_id", job.ID),
				zap.Int("user_id", job.UserID),
				zap.Error(err),
			)
			w.queue.markFailed(ctx, job, err.Error())
			return
		}
		w.queue.markFinished(ctx, job, result)
	}()
}

// popPending blocks up to timeout waiting for a job ID on the pending
// list. Returns redis.Nil when nothing arrived.
func (q *Queue) popPending(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.pendingKey()).Result()
	if err != nil {
		return "", err
	}
	// BRPop returns [key, value].
	return res[1], nil
}

func (q *Queue) markStarted(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.Status = StatusStarted
	job.StartedAt = &now
	if err := q.rdb.SAdd(ctx, q.startedKey(), job.ID).Err(); err != nil {
		return err
	}
	return q.saveJob(ctx, job)
}

func (q *Queue) markFinished(ctx context.Context, job *Job, result any) {
	q.finalize(ctx, job, StatusFinished, result, "")
}

func (q *Queue) markFailed(ctx context.Context, job *Job, errMsg string) {
	q.finalize(ctx, job, StatusFailed, nil, errMsg)
}

func (q *Queue) finalize(ctx context.Context, job *Job, status string, result any, errMsg string) {
	now := time.Now().UTC()
	job.Status = status
	job.EndedAt = &now
	job.Error = errMsg

	if result != nil {
		body, err := json.Marshal(result)
		if err != nil {
			q.logger.Warn("Failed to marshal job result",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		} else {
			job.Result = body
		}
	}

	if err := q.rdb.SRem(ctx, q.startedKey(), job.ID).Err(); err != nil {
		q.logger.Warn("Failed to clear started registry entry",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
	if err := q.saveJob(ctx, job); err != nil {
		q.logger.Error("Failed to persist job outcome",
			zap.String("job_id", job.ID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}
