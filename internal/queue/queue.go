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

var (
	// ErrJobNotFound is returned when a job ID has no record (unknown or
	// expired).
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when enqueueing under an ID that already
	// has a record. Deterministic IDs make re-scheduling the same slot
	// collide here instead of duplicating.
	ErrDuplicateJob = errors.New("job already exists")
)

// Job records expire well after any sane polling interval so the status
// API stays useful for diagnostics without leaking keys forever.
const jobTTL = 7 * 24 * time.Hour

// Queue is a named delayed job queue on Redis.
type Queue struct {
	rdb    *redis.Client
	name   string
	logger *zap.Logger
}

func NewQueue(rdb *redis.Client, name string, logger *zap.Logger) *Queue {
	return &Queue{rdb: rdb, name: name, logger: logger}
}

// Name returns the logical queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) jobKey(id string) string { return "jobs:job:" + id }
func (q *Queue) pendingKey() string      { return "jobs:queue:" + q.name }
func (q *Queue) scheduledKey() string    { return "jobs:scheduled:" + q.name }
func (q *Queue) startedKey() string      { return "jobs:started:" + q.name }

// EnqueueAt registers a one-shot job under the given ID. A future run time
// lands in the scheduled set; a due one goes straight onto the pending
// list. Enqueueing an ID that already exists fails with ErrDuplicateJob.
func (q *Queue) EnqueueAt(ctx context.Context, runAt time.Time, fn string, userID int, jobID string) error {
	now := time.Now().UTC()
	job := &Job{
		ID:         jobID,
		Func:       fn,
		UserID:     userID,
		Queue:      q.name,
		RunAt:      runAt,
		EnqueuedAt: now,
	}

	if runAt.After(now) {
		job.Status = StatusScheduled
	} else {
		job.Status = StatusQueued
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", jobID, err)
	}

	created, err := q.rdb.SetNX(ctx, q.jobKey(jobID), body, jobTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", jobID, err)
	}
	if !created {
		return ErrDuplicateJob
	}

	if job.Status == StatusScheduled {
		err = q.rdb.ZAdd(ctx, q.scheduledKey(), redis.Z{
			Score:  float64(runAt.Unix()),
			Member: jobID,
		}).Err()
	} else {
		err = q.rdb.LPush(ctx, q.pendingKey(), jobID).Err()
	}
	if err != nil {
		// Drop the orphaned record so a retry is not rejected as duplicate.
		q.rdb.Del(ctx, q.jobKey(jobID))
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	return nil
}

// Enqueue registers a job for immediate execution.
func (q *Queue) Enqueue(ctx context.Context, fn string, userID int, jobID string) error {
	return q.EnqueueAt(ctx, time.Now().UTC(), fn, userID, jobID)
}

// FetchJob loads a job record by ID.
func (q *Queue) FetchJob(ctx context.Context, jobID string) (*Job, error) {
	body, err := q.rdb.Get(ctx, q.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("malformed job record %s: %w", jobID, err)
	}
	return &job, nil
}

// Status returns a job's current status, or ErrJobNotFound.
func (q *Queue) Status(ctx context.Context, jobID string) (string, error) {
	job, err := q.FetchJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// QueuedJobIDs lists jobs waiting on the pending list.
func (q *Queue) QueuedJobIDs(ctx context.Context) ([]string, error) {
	return q.rdb.LRange(ctx, q.pendingKey(), 0, -1).Result()
}

// ScheduledJobIDs lists jobs registered for future execution.
func (q *Queue) ScheduledJobIDs(ctx context.Context) ([]string, error) {
	return q.rdb.ZRange(ctx, q.scheduledKey(), 0, -1).Result()
}

// StartedJobIDs lists jobs currently held by a worker.
func (q *Queue) StartedJobIDs(ctx context.Context) ([]string, error) {
	return q.rdb.SMembers(ctx, q.startedKey()).Result()
}

// PromoteDue moves scheduled jobs whose run time has arrived onto the
// pending list. Returns how many were promoted.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	ids, err := q.rdb.ZRangeByScore(ctx, q.scheduledKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan scheduled jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.scheduledKey(), id).Result()
		if err != nil {
			q.logger.Error("Failed to remove scheduled job",
				zap.String("job_id", id),
				zap.Error(err),
			)
			continue
		}
		if removed == 0 {
			// Another scheduler instance promoted it first.
			continue
		}

		if err := q.updateStatus(ctx, id, StatusQueued); err != nil {
			q.logger.Warn("Failed to update promoted job status",
				zap.String("job_id", id),
				zap.Error(err),
			)
		}
		if err := q.rdb.LPush(ctx, q.pendingKey(), id).Err(); err != nil {
			q.logger.Error("Failed to push promoted job",
				zap.String("job_id", id),
				zap.Error(err),
			)
			continue
		}
		promoted++
	}
	return promoted, nil
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	return q.rdb.Set(ctx, q.jobKey(job.ID), body, jobTTL).Err()
}

func (q *Queue) updateStatus(ctx context.Context, jobID, status string) error {
	job, err := q.FetchJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = status
	return q.saveJob(ctx, job)
}
