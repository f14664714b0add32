// Package queue implements the delayed one-shot job primitive the email
// automation runs on: JSON job records in Redis, a pending list per queue,
// a scheduled set scored by run time and a started set tracking live jobs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job statuses. Queued, scheduled and started are the non-terminal
// ("pending") states; finished and failed are terminal.
const (
	StatusQueued    = "queued"
	StatusScheduled = "scheduled"
	StatusStarted   = "started"
	StatusFinished  = "finished"
	StatusFailed    = "failed"
)

// FuncProcessUserEmails names the standalone per-user processing entry
// point. It is the only function the email_processing queue carries.
const FuncProcessUserEmails = "process_user_emails"

// EmailProcessingQueue is the logical queue all email jobs target,
// distinct from any default queue.
const EmailProcessingQueue = "email_processing"

// Job is one enqueued unit of work: the standalone entry point plus the
// user it runs for.
type Job struct {
	ID         string          `json:"id"`
	Func       string          `json:"func"`
	UserID     int             `json:"user_id"`
	Queue      string          `json:"queue"`
	Status     string          `json:"status"`
	RunAt      time.Time       `json:"run_at"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// GenerateJobID derives the deterministic job identifier for a user and
// target run time. The same (user, time) pair always collides with itself,
// which is what makes re-scheduling idempotent.
func GenerateJobID(userID int, ts time.Time) string {
	return fmt.Sprintf("email_process_%d_%d", userID, ts.Unix())
}

type jobCtxKey struct{}

// WithJob attaches the executing job to the context. The worker does this
// before invoking a handler.
func WithJob(ctx context.Context, job *Job) context.Context {
	return context.WithValue(ctx, jobCtxKey{}, job)
}

// JobFromContext returns the executing job, or nil outside a worker.
func JobFromContext(ctx context.Context) *Job {
	job, _ := ctx.Value(jobCtxKey{}).(*Job)
	return job
}
