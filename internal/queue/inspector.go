package queue

import (
	"context"

	"go.uber.org/zap"
)

// Registry is the read-only view of a queue's three job collections the
// inspector scans. *Queue satisfies it; tests substitute fakes.
type Registry interface {
	QueuedJobIDs(ctx context.Context) ([]string, error)
	ScheduledJobIDs(ctx context.Context) ([]string, error)
	StartedJobIDs(ctx context.Context) ([]string, error)
	FetchJob(ctx context.Context, jobID string) (*Job, error)
}

// JobStatus is the combined diagnostic view of a user's pending jobs.
type JobStatus struct {
	UserID        int  `json:"user_id"`
	Running       bool `json:"has_running_job"`
	Scheduled     bool `json:"has_scheduled_job"`
	Queued        bool `json:"has_queued_job"`
	HasAnyPending bool `json:"has_any_pending"`
}

// Inspector answers whether a user currently has an email processing job
// in any non-terminal state. It is strictly read-only and fails open: a
// backend error makes a probe report false rather than blocking the
// scheduler, matching the dedup check's advisory role.
type Inspector struct {
	registry Registry
	logger   *zap.Logger
}

func NewInspector(registry Registry, logger *zap.Logger) *Inspector {
	return &Inspector{registry: registry, logger: logger}
}

// IsUserJobRunning reports whether a worker currently holds a job for the
// user.
func (i *Inspector) IsUserJobRunning(ctx context.Context, userID int) bool {
	ids, err := i.registry.StartedJobIDs(ctx)
	if err != nil {
		i.logger.Error("Failed to list started jobs",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return i.anyMatches(ctx, ids, userID, "running")
}

// IsUserJobScheduled reports whether the user has a job registered for
// future execution.
func (i *Inspector) IsUserJobScheduled(ctx context.Context, userID int) bool {
	ids, err := i.registry.ScheduledJobIDs(ctx)
	if err != nil {
		i.logger.Error("Failed to list scheduled jobs",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return i.anyMatches(ctx, ids, userID, "scheduled")
}

// IsUserJobQueued reports whether the user has a job waiting on the
// pending list.
func (i *Inspector) IsUserJobQueued(ctx context.Context, userID int) bool {
	ids, err := i.registry.QueuedJobIDs(ctx)
	if err != nil {
		i.logger.Error("Failed to list queued jobs",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return i.anyMatches(ctx, ids, userID, "queued")
}

// HasUserJobPending reports whether the user has a job in any of the
// three non-terminal states. This is the scheduler's dedup guarantee.
func (i *Inspector) HasUserJobPending(ctx context.Context, userID int) bool {
	return i.IsUserJobRunning(ctx, userID) ||
		i.IsUserJobScheduled(ctx, userID) ||
		i.IsUserJobQueued(ctx, userID)
}

// GetUserJobStatus returns the combined per-state view for diagnostics.
func (i *Inspector) GetUserJobStatus(ctx context.Context, userID int) JobStatus {
	status := JobStatus{
		UserID:    userID,
		Running:   i.IsUserJobRunning(ctx, userID),
		Scheduled: i.IsUserJobScheduled(ctx, userID),
		Queued:    i.IsUserJobQueued(ctx, userID),
	}
	status.HasAnyPending = status.Running || status.Scheduled || status.Queued
	return status
}

// anyMatches scans job records for the processing entry point targeting
// this user. A record that cannot be fetched or decoded is treated as
// not-matching; a malformed job must never crash the inspector.
func (i *Inspector) anyMatches(ctx context.Context, ids []string, userID int, state string) bool {
	for _, id := range ids {
		job, err := i.registry.FetchJob(ctx, id)
		if err != nil {
			i.logger.Debug("Skipping unreadable job during dedup scan",
				zap.String("job_id", id),
				zap.String("state", state),
				zap.Error(err),
			)
			continue
		}
		if job.Func == FuncProcessUserEmails && job.UserID == userID {
			i.logger.Info("Found pending job for user",
				zap.String("job_id", id),
				zap.String("state", state),
				zap.Int("user_id", userID),
			)
			return true
		}
	}
	return false
}
