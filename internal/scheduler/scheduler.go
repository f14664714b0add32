// Package scheduler decides when each user's inbox is next due for a poll
// and enqueues the corresponding one-shot processing job, guaranteeing at
// most one pending job per user.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bankmail/internal/model"
	"bankmail/internal/queue"
	"bankmail/pkg/metrics"
)

// Polling intervals recognized on a configuration. Anything else falls
// back to hourly.
const (
	IntervalHourly = "hourly"
	IntervalDaily  = "daily"
)

// ErrIntervalNotSet is returned when a configuration's polling interval is
// NULL. This is deliberately not covered by the hourly fallback: a row
// with no interval at all is a data problem worth surfacing per user
// rather than silently defaulting.
var ErrIntervalNotSet = errors.New("polling interval not set")

// ConfigSource lists the enabled per-user configurations.
type ConfigSource interface {
	ListEnabled(ctx context.Context) ([]model.EmailConfiguration, error)
}

// DelayedEnqueuer registers a one-shot job at a target run time.
type DelayedEnqueuer interface {
	EnqueueAt(ctx context.Context, runAt time.Time, fn string, userID int, jobID string) error
}

// PendingInspector answers whether a user already has a pending job.
type PendingInspector interface {
	HasUserJobPending(ctx context.Context, userID int) bool
	GetUserJobStatus(ctx context.Context, userID int) queue.JobStatus
}

// EmailScheduler schedules email processing jobs for all enabled users.
type EmailScheduler struct {
	configs   ConfigSource
	queue     DelayedEnqueuer
	inspector PendingInspector
	logger    *zap.Logger

	now func() time.Time
}

func NewEmailScheduler(
	configs ConfigSource,
	q DelayedEnqueuer,
	inspector PendingInspector,
	logger *zap.Logger,
) *EmailScheduler {
	return &EmailScheduler{
		configs:   configs,
		queue:     q,
		inspector: inspector,
		logger:    logger,
		now:       time.Now,
	}
}

// ScheduleJobs runs one scheduling pass over every enabled configuration.
// A failing configuration query is logged and the pass returns without
// scheduling anything; per-user failures never abort the loop.
func (s *EmailScheduler) ScheduleJobs(ctx context.Context) {
	configs, err := s.configs.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("Failed to list enabled email configurations", zap.Error(err))
		return
	}

	for i := range configs {
		s.scheduleUserJob(ctx, &configs[i])
	}
}

func (s *EmailScheduler) scheduleUserJob(ctx context.Context, cfg *model.EmailConfiguration) {
	if s.inspector.HasUserJobPending(ctx, cfg.UserID) {
		status := s.inspector.GetUserJobStatus(ctx, cfg.UserID)
		s.logger.Info("Skipping user with pending job",
			zap.Int("user_id", cfg.UserID),
			zap.Bool("running", status.Running),
			zap.Bool("scheduled", status.Scheduled),
			zap.Bool("queued", status.Queued),
		)
		metrics.IncrementSchedulerUser("skipped_pending")
		return
	}

	nextRun, err := s.CalculateNextRun(cfg)
	if err != nil {
		s.logger.Error("Failed to calculate next run for user",
			zap.Int("user_id", cfg.UserID),
			zap.Error(err),
		)
		metrics.IncrementSchedulerUser("error")
		return
	}
	if nextRun.IsZero() {
		return
	}

	jobID := queue.GenerateJobID(cfg.UserID, nextRun)

	err = s.queue.EnqueueAt(ctx, nextRun, queue.FuncProcessUserEmails, cfg.UserID, jobID)
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			// Same user and time slot already registered; the deterministic
			// ID did its job.
			s.logger.Info("Job for this slot already exists",
				zap.String("job_id", jobID),
				zap.Int("user_id", cfg.UserID),
			)
			metrics.IncrementSchedulerUser("skipped_pending")
			return
		}
		s.logger.Error("Failed to enqueue job for user",
			zap.String("job_id", jobID),
			zap.Int("user_id", cfg.UserID),
			zap.Error(err),
		)
		metrics.IncrementSchedulerUser("error")
		return
	}

	s.logger.Info("Scheduled email processing job",
		zap.String("job_id", jobID),
		zap.Int("user_id", cfg.UserID),
		zap.String("email_address", cfg.EmailAddress),
		zap.Time("run_at", nextRun),
	)
	metrics.IncrementSchedulerUser("enqueued")
	metrics.IncrementJobsEnqueued()
}

// CalculateNextRun computes when the user's inbox is next due. Never-
// checked users are due immediately, overdue users run now rather than at
// the stale due time, and an unrecognized interval falls back to hourly.
// A NULL interval is an error, not a fallback.
func (s *EmailScheduler) CalculateNextRun(cfg *model.EmailConfiguration) (time.Time, error) {
	now := s.now().UTC()

	if cfg.LastCheckTime == nil {
		return now, nil
	}

	if cfg.PollingInterval == nil {
		return time.Time{}, fmt.Errorf("user %d: %w", cfg.UserID, ErrIntervalNotSet)
	}

	var interval time.Duration
	switch strings.ToLower(*cfg.PollingInterval) {
	case IntervalDaily:
		interval = 24 * time.Hour
	case IntervalHourly:
		interval = time.Hour
	default:
		interval = time.Hour
	}

	nextRun := cfg.LastCheckTime.Add(interval)
	if nextRun.Before(now) {
		return now, nil
	}
	return nextRun, nil
}
