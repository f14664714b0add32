// Package processor implements the per-user email processing pipeline:
// load configuration, decrypt credentials, poll the inbox since the
// checkpoint, extract and post transactions, and advance the checkpoint.
package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bankmail/internal/imapclient"
	"bankmail/internal/model"
	"bankmail/internal/queue"
	"bankmail/pkg/metrics"
	"bankmail/pkg/mq"
)

// ConfigStore reads and checkpoints a user's email configuration.
type ConfigStore interface {
	FindByUserID(ctx context.Context, userID int) (*model.EmailConfiguration, error)
	UpdateLastCheckTime(ctx context.Context, userID int, t time.Time) error
}

// MailSession is one open IMAP session.
type MailSession interface {
	UnreadSince(since time.Time, senders []string) ([]imapclient.Email, error)
	MarkProcessed(uid uint32) error
	Disconnect() error
}

// DialFunc opens a mail session against the configured server. The
// concrete implementation is imapclient; tests substitute fakes.
type DialFunc func(server string, port int, username, password string) (MailSession, error)

// Extractor turns an email body into a transaction candidate.
type Extractor interface {
	Extract(ctx context.Context, body string, samples []model.SampleEmail) (*model.TransactionCandidate, error)
}

// TransactionPoster posts a candidate to the ledger API.
type TransactionPoster interface {
	CreateTransaction(ctx context.Context, userID int, tx *model.TransactionCandidate) error
}

// DecryptFunc decrypts a stored credential.
type DecryptFunc func(encrypted string) (string, error)

// EventPublisher emits domain events after processing. May be nil when no
// broker is configured; publishing failures are logged, never fatal.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// EmailProcessor runs the pipeline for one user at a time. It holds no
// per-run state; every pass re-reads the configuration and opens fresh
// connections.
type EmailProcessor struct {
	configs   ConfigStore
	dial      DialFunc
	extractor Extractor
	ledger    TransactionPoster
	decrypt   DecryptFunc
	events    EventPublisher
	logger    *zap.Logger

	now func() time.Time
}

func NewEmailProcessor(
	configs ConfigStore,
	dial DialFunc,
	extractor Extractor,
	ledger TransactionPoster,
	decrypt DecryptFunc,
	events EventPublisher,
	logger *zap.Logger,
) *EmailProcessor {
	return &EmailProcessor{
		configs:   configs,
		dial:      dial,
		extractor: extractor,
		ledger:    ledger,
		decrypt:   decrypt,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessUserEmails runs one full processing pass for a user. Individual
// email failures are accumulated and the pass still succeeds; only
// failures outside the per-email loop fail the whole call. The IMAP
// session is disconnected on every exit path once opened.
func (p *EmailProcessor) ProcessUserEmails(ctx context.Context, userID int) model.Result {
	job := queue.JobFromContext(ctx)
	if job == nil {
		p.logger.Error("No job context found", zap.Int("user_id", userID))
		return model.ErrorResult("no job context found")
	}

	p.logger.Info("Starting email processing",
		zap.Int("user_id", userID),
		zap.String("job_id", job.ID),
	)

	cfg, err := p.configs.FindByUserID(ctx, userID)
	if err != nil {
		p.logger.Error("Failed to load email configuration",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return model.ErrorResult(fmt.Sprintf("failed to load configuration: %v", err))
	}
	if cfg == nil || !cfg.IsEnabled {
		p.logger.Info("Email configuration not found or disabled",
			zap.Int("user_id", userID),
		)
		return model.SkippedResult(model.ReasonConfigNotFoundOrDisabled)
	}

	password, err := p.decrypt(cfg.AppPassword)
	if err != nil || password == "" {
		p.logger.Error("Failed to decrypt app password",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return model.ErrorResult("Failed to decrypt app password")
	}

	session, err := p.dial(cfg.IMAPServer, cfg.IMAPPort, cfg.EmailAddress, password)
	if err != nil {
		p.logger.Error("Failed to connect to IMAP server",
			zap.Int("user_id", userID),
			zap.String("server", cfg.IMAPServer),
			zap.Error(err),
		)
		return model.ErrorResult(fmt.Sprintf("failed to connect: %v", err))
	}
	defer func() {
		if err := session.Disconnect(); err != nil {
			p.logger.Warn("Failed to disconnect IMAP session",
				zap.Int("user_id", userID),
				zap.Error(err),
			)
		}
	}()

	samples, err := cfg.ParseSampleEmails()
	if err != nil {
		p.logger.Warn("Failed to parse sample emails, continuing without",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		samples = nil
	}

	var since time.Time
	if cfg.LastCheckTime != nil {
		since = *cfg.LastCheckTime
	}

	emails, err := session.UnreadSince(since, cfg.BankAddresses(samples))
	if err != nil {
		p.logger.Error("Failed to fetch unread emails",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return model.ErrorResult(fmt.Sprintf("failed to fetch emails: %v", err))
	}

	processed, errs := p.processBatch(ctx, userID, session, emails, samples)

	// The checkpoint advances after every completed pass, even a partially
	// failed one. Retry of failed posts rides on the messages staying
	// unseen, not on rolling the checkpoint back.
	checkpoint := p.now().UTC()
	if err := p.configs.UpdateLastCheckTime(ctx, userID, checkpoint); err != nil {
		p.logger.Error("Failed to advance checkpoint",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return model.ErrorResult(fmt.Sprintf("failed to update last check time: %v", err))
	}

	p.publish(mq.RoutingEmailsProcessed, map[string]any{
		"user_id":         userID,
		"fetched":         len(emails),
		"processed_count": processed,
		"error_count":     len(errs),
		"checkpoint":      checkpoint,
	})

	p.logger.Info("Email processing completed",
		zap.Int("user_id", userID),
		zap.Int("fetched", len(emails)),
		zap.Int("processed", processed),
		zap.Int("errors", len(errs)),
	)

	return model.SuccessResult(processed, errs)
}

// processBatch attempts every fetched email independently and returns the
// fold of outcomes. One bad email never aborts the rest of the batch.
func (p *EmailProcessor) processBatch(
	ctx context.Context,
	userID int,
	session MailSession,
	emails []imapclient.Email,
	samples []model.SampleEmail,
) (int, []string) {
	processed := 0
	var errs []string

	for _, email := range emails {
		candidate, err := p.extractor.Extract(ctx, email.Body, samples)
		if err != nil {
			// Extraction trouble means "no transaction data", not a batch
			// error.
			p.logger.Warn("Extraction failed for email, skipping",
				zap.Int("user_id", userID),
				zap.Uint32("email_uid", email.UID),
				zap.Error(err),
			)
			metrics.IncrementEmailProcessed("skipped")
			continue
		}

		if !candidate.Actionable() {
			p.logger.Info("Skipping email without transaction data",
				zap.Int("user_id", userID),
				zap.Uint32("email_uid", email.UID),
			)
			metrics.IncrementEmailProcessed("skipped")
			continue
		}

		candidate.EmailID = fmt.Sprintf("%d", email.UID)
		candidate.EmailSubject = email.Subject
		candidate.EmailFrom = email.From
		if !email.Date.IsZero() {
			candidate.EmailDate = email.Date.Format(time.RFC3339)
		}

		if err := p.ledger.CreateTransaction(ctx, userID, candidate); err != nil {
			msg := fmt.Sprintf("failed to create transaction for email %d: %v", email.UID, err)
			p.logger.Error("Ledger post failed",
				zap.Int("user_id", userID),
				zap.Uint32("email_uid", email.UID),
				zap.Error(err),
			)
			errs = append(errs, msg)
			metrics.IncrementEmailProcessed("failed")
			p.publish(mq.RoutingTransactionPostFailed, map[string]any{
				"user_id":   userID,
				"email_uid": email.UID,
				"error":     err.Error(),
			})
			// Leave the message unseen so the next poll retries it.
			continue
		}

		processed++
		metrics.IncrementEmailProcessed("posted")
		p.publish(mq.RoutingTransactionCreated, map[string]any{
			"user_id":   userID,
			"email_uid": email.UID,
			"amount":    candidate.Amount,
			"recipient": candidate.Recipient,
		})

		if err := session.MarkProcessed(email.UID); err != nil {
			// The transaction exists; an unmarked message risks a duplicate
			// post next poll, so this is a batch error worth surfacing.
			msg := fmt.Sprintf("failed to mark email %d processed: %v", email.UID, err)
			p.logger.Error("Failed to mark email processed",
				zap.Int("user_id", userID),
				zap.Uint32("email_uid", email.UID),
				zap.Error(err),
			)
			errs = append(errs, msg)
			continue
		}

		p.logger.Info("Processed email",
			zap.Int("user_id", userID),
			zap.Uint32("email_uid", email.UID),
		)
	}

	return processed, errs
}

func (p *EmailProcessor) publish(routingKey string, payload any) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(routingKey, payload); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
