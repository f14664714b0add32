package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bankmail/internal/extractor"
	"bankmail/internal/imapclient"
	"bankmail/internal/ledger"
	"bankmail/internal/model"
	"bankmail/internal/repository"
	"bankmail/pkg/config"
	"bankmail/pkg/db"
	"bankmail/pkg/secrets"
)

// Standalone is the externally-enqueued processing entry point. It runs
// inside a queue worker with no inherited database session, so each run
// opens its own pool and closes it before returning.
type Standalone struct {
	cfg    *config.Config
	events EventPublisher
	logger *zap.Logger
}

func NewStandalone(cfg *config.Config, events EventPublisher, logger *zap.Logger) *Standalone {
	return &Standalone{cfg: cfg, events: events, logger: logger}
}

// Run processes one user's inbox end to end. Every failure comes back as
// an error result; the worker never sees a panic or a crash from here.
func (s *Standalone) Run(ctx context.Context, userID int) model.Result {
	if s.cfg.DB.Host == "" || s.cfg.DB.Name == "" {
		s.logger.Error("Database configuration not set", zap.Int("user_id", userID))
		return model.ErrorResult("database configuration not set")
	}

	pool, err := db.NewConnection(s.cfg.DB, s.logger)
	if err != nil {
		s.logger.Error("Failed to open database connection",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return model.ErrorResult(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer pool.Close()

	cipher, err := secrets.NewCipher(s.cfg.Encryption.Key)
	if err != nil {
		s.logger.Error("Invalid encryption key", zap.Error(err))
		return model.ErrorResult(fmt.Sprintf("invalid encryption key: %v", err))
	}

	configRepo := repository.NewEmailConfigRepository(pool)

	var keys extractor.KeyProvider
	if s.cfg.Extractor.APIKey != "" {
		keys = extractor.StaticKeyProvider{Key: s.cfg.Extractor.APIKey}
	} else {
		keys = extractor.NewSettingsKeyProvider(repository.NewSettingsRepository(pool), cipher)
	}

	rates := extractor.NewRateCache(
		time.Duration(s.cfg.Extractor.RateCacheTTLMin)*time.Minute,
		s.cfg.Extractor.ExchangeRateAPIKey,
		s.logger,
	)
	ext := extractor.NewGeminiExtractor(s.cfg.Extractor, keys, rates, s.logger)
	ledgerClient := ledger.NewClient(s.cfg.Ledger, s.logger)

	dial := func(server string, port int, username, password string) (MailSession, error) {
		c := imapclient.New(server, port, username, password, s.logger)
		if err := c.Connect(); err != nil {
			return nil, err
		}
		return c, nil
	}

	p := NewEmailProcessor(
		configRepo,
		dial,
		ext,
		ledgerClient,
		cipher.Decrypt,
		s.events,
		s.logger,
	)
	return p.ProcessUserEmails(ctx, userID)
}
