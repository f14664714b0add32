// Package ledger posts extracted transactions into the finance app's
// internal transaction API.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"bankmail/internal/model"
	"bankmail/pkg/config"
	"bankmail/pkg/metrics"
)

// serviceTokenTTL bounds how long a minted service token stays valid. One
// token per post keeps the window small.
const serviceTokenTTL = 15 * time.Minute

// Client is the ledger API client used by the email processor. Requests
// are authenticated with a short-lived HS256 service token carrying the
// user the transaction belongs to.
type Client struct {
	baseURL    string
	jwtSecret  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg config.LedgerConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		jwtSecret: cfg.JWTSecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// CreateTransaction posts one candidate to the ledger API. A nil error
// means the API reported success; any failure carries enough detail for
// the processor's per-email error list.
func (c *Client) CreateTransaction(ctx context.Context, userID int, tx *model.TransactionCandidate) error {
	token, err := c.serviceToken(userID)
	if err != nil {
		return fmt.Errorf("failed to mint service token: %w", err)
	}

	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	url := c.baseURL + "/api/v1/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordLedgerPostLatency("error", time.Since(start))
		return fmt.Errorf("failed to call ledger API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordLedgerPostLatency("error", time.Since(start))
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ledger API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	metrics.RecordLedgerPostLatency("ok", time.Since(start))
	c.logger.Debug("Transaction posted to ledger API",
		zap.Int("user_id", userID),
		zap.String("email_id", tx.EmailID),
	)
	return nil
}

func (c *Client) serviceToken(userID int) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"service": "email-automation",
		"iat":     now.Unix(),
		"exp":     now.Add(serviceTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.jwtSecret))
}
