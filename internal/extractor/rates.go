package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FallbackRate is used for USD/INR when no exchange-rate API key is
// configured or the API call fails.
const FallbackRate = 83.0

type rateEntry struct {
	rate     float64
	fetchedAt time.Time
}

// RateCache caches exchange rates with a TTL and fetches misses from
// exchangerate-api.com. It is an explicit, injectable object so tests
// control expiry; nothing here is process-global.
type RateCache struct {
	ttl        time.Duration
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	mu      sync.Mutex
	entries map[string]rateEntry

	now func() time.Time
}

func NewRateCache(ttl time.Duration, apiKey string, logger *zap.Logger) *RateCache {
	return &RateCache{
		ttl:        ttl,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		entries:    make(map[string]rateEntry),
		now:        time.Now,
	}
}

// GetRate returns the exchange rate between two currencies, from cache
// when fresh. Any failure degrades to the fallback rate; conversion never
// blocks a processing pass on the rate API.
func (c *RateCache) GetRate(ctx context.Context, from, to string) float64 {
	key := from + "/" + to

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.rate
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	rate := c.fetchRate(ctx, from, to)

	c.mu.Lock()
	c.entries[key] = rateEntry{rate: rate, fetchedAt: c.now()}
	c.mu.Unlock()

	return rate
}

// Convert converts a numeric amount string between currencies, formatted
// to two decimals. Unparseable amounts are returned unchanged.
func (c *RateCache) Convert(ctx context.Context, amount, from, to string) string {
	if from == to {
		return amount
	}

	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		c.logger.Warn("Failed to parse amount for currency conversion",
			zap.String("amount", amount),
			zap.Error(err),
		)
		return amount
	}

	rate := c.GetRate(ctx, from, to)
	return fmt.Sprintf("%.2f", value*rate)
}

// Clear drops all cached rates.
func (c *RateCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]rateEntry)
	c.mu.Unlock()
}

func (c *RateCache) fetchRate(ctx context.Context, from, to string) float64 {
	if c.apiKey == "" {
		c.logger.Warn("No exchange rate API key configured, using fallback rate",
			zap.String("pair", from+"/"+to),
		)
		return FallbackRate
	}

	url := fmt.Sprintf("https://v6.exchangerate-api.com/v6/%s/pair/%s/%s", c.apiKey, from, to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("Failed to build exchange rate request", zap.Error(err))
		return FallbackRate
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Exchange rate API call failed", zap.Error(err))
		return FallbackRate
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Exchange rate API returned error",
			zap.Int("status", resp.StatusCode),
		)
		return FallbackRate
	}

	var payload struct {
		ConversionRate float64 `json:"conversion_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Error("Failed to decode exchange rate response", zap.Error(err))
		return FallbackRate
	}
	if payload.ConversionRate == 0 {
		return FallbackRate
	}
	return payload.ConversionRate
}
