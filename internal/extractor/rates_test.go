package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetRateFallbackWithoutKey(t *testing.T) {
	c := NewRateCache(time.Hour, "", zap.NewNop())

	assert.Equal(t, FallbackRate, c.GetRate(context.Background(), "USD", "INR"))
}

func TestGetRateCachesWithinTTL(t *testing.T) {
	c := NewRateCache(time.Hour, "", zap.NewNop())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.entries["USD/INR"] = rateEntry{rate: 85.5, fetchedAt: base.Add(-30 * time.Minute)}

	assert.Equal(t, 85.5, c.GetRate(context.Background(), "USD", "INR"),
		"a fresh entry is served from cache")
}

func TestGetRateExpiresAfterTTL(t *testing.T) {
	c := NewRateCache(time.Hour, "", zap.NewNop())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.entries["USD/INR"] = rateEntry{rate: 85.5, fetchedAt: base.Add(-2 * time.Hour)}

	// Expired; with no API key the refetch degrades to the fallback.
	assert.Equal(t, FallbackRate, c.GetRate(context.Background(), "USD", "INR"))

	entry, ok := c.entries["USD/INR"]
	assert.True(t, ok)
	assert.Equal(t, FallbackRate, entry.rate, "the refetched rate replaces the stale entry")
}

func TestClearDropsEntries(t *testing.T) {
	c := NewRateCache(time.Hour, "", zap.NewNop())
	c.entries["USD/INR"] = rateEntry{rate: 85.5, fetchedAt: time.Now()}

	c.Clear()
	assert.Empty(t, c.entries)
}

func TestConvert(t *testing.T) {
	c := NewRateCache(time.Hour, "", zap.NewNop())
	base := time.Now()
	c.now = func() time.Time { return base }
	c.entries["USD/INR"] = rateEntry{rate: 80.0, fetchedAt: base}

	ctx := context.Background()

	assert.Equal(t, "1321.60", c.Convert(ctx, "16.52", "USD", "INR"))
	assert.Equal(t, "100.00", c.Convert(ctx, "100.00", "INR", "INR"),
		"same-currency conversion is the identity")
	assert.Equal(t, "sixteen", c.Convert(ctx, "sixteen", "USD", "INR"),
		"unparseable amounts pass through unchanged")
}
