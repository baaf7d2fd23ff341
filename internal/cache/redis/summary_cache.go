package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refundlabs/saletracker/internal/domain"
)

// summaryTTL matches the refresh cadence of the aggregation loop, so a
// cached summary is never older than one refresh cycle plus jitter.
const summaryTTL = 30 * time.Second

// SummaryCache implements domain.SummaryCache using Redis string keys with
// JSON-serialized summaries.
//
// Key schema:
//
//	sale:summary:{token} - JSON-encoded domain.SaleSummary
type SummaryCache struct {
	rdb *redis.Client
}

// NewSummaryCache creates a SummaryCache backed by the given Client.
func NewSummaryCache(c *Client) *SummaryCache {
	return &SummaryCache{rdb: c.Underlying()}
}

func summaryKey(token string) string { return "sale:summary:" + token }

// Set stores a summary keyed by its token address with a 30-second TTL.
func (sc *SummaryCache) Set(ctx context.Context, summary domain.SaleSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("redis: marshal summary %s: %w", summary.Token, err)
	}
	if err := sc.rdb.Set(ctx, summaryKey(summary.Token), data, summaryTTL).Err(); err != nil {
		return fmt.Errorf("redis: set summary %s: %w", summary.Token, err)
	}
	return nil
}

// Get retrieves a cached summary for a token.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (sc *SummaryCache) Get(ctx context.Context, token string) (domain.SaleSummary, error) {
	data, err := sc.rdb.Get(ctx, summaryKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.SaleSummary{}, domain.ErrNotFound
		}
		return domain.SaleSummary{}, fmt.Errorf("redis: get summary %s: %w", token, err)
	}

	var summary domain.SaleSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.SaleSummary{}, fmt.Errorf("redis: unmarshal summary %s: %w", token, err)
	}
	return summary, nil
}

// Invalidate drops the cached summary for a token. The indexer calls this
// after projecting new events so the next read reflects them.
func (sc *SummaryCache) Invalidate(ctx context.Context, token string) error {
	if err := sc.rdb.Del(ctx, summaryKey(token)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate summary %s: %w", token, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SummaryCache = (*SummaryCache)(nil)
