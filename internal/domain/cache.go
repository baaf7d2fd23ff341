package domain

import (
	"context"
	"time"
)

// SummaryCache holds recently computed sale summaries so concurrent API
// reads do not each trigger a fresh fold plus chain read. Entries expire on
// a short TTL; the cache is never authoritative.
type SummaryCache interface {
	Set(ctx context.Context, s SaleSummary) error
	Get(ctx context.Context, token string) (SaleSummary, error)
	Invalidate(ctx context.Context, token string) error
}

// Channel names carried by the SignalBus. The aggregation refresh publishes
// summary batches on ChannelSales; the indexer publishes live deployments
// and purchase/refund activity on the other two.
const (
	ChannelSales       = "sales"
	ChannelDeployments = "deployments"
	ChannelActivity    = "activity"
)

// SignalBus provides pub/sub fan-out of freshly aggregated data to push
// consumers such as the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting for the public query API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
