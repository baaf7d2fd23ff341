// Package service composes stores, the aggregation engine, and the cache
// into the operations the API server and background loops consume.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/refundlabs/saletracker/internal/aggregate"
	"github.com/refundlabs/saletracker/internal/domain"
)

// SalesChannel is the pub/sub channel carrying refreshed summary batches.
const SalesChannel = domain.ChannelSales

// SaleService answers sale queries, caching aggregated summaries and
// broadcasting refreshed batches over the signal bus.
type SaleService struct {
	engine      *aggregate.Engine
	deployments domain.DeploymentStore
	configs     domain.SaleConfigStore
	activity    domain.ActivityStore
	cache       domain.SummaryCache // optional
	bus         domain.SignalBus    // optional
	logger      *slog.Logger
}

// NewSaleService creates a SaleService. cache and bus may be nil, in which
// case every summary read recomputes and refreshes are not broadcast.
func NewSaleService(
	engine *aggregate.Engine,
	deployments domain.DeploymentStore,
	configs domain.SaleConfigStore,
	activity domain.ActivityStore,
	cache domain.SummaryCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *SaleService {
	return &SaleService{
		engine:      engine,
		deployments: deployments,
		configs:     configs,
		activity:    activity,
		cache:       cache,
		bus:         bus,
		logger:      logger,
	}
}

// AggregateSale returns the summary for a token, serving from cache when a
// fresh entry exists and computing via the engine otherwise.
func (s *SaleService) AggregateSale(ctx context.Context, token string) (domain.SaleSummary, error) {
	if s.cache != nil {
		if summary, err := s.cache.Get(ctx, token); err == nil {
			return summary, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "sale_service: summary cache read failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
		}
	}

	summary, err := s.engine.SummarizeSale(ctx, token)
	if err != nil {
		return domain.SaleSummary{}, fmt.Errorf("sale_service: summarize %s: %w", token, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, summary); cacheErr != nil {
			s.logger.WarnContext(ctx, "sale_service: summary cache write failed",
				slog.String("token", token),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return summary, nil
}

// AggregateAllSales computes summaries for every token with a sale. Tokens
// whose summary could not be computed are reported in failed.
func (s *SaleService) AggregateAllSales(ctx context.Context) ([]domain.SaleSummary, map[string]error, error) {
	summaries, failed, err := s.engine.SummarizeAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sale_service: summarize all: %w", err)
	}
	return summaries, failed, nil
}

// ListDeployments returns deployed tokens, newest first.
func (s *SaleService) ListDeployments(ctx context.Context, opts domain.ListOpts) ([]domain.TokenDeployment, error) {
	deps, err := s.deployments.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sale_service: list deployments: %w", err)
	}
	return deps, nil
}

// CountDeployments returns the total number of deployed tokens.
func (s *SaleService) CountDeployments(ctx context.Context) (int64, error) {
	count, err := s.deployments.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("sale_service: count deployments: %w", err)
	}
	return count, nil
}

// CurrentSaleConfig returns the latest sale parameters for a token.
func (s *SaleService) CurrentSaleConfig(ctx context.Context, token string) (domain.SaleConfig, error) {
	cfg, err := s.configs.CurrentByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SaleConfig{}, domain.ErrNoSale
		}
		return domain.SaleConfig{}, fmt.Errorf("sale_service: current config %s: %w", token, err)
	}
	return cfg, nil
}

// ListSaleActivity returns purchases and refunds for a token in chain order.
func (s *SaleService) ListSaleActivity(ctx context.Context, token string, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	acts, err := s.activity.ListByToken(ctx, token, opts)
	if err != nil {
		return nil, fmt.Errorf("sale_service: list activity %s: %w", token, err)
	}
	return acts, nil
}

// ListAllActivity returns purchases and refunds across every token in chain
// order.
func (s *SaleService) ListAllActivity(ctx context.Context, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	acts, err := s.activity.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sale_service: list activity: %w", err)
	}
	return acts, nil
}

// TokensWithSales returns the tokens that have at least one sale config.
func (s *SaleService) TokensWithSales(ctx context.Context) ([]string, error) {
	tokens, err := s.configs.TokensWithSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("sale_service: tokens with sales: %w", err)
	}
	return tokens, nil
}

// AggregateStats returns authoritative per-token stats rows. Tokens whose
// chain reads failed are reported in failed rather than aborting the batch.
func (s *SaleService) AggregateStats(ctx context.Context) ([]domain.SalesStatsRow, map[string]error, error) {
	rows, failed, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sale_service: stats: %w", err)
	}
	return rows, failed, nil
}

// AggregateTokenStats returns the authoritative stats row for one token.
func (s *SaleService) AggregateTokenStats(ctx context.Context, token string) (domain.SalesStatsRow, error) {
	row, err := s.engine.StatsForToken(ctx, token)
	if err != nil {
		return domain.SalesStatsRow{}, fmt.Errorf("sale_service: stats %s: %w", token, err)
	}
	return row, nil
}

// RunRefresh recomputes all summaries on the given interval, repopulating
// the cache and broadcasting the batch on the sales channel. It blocks
// until the context is cancelled.
func (s *SaleService) RunRefresh(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sale_service: refresh loop started",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

func (s *SaleService) refreshOnce(ctx context.Context) {
	summaries, failed, err := s.engine.SummarizeAll(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "sale_service: refresh failed",
			slog.String("error", err.Error()),
		)
		return
	}
	for token, terr := range failed {
		s.logger.WarnContext(ctx, "sale_service: refresh skipped token",
			slog.String("token", token),
			slog.String("error", terr.Error()),
		)
	}

	if s.cache != nil {
		for _, summary := range summaries {
			if err := s.cache.Set(ctx, summary); err != nil {
				s.logger.WarnContext(ctx, "sale_service: summary cache write failed",
					slog.String("token", summary.Token),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if s.bus != nil && len(summaries) > 0 {
		payload, err := json.Marshal(summaries)
		if err != nil {
			s.logger.WarnContext(ctx, "sale_service: marshal refresh batch failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if err := s.bus.Publish(ctx, SalesChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "sale_service: publish refresh batch failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.DebugContext(ctx, "sale_service: refreshed summaries",
		slog.Int("count", len(summaries)),
		slog.Int("failed", len(failed)),
	)
}
