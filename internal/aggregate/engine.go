// Package aggregate computes derived sale metrics from the projected entity
// tables plus live chain reads. Two strategies exist side by side: the
// activity fold (listing view) trusts the event log, the authoritative
// balance path (stats view) trusts live contract reads and uses the event log
// only for the refund total the contract does not expose.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/refundlabs/saletracker/internal/domain"
)

// auxReadTimeout bounds the non-critical funding-token metadata reads. A
// timeout there degrades the row to placeholders instead of failing it.
const auxReadTimeout = 2500 * time.Millisecond

// maxConcurrentReads caps the per-token fan-out so a large token set does not
// stampede the RPC provider.
const maxConcurrentReads = 8

// ChainReader is the live chain-read collaborator. Injected rather than held
// as a process-wide singleton so tests can substitute a stub.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	RemainingTokensForSale(ctx context.Context, token string) (*big.Int, error)
	FundingTokensHeld(ctx context.Context, token string) (*big.Int, error)
	TotalFundsClaimed(ctx context.Context, token string) (*big.Int, error)
	FundingToken(ctx context.Context, token string) (string, error)
	ERC20Metadata(ctx context.Context, token string) (symbol string, decimals uint8, err error)
}

// Engine computes sale summaries and stats rows. It is stateless: every call
// is a pure function of the stored entities and the live reads it performs,
// so concurrent aggregations need no coordination.
type Engine struct {
	deployments domain.DeploymentStore
	configs     domain.SaleConfigStore
	activity    domain.ActivityStore
	checkpoint  domain.CheckpointStore
	reader      ChainReader

	blockTimeSeconds uint64
	logger           *slog.Logger
}

// New creates an aggregation Engine.
func New(
	deployments domain.DeploymentStore,
	configs domain.SaleConfigStore,
	activity domain.ActivityStore,
	checkpoint domain.CheckpointStore,
	reader ChainReader,
	blockTimeSeconds uint64,
	logger *slog.Logger,
) *Engine {
	if blockTimeSeconds == 0 {
		blockTimeSeconds = 2
	}
	return &Engine{
		deployments:      deployments,
		configs:          configs,
		activity:         activity,
		checkpoint:       checkpoint,
		reader:           reader,
		blockTimeSeconds: blockTimeSeconds,
		logger:           logger.With(slog.String("component", "aggregate")),
	}
}

// SummarizeSale computes the activity-fold summary for one token. The live
// block-number read is required: close-time and percent-remaining are
// meaningless without it, so its failure fails the whole call.
func (e *Engine) SummarizeSale(ctx context.Context, token string) (domain.SaleSummary, error) {
	latest, err := e.reader.BlockNumber(ctx)
	if err != nil {
		return domain.SaleSummary{}, fmt.Errorf("aggregate: summarize %s: %w", token, err)
	}
	return e.summarizeAt(ctx, token, latest)
}

func (e *Engine) summarizeAt(ctx context.Context, token string, latest uint64) (domain.SaleSummary, error) {
	cfg, err := e.configs.CurrentByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SaleSummary{}, fmt.Errorf("aggregate: %s: %w", token, domain.ErrNoSale)
		}
		return domain.SaleSummary{}, fmt.Errorf("aggregate: current config for %s: %w", token, err)
	}

	acts, err := e.activity.ListByToken(ctx, token, domain.ListOpts{})
	if err != nil {
		return domain.SaleSummary{}, fmt.Errorf("aggregate: activity for %s: %w", token, err)
	}

	return foldSummary(cfg, acts, latest, e.blockTimeSeconds), nil
}

// SummarizeAll computes summaries for every token with a configured sale,
// sharing a single block-number read. Per-token failures do not abort the
// batch; they are returned in failed so the caller can render per-token
// error states. A failed head read fails the whole batch.
func (e *Engine) SummarizeAll(ctx context.Context) (summaries []domain.SaleSummary, failed map[string]error, err error) {
	latest, err := e.reader.BlockNumber(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: summarize all: %w", err)
	}

	tokens, err := e.configs.TokensWithSales(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: tokens with sales: %w", err)
	}

	results := make([]*domain.SaleSummary, len(tokens))
	var mu sync.Mutex
	failed = make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, token := range tokens {
		g.Go(func() error {
			s, serr := e.summarizeAt(gctx, token, latest)
			if serr != nil {
				mu.Lock()
				failed[token] = serr
				mu.Unlock()
				return nil
			}
			results[i] = &s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	summaries = make([]domain.SaleSummary, 0, len(tokens))
	for _, r := range results {
		if r != nil {
			summaries = append(summaries, *r)
		}
	}
	return summaries, failed, nil
}

// foldSummary is the strategy-A fold. All arithmetic on raw amounts is
// big.Int; floats appear only in the final two-decimal percent.
func foldSummary(cfg domain.SaleConfig, acts []domain.SaleActivity, latest, blockTimeSeconds uint64) domain.SaleSummary {
	purchasedTokens := new(big.Int)
	refundedTokens := new(big.Int)
	spentFunding := new(big.Int)
	refundedFunding := new(big.Int)

	for _, a := range acts {
		switch a.Kind {
		case domain.ActivityPurchase:
			purchasedTokens.Add(purchasedTokens, a.TokenAmount)
			spentFunding.Add(spentFunding, a.FundingAmount)
		case domain.ActivityRefund:
			refundedTokens.Add(refundedTokens, a.TokenAmount)
			refundedFunding.Add(refundedFunding, a.FundingAmount)
		}
	}

	// Refund volume can transiently exceed purchase volume (mid-backfill
	// reads, decayed-refund rounding). The clamp is display policy; the
	// pre-clamp excess is kept for diagnostics.
	tokensSold, tokensExcess := clampSub(purchasedTokens, refundedTokens)
	fundingRaised, fundingExcess := clampSub(spentFunding, refundedFunding)
	remaining, _ := clampSub(cfg.SaleAmount, tokensSold)

	s := domain.SaleSummary{
		Token:               cfg.Token,
		SaleAmount:          cfg.SaleAmount.String(),
		PurchasePrice:       cfg.PurchasePrice.String(),
		SaleStartBlock:      cfg.SaleStartBlock,
		SaleEndBlock:        cfg.SaleEndBlock,
		TokensSold:          tokensSold.String(),
		FundingRaised:       fundingRaised.String(),
		RemainingTokens:     remaining.String(),
		TokensRefundExcess:  tokensExcess.String(),
		FundingRefundExcess: fundingExcess.String(),
		LatestBlock:         latest,
		BlockTimeSeconds:    blockTimeSeconds,
	}

	if cfg.SaleAmount.Sign() > 0 {
		// Integer basis points scaled by 100: (remaining * 10000) / amount,
		// converted to float only for the final two-decimal display value.
		bp := new(big.Int).Mul(remaining, big.NewInt(10_000))
		bp.Quo(bp, cfg.SaleAmount)
		pct := float64(bp.Int64()) / 100
		s.PercentTokensRemaining = &pct
	}

	if cfg.SaleEndBlock > latest {
		s.BlocksRemaining = cfg.SaleEndBlock - latest
	}
	if cfg.SaleEndBlock > 0 {
		days := int64((s.BlocksRemaining*blockTimeSeconds + 86_399) / 86_400)
		s.ClosingInDays = &days
	}

	return s
}

// clampSub returns max(0, a-b) and the excess b-a when b exceeded a.
func clampSub(a, b *big.Int) (clamped, excess *big.Int) {
	d := new(big.Int).Sub(a, b)
	if d.Sign() < 0 {
		return new(big.Int), d.Neg(d)
	}
	return d, new(big.Int)
}
