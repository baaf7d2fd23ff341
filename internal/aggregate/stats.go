package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/refundlabs/saletracker/internal/domain"
)

// Placeholders used when the funding-token metadata reads fail. The reference
// deployment funds sales in USDC, so this is the least surprising degraded
// display state.
const (
	fallbackFundingSymbol   = "USDC"
	fallbackFundingDecimals = 6
)

// Stats computes the authoritative-balance rows for every deployed token that
// has a configured sale. The three sale-contract view reads are critical per
// token; the funding-token metadata reads degrade to placeholders. The head
// read and the checkpoint read are batch-critical: the staleness indicator is
// meaningless without them.
func (e *Engine) Stats(ctx context.Context) (rows []domain.SalesStatsRow, failed map[string]error, err error) {
	latest, err := e.reader.BlockNumber(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: stats: %w", err)
	}
	indexedTo, _, err := e.checkpoint.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: stats checkpoint: %w", err)
	}

	deployed, err := e.deployments.List(ctx, domain.ListOpts{})
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: stats deployments: %w", err)
	}

	results := make([]*domain.SalesStatsRow, len(deployed))
	var mu sync.Mutex
	failed = make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, dep := range deployed {
		g.Go(func() error {
			row, rerr := e.statsRow(gctx, dep, latest, indexedTo)
			if rerr != nil {
				mu.Lock()
				failed[dep.Token] = rerr
				mu.Unlock()
				return nil
			}
			if row != nil {
				results[i] = row
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	rows = make([]domain.SalesStatsRow, 0, len(deployed))
	for _, r := range results {
		if r != nil {
			rows = append(rows, *r)
		}
	}
	return rows, failed, nil
}

// StatsForToken computes the authoritative-balance row for a single token.
// Returns domain.ErrNotFound when the token was never deployed and
// domain.ErrNoSale when it has no sale config.
func (e *Engine) StatsForToken(ctx context.Context, token string) (domain.SalesStatsRow, error) {
	latest, err := e.reader.BlockNumber(ctx)
	if err != nil {
		return domain.SalesStatsRow{}, fmt.Errorf("aggregate: stats %s: %w", token, err)
	}
	indexedTo, _, err := e.checkpoint.Get(ctx)
	if err != nil {
		return domain.SalesStatsRow{}, fmt.Errorf("aggregate: stats checkpoint: %w", err)
	}

	dep, err := e.deployments.GetByToken(ctx, token)
	if err != nil {
		return domain.SalesStatsRow{}, fmt.Errorf("aggregate: stats deployment %s: %w", token, err)
	}

	row, err := e.statsRow(ctx, dep, latest, indexedTo)
	if err != nil {
		return domain.SalesStatsRow{}, err
	}
	if row == nil {
		return domain.SalesStatsRow{}, fmt.Errorf("aggregate: stats %s: %w", token, domain.ErrNoSale)
	}
	return *row, nil
}

// statsRow builds one strategy-B row. Returns (nil, nil) for tokens without a
// sale; those are simply absent from the stats view.
func (e *Engine) statsRow(ctx context.Context, dep domain.TokenDeployment, latest, indexedTo uint64) (*domain.SalesStatsRow, error) {
	if _, err := e.configs.CurrentByToken(ctx, dep.Token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("aggregate: stats config for %s: %w", dep.Token, err)
	}

	// Critical reads: the row cannot be reconciled without them.
	remaining, err := e.reader.RemainingTokensForSale(ctx, dep.Token)
	if err != nil {
		return nil, fmt.Errorf("aggregate: remainingTokensForSale %s: %w", dep.Token, err)
	}
	held, err := e.reader.FundingTokensHeld(ctx, dep.Token)
	if err != nil {
		return nil, fmt.Errorf("aggregate: fundingTokensHeld %s: %w", dep.Token, err)
	}
	claimed, err := e.reader.TotalFundsClaimed(ctx, dep.Token)
	if err != nil {
		return nil, fmt.Errorf("aggregate: totalFundsClaimed %s: %w", dep.Token, err)
	}

	// The contract exposes no cumulative refund view, so the refunded figure
	// always comes from the projected event log. Documented coupling.
	refunded, err := e.refundedFromEvents(ctx, dep.Token)
	if err != nil {
		return nil, fmt.Errorf("aggregate: refunded events %s: %w", dep.Token, err)
	}

	raised := new(big.Int).Add(held, claimed)
	raised.Add(raised, refunded)

	row := &domain.SalesStatsRow{
		Token:                  dep.Token,
		Name:                   dep.Name,
		Symbol:                 dep.Symbol,
		RemainingTokensForSale: remaining.String(),
		Raised:                 raised.String(),
		Refunded:               refunded.String(),
		Claimed:                claimed.String(),
		FundingTokenSymbol:     fallbackFundingSymbol,
		FundingTokenDecimals:   fallbackFundingDecimals,
		IndexedToBlock:         indexedTo,
		LatestBlock:            latest,
	}

	// Auxiliary reads: bounded tightly, degrade instead of failing.
	symbol, decimals, err := e.fundingMetadata(ctx, dep.Token)
	if err != nil {
		e.logger.WarnContext(ctx, "funding token metadata unavailable, using placeholders",
			slog.String("token", dep.Token),
			slog.String("error", err.Error()),
		)
	} else {
		row.FundingTokenSymbol = symbol
		row.FundingTokenDecimals = decimals
		row.FundingTokenResolved = true
	}

	return row, nil
}

// refundedFromEvents sums fundingAmount over the token's refund activity.
func (e *Engine) refundedFromEvents(ctx context.Context, token string) (*big.Int, error) {
	acts, err := e.activity.ListByToken(ctx, token, domain.ListOpts{})
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, a := range acts {
		if a.Kind == domain.ActivityRefund {
			total.Add(total, a.FundingAmount)
		}
	}
	return total, nil
}

// fundingMetadata resolves the funding token's symbol and decimals under the
// auxiliary-read timeout.
func (e *Engine) fundingMetadata(ctx context.Context, token string) (string, uint8, error) {
	ctx, cancel := context.WithTimeout(ctx, auxReadTimeout)
	defer cancel()

	fundingToken, err := e.reader.FundingToken(ctx, token)
	if err != nil {
		return "", 0, err
	}
	return e.reader.ERC20Metadata(ctx, fundingToken)
}
