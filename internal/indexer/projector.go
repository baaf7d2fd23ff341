package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/refundlabs/saletracker/internal/domain"
)

// Projector folds normalized events in chain order into the three append-only
// entity tables. It carries no state of its own: idempotency lives in the
// stores, which treat a re-inserted event id as a no-op, so at-least-once
// delivery from the log source is safe to replay.
type Projector struct {
	deployments domain.DeploymentStore
	configs     domain.SaleConfigStore
	activity    domain.ActivityStore
	logger      *slog.Logger
}

// NewProjector creates a Projector writing to the given stores.
func NewProjector(
	deployments domain.DeploymentStore,
	configs domain.SaleConfigStore,
	activity domain.ActivityStore,
	logger *slog.Logger,
) *Projector {
	return &Projector{
		deployments: deployments,
		configs:     configs,
		activity:    activity,
		logger:      logger.With(slog.String("component", "projector")),
	}
}

// Apply inserts the entity derived from one normalized event. Normalization
// and insertion are atomic per event: either the row lands or an error is
// returned and nothing is partially applied.
func (p *Projector) Apply(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.TokenDeployed:
		return p.applyDeployed(ctx, e)
	case domain.SaleCreated:
		return p.applySaleCreated(ctx, e)
	case domain.Purchased:
		return p.applyActivity(ctx, domain.SaleActivity{
			ID:            e.ID,
			Token:         e.Token,
			Kind:          domain.ActivityPurchase,
			Account:       e.Buyer,
			TokenAmount:   e.TokensPurchased,
			FundingAmount: e.FundingAmountSpent,
			BlockNumber:   e.BlockNumber,
			LogIndex:      e.LogIndex,
			TxHash:        e.TxHash,
		})
	case domain.Refunded:
		return p.applyActivity(ctx, domain.SaleActivity{
			ID:            e.ID,
			Token:         e.Token,
			Kind:          domain.ActivityRefund,
			Account:       e.Refunder,
			TokenAmount:   e.TokenAmount,
			FundingAmount: e.FundingTokenAmount,
			BlockNumber:   e.BlockNumber,
			LogIndex:      e.LogIndex,
			TxHash:        e.TxHash,
		})
	default:
		return fmt.Errorf("projector: unhandled event type %T: %w", ev, domain.ErrMalformedEvent)
	}
}

// ApplyBatch applies events in the given order, which must be chain order
// (ascending block number, then log index). It returns the token addresses
// touched by the batch so callers can invalidate derived caches.
func (p *Projector) ApplyBatch(ctx context.Context, events []domain.Event) ([]string, error) {
	touched := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.Apply(ctx, ev); err != nil {
			return nil, err
		}
		touched[ev.TokenAddress()] = struct{}{}
	}

	tokens := make([]string, 0, len(touched))
	for t := range touched {
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func (p *Projector) applyDeployed(ctx context.Context, e domain.TokenDeployed) error {
	err := p.deployments.Insert(ctx, domain.TokenDeployment{
		ID:          e.ID,
		Token:       e.Token,
		Deployer:    e.Deployer,
		Beneficiary: e.Beneficiary,
		Name:        e.Name,
		Symbol:      e.Symbol,
		MaxSupply:   e.MaxSupply,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		TxHash:      e.TxHash,
	})
	if err != nil {
		return fmt.Errorf("projector: deployment %s: %w", e.ID, err)
	}

	p.logger.InfoContext(ctx, "token deployment projected",
		slog.String("token", e.Token),
		slog.String("symbol", e.Symbol),
		slog.Uint64("block", e.BlockNumber),
	)
	return nil
}

func (p *Projector) applySaleCreated(ctx context.Context, e domain.SaleCreated) error {
	// saleStartBlock <= saleEndBlock is a contract invariant; a violation is
	// recoverable at display time, so it only warrants a warning here.
	if e.SaleEndBlock > 0 && e.SaleStartBlock > e.SaleEndBlock {
		p.logger.WarnContext(ctx, "sale config has start block after end block",
			slog.String("token", e.Token),
			slog.Uint64("start_block", e.SaleStartBlock),
			slog.Uint64("end_block", e.SaleEndBlock),
		)
	}

	err := p.configs.Insert(ctx, domain.SaleConfig{
		ID:             e.ID,
		Token:          e.Token,
		SaleAmount:     e.SaleAmount,
		PurchasePrice:  e.PurchasePrice,
		SaleStartBlock: e.SaleStartBlock,
		SaleEndBlock:   e.SaleEndBlock,
		BlockNumber:    e.BlockNumber,
		LogIndex:       e.LogIndex,
		TxHash:         e.TxHash,
	})
	if err != nil {
		return fmt.Errorf("projector: sale config %s: %w", e.ID, err)
	}

	p.logger.InfoContext(ctx, "sale config projected",
		slog.String("token", e.Token),
		slog.Uint64("block", e.BlockNumber),
	)
	return nil
}

func (p *Projector) applyActivity(ctx context.Context, a domain.SaleActivity) error {
	if err := p.activity.Insert(ctx, a); err != nil {
		return fmt.Errorf("projector: activity %s: %w", a.ID, err)
	}

	p.logger.DebugContext(ctx, "sale activity projected",
		slog.String("token", a.Token),
		slog.String("kind", string(a.Kind)),
		slog.Uint64("block", a.BlockNumber),
	)
	return nil
}
