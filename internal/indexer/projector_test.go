package indexer

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refundlabs/saletracker/internal/domain"
	"github.com/refundlabs/saletracker/internal/store/memory"
)

type projectorFixture struct {
	projector   *Projector
	deployments *memory.DeploymentStore
	configs     *memory.SaleConfigStore
	activity    *memory.ActivityStore
}

func newProjectorFixture(t *testing.T) *projectorFixture {
	t.Helper()
	f := &projectorFixture{
		deployments: memory.NewDeploymentStore(),
		configs:     memory.NewSaleConfigStore(),
		activity:    memory.NewActivityStore(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.projector = NewProjector(f.deployments, f.configs, f.activity, logger)
	return f
}

func deployedEvent(id string, block uint64) domain.TokenDeployed {
	return domain.TokenDeployed{
		EventMeta: domain.EventMeta{
			ID:          id,
			Token:       tokenAddr,
			BlockNumber: block,
		},
		Deployer:    deployerAddr,
		Beneficiary: beneficiary,
		Name:        "Alpha",
		Symbol:      "ALPHA",
		MaxSupply:   big.NewInt(1_000_000),
	}
}

func TestProjector_TokenDeployed(t *testing.T) {
	f := newProjectorFixture(t)

	require.NoError(t, f.projector.Apply(context.Background(), deployedEvent("12-3", 12)))

	dep, err := f.deployments.GetByToken(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "12-3", dep.ID)
	assert.Equal(t, deployerAddr, dep.Deployer)
	assert.Equal(t, "ALPHA", dep.Symbol)
	assert.Equal(t, "1000000", dep.MaxSupply.String())
}

func TestProjector_SaleCreated(t *testing.T) {
	f := newProjectorFixture(t)

	err := f.projector.Apply(context.Background(), domain.SaleCreated{
		EventMeta: domain.EventMeta{
			ID:          "100-0",
			Token:       tokenAddr,
			BlockNumber: 100,
		},
		SaleAmount:     big.NewInt(5000),
		PurchasePrice:  big.NewInt(7),
		SaleStartBlock: 100,
		SaleEndBlock:   900,
	})
	require.NoError(t, err)

	cfg, err := f.configs.CurrentByToken(context.Background(), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, "100-0", cfg.ID)
	assert.Equal(t, "5000", cfg.SaleAmount.String())
	assert.Equal(t, uint64(900), cfg.SaleEndBlock)
}

func TestProjector_PurchaseAndRefund(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()

	require.NoError(t, f.projector.Apply(ctx, domain.Purchased{
		EventMeta: domain.EventMeta{
			ID:          "105-7",
			Token:       tokenAddr,
			BlockNumber: 105,
			LogIndex:    7,
		},
		Buyer:              buyerAddr,
		TokensPurchased:    big.NewInt(300),
		FundingAmountSpent: big.NewInt(2100),
	}))
	require.NoError(t, f.projector.Apply(ctx, domain.Refunded{
		EventMeta: domain.EventMeta{
			ID:          "110-2",
			Token:       tokenAddr,
			BlockNumber: 110,
		},
		Refunder:           buyerAddr,
		TokenAmount:        big.NewInt(100),
		FundingTokenAmount: big.NewInt(700),
	}))

	acts, err := f.activity.ListByToken(ctx, tokenAddr, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, acts, 2)

	assert.Equal(t, domain.ActivityPurchase, acts[0].Kind)
	assert.Equal(t, uint64(7), acts[0].LogIndex)
	assert.Equal(t, buyerAddr, acts[0].Account)
	assert.Equal(t, "300", acts[0].TokenAmount.String())
	assert.Equal(t, "2100", acts[0].FundingAmount.String())

	assert.Equal(t, domain.ActivityRefund, acts[1].Kind)
	assert.Equal(t, "100", acts[1].TokenAmount.String())
	assert.Equal(t, "700", acts[1].FundingAmount.String())
}

func TestProjector_ReplayIsNoop(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()

	ev := deployedEvent("12-3", 12)
	require.NoError(t, f.projector.Apply(ctx, ev))
	require.NoError(t, f.projector.Apply(ctx, ev))

	n, err := f.deployments.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProjector_ApplyBatchReturnsTouchedTokens(t *testing.T) {
	f := newProjectorFixture(t)

	otherToken := "0x4444444444444444444444444444444444444444"
	other := deployedEvent("13-0", 13)
	other.Token = otherToken

	touched, err := f.projector.ApplyBatch(context.Background(), []domain.Event{
		deployedEvent("12-3", 12),
		other,
		domain.Purchased{
			EventMeta: domain.EventMeta{
				ID:          "14-0",
				Token:       tokenAddr,
				BlockNumber: 14,
			},
			Buyer:              buyerAddr,
			TokensPurchased:    big.NewInt(1),
			FundingAmountSpent: big.NewInt(7),
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{tokenAddr, otherToken}, touched)
}

type bogusEvent struct{ domain.EventMeta }

func TestProjector_UnknownEventIsFatal(t *testing.T) {
	f := newProjectorFixture(t)

	err := f.projector.Apply(context.Background(), bogusEvent{})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}
