package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refundlabs/saletracker/internal/domain"
	"github.com/refundlabs/saletracker/internal/store/memory"
)

const (
	tokenA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	buyer1 = "0x1111111111111111111111111111111111111111"
	buyer2 = "0x2222222222222222222222222222222222222222"
)

// stubReader is a canned-response ChainReader.
type stubReader struct {
	head    uint64
	headErr error

	remaining map[string]*big.Int
	held      map[string]*big.Int
	claimed   map[string]*big.Int

	fundingToken string
	symbol       string
	decimals     uint8
	metaErr      error
}

func (r *stubReader) BlockNumber(context.Context) (uint64, error) {
	return r.head, r.headErr
}

func (r *stubReader) RemainingTokensForSale(_ context.Context, token string) (*big.Int, error) {
	return r.remaining[token], nil
}

func (r *stubReader) FundingTokensHeld(_ context.Context, token string) (*big.Int, error) {
	return r.held[token], nil
}

func (r *stubReader) TotalFundsClaimed(_ context.Context, token string) (*big.Int, error) {
	return r.claimed[token], nil
}

func (r *stubReader) FundingToken(context.Context, string) (string, error) {
	if r.metaErr != nil {
		return "", r.metaErr
	}
	return r.fundingToken, nil
}

func (r *stubReader) ERC20Metadata(context.Context, string) (string, uint8, error) {
	return r.symbol, r.decimals, r.metaErr
}

type engineFixture struct {
	engine      *Engine
	deployments *memory.DeploymentStore
	configs     *memory.SaleConfigStore
	activity    *memory.ActivityStore
	checkpoint  *memory.CheckpointStore
	reader      *stubReader
}

func newEngineFixture(t *testing.T, reader *stubReader) *engineFixture {
	t.Helper()
	f := &engineFixture{
		deployments: memory.NewDeploymentStore(),
		configs:     memory.NewSaleConfigStore(),
		activity:    memory.NewActivityStore(),
		checkpoint:  memory.NewCheckpointStore(),
		reader:      reader,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = New(f.deployments, f.configs, f.activity, f.checkpoint, reader, 2, logger)
	return f
}

func (f *engineFixture) addConfig(t *testing.T, id, token string, amount, price int64, start, end, block uint64) {
	t.Helper()
	err := f.configs.Insert(context.Background(), domain.SaleConfig{
		ID:             id,
		Token:          token,
		SaleAmount:     big.NewInt(amount),
		PurchasePrice:  big.NewInt(price),
		SaleStartBlock: start,
		SaleEndBlock:   end,
		BlockNumber:    block,
		LogIndex:       logIndexOf(t, id),
	})
	require.NoError(t, err)
}

// logIndexOf recovers the log index encoded in a block-logIndex event id.
func logIndexOf(t *testing.T, id string) uint64 {
	t.Helper()
	idx, err := strconv.ParseUint(id[strings.LastIndexByte(id, '-')+1:], 10, 64)
	require.NoError(t, err)
	return idx
}

func (f *engineFixture) addActivity(t *testing.T, id, token string, kind domain.ActivityKind, tokens, funding int64, block uint64) {
	t.Helper()
	err := f.activity.Insert(context.Background(), domain.SaleActivity{
		ID:            id,
		Token:         token,
		Kind:          kind,
		Account:       buyer1,
		TokenAmount:   big.NewInt(tokens),
		FundingAmount: big.NewInt(funding),
		BlockNumber:   block,
		LogIndex:      logIndexOf(t, id),
	})
	require.NoError(t, err)
}

func TestSummarizeSale_FoldsActivity(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)
	f.addActivity(t, "11-0", tokenA, domain.ActivityPurchase, 300, 1500, 11)
	f.addActivity(t, "12-0", tokenA, domain.ActivityPurchase, 200, 1000, 12)
	f.addActivity(t, "13-0", tokenA, domain.ActivityRefund, 100, 500, 13)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	assert.Equal(t, tokenA, s.Token)
	assert.Equal(t, "400", s.TokensSold)
	assert.Equal(t, "2000", s.FundingRaised)
	assert.Equal(t, "600", s.RemainingTokens)
	assert.Equal(t, "0", s.TokensRefundExcess)
	assert.Equal(t, "0", s.FundingRefundExcess)

	require.NotNil(t, s.PercentTokensRemaining)
	assert.InDelta(t, 60.0, *s.PercentTokensRemaining, 0.001)

	assert.Equal(t, uint64(50), s.LatestBlock)
	assert.Equal(t, uint64(2), s.BlockTimeSeconds)
	assert.Equal(t, uint64(50), s.BlocksRemaining)
	// 50 blocks at 2s each rounds up to one day.
	require.NotNil(t, s.ClosingInDays)
	assert.Equal(t, int64(1), *s.ClosingInDays)
}

func TestSummarizeSale_RefundsExceedPurchases(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)
	f.addActivity(t, "11-0", tokenA, domain.ActivityPurchase, 100, 500, 11)
	f.addActivity(t, "12-0", tokenA, domain.ActivityRefund, 250, 1250, 12)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	// Sold and raised clamp at zero; the pre-clamp excess is preserved.
	assert.Equal(t, "0", s.TokensSold)
	assert.Equal(t, "0", s.FundingRaised)
	assert.Equal(t, "1000", s.RemainingTokens)
	assert.Equal(t, "150", s.TokensRefundExcess)
	assert.Equal(t, "750", s.FundingRefundExcess)
}

func TestSummarizeSale_PercentRoundsToTwoDecimals(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 3, 5, 10, 100, 10)
	f.addActivity(t, "11-0", tokenA, domain.ActivityPurchase, 2, 10, 11)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	require.NotNil(t, s.PercentTokensRemaining)
	assert.InDelta(t, 33.33, *s.PercentTokensRemaining, 0.0001)
}

func TestSummarizeSale_ZeroSaleAmount(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 0, 5, 10, 100, 10)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	assert.Nil(t, s.PercentTokensRemaining)
}

func TestSummarizeSale_OpenEndedSale(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 0, 10)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	assert.Zero(t, s.BlocksRemaining)
	assert.Nil(t, s.ClosingInDays)
}

func TestSummarizeSale_EndedSale(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 200})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	assert.Zero(t, s.BlocksRemaining)
	require.NotNil(t, s.ClosingInDays)
	assert.Zero(t, *s.ClosingInDays)
}

func TestSummarizeSale_NoSale(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})

	_, err := f.engine.SummarizeSale(context.Background(), tokenA)
	assert.ErrorIs(t, err, domain.ErrNoSale)
}

func TestSummarizeSale_UsesLatestConfig(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)
	f.addConfig(t, "20-0", tokenA, 5000, 7, 20, 200, 20)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	assert.Equal(t, "5000", s.SaleAmount)
	assert.Equal(t, "7", s.PurchasePrice)
	assert.Equal(t, uint64(200), s.SaleEndBlock)
}

func TestSummarizeSale_SameBlockConfigTieBreaksByLogIndex(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	// Log index 10 follows 3 numerically even though "10-3" > "10-10" as
	// strings.
	f.addConfig(t, "10-3", tokenA, 1000, 5, 10, 100, 10)
	f.addConfig(t, "10-10", tokenA, 2000, 5, 10, 100, 10)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	assert.Equal(t, "2000", s.SaleAmount)
}

func TestSummarizeSale_ReplayedEventsDoNotDoubleCount(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)
	f.addActivity(t, "11-0", tokenA, domain.ActivityPurchase, 300, 1500, 11)
	// Re-delivery of the same event id is a no-op.
	f.addActivity(t, "11-0", tokenA, domain.ActivityPurchase, 300, 1500, 11)

	s, err := f.engine.SummarizeSale(context.Background(), tokenA)
	require.NoError(t, err)

	assert.Equal(t, "300", s.TokensSold)
	assert.Equal(t, "1500", s.FundingRaised)
}

func TestSummarizeAll(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 50})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)
	f.addConfig(t, "15-0", tokenB, 2000, 3, 15, 150, 15)
	f.addActivity(t, "11-0", tokenA, domain.ActivityPurchase, 300, 1500, 11)

	summaries, failed, err := f.engine.SummarizeAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, summaries, 2)

	byToken := make(map[string]domain.SaleSummary, len(summaries))
	for _, s := range summaries {
		byToken[s.Token] = s
	}
	assert.Equal(t, "300", byToken[tokenA].TokensSold)
	assert.Equal(t, "0", byToken[tokenB].TokensSold)
	// An untouched sale still has its full allocation.
	require.NotNil(t, byToken[tokenB].PercentTokensRemaining)
	assert.Equal(t, 100.0, *byToken[tokenB].PercentTokensRemaining)
}

func TestSummarizeAll_HeadReadFailureIsFatal(t *testing.T) {
	f := newEngineFixture(t, &stubReader{headErr: errors.New("rpc down")})
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)

	_, _, err := f.engine.SummarizeAll(context.Background())
	assert.Error(t, err)
}

func TestStats_ReconcilesBalances(t *testing.T) {
	reader := &stubReader{
		head:         90,
		remaining:    map[string]*big.Int{tokenA: big.NewInt(600)},
		held:         map[string]*big.Int{tokenA: big.NewInt(1000)},
		claimed:      map[string]*big.Int{tokenA: big.NewInt(500)},
		fundingToken: "0xcccccccccccccccccccccccccccccccccccccccc",
		symbol:       "USDT",
		decimals:     6,
	}
	f := newEngineFixture(t, reader)
	require.NoError(t, f.deployments.Insert(context.Background(), domain.TokenDeployment{
		ID:     "5-0",
		Token:  tokenA,
		Name:   "Alpha",
		Symbol: "ALPHA",
	}))
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)
	f.addActivity(t, "13-0", tokenA, domain.ActivityRefund, 50, 250, 13)
	require.NoError(t, f.checkpoint.Set(context.Background(), 80))

	rows, failed, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, tokenA, row.Token)
	assert.Equal(t, "Alpha", row.Name)
	assert.Equal(t, "600", row.RemainingTokensForSale)
	// raised = held + claimed + event-derived refunds.
	assert.Equal(t, "1750", row.Raised)
	assert.Equal(t, "250", row.Refunded)
	assert.Equal(t, "500", row.Claimed)
	assert.Equal(t, "USDT", row.FundingTokenSymbol)
	assert.Equal(t, uint8(6), row.FundingTokenDecimals)
	assert.True(t, row.FundingTokenResolved)
	assert.Equal(t, uint64(80), row.IndexedToBlock)
	assert.Equal(t, uint64(90), row.LatestBlock)
}

func TestStats_MetadataFailureDegradesToPlaceholders(t *testing.T) {
	reader := &stubReader{
		head:      90,
		remaining: map[string]*big.Int{tokenA: big.NewInt(600)},
		held:      map[string]*big.Int{tokenA: big.NewInt(1000)},
		claimed:   map[string]*big.Int{tokenA: big.NewInt(0)},
		metaErr:   errors.New("execution reverted"),
	}
	f := newEngineFixture(t, reader)
	require.NoError(t, f.deployments.Insert(context.Background(), domain.TokenDeployment{
		ID:    "5-0",
		Token: tokenA,
	}))
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)

	rows, failed, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, rows, 1)

	assert.Equal(t, fallbackFundingSymbol, rows[0].FundingTokenSymbol)
	assert.Equal(t, uint8(fallbackFundingDecimals), rows[0].FundingTokenDecimals)
	assert.False(t, rows[0].FundingTokenResolved)
}

func TestStatsForToken(t *testing.T) {
	reader := &stubReader{
		head:         90,
		remaining:    map[string]*big.Int{tokenA: big.NewInt(600)},
		held:         map[string]*big.Int{tokenA: big.NewInt(1000)},
		claimed:      map[string]*big.Int{tokenA: big.NewInt(500)},
		fundingToken: "0xcccccccccccccccccccccccccccccccccccccccc",
		symbol:       "USDT",
		decimals:     6,
	}
	f := newEngineFixture(t, reader)
	require.NoError(t, f.deployments.Insert(context.Background(), domain.TokenDeployment{
		ID:    "5-0",
		Token: tokenA,
		Name:  "Alpha",
	}))
	f.addConfig(t, "10-0", tokenA, 1000, 5, 10, 100, 10)
	f.addActivity(t, "13-0", tokenA, domain.ActivityRefund, 50, 250, 13)
	require.NoError(t, f.checkpoint.Set(context.Background(), 80))

	row, err := f.engine.StatsForToken(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Equal(t, tokenA, row.Token)
	assert.Equal(t, "1750", row.Raised)
	assert.Equal(t, "250", row.Refunded)
	assert.Equal(t, uint64(80), row.IndexedToBlock)
	assert.Equal(t, uint64(90), row.LatestBlock)
}

func TestStatsForToken_NoSale(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 90})
	require.NoError(t, f.deployments.Insert(context.Background(), domain.TokenDeployment{
		ID:    "5-0",
		Token: tokenA,
	}))

	_, err := f.engine.StatsForToken(context.Background(), tokenA)
	assert.ErrorIs(t, err, domain.ErrNoSale)
}

func TestStatsForToken_UnknownToken(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 90})

	_, err := f.engine.StatsForToken(context.Background(), tokenA)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStats_SkipsTokensWithoutSale(t *testing.T) {
	f := newEngineFixture(t, &stubReader{head: 90})
	require.NoError(t, f.deployments.Insert(context.Background(), domain.TokenDeployment{
		ID:    "5-0",
		Token: tokenA,
	}))

	rows, failed, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Empty(t, rows)
}
