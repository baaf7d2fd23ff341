package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refundlabs/saletracker/internal/domain"
)

const testToken = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSaleService returns canned responses for the sale handler endpoints.
type stubSaleService struct {
	summary  domain.SaleSummary
	all      []domain.SaleSummary
	failed   map[string]error
	cfg      domain.SaleConfig
	activity []domain.SaleActivity
	err      error

	gotOpts domain.ListOpts
}

func (s *stubSaleService) AggregateSale(context.Context, string) (domain.SaleSummary, error) {
	return s.summary, s.err
}

func (s *stubSaleService) AggregateAllSales(context.Context) ([]domain.SaleSummary, map[string]error, error) {
	return s.all, s.failed, s.err
}

func (s *stubSaleService) CurrentSaleConfig(context.Context, string) (domain.SaleConfig, error) {
	return s.cfg, s.err
}

func (s *stubSaleService) ListSaleActivity(_ context.Context, _ string, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	s.gotOpts = opts
	return s.activity, s.err
}

func (s *stubSaleService) ListAllActivity(_ context.Context, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	s.gotOpts = opts
	return s.activity, s.err
}

func tokenRequest(method, target, token string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.SetPathValue("token", token)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestGetSale(t *testing.T) {
	svc := &stubSaleService{summary: domain.SaleSummary{
		Token:      testToken,
		TokensSold: "400",
	}}
	h := NewSaleHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.GetSale(rec, tokenRequest(http.MethodGet, "/api/sales/"+testToken, testToken))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var got domain.SaleSummary
	decodeBody(t, rec, &got)
	assert.Equal(t, testToken, got.Token)
	assert.Equal(t, "400", got.TokensSold)
}

func TestGetSale_InvalidToken(t *testing.T) {
	h := NewSaleHandler(&stubSaleService{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetSale(rec, tokenRequest(http.MethodGet, "/api/sales/0x123", "0x123"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSale_UppercaseTokenIsNormalized(t *testing.T) {
	svc := &stubSaleService{summary: domain.SaleSummary{Token: testToken}}
	h := NewSaleHandler(svc, testLogger())

	upper := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	rec := httptest.NewRecorder()
	h.GetSale(rec, tokenRequest(http.MethodGet, "/api/sales/"+upper, upper))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSale_NoSale(t *testing.T) {
	h := NewSaleHandler(&stubSaleService{err: domain.ErrNoSale}, testLogger())

	rec := httptest.NewRecorder()
	h.GetSale(rec, tokenRequest(http.MethodGet, "/api/sales/"+testToken, testToken))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSale_InternalError(t *testing.T) {
	h := NewSaleHandler(&stubSaleService{err: errors.New("rpc down")}, testLogger())

	rec := httptest.NewRecorder()
	h.GetSale(rec, tokenRequest(http.MethodGet, "/api/sales/"+testToken, testToken))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListSales_ReportsPerTokenFailures(t *testing.T) {
	svc := &stubSaleService{
		all:    []domain.SaleSummary{{Token: testToken}},
		failed: map[string]error{"0xbb": errors.New("timeout")},
	}
	h := NewSaleHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListSales(rec, httptest.NewRequest(http.MethodGet, "/api/sales", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Sales    []domain.SaleSummary `json:"sales"`
		Failures map[string]string    `json:"failures"`
	}
	decodeBody(t, rec, &got)
	require.Len(t, got.Sales, 1)
	assert.Equal(t, "timeout", got.Failures["0xbb"])
}

func TestGetSaleConfig(t *testing.T) {
	svc := &stubSaleService{cfg: domain.SaleConfig{
		Token:         testToken,
		SaleAmount:    big.NewInt(5000),
		PurchasePrice: big.NewInt(7),
		SaleEndBlock:  900,
	}}
	h := NewSaleHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.GetSaleConfig(rec, tokenRequest(http.MethodGet, "/api/sales/"+testToken+"/config", testToken))

	require.Equal(t, http.StatusOK, rec.Code)

	var got saleConfigDTO
	decodeBody(t, rec, &got)
	assert.Equal(t, "5000", got.SaleAmount)
	assert.Equal(t, "7", got.PurchasePrice)
	assert.Equal(t, uint64(900), got.SaleEndBlock)
}

func TestGetSaleConfig_NoSale(t *testing.T) {
	h := NewSaleHandler(&stubSaleService{err: domain.ErrNoSale}, testLogger())

	rec := httptest.NewRecorder()
	h.GetSaleConfig(rec, tokenRequest(http.MethodGet, "/api/sales/"+testToken+"/config", testToken))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListActivity(t *testing.T) {
	svc := &stubSaleService{activity: []domain.SaleActivity{{
		ID:            "11-0",
		Token:         testToken,
		Kind:          domain.ActivityPurchase,
		Account:       "0x1111111111111111111111111111111111111111",
		TokenAmount:   big.NewInt(300),
		FundingAmount: big.NewInt(2100),
		BlockNumber:   11,
	}}}
	h := NewSaleHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListActivity(rec, tokenRequest(http.MethodGet, "/api/sales/"+testToken+"/activity", testToken))

	require.Equal(t, http.StatusOK, rec.Code)

	var got listActivityResponse
	decodeBody(t, rec, &got)
	require.Len(t, got.Activity, 1)
	assert.Equal(t, "purchase", got.Activity[0].Kind)
	assert.Equal(t, "300", got.Activity[0].TokenAmount)
	assert.Equal(t, "2100", got.Activity[0].FundingAmount)
	// Defaults applied when the query string carries no pagination.
	assert.Equal(t, 50, got.Limit)
	assert.Zero(t, got.Offset)
}

func TestListAllActivity(t *testing.T) {
	svc := &stubSaleService{activity: []domain.SaleActivity{
		{ID: "11-0", Token: testToken, Kind: domain.ActivityPurchase, TokenAmount: big.NewInt(300), FundingAmount: big.NewInt(2100), BlockNumber: 11},
		{ID: "12-0", Token: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Kind: domain.ActivityRefund, TokenAmount: big.NewInt(50), FundingAmount: big.NewInt(350), BlockNumber: 12},
	}}
	h := NewSaleHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListAllActivity(rec, httptest.NewRequest(http.MethodGet, "/api/activity", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got listActivityResponse
	decodeBody(t, rec, &got)
	require.Len(t, got.Activity, 2)
	assert.Equal(t, testToken, got.Activity[0].Token)
	assert.Equal(t, "purchase", got.Activity[0].Kind)
	assert.Equal(t, "refund", got.Activity[1].Kind)
	assert.Equal(t, 50, got.Limit)
}

func TestListAllActivity_Error(t *testing.T) {
	h := NewSaleHandler(&stubSaleService{err: errors.New("pg down")}, testLogger())

	rec := httptest.NewRecorder()
	h.ListAllActivity(rec, httptest.NewRequest(http.MethodGet, "/api/activity", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListActivity_ClampsLimit(t *testing.T) {
	svc := &stubSaleService{}
	h := NewSaleHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListActivity(rec, tokenRequest(http.MethodGet,
		"/api/sales/"+testToken+"/activity?limit=9999&offset=10", testToken))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, svc.gotOpts.Limit)
	assert.Equal(t, 10, svc.gotOpts.Offset)
}

// stubDeploymentService backs the deployment handler tests.
type stubDeploymentService struct {
	deployments []domain.TokenDeployment
	total       int64
	err         error
}

func (s *stubDeploymentService) ListDeployments(context.Context, domain.ListOpts) ([]domain.TokenDeployment, error) {
	return s.deployments, s.err
}

func (s *stubDeploymentService) CountDeployments(context.Context) (int64, error) {
	return s.total, s.err
}

func TestListDeployments(t *testing.T) {
	svc := &stubDeploymentService{
		deployments: []domain.TokenDeployment{{
			Token:     testToken,
			Name:      "Alpha",
			Symbol:    "ALPHA",
			MaxSupply: big.NewInt(1_000_000),
		}},
		total: 7,
	}
	h := NewDeploymentHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ListDeployments(rec, httptest.NewRequest(http.MethodGet, "/api/deployments", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got listDeploymentsResponse
	decodeBody(t, rec, &got)
	require.Len(t, got.Deployments, 1)
	assert.Equal(t, "1000000", got.Deployments[0].MaxSupply)
	assert.Equal(t, int64(7), got.Total)
}

func TestListDeployments_StoreError(t *testing.T) {
	h := NewDeploymentHandler(&stubDeploymentService{err: errors.New("db down")}, testLogger())

	rec := httptest.NewRecorder()
	h.ListDeployments(rec, httptest.NewRequest(http.MethodGet, "/api/deployments", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// stubCheckpoint backs the health handler tests.
type stubCheckpoint struct {
	block uint64
	ok    bool
	err   error
}

func (s *stubCheckpoint) Get(context.Context) (uint64, bool, error) {
	return s.block, s.ok, s.err
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(&stubCheckpoint{block: 1234, ok: true}, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	decodeBody(t, rec, &got)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, float64(1234), got["indexedToBlock"])
}

func TestHealthCheck_WithoutCheckpoint(t *testing.T) {
	h := NewHealthHandler(nil, testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	decodeBody(t, rec, &got)
	assert.Equal(t, "ok", got["status"])
	assert.NotContains(t, got, "indexedToBlock")
}

// stubStatsService backs the stats handler tests.
type stubStatsService struct {
	rows   []domain.SalesStatsRow
	failed map[string]error
	err    error

	row    domain.SalesStatsRow
	rowErr error
}

func (s *stubStatsService) AggregateStats(context.Context) ([]domain.SalesStatsRow, map[string]error, error) {
	return s.rows, s.failed, s.err
}

func (s *stubStatsService) AggregateTokenStats(context.Context, string) (domain.SalesStatsRow, error) {
	return s.row, s.rowErr
}

func TestGetStats(t *testing.T) {
	svc := &stubStatsService{
		rows:   []domain.SalesStatsRow{{Token: testToken, Raised: "1750"}},
		failed: map[string]error{"0xbb": errors.New("revert")},
	}
	h := NewStatsHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Stats    []domain.SalesStatsRow `json:"stats"`
		Failures map[string]string      `json:"failures"`
	}
	decodeBody(t, rec, &got)
	require.Len(t, got.Stats, 1)
	assert.Equal(t, "1750", got.Stats[0].Raised)
	assert.Equal(t, "revert", got.Failures["0xbb"])
}

func TestStatsHandler_LogsWithHandlerField(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := NewStatsHandler(&stubStatsService{err: errors.New("rpc down")}, logger)

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Contains(t, buf.String(), "handler=stats")
}

func TestGetStats_Error(t *testing.T) {
	h := NewStatsHandler(&stubStatsService{err: errors.New("rpc down")}, testLogger())

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetTokenStats(t *testing.T) {
	svc := &stubStatsService{
		row: domain.SalesStatsRow{Token: testToken, Raised: "1750", Symbol: "USDT"},
	}
	h := NewStatsHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.GetTokenStats(rec, tokenRequest(http.MethodGet, "/api/stats/"+testToken, testToken))

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.SalesStatsRow
	decodeBody(t, rec, &got)
	assert.Equal(t, testToken, got.Token)
	assert.Equal(t, "1750", got.Raised)
	assert.Equal(t, "USDT", got.Symbol)
}

func TestGetTokenStats_NoSale(t *testing.T) {
	h := NewStatsHandler(&stubStatsService{rowErr: domain.ErrNoSale}, testLogger())

	rec := httptest.NewRecorder()
	h.GetTokenStats(rec, tokenRequest(http.MethodGet, "/api/stats/"+testToken, testToken))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTokenStats_InvalidToken(t *testing.T) {
	h := NewStatsHandler(&stubStatsService{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetTokenStats(rec, tokenRequest(http.MethodGet, "/api/stats/0x123", "0x123"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
