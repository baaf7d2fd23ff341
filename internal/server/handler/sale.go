package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/refundlabs/saletracker/internal/domain"
)

// SaleService defines the methods the sale handlers require from the service
// layer.
type SaleService interface {
	AggregateSale(ctx context.Context, token string) (domain.SaleSummary, error)
	AggregateAllSales(ctx context.Context) ([]domain.SaleSummary, map[string]error, error)
	CurrentSaleConfig(ctx context.Context, token string) (domain.SaleConfig, error)
	ListSaleActivity(ctx context.Context, token string, opts domain.ListOpts) ([]domain.SaleActivity, error)
	ListAllActivity(ctx context.Context, opts domain.ListOpts) ([]domain.SaleActivity, error)
}

// SaleHandler serves sale-related HTTP endpoints.
type SaleHandler struct {
	sales  SaleService
	logger *slog.Logger
}

// NewSaleHandler creates a SaleHandler with the given service and logger.
func NewSaleHandler(sales SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{
		sales:  sales,
		logger: logHandler(logger, "sales"),
	}
}

// saleConfigDTO is the JSON shape of a token's current sale parameters.
type saleConfigDTO struct {
	Token          string `json:"token"`
	SaleAmount     string `json:"saleAmount"`
	PurchasePrice  string `json:"purchasePrice"`
	SaleStartBlock uint64 `json:"saleStartBlock"`
	SaleEndBlock   uint64 `json:"saleEndBlock"`
	BlockNumber    uint64 `json:"blockNumber"`
	TxHash         string `json:"txHash"`
}

func toSaleConfigDTO(c domain.SaleConfig) saleConfigDTO {
	return saleConfigDTO{
		Token:          c.Token,
		SaleAmount:     c.SaleAmount.String(),
		PurchasePrice:  c.PurchasePrice.String(),
		SaleStartBlock: c.SaleStartBlock,
		SaleEndBlock:   c.SaleEndBlock,
		BlockNumber:    c.BlockNumber,
		TxHash:         c.TxHash,
	}
}

// activityDTO is the JSON shape of one purchase or refund.
type activityDTO struct {
	Token         string `json:"token"`
	Kind          string `json:"kind"`
	Account       string `json:"account"`
	TokenAmount   string `json:"tokenAmount"`
	FundingAmount string `json:"fundingAmount"`
	BlockNumber   uint64 `json:"blockNumber"`
	TxHash        string `json:"txHash"`
}

func toActivityDTO(a domain.SaleActivity) activityDTO {
	return activityDTO{
		Token:         a.Token,
		Kind:          string(a.Kind),
		Account:       a.Account,
		TokenAmount:   a.TokenAmount.String(),
		FundingAmount: a.FundingAmount.String(),
		BlockNumber:   a.BlockNumber,
		TxHash:        a.TxHash,
	}
}

// listSalesResponse wraps the all-sales endpoint output. failures maps token
// addresses to the reason their summary could not be computed this pass.
type listSalesResponse struct {
	Sales    []domain.SaleSummary `json:"sales"`
	Failures map[string]string    `json:"failures,omitempty"`
}

// ListSales returns the current summary for every token with a sale.
// GET /api/sales
func (h *SaleHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	summaries, failed, err := h.sales.AggregateAllSales(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list sales failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate sales")
		return
	}

	resp := listSalesResponse{Sales: summaries}
	if len(failed) > 0 {
		resp.Failures = make(map[string]string, len(failed))
		for token, ferr := range failed {
			resp.Failures[token] = ferr.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSale returns the aggregated summary for one token's current sale.
// GET /api/sales/{token}
func (h *SaleHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	token := tokenParam(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	summary, err := h.sales.AggregateSale(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrNoSale) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sale for token")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get sale failed",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate sale")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetSaleConfig returns the latest sale parameters for a token.
// GET /api/sales/{token}/config
func (h *SaleHandler) GetSaleConfig(w http.ResponseWriter, r *http.Request) {
	token := tokenParam(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	cfg, err := h.sales.CurrentSaleConfig(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrNoSale) {
			writeError(w, http.StatusNotFound, "no sale for token")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get sale config failed",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get sale config")
		return
	}

	writeJSON(w, http.StatusOK, toSaleConfigDTO(cfg))
}

// listActivityResponse wraps the activity endpoint output.
type listActivityResponse struct {
	Activity []activityDTO `json:"activity"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// ListActivity returns a token's purchases and refunds in chain order.
// GET /api/sales/{token}/activity?limit=50&offset=0
func (h *SaleHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	token := tokenParam(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}
	opts := parseListOpts(r)

	acts, err := h.sales.ListSaleActivity(r.Context(), token, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list activity failed",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}

	dtos := make([]activityDTO, 0, len(acts))
	for _, a := range acts {
		dtos = append(dtos, toActivityDTO(a))
	}

	writeJSON(w, http.StatusOK, listActivityResponse{
		Activity: dtos,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// ListAllActivity returns purchases and refunds across every token, in chain
// order. GET /api/activity?limit=50&offset=0
func (h *SaleHandler) ListAllActivity(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	acts, err := h.sales.ListAllActivity(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list all activity failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}

	dtos := make([]activityDTO, 0, len(acts))
	for _, a := range acts {
		dtos = append(dtos, toActivityDTO(a))
	}

	writeJSON(w, http.StatusOK, listActivityResponse{
		Activity: dtos,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}
