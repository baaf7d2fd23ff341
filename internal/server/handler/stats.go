package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/refundlabs/saletracker/internal/domain"
)

// StatsService defines the methods the stats handler requires from the
// service layer.
type StatsService interface {
	AggregateStats(ctx context.Context) ([]domain.SalesStatsRow, map[string]error, error)
	AggregateTokenStats(ctx context.Context, token string) (domain.SalesStatsRow, error)
}

// StatsHandler serves the authoritative-balance stats endpoint.
type StatsHandler struct {
	stats  StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logHandler(logger, "stats"),
	}
}

// statsResponse wraps the stats endpoint output. failures maps token
// addresses to the reason their row could not be computed this pass.
type statsResponse struct {
	Stats    []domain.SalesStatsRow `json:"stats"`
	Failures map[string]string      `json:"failures,omitempty"`
}

// GetStats returns per-token stats rows built from live contract balances.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	rows, failed, err := h.stats.AggregateStats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}

	resp := statsResponse{Stats: rows}
	if len(failed) > 0 {
		resp.Failures = make(map[string]string, len(failed))
		for token, ferr := range failed {
			resp.Failures[token] = ferr.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTokenStats returns the stats row for one deployed token.
// GET /api/stats/{token}
func (h *StatsHandler) GetTokenStats(w http.ResponseWriter, r *http.Request) {
	token := tokenParam(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}

	row, err := h.stats.AggregateTokenStats(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrNoSale) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no sale for token")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: token stats failed",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}

	writeJSON(w, http.StatusOK, row)
}
