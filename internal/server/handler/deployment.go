package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/refundlabs/saletracker/internal/domain"
)

// DeploymentService defines the methods the deployment handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type DeploymentService interface {
	ListDeployments(ctx context.Context, opts domain.ListOpts) ([]domain.TokenDeployment, error)
	CountDeployments(ctx context.Context) (int64, error)
}

// DeploymentHandler serves deployed-token HTTP endpoints.
type DeploymentHandler struct {
	deployments DeploymentService
	logger      *slog.Logger
}

// NewDeploymentHandler creates a DeploymentHandler.
func NewDeploymentHandler(deployments DeploymentService, logger *slog.Logger) *DeploymentHandler {
	return &DeploymentHandler{
		deployments: deployments,
		logger:      logHandler(logger, "deployments"),
	}
}

// deploymentDTO is the JSON shape of one deployed token. Amounts are decimal
// strings at native precision.
type deploymentDTO struct {
	Token       string `json:"token"`
	Deployer    string `json:"deployer"`
	Beneficiary string `json:"beneficiary"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	MaxSupply   string `json:"maxSupply"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
}

func toDeploymentDTO(d domain.TokenDeployment) deploymentDTO {
	return deploymentDTO{
		Token:       d.Token,
		Deployer:    d.Deployer,
		Beneficiary: d.Beneficiary,
		Name:        d.Name,
		Symbol:      d.Symbol,
		MaxSupply:   d.MaxSupply.String(),
		BlockNumber: d.BlockNumber,
		TxHash:      d.TxHash,
	}
}

// listDeploymentsResponse wraps the list endpoint output with metadata.
type listDeploymentsResponse struct {
	Deployments []deploymentDTO `json:"deployments"`
	Total       int64           `json:"total"`
	Limit       int             `json:"limit"`
	Offset      int             `json:"offset"`
}

// ListDeployments returns deployed tokens, newest first, with pagination.
// GET /api/deployments?limit=50&offset=0
func (h *DeploymentHandler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	deps, err := h.deployments.ListDeployments(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list deployments failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list deployments")
		return
	}

	total, err := h.deployments.CountDeployments(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count deployments failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count deployments")
		return
	}

	dtos := make([]deploymentDTO, 0, len(deps))
	for _, d := range deps {
		dtos = append(dtos, toDeploymentDTO(d))
	}

	writeJSON(w, http.StatusOK, listDeploymentsResponse{
		Deployments: dtos,
		Total:       total,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}
