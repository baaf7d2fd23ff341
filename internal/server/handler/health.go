package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CheckpointReader exposes the indexer cursor for health reporting.
type CheckpointReader interface {
	Get(ctx context.Context) (uint64, bool, error)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checkpoint CheckpointReader // optional
	logger     *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checkpoint may be nil when the
// process serves queries without an indexer attached.
func NewHealthHandler(checkpoint CheckpointReader, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checkpoint: checkpoint, logger: logHandler(logger, "health")}
}

// HealthCheck responds with a JSON status indicating the server is alive,
// including the indexer checkpoint when one is available.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.checkpoint != nil {
		block, ok, err := h.checkpoint.Get(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: health checkpoint read failed",
				slog.String("error", err.Error()),
			)
		} else if ok {
			resp["indexedToBlock"] = block
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
