package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// MaintenanceRunner is the slice of the scheduler the handler drives on
// demand, outside the regular cadence.
type MaintenanceRunner interface {
	CleanupPass(ctx context.Context) error
}

// MaintenanceHandler exposes operator-triggered maintenance.
type MaintenanceHandler struct {
	runner MaintenanceRunner
	log    logger.Logger
}

// NewMaintenanceHandler wires the handler.
func NewMaintenanceHandler(runner MaintenanceRunner, log logger.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{runner: runner, log: log.WithComponent("maintenance_handler")}
}

// Cleanup handles POST /v1/maintenance/cleanup. It purges expired revocation
// entries and token records immediately instead of waiting for the next
// scheduled pass.
func (h *MaintenanceHandler) Cleanup(c *gin.Context) {
	if err := h.runner.CleanupPass(c.Request.Context()); err != nil {
		writeError(c, apperrors.Wrap(err, apperrors.KindOf(err), "cleanup pass failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
