package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"florijn/internal/logger"
	"florijn/internal/services"
)

// PipelineHandler handles scheduled batch endpoints authenticated by API key
// rather than a user session.
type PipelineHandler struct {
	recurringService services.RecurringExpenseServicer
}

// NewPipelineHandler creates a new PipelineHandler
func NewPipelineHandler(recurringService services.RecurringExpenseServicer) *PipelineHandler {
	return &PipelineHandler{recurringService: recurringService}
}

// MaterializeAll handles cross-tenant batch materialization
// @Summary     Materialize all outstanding occurrences
// @Description Create draft expenses for every active template across all tenants; intended for the scheduled pipeline
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       as_of query string false "Reference date (YYYY-MM-DD, default today)"
// @Success     200 {array} services.MaterializeResult "Per-template materialization results"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/recurring-expenses/materialize [post]
func (h *PipelineHandler) MaterializeAll(c *gin.Context) {
	asOf, err := parseAsOf(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	results, err := h.recurringService.MaterializeAllTenants(asOf)
	if err != nil {
		// Partial results may exist; report the failure but include what
		// was completed so the pipeline run can be reconciled.
		logger.Get().Errorw("batch materialization failed",
			"error", err.Error(),
			"completed_templates", len(results),
		)
		respondWithError(c, err)
		return
	}

	created := 0
	for _, r := range results {
		created += len(r.Created)
	}
	logger.Get().Infow("batch materialization completed",
		"templates", len(results),
		"expenses_created", created,
	)

	c.JSON(http.StatusOK, gin.H{
		"results":          results,
		"templates":        len(results),
		"expenses_created": created,
	})
}
