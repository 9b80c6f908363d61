package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
	"github.com/edustack/timetable-api/pkg/response"
)

type optimizationAnalyzer interface {
	Suggest(ctx context.Context, versionID string) ([]models.OptimizationSuggestion, error)
	Apply(ctx context.Context, versionID string, req dto.ApplyOptimizationsRequest) (*dto.ApplyResult, error)
}

// OptimizationHandler exposes post-generation improvement suggestions.
type OptimizationHandler struct {
	service optimizationAnalyzer
}

// NewOptimizationHandler constructs the handler.
func NewOptimizationHandler(svc optimizationAnalyzer) *OptimizationHandler {
	return &OptimizationHandler{service: svc}
}

// Suggestions godoc
// @Summary Analyze a version for possible improvements
// @Description Suggestions are recomputed on every call and never persisted; stale ids passed back to apply are skipped.
// @Tags Optimization
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id}/suggestions [get]
func (h *OptimizationHandler) Suggestions(c *gin.Context) {
	result, err := h.service.Suggest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Apply godoc
// @Summary Apply selected suggestions
// @Description Mode immediate mutates the draft through the audited adjustment path, preview returns the would-be diff, next_generation stores hints for the following solve.
// @Tags Optimization
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.ApplyOptimizationsRequest true "Selected suggestion ids and mode"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id}/optimize [post]
func (h *OptimizationHandler) Apply(c *gin.Context) {
	var req dto.ApplyOptimizationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid optimization payload"))
		return
	}
	result, err := h.service.Apply(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
