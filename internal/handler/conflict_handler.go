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

type conflictResolver interface {
	List(ctx context.Context, versionID string, filter models.ConflictFilter) ([]models.Conflict, error)
	Rescan(ctx context.Context, versionID string) ([]models.Conflict, error)
	Resolve(ctx context.Context, conflictID string, req dto.ResolveConflictRequest) (*dto.AdjustmentResult, error)
	BulkResolve(ctx context.Context, req dto.BulkResolveRequest) (map[string]string, error)
}

// ConflictHandler exposes conflict inspection and resolution endpoints.
type ConflictHandler struct {
	service conflictResolver
}

// NewConflictHandler constructs the handler.
func NewConflictHandler(svc conflictResolver) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// List godoc
// @Summary List conflicts of a version
// @Tags Conflicts
// @Produce json
// @Param id path string true "Version ID"
// @Param severity query string false "critical, major or minor"
// @Param type query string false "Conflict type"
// @Param unresolved query bool false "Only open conflicts"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id}/conflicts [get]
func (h *ConflictHandler) List(c *gin.Context) {
	filter := models.ConflictFilter{
		Severity:   models.ConflictSeverity(c.Query("severity")),
		Type:       models.ConflictType(c.Query("type")),
		Unresolved: c.Query("unresolved") == "true",
	}
	result, err := h.service.List(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Rescan godoc
// @Summary Re-detect conflicts for a version
// @Description Reconciles the stored conflict set with a fresh scan. Known open conflicts keep their identity; vanished ones close as auto-resolved.
// @Tags Conflicts
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id}/conflicts/rescan [post]
func (h *ConflictHandler) Rescan(c *gin.Context) {
	result, err := h.service.Rescan(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Resolve godoc
// @Summary Resolve one conflict
// @Description Applies swap, move, cancel or reschedule to the affected entries and closes the conflict. Resolving twice returns already_resolved.
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body dto.ResolveConflictRequest true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/conflicts/{id}/resolve [post]
func (h *ConflictHandler) Resolve(c *gin.Context) {
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolution payload"))
		return
	}
	result, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// BulkResolve godoc
// @Summary Resolve several conflicts with one method
// @Description Partial success: each conflict reports its own outcome and one failure never rolls back the others.
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.BulkResolveRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/conflicts/bulk-resolve [post]
func (h *ConflictHandler) BulkResolve(c *gin.Context) {
	var req dto.BulkResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	result, err := h.service.BulkResolve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
