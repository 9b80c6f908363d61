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

type versionLifecycle interface {
	Get(ctx context.Context, id string, view dto.VersionView) (*dto.VersionResponse, error)
	List(ctx context.Context, scope models.Scope) ([]models.ScheduleVersion, error)
	Publish(ctx context.Context, id string, req dto.PublishRequest) (*models.ScheduleVersion, error)
	Archive(ctx context.Context, id string, req dto.ArchiveRequest) (*models.ScheduleVersion, error)
	Discard(ctx context.Context, id string) error
	Current(ctx context.Context, scope models.Scope) (*dto.VersionResponse, error)
	ManualAdjust(ctx context.Context, id string, req dto.ManualAdjustRequest) (*dto.AdjustmentResult, error)
	Adjustments(ctx context.Context, id string) ([]models.AdjustmentRecord, error)
	Export(ctx context.Context, id, format string) ([]byte, string, error)
}

type versionRegenerator interface {
	Regenerate(ctx context.Context, versionID string, req dto.RegenerateRequest) (*dto.SubmitGenerationResponse, error)
}

// VersionHandler exposes schedule version lifecycle endpoints.
type VersionHandler struct {
	versions  versionLifecycle
	generator versionRegenerator
}

// NewVersionHandler constructs the handler.
func NewVersionHandler(versions versionLifecycle, generator versionRegenerator) *VersionHandler {
	return &VersionHandler{versions: versions, generator: generator}
}

// List godoc
// @Summary List schedule versions for a scope
// @Tags Versions
// @Produce json
// @Param schoolId query string true "School ID"
// @Param yearId query string true "Academic year ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions [get]
func (h *VersionHandler) List(c *gin.Context) {
	scope := scopeFromQuery(c)
	result, err := h.versions.List(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Get godoc
// @Summary Get one schedule version
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Param view query string false "summary (default) or full"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id} [get]
func (h *VersionHandler) Get(c *gin.Context) {
	view := dto.VersionView(c.DefaultQuery("view", string(dto.VersionViewSummary)))
	result, err := h.versions.Get(c.Request.Context(), c.Param("id"), view)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Current godoc
// @Summary Get the published timetable for a scope
// @Tags Versions
// @Produce json
// @Param schoolId query string true "School ID"
// @Param yearId query string true "Academic year ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/current [get]
func (h *VersionHandler) Current(c *gin.Context) {
	result, err := h.versions.Current(c.Request.Context(), scopeFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Publish godoc
// @Summary Publish a draft version
// @Description Rescans first; drafts with unresolved critical conflicts are rejected with unresolved_critical_conflicts. The previously published version is archived as superseded.
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.PublishRequest true "Publish payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/versions/{id}/publish [post]
func (h *VersionHandler) Publish(c *gin.Context) {
	var req dto.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid publish payload"))
		return
	}
	result, err := h.versions.Publish(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Archive godoc
// @Summary Archive a published version
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.ArchiveRequest true "Archive payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id}/archive [post]
func (h *VersionHandler) Archive(c *gin.Context) {
	var req dto.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid archive payload"))
		return
	}
	result, err := h.versions.Archive(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Discard godoc
// @Summary Discard a draft version
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 204
// @Router /timetable/versions/{id} [delete]
func (h *VersionHandler) Discard(c *gin.Context) {
	if err := h.versions.Discard(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Adjust godoc
// @Summary Manually adjust a draft version
// @Description Applies a batch of swap/move/cancel/reschedule mutations under a per-version lock, records them in the audit trail and rescans for conflicts.
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.ManualAdjustRequest true "Adjustment batch"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id}/adjust [post]
func (h *VersionHandler) Adjust(c *gin.Context) {
	var req dto.ManualAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid adjustment payload"))
		return
	}
	result, err := h.versions.ManualAdjust(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Adjustments godoc
// @Summary List the adjustment audit trail for a version
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/versions/{id}/adjustments [get]
func (h *VersionHandler) Adjustments(c *gin.Context) {
	result, err := h.versions.Adjustments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Regenerate godoc
// @Summary Regenerate a timetable starting from an existing version's scope
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.RegenerateRequest true "Regenerate payload"
// @Success 202 {object} response.Envelope
// @Router /timetable/versions/{id}/regenerate [post]
func (h *VersionHandler) Regenerate(c *gin.Context) {
	var req dto.RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid regenerate payload"))
		return
	}
	result, err := h.generator.Regenerate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// Export godoc
// @Summary Export a version as CSV or PDF
// @Tags Versions
// @Produce octet-stream
// @Param id path string true "Version ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /timetable/versions/{id}/export [get]
func (h *VersionHandler) Export(c *gin.Context) {
	body, contentType, err := h.versions.Export(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

func scopeFromQuery(c *gin.Context) models.Scope {
	return models.Scope{
		SchoolID: c.Query("schoolId"),
		YearID:   c.Query("yearId"),
		TermID:   c.Query("termId"),
	}
}
