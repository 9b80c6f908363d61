package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
	"github.com/edustack/timetable-api/pkg/response"
)

type generationOrchestrator interface {
	Submit(ctx context.Context, req dto.SubmitGenerationRequest) (*dto.SubmitGenerationResponse, error)
	Status(ctx context.Context, jobID string) (*dto.JobStatusResponse, error)
	Cancel(ctx context.Context, jobID string) (models.JobState, error)
	History(ctx context.Context, scope models.Scope, limit int) ([]models.GenerationJob, error)
}

// GenerationHandler exposes asynchronous timetable generation endpoints.
type GenerationHandler struct {
	service generationOrchestrator
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(svc generationOrchestrator) *GenerationHandler {
	return &GenerationHandler{service: svc}
}

// Submit godoc
// @Summary Submit asynchronous timetable generation
// @Description Accepts the scope and solver parameters; returns 202 with a job id for polling. A second submission for a scope with an active job is rejected with job_already_running.
// @Tags Generation
// @Accept json
// @Produce json
// @Param payload body dto.SubmitGenerationRequest true "Generation request"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/generations [post]
func (h *GenerationHandler) Submit(c *gin.Context) {
	var req dto.SubmitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// Status godoc
// @Summary Poll generation job status
// @Tags Generation
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/generations/{id} [get]
func (h *GenerationHandler) Status(c *gin.Context) {
	result, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a pending or running generation job
// @Description Cancellation is cooperative: a running solve stops between iterations with no version persisted. Cancelling a terminal job is a no-op that echoes the existing terminal state.
// @Tags Generation
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/generations/{id}/cancel [post]
func (h *GenerationHandler) Cancel(c *gin.Context) {
	state, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"state": state}, nil)
}

// History godoc
// @Summary List recent generation jobs for a scope
// @Tags Generation
// @Produce json
// @Param schoolId query string true "School ID"
// @Param yearId query string true "Academic year ID"
// @Param termId query string true "Term ID"
// @Param limit query int false "Max results"
// @Success 200 {object} response.Envelope
// @Router /timetable/generations [get]
func (h *GenerationHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	scope := models.Scope{
		SchoolID: c.Query("schoolId"),
		YearID:   c.Query("yearId"),
		TermID:   c.Query("termId"),
	}
	result, err := h.service.History(c.Request.Context(), scope, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
