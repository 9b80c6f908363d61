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

type constraintManager interface {
	Create(ctx context.Context, req dto.CreateConstraintRequest) (*models.Constraint, error)
	Update(ctx context.Context, id string, req dto.UpdateConstraintRequest) (*models.Constraint, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Constraint, error)
	List(ctx context.Context, query dto.ConstraintListQuery) ([]models.Constraint, error)
}

// ConstraintHandler exposes CRUD for scheduling rules.
type ConstraintHandler struct {
	service constraintManager
}

// NewConstraintHandler constructs the handler.
func NewConstraintHandler(svc constraintManager) *ConstraintHandler {
	return &ConstraintHandler{service: svc}
}

// Create godoc
// @Summary Register a scheduling constraint
// @Description Hard constraints carry no weight; soft constraints require a positive one. Parameters are validated against the constraint kind.
// @Tags Constraints
// @Accept json
// @Produce json
// @Param payload body dto.CreateConstraintRequest true "Constraint payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable/constraints [post]
func (h *ConstraintHandler) Create(c *gin.Context) {
	var req dto.CreateConstraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid constraint payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update a constraint
// @Description Kind and scope are immutable; weight, parameters and the active flag can change.
// @Tags Constraints
// @Accept json
// @Produce json
// @Param id path string true "Constraint ID"
// @Param payload body dto.UpdateConstraintRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/constraints/{id} [put]
func (h *ConstraintHandler) Update(c *gin.Context) {
	var req dto.UpdateConstraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid constraint payload"))
		return
	}
	result, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Remove a constraint
// @Tags Constraints
// @Param id path string true "Constraint ID"
// @Success 204 "No Content"
// @Router /timetable/constraints/{id} [delete]
func (h *ConstraintHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get godoc
// @Summary Fetch one constraint
// @Tags Constraints
// @Produce json
// @Param id path string true "Constraint ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/constraints/{id} [get]
func (h *ConstraintHandler) Get(c *gin.Context) {
	result, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List active constraints for an academic year
// @Tags Constraints
// @Produce json
// @Param academicYearId query string true "Academic year"
// @Param scope query string false "TEACHER, ROOM, SUBJECT, CLASS or GLOBAL"
// @Success 200 {object} response.Envelope
// @Router /timetable/constraints [get]
func (h *ConstraintHandler) List(c *gin.Context) {
	var query dto.ConstraintListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
