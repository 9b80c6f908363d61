package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
)

type constraintManagerMock struct {
	createResp *models.Constraint
	createErr  error
	deleteErr  error
	listResp   []models.Constraint
	listErr    error
}

func (m *constraintManagerMock) Create(ctx context.Context, req dto.CreateConstraintRequest) (*models.Constraint, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *constraintManagerMock) Update(ctx context.Context, id string, req dto.UpdateConstraintRequest) (*models.Constraint, error) {
	return m.createResp, nil
}

func (m *constraintManagerMock) Delete(ctx context.Context, id string) error {
	return m.deleteErr
}

func (m *constraintManagerMock) Get(ctx context.Context, id string) (*models.Constraint, error) {
	return m.createResp, nil
}

func (m *constraintManagerMock) List(ctx context.Context, query dto.ConstraintListQuery) ([]models.Constraint, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listResp, nil
}

func TestConstraintHandlerCreateReturns201(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewConstraintHandler(&constraintManagerMock{
		createResp: &models.Constraint{ID: "con-1", Kind: models.ConstraintKindTeacherAvailability},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateConstraintRequest{
		Scope:          models.ConstraintScopeTeacher,
		Kind:           models.ConstraintKindTeacherAvailability,
		IsHard:         true,
		Parameters:     json.RawMessage(`{"blocked":[{"day":1,"period":2}]}`),
		AcademicYearID: "year-1",
	})
	req, _ := http.NewRequest(http.MethodPost, "/timetable/constraints", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "con-1")
}

func TestConstraintHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewConstraintHandler(&constraintManagerMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/timetable/constraints", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConstraintHandlerDeleteMissingReturns404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewConstraintHandler(&constraintManagerMock{deleteErr: appErrors.ErrNotFound})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/timetable/constraints/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Delete(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConstraintHandlerDeleteReturns204(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewConstraintHandler(&constraintManagerMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/timetable/constraints/con-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "con-1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}
