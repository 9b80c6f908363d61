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

type generationOrchestratorMock struct {
	submitResp  *dto.SubmitGenerationResponse
	submitErr   error
	statusResp  *dto.JobStatusResponse
	statusErr   error
	cancelState models.JobState
	cancelErr   error
	historyResp []models.GenerationJob
}

func (m *generationOrchestratorMock) Submit(ctx context.Context, req dto.SubmitGenerationRequest) (*dto.SubmitGenerationResponse, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.submitResp, nil
}

func (m *generationOrchestratorMock) Status(ctx context.Context, jobID string) (*dto.JobStatusResponse, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.statusResp, nil
}

func (m *generationOrchestratorMock) Cancel(ctx context.Context, jobID string) (models.JobState, error) {
	if m.cancelErr != nil {
		return "", m.cancelErr
	}
	return m.cancelState, nil
}

func (m *generationOrchestratorMock) History(ctx context.Context, scope models.Scope, limit int) ([]models.GenerationJob, error) {
	return m.historyResp, nil
}

func TestGenerationHandlerSubmitAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGenerationHandler(&generationOrchestratorMock{
		submitResp: &dto.SubmitGenerationResponse{JobID: "job-1", State: models.JobStatePending},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.SubmitGenerationRequest{
		ScopeQuery: dto.ScopeQuery{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"},
	})
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "job-1")
}

func TestGenerationHandlerSubmitInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGenerationHandler(&generationOrchestratorMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generations", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerationHandlerSubmitActiveJobConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGenerationHandler(&generationOrchestratorMock{submitErr: appErrors.ErrJobAlreadyRunning})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.SubmitGenerationRequest{
		ScopeQuery: dto.ScopeQuery{SchoolID: "school-1", YearID: "year-1", TermID: "term-1"},
	})
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGenerationHandlerStatusNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGenerationHandler(&generationOrchestratorMock{statusErr: appErrors.ErrNotFound})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/timetable/generations/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Status(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandlerCancelTerminalEchoesState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGenerationHandler(&generationOrchestratorMock{cancelState: models.JobStateCompleted})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generations/job-1/cancel", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}

	handler.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(models.JobStateCompleted))
}

func TestGenerationHandlerCancelUnknownJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewGenerationHandler(&generationOrchestratorMock{cancelErr: appErrors.ErrNotFound})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generations/missing/cancel", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Cancel(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
