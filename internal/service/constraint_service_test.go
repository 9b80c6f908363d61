package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
)

func TestConstraintServiceCreateHardConstraint(t *testing.T) {
	repo := &constraintRepoStub{}
	service := NewConstraintService(repo, nil, nil)

	created, err := service.Create(context.Background(), dto.CreateConstraintRequest{
		Scope:          models.ConstraintScopeTeacher,
		Kind:           models.ConstraintKindTeacherAvailability,
		IsHard:         true,
		Parameters:     json.RawMessage(`{"teacherId":"teacher-1","blocked":[{"day":1,"period":1}]}`),
		AcademicYearID: "year-1",
	})
	require.NoError(t, err)
	assert.NotNil(t, created)
	assert.True(t, created.IsHard)
	require.Len(t, repo.items, 1)
}

func TestConstraintServiceCreateRejectsHardWithWeight(t *testing.T) {
	service := NewConstraintService(&constraintRepoStub{}, nil, nil)
	weight := 5.0

	_, err := service.Create(context.Background(), dto.CreateConstraintRequest{
		Scope:          models.ConstraintScopeTeacher,
		Kind:           models.ConstraintKindTeacherAvailability,
		IsHard:         true,
		Weight:         &weight,
		Parameters:     json.RawMessage(`{"teacherId":"teacher-1","blocked":[{"day":1,"period":1}]}`),
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrValidation))
}

func TestConstraintServiceCreateRejectsSoftWithoutWeight(t *testing.T) {
	service := NewConstraintService(&constraintRepoStub{}, nil, nil)

	_, err := service.Create(context.Background(), dto.CreateConstraintRequest{
		Scope:          models.ConstraintScopeRoom,
		Kind:           models.ConstraintKindRoomCapacity,
		IsHard:         false,
		Parameters:     json.RawMessage(`{"roomId":"room-1","capacity":30}`),
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrValidation))
}

func TestConstraintServiceCreateRejectsUnknownParameterFields(t *testing.T) {
	service := NewConstraintService(&constraintRepoStub{}, nil, nil)

	_, err := service.Create(context.Background(), dto.CreateConstraintRequest{
		Scope:          models.ConstraintScopeRoom,
		Kind:           models.ConstraintKindRoomCapacity,
		IsHard:         true,
		Parameters:     json.RawMessage(`{"roomId":"room-1","capacity":30,"bogus":true}`),
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrValidation))
}

func TestConstraintServiceCreateRejectsMismatchedParameters(t *testing.T) {
	service := NewConstraintService(&constraintRepoStub{}, nil, nil)

	_, err := service.Create(context.Background(), dto.CreateConstraintRequest{
		Scope:          models.ConstraintScopeTeacher,
		Kind:           models.ConstraintKindTeacherAvailability,
		IsHard:         true,
		Parameters:     json.RawMessage(`{"roomId":"room-1","capacity":30}`),
		AcademicYearID: "year-1",
	})
	require.Error(t, err)
}

func TestConstraintServiceUpdatePatchesWeightAndActive(t *testing.T) {
	repo := &constraintRepoStub{}
	service := NewConstraintService(repo, nil, nil)
	weight := 3.0
	created, err := service.Create(context.Background(), dto.CreateConstraintRequest{
		Scope:          models.ConstraintScopeRoom,
		Kind:           models.ConstraintKindRoomCapacity,
		IsHard:         false,
		Weight:         &weight,
		Parameters:     json.RawMessage(`{"roomId":"room-1","capacity":30}`),
		AcademicYearID: "year-1",
	})
	require.NoError(t, err)

	newWeight := 7.0
	inactive := false
	updated, err := service.Update(context.Background(), created.ID, dto.UpdateConstraintRequest{
		Weight: &newWeight,
		Active: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, *updated.Weight)
	assert.False(t, updated.Active)
	assert.Equal(t, models.ConstraintKindRoomCapacity, updated.Kind, "kind stays immutable")
}

func TestConstraintServiceUpdateMissingReturnsNotFound(t *testing.T) {
	service := NewConstraintService(&constraintRepoStub{}, nil, nil)
	hard := true

	_, err := service.Update(context.Background(), "missing", dto.UpdateConstraintRequest{IsHard: &hard})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrNotFound))
}

func TestConstraintServiceDeleteMissingReturnsNotFound(t *testing.T) {
	service := NewConstraintService(&constraintRepoStub{}, nil, nil)

	err := service.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrNotFound))
}

func TestConstraintServiceListRequiresAcademicYear(t *testing.T) {
	service := NewConstraintService(&constraintRepoStub{}, nil, nil)

	_, err := service.List(context.Background(), dto.ConstraintListQuery{})
	require.Error(t, err)
	assert.True(t, appErrors.Matches(err, appErrors.ErrValidation))
}

// --- Fixtures ---

type constraintRepoStub struct {
	items []models.Constraint
	seq   int
}

func (s *constraintRepoStub) Create(ctx context.Context, constraint *models.Constraint) error {
	s.seq++
	constraint.ID = "constraint-" + strconv.Itoa(s.seq)
	constraint.Active = true
	s.items = append(s.items, *constraint)
	return nil
}

func (s *constraintRepoStub) Update(ctx context.Context, constraint *models.Constraint) error {
	for i := range s.items {
		if s.items[i].ID == constraint.ID {
			s.items[i] = *constraint
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *constraintRepoStub) Delete(ctx context.Context, id string) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *constraintRepoStub) FindByID(ctx context.Context, id string) (*models.Constraint, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			c := s.items[i]
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *constraintRepoStub) ListActive(ctx context.Context, academicYearID string, scope models.ConstraintScope) ([]models.Constraint, error) {
	var out []models.Constraint
	for _, c := range s.items {
		if !c.Active || c.AcademicYearID != academicYearID {
			continue
		}
		if scope != "" && c.Scope != scope {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
