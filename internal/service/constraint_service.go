package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
)

type constraintRepository interface {
	Create(ctx context.Context, constraint *models.Constraint) error
	Update(ctx context.Context, constraint *models.Constraint) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Constraint, error)
	ListActive(ctx context.Context, academicYearID string, scope models.ConstraintScope) ([]models.Constraint, error)
}

// ConstraintService manages typed scheduling rules. Constraint edits never
// touch running jobs: each generation works on the snapshot taken at
// submission.
type ConstraintService struct {
	constraints constraintRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewConstraintService wires the constraint dependencies.
func NewConstraintService(constraints constraintRepository, validate *validator.Validate, logger *zap.Logger) *ConstraintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintService{constraints: constraints, validator: validate, logger: logger}
}

// Create validates and stores a new constraint.
func (s *ConstraintService) Create(ctx context.Context, req dto.CreateConstraintRequest) (*models.Constraint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint payload")
	}
	if err := s.checkHardness(req.IsHard, req.Weight); err != nil {
		return nil, err
	}
	if err := s.checkParameters(req.Kind, req.Parameters); err != nil {
		return nil, err
	}

	constraint := &models.Constraint{
		Scope:          req.Scope,
		TargetID:       req.TargetID,
		Kind:           req.Kind,
		IsHard:         req.IsHard,
		Weight:         req.Weight,
		Parameters:     types.JSONText(req.Parameters),
		AcademicYearID: req.AcademicYearID,
	}
	if err := s.constraints.Create(ctx, constraint); err != nil {
		s.logger.Sugar().Errorw("failed to create constraint", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create constraint")
	}
	return constraint, nil
}

// Update patches a constraint. Kind and scope are immutable after creation;
// replace the rule to change them.
func (s *ConstraintService) Update(ctx context.Context, id string, req dto.UpdateConstraintRequest) (*models.Constraint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint payload")
	}

	constraint, err := s.constraints.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load constraint")
	}

	if req.IsHard != nil {
		constraint.IsHard = *req.IsHard
	}
	if req.Weight != nil {
		constraint.Weight = req.Weight
	}
	if err := s.checkHardness(constraint.IsHard, constraint.Weight); err != nil {
		return nil, err
	}
	if len(req.Parameters) > 0 {
		if err := s.checkParameters(constraint.Kind, req.Parameters); err != nil {
			return nil, err
		}
		constraint.Parameters = types.JSONText(req.Parameters)
	}
	if req.Active != nil {
		constraint.Active = *req.Active
	}

	if err := s.constraints.Update(ctx, constraint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update constraint")
	}
	return constraint, nil
}

// Delete removes a constraint. Running jobs keep their snapshot.
func (s *ConstraintService) Delete(ctx context.Context, id string) error {
	if err := s.constraints.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete constraint")
	}
	return nil
}

// Get returns one constraint.
func (s *ConstraintService) Get(ctx context.Context, id string) (*models.Constraint, error) {
	constraint, err := s.constraints.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load constraint")
	}
	return constraint, nil
}

// List returns active constraints for an academic year.
func (s *ConstraintService) List(ctx context.Context, query dto.ConstraintListQuery) ([]models.Constraint, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint query")
	}
	constraints, err := s.constraints.ListActive(ctx, query.AcademicYearID, query.Scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list constraints")
	}
	return constraints, nil
}

// Snapshot loads the active constraint set a generation run works against.
func (s *ConstraintService) Snapshot(ctx context.Context, academicYearID string) ([]models.Constraint, error) {
	return s.constraints.ListActive(ctx, academicYearID, "")
}

// checkHardness enforces the hard/soft split: hard rules carry no weight,
// soft rules must carry a positive one.
func (s *ConstraintService) checkHardness(isHard bool, weight *float64) error {
	if isHard && weight != nil {
		return appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "hard constraints must not carry a weight")
	}
	if !isHard && (weight == nil || *weight <= 0) {
		return appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "soft constraints require a positive weight")
	}
	return nil
}

// checkParameters decodes the payload against the kind's typed schema.
func (s *ConstraintService) checkParameters(kind models.ConstraintKind, raw json.RawMessage) error {
	var target any
	switch kind {
	case models.ConstraintKindTeacherAvailability:
		target = &models.TeacherAvailabilityParams{}
	case models.ConstraintKindRoomCapacity:
		target = &models.RoomCapacityParams{}
	case models.ConstraintKindSubjectWeeklyFrequency:
		target = &models.SubjectWeeklyFrequencyParams{}
	case models.ConstraintKindConsecutivePeriodLimit:
		target = &models.ConsecutivePeriodLimitParams{}
	case models.ConstraintKindCustom:
		target = &models.CustomParams{}
	default:
		return appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "unknown constraint kind")
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "malformed constraint parameters")
	}
	if err := s.validator.Struct(target); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid constraint parameters")
	}
	return nil
}
