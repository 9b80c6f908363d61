package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/timetable-api/internal/dto"
	"github.com/edustack/timetable-api/internal/models"
	appErrors "github.com/edustack/timetable-api/pkg/errors"
)

type optimizationVersionStore interface {
	Get(ctx context.Context, id string, view dto.VersionView) (*dto.VersionResponse, error)
	ManualAdjust(ctx context.Context, id string, req dto.ManualAdjustRequest) (*dto.AdjustmentResult, error)
}

type hintStore interface {
	Store(ctx context.Context, hint *models.GenerationHint) error
}

// OptimizationService analyzes a version for improvement opportunities and
// applies selected suggestions. Suggestions are ephemeral: recomputed on
// every request, identified by deterministic ids so a later apply call can
// reference them without server-side state.
type OptimizationService struct {
	versions  optimizationVersionStore
	hints     hintStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOptimizationService wires the analyzer dependencies.
func NewOptimizationService(versions optimizationVersionStore, hints hintStore, validate *validator.Validate, logger *zap.Logger) *OptimizationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimizationService{versions: versions, hints: hints, validator: validate, logger: logger}
}

// Suggest recomputes improvement suggestions for a version: gap
// compaction per class, teacher load rebalancing and room utilization.
// The list is deterministic for unchanged entries.
func (s *OptimizationService) Suggest(ctx context.Context, versionID string) ([]models.OptimizationSuggestion, error) {
	resp, err := s.versions.Get(ctx, versionID, dto.VersionViewFull)
	if err != nil {
		return nil, err
	}
	return analyze(versionID, resp.Entries), nil
}

// Apply executes selected suggestions in the requested mode:
//   - immediate mutates the draft through the manual adjustment path,
//     so every change lands in the audit trail;
//   - preview returns the diff without touching anything;
//   - next_generation persists the preferences as hints for the next
//     solve of the scope.
func (s *OptimizationService) Apply(ctx context.Context, versionID string, req dto.ApplyOptimizationsRequest) (*dto.ApplyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid apply payload")
	}

	resp, err := s.versions.Get(ctx, versionID, dto.VersionViewFull)
	if err != nil {
		return nil, err
	}
	suggestions := analyze(versionID, resp.Entries)
	byID := make(map[string]models.OptimizationSuggestion, len(suggestions))
	for _, sg := range suggestions {
		byID[sg.ID] = sg
	}

	result := &dto.ApplyResult{Mode: req.Mode, ScoreBefore: resp.Version.OptimizationScore}
	var selected []models.OptimizationSuggestion
	for _, id := range req.SuggestionIDs {
		sg, ok := byID[id]
		if !ok {
			// Stale id from an earlier analysis round; skip, don't fail.
			result.Skipped = append(result.Skipped, id)
			continue
		}
		selected = append(selected, sg)
	}

	switch req.Mode {
	case models.ApplyModePreview:
		for _, sg := range selected {
			result.Diff = append(result.Diff, diffOf(sg)...)
			result.Applied = append(result.Applied, sg.ID)
		}
		result.ScoreAfter = resp.Version.OptimizationScore + improvement(selected)
		return result, nil

	case models.ApplyModeImmediate:
		var adjustments []dto.Adjustment
		for _, sg := range selected {
			adj, ok := adjustmentOf(sg)
			if !ok {
				result.Skipped = append(result.Skipped, sg.ID)
				continue
			}
			adjustments = append(adjustments, adj)
			result.Applied = append(result.Applied, sg.ID)
		}
		if len(adjustments) == 0 {
			return result, nil
		}
		adjusted, err := s.versions.ManualAdjust(ctx, versionID, dto.ManualAdjustRequest{
			Adjustments: adjustments,
			ActorID:     req.ActorID,
		})
		if err != nil {
			return nil, err
		}
		for _, sg := range selected {
			result.Diff = append(result.Diff, diffOf(sg)...)
		}
		result.ScoreAfter = resp.Version.OptimizationScore + improvement(selected)
		s.logger.Sugar().Infow("applied optimization suggestions",
			"version_id", versionID, "applied", len(result.Applied), "new_conflicts", len(adjusted.NewConflicts))
		return result, nil

	case models.ApplyModeNextGeneration:
		if s.hints == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "next_generation mode is not enabled")
		}
		for _, sg := range selected {
			hint, ok := hintOf(resp.Version.Scope, sg)
			if !ok {
				result.Skipped = append(result.Skipped, sg.ID)
				continue
			}
			if err := s.hints.Store(ctx, hint); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store hint")
			}
			result.Applied = append(result.Applied, sg.ID)
			result.HintStored = true
		}
		result.ScoreAfter = resp.Version.OptimizationScore
		return result, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "unknown apply mode")
}

// analyze walks the entries looking for class-day gaps, overloaded
// teacher days and lopsided room usage. Suggestion ids hash from stable
// inputs so repeated calls over unchanged entries agree.
func analyze(versionID string, entries []models.ScheduleEntry) []models.OptimizationSuggestion {
	var out []models.OptimizationSuggestion

	classDays := map[string]map[int][]models.ScheduleEntry{}
	teacherDays := map[string]map[int]int{}
	teacherBusy := map[string]map[models.Slot]bool{}
	classBusy := map[string]map[models.Slot]bool{}
	roomLoad := map[string]int{}
	roomBusy := map[string]map[models.Slot]bool{}
	daySet := map[int]bool{}
	maxPeriod := 0
	for _, e := range entries {
		if e.Cancelled {
			continue
		}
		daySet[e.Day] = true
		if e.Period > maxPeriod {
			maxPeriod = e.Period
		}
		if classDays[e.ClassID] == nil {
			classDays[e.ClassID] = map[int][]models.ScheduleEntry{}
		}
		classDays[e.ClassID][e.Day] = append(classDays[e.ClassID][e.Day], e)
		if teacherDays[e.TeacherID] == nil {
			teacherDays[e.TeacherID] = map[int]int{}
		}
		teacherDays[e.TeacherID][e.Day]++
		if teacherBusy[e.TeacherID] == nil {
			teacherBusy[e.TeacherID] = map[models.Slot]bool{}
		}
		teacherBusy[e.TeacherID][e.Slot()] = true
		if classBusy[e.ClassID] == nil {
			classBusy[e.ClassID] = map[models.Slot]bool{}
		}
		classBusy[e.ClassID][e.Slot()] = true
		if e.RoomID != "" {
			roomLoad[e.RoomID]++
			if roomBusy[e.RoomID] == nil {
				roomBusy[e.RoomID] = map[models.Slot]bool{}
			}
			roomBusy[e.RoomID][e.Slot()] = true
		}
	}
	allDays := make([]int, 0, len(daySet))
	for day := range daySet {
		allDays = append(allDays, day)
	}
	sort.Ints(allDays)

	classIDs := make([]string, 0, len(classDays))
	for id := range classDays {
		classIDs = append(classIDs, id)
	}
	sort.Strings(classIDs)
	for _, classID := range classIDs {
		days := make([]int, 0, len(classDays[classID]))
		for day := range classDays[classID] {
			days = append(days, day)
		}
		sort.Ints(days)
		for _, day := range days {
			dayEntries := classDays[classID][day]
			sort.Slice(dayEntries, func(i, j int) bool { return dayEntries[i].Period < dayEntries[j].Period })
			for i := 1; i < len(dayEntries); i++ {
				gap := dayEntries[i].Period - dayEntries[i-1].Period - 1
				if gap <= 0 {
					continue
				}
				moved := dayEntries[i]
				target := models.Slot{Day: day, Period: dayEntries[i-1].Period + 1}
				out = append(out, models.OptimizationSuggestion{
					ID:                   suggestionID(versionID, string(models.SuggestionCompactGaps), moved.ID),
					VersionID:            versionID,
					Type:                 models.SuggestionCompactGaps,
					EstimatedImprovement: float64(gap * 2),
					Payload: map[string]any{
						"entryId":   moved.ID,
						"classId":   classID,
						"subjectId": moved.SubjectID,
						"from":      moved.Slot(),
						"to":        target,
						"detail":    fmt.Sprintf("close a %d-period gap for class %s on day %d", gap, classID, day),
					},
				})
			}
		}
	}

	teacherIDs := make([]string, 0, len(teacherDays))
	for id := range teacherDays {
		teacherIDs = append(teacherIDs, id)
	}
	sort.Strings(teacherIDs)
	for _, teacherID := range teacherIDs {
		maxLoad, maxDay := 0, 0
		for day, load := range teacherDays[teacherID] {
			if load > maxLoad || (load == maxLoad && day < maxDay) {
				maxLoad, maxDay = load, day
			}
		}
		minLoad, minDay := -1, 0
		for _, day := range allDays {
			if day == maxDay {
				continue
			}
			if load := teacherDays[teacherID][day]; minLoad == -1 || load < minLoad {
				minLoad, minDay = load, day
			}
		}
		if minLoad == -1 || maxLoad-minLoad < 3 {
			continue
		}
		var candidate *models.ScheduleEntry
		for i := range entries {
			e := &entries[i]
			if !e.Cancelled && e.TeacherID == teacherID && e.Day == maxDay {
				if candidate == nil || e.Period > candidate.Period {
					candidate = e
				}
			}
		}
		if candidate == nil {
			continue
		}
		target, free := freeSlot(minDay, maxPeriod, teacherBusy[teacherID], classBusy[candidate.ClassID])
		if !free {
			continue
		}
		out = append(out, models.OptimizationSuggestion{
			ID:                   suggestionID(versionID, string(models.SuggestionRebalanceLoad), candidate.ID),
			VersionID:            versionID,
			Type:                 models.SuggestionRebalanceLoad,
			EstimatedImprovement: float64(maxLoad - minLoad),
			Payload: map[string]any{
				"entryId":   candidate.ID,
				"classId":   candidate.ClassID,
				"subjectId": candidate.SubjectID,
				"teacherId": teacherID,
				"from":      candidate.Slot(),
				"to":        target,
				"detail":    fmt.Sprintf("teacher %s carries %d periods on day %d against %d on day %d", teacherID, maxLoad, maxDay, minLoad, minDay),
			},
		})
	}

	if len(roomLoad) > 1 {
		roomIDs := make([]string, 0, len(roomLoad))
		for id := range roomLoad {
			roomIDs = append(roomIDs, id)
		}
		sort.Strings(roomIDs)
		busyRoom, idleRoom := roomIDs[0], roomIDs[0]
		for _, id := range roomIDs {
			if roomLoad[id] > roomLoad[busyRoom] {
				busyRoom = id
			}
			if roomLoad[id] < roomLoad[idleRoom] {
				idleRoom = id
			}
		}
		if roomLoad[busyRoom]-roomLoad[idleRoom] >= 3 {
			// Reassign in place: the entry keeps its slot, only the room
			// changes, so the idle room must be free at that slot.
			var candidate *models.ScheduleEntry
			for i := range entries {
				e := &entries[i]
				if e.Cancelled || e.RoomID != busyRoom || roomBusy[idleRoom][e.Slot()] {
					continue
				}
				if candidate == nil || e.ID < candidate.ID {
					candidate = e
				}
			}
			if candidate != nil {
				out = append(out, models.OptimizationSuggestion{
					ID:                   suggestionID(versionID, string(models.SuggestionReassignRoom), candidate.ID),
					VersionID:            versionID,
					Type:                 models.SuggestionReassignRoom,
					EstimatedImprovement: float64(roomLoad[busyRoom] - roomLoad[idleRoom]),
					Payload: map[string]any{
						"entryId":    candidate.ID,
						"classId":    candidate.ClassID,
						"subjectId":  candidate.SubjectID,
						"fromRoomId": busyRoom,
						"roomId":     idleRoom,
						"from":       candidate.Slot(),
						"to":         candidate.Slot(),
						"detail":     fmt.Sprintf("room %s hosts %d lessons against %d in room %s", busyRoom, roomLoad[busyRoom], roomLoad[idleRoom], idleRoom),
					},
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EstimatedImprovement != out[j].EstimatedImprovement {
			return out[i].EstimatedImprovement > out[j].EstimatedImprovement
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// freeSlot picks the earliest period on day that no occupancy map claims.
func freeSlot(day, maxPeriod int, occupied ...map[models.Slot]bool) (models.Slot, bool) {
	for period := 1; period <= maxPeriod; period++ {
		slot := models.Slot{Day: day, Period: period}
		taken := false
		for _, busy := range occupied {
			if busy[slot] {
				taken = true
				break
			}
		}
		if !taken {
			return slot, true
		}
	}
	return models.Slot{}, false
}

func suggestionID(versionID, kind, entryID string) string {
	return models.ConflictIdentity(versionID, models.ConflictType("suggestion:"+kind), []string{entryID})
}

func diffOf(sg models.OptimizationSuggestion) []dto.EntryDiff {
	entryID, _ := sg.Payload["entryId"].(string)
	from, _ := sg.Payload["from"].(models.Slot)
	to, hasTarget := sg.Payload["to"].(models.Slot)
	if !hasTarget {
		return nil
	}
	return []dto.EntryDiff{{EntryID: entryID, Before: from, After: to}}
}

func adjustmentOf(sg models.OptimizationSuggestion) (dto.Adjustment, bool) {
	entryID, _ := sg.Payload["entryId"].(string)
	to, ok := sg.Payload["to"].(models.Slot)
	if entryID == "" || !ok {
		return dto.Adjustment{}, false
	}
	roomID, _ := sg.Payload["roomId"].(string)
	return dto.Adjustment{
		Action:  models.AdjustmentActionMove,
		EntryID: entryID,
		Target:  &to,
		RoomID:  roomID,
		Reason:  fmt.Sprintf("optimization %s", sg.Type),
	}, true
}

func hintOf(scope models.Scope, sg models.OptimizationSuggestion) (*models.GenerationHint, bool) {
	classID, _ := sg.Payload["classId"].(string)
	subjectID, _ := sg.Payload["subjectId"].(string)
	to, ok := sg.Payload["to"].(models.Slot)
	if classID == "" || subjectID == "" || !ok {
		return nil, false
	}
	return &models.GenerationHint{
		Scope:           scope,
		ClassID:         classID,
		SubjectID:       subjectID,
		PreferredDay:    to.Day,
		PreferredPeriod: to.Period,
	}, true
}

func improvement(selected []models.OptimizationSuggestion) float64 {
	var total float64
	for _, sg := range selected {
		total += sg.EstimatedImprovement
	}
	return total
}
