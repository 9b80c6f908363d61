package solver

import (
	"fmt"
	"math"
	"sort"

	"github.com/edustack/timetable-api/internal/models"
)

// Penalty weights. Hard violations dominate any achievable soft total so
// repair always prefers restoring feasibility over polishing preferences.
const (
	hardWeight        = 1000.0
	gapWeight         = 2.0
	overloadWeight    = 5.0
	scoreHardPerCount = 40.0
)

// totalPenalty drives repair acceptance: hard violations weighted far
// above any soft weight, plus the soft terms.
func (s *state) totalPenalty() float64 {
	return hardWeight*float64(len(s.hardViolations())) + s.softPenalty()
}

// score maps the current assignment to the published optimization score:
// 100 minus the dominant hard term minus the soft shortfall, floored at 0.
func (s *state) score() float64 {
	return math.Max(0, 100-scoreHardPerCount*float64(len(s.hardViolations()))-s.softPenalty())
}

// softDelta estimates the soft-penalty increase of placing the demand at
// the slot. Construction uses it for least-constraining-value selection.
func (s *state) softDelta(d demand, slotIdx int) float64 {
	slot := s.slots[slotIdx]
	delta := 0.0

	// New gaps in the class day outweigh a period appended to an edge.
	periods := []int{slot.Period}
	for di, p := range s.placements {
		if s.demands[di].classID == d.classID && p.slot.Day == slot.Day {
			periods = append(periods, p.slot.Period)
		}
	}
	sort.Ints(periods)
	for i := 0; i < len(periods)-1; i++ {
		if diff := periods[i+1] - periods[i]; diff > 1 {
			delta += gapWeight * float64(diff-1)
		}
	}

	// Soft availability: using a dispreferred slot costs its weight.
	for _, c := range s.soft {
		if c.Kind != models.ConstraintKindTeacherAvailability {
			continue
		}
		var p models.TeacherAvailabilityParams
		if err := c.DecodeParameters(&p); err != nil || p.TeacherID != d.teacherID {
			continue
		}
		for _, blockedSlot := range p.Blocked {
			if blockedSlot == slot {
				delta += weightOf(c)
			}
		}
	}
	return delta
}

// sortedPlacements returns demand indices in stable order. Every float
// accumulation iterates through it so identical assignments always sum in
// the same order, keeping repair decisions reproducible across runs.
func (s *state) sortedPlacements() []int {
	keys := make([]int, 0, len(s.placements))
	for di := range s.placements {
		keys = append(keys, di)
	}
	sort.Ints(keys)
	return keys
}

// softPenalty sums the soft terms over the whole assignment: class gaps,
// teacher overloads, dispreferred-slot usage, and workload imbalance.
func (s *state) softPenalty() float64 {
	penalty := 0.0
	order := s.sortedPlacements()

	// Gap penalty per class-day.
	type classDay struct {
		classID string
		day     int
	}
	byClassDay := map[classDay][]int{}
	var classDays []classDay
	teacherLoads := map[string]int{}
	var teacherIDs []string
	teacherDayLoads := map[string]map[int]int{}
	for _, di := range order {
		d := s.demands[di]
		p := s.placements[di]
		key := classDay{classID: d.classID, day: p.slot.Day}
		if byClassDay[key] == nil {
			classDays = append(classDays, key)
		}
		byClassDay[key] = append(byClassDay[key], p.slot.Period)
		if teacherLoads[d.teacherID] == 0 {
			teacherIDs = append(teacherIDs, d.teacherID)
		}
		teacherLoads[d.teacherID]++
		if teacherDayLoads[d.teacherID] == nil {
			teacherDayLoads[d.teacherID] = map[int]int{}
		}
		teacherDayLoads[d.teacherID][p.slot.Day]++
	}
	for _, key := range classDays {
		periods := byClassDay[key]
		sort.Ints(periods)
		for i := 0; i < len(periods)-1; i++ {
			if diff := periods[i+1] - periods[i]; diff > 1 {
				penalty += gapWeight * float64(diff-1)
			}
		}
	}

	// Overload beyond declared capacity.
	for _, teacherID := range teacherIDs {
		t := s.teachers[teacherID]
		if t == nil {
			continue
		}
		load := teacherLoads[teacherID]
		if t.MaxLoadPerWeek > 0 && load > t.MaxLoadPerWeek {
			penalty += overloadWeight * float64(load-t.MaxLoadPerWeek)
		}
		for _, day := range s.grid.Days {
			dayLoad := teacherDayLoads[teacherID][int(day)]
			if t.MaxLoadPerDay > 0 && dayLoad > t.MaxLoadPerDay {
				penalty += overloadWeight * float64(dayLoad-t.MaxLoadPerDay)
			}
		}
	}

	// Soft availability usage across the assignment.
	for _, c := range s.soft {
		if c.Kind != models.ConstraintKindTeacherAvailability {
			continue
		}
		var p models.TeacherAvailabilityParams
		if err := c.DecodeParameters(&p); err != nil {
			continue
		}
		blocked := map[models.Slot]bool{}
		for _, slot := range p.Blocked {
			blocked[slot] = true
		}
		for _, di := range order {
			if s.demands[di].teacherID == p.TeacherID && blocked[s.placements[di].slot] {
				penalty += weightOf(c)
			}
		}
	}

	// Workload imbalance: population variance across teachers with load.
	if len(teacherIDs) > 1 {
		sum := 0.0
		for _, teacherID := range teacherIDs {
			sum += float64(teacherLoads[teacherID])
		}
		mean := sum / float64(len(teacherIDs))
		variance := 0.0
		for _, teacherID := range teacherIDs {
			diff := float64(teacherLoads[teacherID]) - mean
			variance += diff * diff
		}
		penalty += variance / float64(len(teacherIDs))
	}

	return penalty
}

func weightOf(c models.Constraint) float64 {
	if c.Weight != nil {
		return *c.Weight
	}
	return 1
}

// hardViolations scans the assignment for every unsatisfied hard
// requirement: double-bookings, class clashes, blocked-slot use, missing
// or over-capacity rooms.
func (s *state) hardViolations() []HardViolation {
	var out []HardViolation

	type occKey struct {
		id      string
		slotIdx int
	}
	teacherOcc := map[occKey][]int{}
	roomOcc := map[occKey][]int{}
	classOcc := map[occKey][]int{}
	for _, di := range s.sortedPlacements() {
		p := s.placements[di]
		d := s.demands[di]
		idx := s.grid.Index(p.slot)
		teacherOcc[occKey{d.teacherID, idx}] = append(teacherOcc[occKey{d.teacherID, idx}], di)
		classOcc[occKey{d.classID, idx}] = append(classOcc[occKey{d.classID, idx}], di)
		if p.roomID != "" {
			roomOcc[occKey{p.roomID, idx}] = append(roomOcc[occKey{p.roomID, idx}], di)
		}

		if s.blocked[d.teacherID] != nil && s.blocked[d.teacherID][idx] {
			slot := p.slot
			out = append(out, HardViolation{
				Kind:      models.ConflictTypeConstraintViolation,
				TeacherID: d.teacherID,
				ClassID:   d.classID,
				SubjectID: d.subjectID,
				Slot:      &slot,
				Detail:    fmt.Sprintf("teacher %s scheduled in a blocked slot", d.teacherID),
			})
		}
		if p.roomID == "" {
			slot := p.slot
			out = append(out, HardViolation{
				Kind:      models.ConflictTypeRoomConflict,
				ClassID:   d.classID,
				SubjectID: d.subjectID,
				Slot:      &slot,
				Detail:    fmt.Sprintf("no suitable room for class %s subject %s", d.classID, d.subjectID),
			})
		}
	}

	appendOverlaps := func(occ map[occKey][]int, kind models.ConflictType, label string) {
		keys := make([]occKey, 0, len(occ))
		for k := range occ {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].id != keys[j].id {
				return keys[i].id < keys[j].id
			}
			return keys[i].slotIdx < keys[j].slotIdx
		})
		for _, k := range keys {
			if len(occ[k]) < 2 {
				continue
			}
			slot := s.slots[k.slotIdx]
			v := HardViolation{Kind: kind, Slot: &slot, Detail: fmt.Sprintf("%s %s double-booked", label, k.id)}
			switch kind {
			case models.ConflictTypeTeacherDoubleBooking:
				v.TeacherID = k.id
			case models.ConflictTypeRoomConflict:
				v.RoomID = k.id
			case models.ConflictTypeSubjectClash:
				v.ClassID = k.id
			}
			out = append(out, v)
		}
	}
	appendOverlaps(teacherOcc, models.ConflictTypeTeacherDoubleBooking, "teacher")
	appendOverlaps(roomOcc, models.ConflictTypeRoomConflict, "room")
	appendOverlaps(classOcc, models.ConflictTypeSubjectClash, "class")

	return out
}
