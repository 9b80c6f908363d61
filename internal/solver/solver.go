package solver

import (
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/edustack/timetable-api/internal/models"
)

// Flag is a cooperative cancellation signal polled between iterations.
type Flag struct {
	v atomic.Bool
}

// Set raises the flag.
func (f *Flag) Set() { f.v.Store(true) }

// IsSet reports whether cancellation was requested.
func (f *Flag) IsSet() bool { return f.v.Load() }

// Input bundles everything a solve needs. The domain and constraint
// snapshot are read-only for the duration of the run.
type Input struct {
	Domain      models.SchedulingDomain
	Constraints []models.Constraint
	Hints       []PlacementHint
	Seed        int64
	TimeBudget  time.Duration
	// MaxRepairIterations caps the repair phase; 0 means time-budget only.
	MaxRepairIterations int
	Cancel              *Flag
	Progress            func(pct int)
}

// PlacementHint biases tie-breaks toward a preferred slot for a
// class-subject pair. Stored by next_generation optimization applies.
type PlacementHint struct {
	ClassID   string      `json:"classId"`
	SubjectID string      `json:"subjectId"`
	Preferred models.Slot `json:"preferred"`
}

// HardViolation explains one unsatisfied hard requirement. Infeasibility
// is data, not an error.
type HardViolation struct {
	Kind      models.ConflictType `json:"kind"`
	ClassID   string              `json:"classId,omitempty"`
	SubjectID string              `json:"subjectId,omitempty"`
	TeacherID string              `json:"teacherId,omitempty"`
	RoomID    string              `json:"roomId,omitempty"`
	Slot      *models.Slot        `json:"slot,omitempty"`
	Detail    string              `json:"detail"`
}

// Stats summarises a run.
type Stats struct {
	Placed           int           `json:"placed"`
	RepairIterations int           `json:"repairIterations"`
	RepairAccepted   int           `json:"repairAccepted"`
	Elapsed          time.Duration `json:"elapsed"`
	Cancelled        bool          `json:"cancelled"`
}

// Result is the solver output. Entries are canonically ordered so the
// same input and seed always yield byte-identical results.
type Result struct {
	Entries         []models.ScheduleEntry
	UnsatisfiedHard []HardViolation
	Score           float64
	Stats           Stats
}

// Solve runs greedy construction followed by bounded min-conflicts repair.
// It returns an error only for malformed input; an overconstrained problem
// completes with the best schedule found and the violations listed.
func Solve(in Input) (*Result, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	start := time.Now()
	st := newState(in)
	st.construct()

	budget := in.TimeBudget
	if budget <= 0 {
		budget = 10 * time.Second
	}
	deadline := start.Add(budget)
	st.repair(deadline)

	entries := st.exportEntries()
	violations := st.hardViolations()
	score := st.score()

	st.stats.Elapsed = time.Since(start)
	if in.Progress != nil {
		in.Progress(100)
	}

	return &Result{
		Entries:         entries,
		UnsatisfiedHard: violations,
		Score:           score,
		Stats:           st.stats,
	}, nil
}

func validateInput(in Input) error {
	grid := in.Domain.Grid
	if grid == nil || len(grid.Days) == 0 || grid.PeriodsPerDay < 1 {
		return fmt.Errorf("solver: time grid is empty")
	}
	teachers := make(map[string]bool, len(in.Domain.Teachers))
	for _, t := range in.Domain.Teachers {
		teachers[t.ID] = true
	}
	subjects := make(map[string]bool, len(in.Domain.Subjects))
	for _, s := range in.Domain.Subjects {
		subjects[s.ID] = true
	}
	classes := make(map[string]bool, len(in.Domain.Classes))
	for _, c := range in.Domain.Classes {
		classes[c.ID] = true
	}
	for _, d := range in.Domain.Demands {
		if !teachers[d.TeacherID] {
			return fmt.Errorf("solver: demand references unknown teacher %s", d.TeacherID)
		}
		if !subjects[d.SubjectID] {
			return fmt.Errorf("solver: demand references unknown subject %s", d.SubjectID)
		}
		if !classes[d.ClassID] {
			return fmt.Errorf("solver: demand references unknown class %s", d.ClassID)
		}
		if d.Frequency < 1 {
			return fmt.Errorf("solver: demand %s/%s has non-positive frequency", d.ClassID, d.SubjectID)
		}
	}
	return nil
}

// demand is one occurrence of a class-subject meeting to place.
type demand struct {
	index     int
	classID   string
	subjectID string
	teacherID string
	occurrence int
}

// placement is where a demand currently sits. room may be empty when no
// room could be found, which itself is a hard violation.
type placement struct {
	slot   models.Slot
	roomID string
	forced bool
}

type state struct {
	grid        *models.TimeGrid
	slots       []models.Slot
	rng         *rand.Rand
	cancel      *Flag
	progress    func(pct int)
	maxRepair   int
	stats       Stats

	demands    []demand
	placements map[int]placement

	teachers map[string]*models.Teacher
	rooms    []models.Room
	subjects map[string]*models.Subject
	classes  map[string]*models.Class

	// availability[teacherID][slotIndex] blocked
	blocked map[string]map[int]bool
	// consecutive run limits per teacher, 0 = unlimited
	maxRun map[string]int

	soft  []models.Constraint
	hints map[string]models.Slot
}

func newState(in Input) *state {
	grid := in.Domain.Grid
	st := &state{
		grid:       grid,
		slots:      grid.Slots(),
		rng:        rand.New(rand.NewSource(in.Seed)),
		cancel:     in.Cancel,
		progress:   in.Progress,
		maxRepair:  in.MaxRepairIterations,
		placements: make(map[int]placement),
		teachers:   make(map[string]*models.Teacher, len(in.Domain.Teachers)),
		subjects:   make(map[string]*models.Subject, len(in.Domain.Subjects)),
		classes:    make(map[string]*models.Class, len(in.Domain.Classes)),
		blocked:    make(map[string]map[int]bool),
		maxRun:     make(map[string]int),
		hints:      make(map[string]models.Slot, len(in.Hints)),
	}
	for i := range in.Domain.Teachers {
		t := &in.Domain.Teachers[i]
		st.teachers[t.ID] = t
		for _, s := range t.UnavailableSlots() {
			st.block(t.ID, s)
		}
	}
	st.rooms = append(st.rooms, in.Domain.Rooms...)
	sort.Slice(st.rooms, func(i, j int) bool { return st.rooms[i].ID < st.rooms[j].ID })
	for i := range in.Domain.Subjects {
		st.subjects[in.Domain.Subjects[i].ID] = &in.Domain.Subjects[i]
	}
	for i := range in.Domain.Classes {
		st.classes[in.Domain.Classes[i].ID] = &in.Domain.Classes[i]
	}
	for _, h := range in.Hints {
		st.hints[h.ClassID+"|"+h.SubjectID] = h.Preferred
	}

	// Hard constraints fold into the lookup tables consulted on every
	// placement probe. Soft constraints only ever contribute penalty.
	freqOverride := map[string]int{}
	for _, c := range in.Constraints {
		if !c.IsHard {
			st.soft = append(st.soft, c)
			continue
		}
		switch c.Kind {
		case models.ConstraintKindTeacherAvailability:
			var p models.TeacherAvailabilityParams
			if err := c.DecodeParameters(&p); err == nil {
				for _, s := range p.Blocked {
					st.block(p.TeacherID, s)
				}
			}
		case models.ConstraintKindConsecutivePeriodLimit:
			var p models.ConsecutivePeriodLimitParams
			if err := c.DecodeParameters(&p); err == nil && p.TeacherID != "" {
				st.maxRun[p.TeacherID] = p.MaxRun
			}
		case models.ConstraintKindSubjectWeeklyFrequency:
			var p models.SubjectWeeklyFrequencyParams
			if err := c.DecodeParameters(&p); err == nil {
				freqOverride[p.ClassID+"|"+p.SubjectID] = p.Frequency
			}
		}
	}

	demands := make([]models.ClassSubject, len(in.Domain.Demands))
	copy(demands, in.Domain.Demands)
	sort.Slice(demands, func(i, j int) bool {
		if demands[i].ClassID != demands[j].ClassID {
			return demands[i].ClassID < demands[j].ClassID
		}
		return demands[i].SubjectID < demands[j].SubjectID
	})
	idx := 0
	for _, d := range demands {
		freq := d.Frequency
		if f, ok := freqOverride[d.ClassID+"|"+d.SubjectID]; ok {
			freq = f
		}
		for occ := 0; occ < freq; occ++ {
			st.demands = append(st.demands, demand{
				index:      idx,
				classID:    d.ClassID,
				subjectID:  d.SubjectID,
				teacherID:  d.TeacherID,
				occurrence: occ,
			})
			idx++
		}
	}
	return st
}

func (s *state) block(teacherID string, slot models.Slot) {
	idx := s.grid.Index(slot)
	if idx < 0 {
		return
	}
	if s.blocked[teacherID] == nil {
		s.blocked[teacherID] = make(map[int]bool)
	}
	s.blocked[teacherID][idx] = true
}

// exportEntries emits the placements in canonical order. Entry IDs are
// deterministic positional names; persistence replaces them with UUIDs
// while keeping the ordering.
func (s *state) exportEntries() []models.ScheduleEntry {
	entries := make([]models.ScheduleEntry, 0, len(s.placements))
	for di, p := range s.placements {
		d := s.demands[di]
		entries = append(entries, models.ScheduleEntry{
			ID:        fmt.Sprintf("e-%04d", d.index),
			TeacherID: d.teacherID,
			SubjectID: d.subjectID,
			ClassID:   d.classID,
			RoomID:    p.roomID,
			Day:       p.slot.Day,
			Period:    p.slot.Period,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		return a.ID < b.ID
	})
	return entries
}
