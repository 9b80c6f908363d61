package solver

import (
	"sort"
	"time"
)

// repairBatch is how many iterations run between wall-clock checks.
const repairBatch = 16

// repair is the bounded min-conflicts phase. Each iteration picks a
// violating (or highest-penalty) demand and tries to re-place it,
// accepting moves that lower the total penalty. The time budget and the
// cancellation flag are checked at every iteration boundary; both are the
// only points where a running solve winds down mid-flight.
func (s *state) repair(deadline time.Time) {
	current := s.totalPenalty()
	for current > 0 {
		if time.Now().After(deadline) {
			return
		}
		if s.maxRepair > 0 && s.stats.RepairIterations >= s.maxRepair {
			return
		}
		if s.cancel != nil && s.cancel.IsSet() {
			s.stats.Cancelled = true
			return
		}

		improvedInBatch := false
		for i := 0; i < repairBatch; i++ {
			s.stats.RepairIterations++
			di, ok := s.pickVictim()
			if !ok {
				return
			}
			if s.tryReplace(di, &current) {
				s.stats.RepairAccepted++
				improvedInBatch = true
				if current == 0 {
					return
				}
			}
		}
		if !improvedInBatch {
			return
		}
	}
}

// pickVictim chooses a demand to re-place: a forced or colliding one when
// any exist, otherwise a seeded-random pick so repeated runs stay
// deterministic.
func (s *state) pickVictim() (int, bool) {
	if len(s.placements) == 0 {
		return 0, false
	}
	var violating []int
	for di, p := range s.placements {
		if p.forced || s.isColliding(di) {
			violating = append(violating, di)
		}
	}
	sort.Ints(violating)
	if len(violating) > 0 {
		return violating[s.rng.Intn(len(violating))], true
	}

	keys := make([]int, 0, len(s.placements))
	for di := range s.placements {
		keys = append(keys, di)
	}
	sort.Ints(keys)
	return keys[s.rng.Intn(len(keys))], true
}

func (s *state) isColliding(di int) bool {
	d := s.demands[di]
	p := s.placements[di]
	idx := s.grid.Index(p.slot)
	if len(s.teacherAt(d.teacherID, idx)) > 1 || len(s.classAt(d.classID, idx)) > 1 {
		return true
	}
	if p.roomID != "" && len(s.roomAt(p.roomID, idx)) > 1 {
		return true
	}
	if p.roomID == "" {
		return true
	}
	return s.blocked[d.teacherID] != nil && s.blocked[d.teacherID][idx]
}

// tryReplace attempts to move the demand to the best alternative slot and
// accepts only strict penalty improvements.
func (s *state) tryReplace(di int, current *float64) bool {
	d := s.demands[di]
	old := s.placements[di]
	s.unplace(di)

	slotIdx, roomID, legal := s.bestSlot(d)
	if !legal {
		slotIdx, roomID = s.forcedSlot(d)
	}
	candidate := placement{slot: s.slots[slotIdx], roomID: roomID, forced: !legal}
	s.place(di, candidate)

	next := s.totalPenalty()
	if next < *current {
		*current = next
		return true
	}
	s.unplace(di)
	s.place(di, old)
	return false
}
