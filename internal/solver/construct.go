package solver

import "sort"

// construct runs the greedy phase: most-constrained demand first, each
// placed at the legal slot with the smallest soft-penalty increase,
// lowest slot index breaking ties for determinism. Demands with no legal
// slot are force-placed at the least-colliding slot so infeasibility
// surfaces as explicit violations instead of missing lessons.
func (s *state) construct() {
	order := make([]int, len(s.demands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		la := s.legalSlotCount(s.demands[order[a]])
		lb := s.legalSlotCount(s.demands[order[b]])
		if la != lb {
			return la < lb
		}
		return order[a] < order[b]
	})

	for n, di := range order {
		d := s.demands[di]
		slotIdx, roomID, legal := s.bestSlot(d)
		if !legal {
			slotIdx, roomID = s.forcedSlot(d)
		}
		s.place(di, placement{slot: s.slots[slotIdx], roomID: roomID, forced: !legal})
		s.stats.Placed++
		if s.progress != nil && len(order) > 0 {
			s.progress(50 * (n + 1) / len(order))
		}
	}
}

func (s *state) legalSlotCount(d demand) int {
	count := 0
	for idx := range s.slots {
		if _, ok := s.legalAt(d, idx); ok {
			count++
		}
	}
	return count
}

// bestSlot returns the legal slot minimising the soft-penalty delta. A
// stored generation hint wins outright when its slot is legal.
func (s *state) bestSlot(d demand) (int, string, bool) {
	if pref, ok := s.hints[d.classID+"|"+d.subjectID]; ok {
		if idx := s.grid.Index(pref); idx >= 0 {
			if roomID, legal := s.legalAt(d, idx); legal {
				return idx, roomID, true
			}
		}
	}

	bestIdx, bestRoom := -1, ""
	bestDelta := 0.0
	for idx := range s.slots {
		roomID, legal := s.legalAt(d, idx)
		if !legal {
			continue
		}
		delta := s.softDelta(d, idx)
		if bestIdx < 0 || delta < bestDelta {
			bestIdx, bestRoom, bestDelta = idx, roomID, delta
		}
	}
	if bestIdx < 0 {
		return 0, "", false
	}
	return bestIdx, bestRoom, true
}

// forcedSlot picks the slot with the fewest resulting collisions when no
// legal slot exists. The placement is flagged forced and later reported
// as an unsatisfied hard constraint.
func (s *state) forcedSlot(d demand) (int, string) {
	bestIdx, bestRoom := 0, ""
	bestCollisions := -1
	for idx := range s.slots {
		collisions := s.collisionsAt(d, idx)
		if bestCollisions < 0 || collisions < bestCollisions {
			bestIdx, bestCollisions = idx, collisions
			bestRoom = s.anyRoom(d, idx)
		}
	}
	return bestIdx, bestRoom
}

// legalAt reports whether the demand can be placed at the slot without any
// hard violation, and which room it would use.
func (s *state) legalAt(d demand, slotIdx int) (string, bool) {
	if s.blocked[d.teacherID] != nil && s.blocked[d.teacherID][slotIdx] {
		return "", false
	}
	if len(s.teacherAt(d.teacherID, slotIdx)) > 0 {
		return "", false
	}
	if len(s.classAt(d.classID, slotIdx)) > 0 {
		return "", false
	}
	if t := s.teachers[d.teacherID]; t != nil {
		day := s.slots[slotIdx].Day
		if t.MaxLoadPerDay > 0 && s.teacherDayLoad(d.teacherID, day) >= t.MaxLoadPerDay {
			return "", false
		}
		if t.MaxLoadPerWeek > 0 && s.teacherWeekLoad(d.teacherID) >= t.MaxLoadPerWeek {
			return "", false
		}
	}
	if limit := s.maxRun[d.teacherID]; limit > 0 && s.runLengthWith(d.teacherID, slotIdx) > limit {
		return "", false
	}
	roomID, ok := s.freeRoom(d, slotIdx)
	if !ok {
		return "", false
	}
	return roomID, true
}

// freeRoom returns the first suitable unoccupied room in ID order.
func (s *state) freeRoom(d demand, slotIdx int) (string, bool) {
	class := s.classes[d.classID]
	subject := s.subjects[d.subjectID]
	for _, room := range s.rooms {
		if class != nil && room.Capacity > 0 && room.Capacity < class.Size {
			continue
		}
		if subject != nil && subject.RequiredRoomType != "" && subject.RequiredRoomType != room.Type {
			continue
		}
		if len(s.roomAt(room.ID, slotIdx)) > 0 {
			continue
		}
		return room.ID, true
	}
	return "", false
}

// anyRoom relaxes occupancy for forced placements, still honouring type
// and capacity so the violation is a double-booking, not a misfit.
func (s *state) anyRoom(d demand, slotIdx int) string {
	class := s.classes[d.classID]
	subject := s.subjects[d.subjectID]
	for _, room := range s.rooms {
		if class != nil && room.Capacity > 0 && room.Capacity < class.Size {
			continue
		}
		if subject != nil && subject.RequiredRoomType != "" && subject.RequiredRoomType != room.Type {
			continue
		}
		return room.ID
	}
	return ""
}

func (s *state) collisionsAt(d demand, slotIdx int) int {
	collisions := len(s.teacherAt(d.teacherID, slotIdx)) + len(s.classAt(d.classID, slotIdx))
	if s.blocked[d.teacherID] != nil && s.blocked[d.teacherID][slotIdx] {
		collisions++
	}
	if _, ok := s.freeRoom(d, slotIdx); !ok {
		collisions++
	}
	return collisions
}

// --- occupancy ---

func (s *state) place(di int, p placement) {
	s.placements[di] = p
}

func (s *state) unplace(di int) {
	delete(s.placements, di)
}

func (s *state) teacherAt(teacherID string, slotIdx int) []int {
	return s.occupants(slotIdx, func(d demand) bool { return d.teacherID == teacherID })
}

func (s *state) classAt(classID string, slotIdx int) []int {
	return s.occupants(slotIdx, func(d demand) bool { return d.classID == classID })
}

func (s *state) roomAt(roomID string, slotIdx int) []int {
	if roomID == "" {
		return nil
	}
	var out []int
	for di, p := range s.placements {
		if p.roomID == roomID && s.grid.Index(p.slot) == slotIdx {
			out = append(out, di)
		}
	}
	sort.Ints(out)
	return out
}

func (s *state) occupants(slotIdx int, match func(demand) bool) []int {
	var out []int
	for di, p := range s.placements {
		if s.grid.Index(p.slot) == slotIdx && match(s.demands[di]) {
			out = append(out, di)
		}
	}
	sort.Ints(out)
	return out
}

func (s *state) teacherDayLoad(teacherID string, day int) int {
	count := 0
	for di, p := range s.placements {
		if s.demands[di].teacherID == teacherID && p.slot.Day == day {
			count++
		}
	}
	return count
}

func (s *state) teacherWeekLoad(teacherID string) int {
	count := 0
	for di := range s.placements {
		if s.demands[di].teacherID == teacherID {
			count++
		}
	}
	return count
}

// runLengthWith computes the consecutive-period run length the teacher
// would have if the slot were occupied.
func (s *state) runLengthWith(teacherID string, slotIdx int) int {
	slot := s.slots[slotIdx]
	occupied := map[int]bool{slot.Period: true}
	for di, p := range s.placements {
		if s.demands[di].teacherID == teacherID && p.slot.Day == slot.Day {
			occupied[p.slot.Period] = true
		}
	}
	run := 1
	for p := slot.Period - 1; occupied[p]; p-- {
		run++
	}
	for p := slot.Period + 1; occupied[p]; p++ {
		run++
	}
	return run
}
