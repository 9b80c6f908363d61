package models

import (
	"time"

	"github.com/lib/pq"
)

// TimeGrid is the ordered set of (day, period) slots for a term. It is
// fixed once per academic year/term and never mutated after creation.
type TimeGrid struct {
	ID            string        `db:"id" json:"id"`
	SchoolID      string        `db:"school_id" json:"school_id"`
	YearID        string        `db:"year_id" json:"year_id"`
	TermID        string        `db:"term_id" json:"term_id"`
	Days          pq.Int64Array `db:"days" json:"days"`
	PeriodsPerDay int           `db:"periods_per_day" json:"periods_per_day"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// Slot addresses a single teaching period inside a grid.
type Slot struct {
	Day    int `json:"day"`
	Period int `json:"period"`
}

// Index returns the canonical ordering position of the slot within the
// grid. Lower index wins deterministic tie-breaks.
func (g *TimeGrid) Index(s Slot) int {
	for i, day := range g.Days {
		if int(day) == s.Day {
			return i*g.PeriodsPerDay + (s.Period - 1)
		}
	}
	return -1
}

// Slots enumerates every slot in canonical order.
func (g *TimeGrid) Slots() []Slot {
	slots := make([]Slot, 0, len(g.Days)*g.PeriodsPerDay)
	for _, day := range g.Days {
		for period := 1; period <= g.PeriodsPerDay; period++ {
			slots = append(slots, Slot{Day: int(day), Period: period})
		}
	}
	return slots
}

// Contains reports whether the slot is part of the grid.
func (g *TimeGrid) Contains(s Slot) bool {
	return g.Index(s) >= 0 && s.Period >= 1 && s.Period <= g.PeriodsPerDay
}
