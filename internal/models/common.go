package models

// Pagination carries list metadata in the response envelope.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// Scope identifies the school/year/term a timetable belongs to. Generation
// is serialized per scope; two solves for the same scope never run at once.
type Scope struct {
	SchoolID string `db:"school_id" json:"school_id"`
	YearID   string `db:"year_id" json:"year_id"`
	TermID   string `db:"term_id" json:"term_id"`
}

// Key returns a stable map key for lease bookkeeping.
func (s Scope) Key() string {
	return s.SchoolID + "/" + s.YearID + "/" + s.TermID
}

// IsZero reports whether any scope component is missing.
func (s Scope) IsZero() bool {
	return s.SchoolID == "" || s.YearID == "" || s.TermID == ""
}
