package runlog

import (
	"time"

	"github.com/google/uuid"
)

// Record describes one loader run.
type Record struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Term and Location are the search inputs.
	Term     string `json:"term"`
	Location string `json:"location"`

	// Total is the number of matches the API declared.
	Total int `json:"total"`

	// Collected is the number of businesses fetched.
	Collected int `json:"collected"`

	// Pages is the number of search pages fetched.
	Pages int `json:"pages"`

	// Complete is false when pagination stopped before the result set was
	// exhausted.
	Complete bool `json:"complete"`

	// StopReason is why pagination ended.
	StopReason string `json:"stop_reason,omitempty"`

	// Error describes the failure that ended the run early, if any.
	Error string `json:"error,omitempty"`

	// RowsLoaded is the number of rows appended to the database.
	RowsLoaded int64 `json:"rows_loaded"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewRecord starts a record for a run beginning now.
func NewRecord(term, location string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Term:      term,
		Location:  location,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the end of the run.
func (r *Record) Finish(at time.Time) {
	r.FinishedAt = at.UTC()
}

// Duration returns how long the run took, or 0 if it has not finished.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Key returns the search key the record is indexed under.
func (r *Record) Key() SearchKey {
	return SearchKey{Term: r.Term, Location: r.Location}
}
