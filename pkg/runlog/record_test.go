package runlog

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewRecord(t *testing.T) {
	before := time.Now().UTC()
	rec := NewRecord("restaurant", "flushing")

	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", rec.ID, err)
	}
	if rec.Term != "restaurant" || rec.Location != "flushing" {
		t.Errorf("search = %q/%q", rec.Term, rec.Location)
	}
	if rec.StartedAt.Before(before) {
		t.Errorf("StartedAt = %v, want >= %v", rec.StartedAt, before)
	}
	if NewRecord("a", "b").ID == rec.ID {
		t.Error("records share an ID")
	}
}

func TestRecord_Duration(t *testing.T) {
	rec := NewRecord("a", "b")
	if rec.Duration() != 0 {
		t.Errorf("Duration() before Finish = %v, want 0", rec.Duration())
	}

	rec.Finish(rec.StartedAt.Add(3 * time.Second))
	if rec.Duration() != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", rec.Duration())
	}
}

func TestRecord_Key(t *testing.T) {
	rec := NewRecord("Thai", "Flushing")
	if got, want := rec.Key().String(), "yelp:runs:thai:flushing"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}
