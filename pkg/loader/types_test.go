package loader

import (
	"testing"
	"time"

	"github.com/Sternrassler/yelp-loader/pkg/client"
	"github.com/Sternrassler/yelp-loader/pkg/flatten"
)

func TestInferTypes(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		values []any
		want   string
	}{
		{"ints", []any{int64(1), int64(2)}, TypeBigint},
		{"floats", []any{1.5, 2.5}, TypeDouble},
		{"ints and floats", []any{int64(5), 4.5}, TypeDouble},
		{"bools", []any{true, false}, TypeBoolean},
		{"times", []any{now, now}, TypeTimestamptz},
		{"strings", []any{"a", "b"}, TypeText},
		{"nils ignored", []any{nil, int64(3)}, TypeBigint},
		{"all nil", []any{nil, nil}, TypeText},
		{"bool and int", []any{true, int64(1)}, TypeText},
		{"string and int", []any{"a", int64(1)}, TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := &flatten.Table{Columns: []string{"c"}}
			for _, v := range tt.values {
				table.Rows = append(table.Rows, []any{v})
			}
			if got := InferTypes(table)["c"]; got != tt.want {
				t.Errorf("InferTypes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		v      any
		pgType string
		want   any
	}{
		{"int to double", int64(5), TypeDouble, float64(5)},
		{"integral float to bigint", 7.0, TypeBigint, int64(7)},
		{"fractional float to bigint unchanged", 7.5, TypeBigint, 7.5},
		{"int to integer", 3, "integer", int64(3)},
		{"int to text", int64(12), TypeText, "12"},
		{"float to text", 4.5, TypeText, "4.5"},
		{"bool to text", true, TypeText, "true"},
		{"time to text", ts, TypeText, "2026-01-02T03:04:05Z"},
		{"nil stays nil", nil, TypeDouble, nil},
		{"time unchanged", ts, "timestamp with time zone", ts},
		{"rfc3339 text to timestamptz", "2026-01-02T03:04:05Z", TypeTimestamptz, ts},
		{"other text to timestamptz unchanged", "yesterday", TypeTimestamptz, "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerce(tt.v, tt.pgType); got != tt.want {
				t.Errorf("coerce(%#v, %q) = %#v, want %#v", tt.v, tt.pgType, got, tt.want)
			}
		})
	}
}

func TestInferTypes_WholeNumberRatings(t *testing.T) {
	businesses := []client.Business{
		{ID: "a", Name: "A", Rating: 4.0, ReviewCount: 10, Coordinates: client.Coordinates{Latitude: 40.0, Longitude: -73.5}},
		{ID: "b", Name: "B", Rating: 5.0, ReviewCount: 20, Coordinates: client.Coordinates{Latitude: 41.0, Longitude: -74.0}},
	}

	records, err := flatten.Records(businesses)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	table := flatten.New(flatten.Options{}).Flatten(records)
	types := InferTypes(table)

	for _, col := range []string{"rating", "latitude", "longitude"} {
		if types[col] != TypeDouble {
			t.Errorf("%s = %q, want %q", col, types[col], TypeDouble)
		}
	}
	if types["review_count"] != TypeBigint {
		t.Errorf("review_count = %q, want %q", types["review_count"], TypeBigint)
	}

	// A later batch with a fractional rating loads into the same column.
	if got := coerce(4.5, types["rating"]); got != 4.5 {
		t.Errorf("coerce(4.5) = %#v, want 4.5", got)
	}
}
