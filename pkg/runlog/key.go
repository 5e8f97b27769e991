package runlog

import (
	"net/url"
	"strings"
)

const (
	recordPrefix = "yelp:run:"
	indexPrefix  = "yelp:runs:"
)

// SearchKey identifies the run history of one search.
type SearchKey struct {
	Term     string
	Location string
}

// String generates the deterministic index key.
// Format: yelp:runs:<term>:<location>
//
// Example:
//
//	yelp:runs:thai+food:flushing%2C+ny
func (k SearchKey) String() string {
	return indexPrefix + normalize(k.Term) + ":" + normalize(k.Location)
}

// recordKey returns the key a record is stored under.
func recordKey(id string) string {
	return recordPrefix + id
}

// normalize lower-cases s, collapses whitespace and escapes it so it can't
// introduce a key separator.
func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return url.QueryEscape(s)
}
