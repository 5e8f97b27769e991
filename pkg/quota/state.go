// Package quota tracks the Yelp Fusion daily API quota.
// It reads the RateLimit-DailyLimit, RateLimit-Remaining and
// RateLimit-ResetTime response headers and reports them; it never delays or
// blocks a request.
package quota

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyDailyLimit = "yelp:quota:daily_limit"
	RedisKeyRemaining  = "yelp:quota:remaining"
	RedisKeyResetAt    = "yelp:quota:reset_at"
	RedisKeyLastUpdate = "yelp:quota:last_update"
)

// Response headers carrying the quota.
const (
	HeaderDailyLimit = "RateLimit-DailyLimit"
	HeaderRemaining  = "RateLimit-Remaining"
	HeaderResetTime  = "RateLimit-ResetTime"
)

// DefaultLowWatermark is the fraction of the daily limit below which the
// tracker logs warnings.
const DefaultLowWatermark = 0.1

// State is the most recently observed daily quota.
type State struct {
	// DailyLimit is the number of calls allowed per day.
	DailyLimit int `json:"daily_limit"`

	// Remaining is the number of calls left until ResetAt.
	Remaining int `json:"remaining"`

	// ResetAt is when the daily quota resets (zero if the header was absent).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// UsedFraction returns the share of the daily limit already consumed.
// Returns 0 when the limit is unknown.
func (s *State) UsedFraction() float64 {
	if s.DailyLimit <= 0 {
		return 0
	}
	used := s.DailyLimit - s.Remaining
	if used < 0 {
		used = 0
	}
	return float64(used) / float64(s.DailyLimit)
}

// IsLow returns true if less than watermark of the daily limit remains.
func (s *State) IsLow(watermark float64) bool {
	if s.DailyLimit <= 0 {
		return false
	}
	return float64(s.Remaining) < watermark*float64(s.DailyLimit)
}

// TimeUntilReset returns the duration until the quota resets.
// Returns 0 if the reset time is unknown or has already passed.
func (s *State) TimeUntilReset() time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
