package quota

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoState is returned by GetState before any quota headers were seen.
var ErrNoState = errors.New("no quota state recorded")

// Prometheus metrics for quota tracking.
var (
	yelpQuotaDailyLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yelp_quota_daily_limit",
		Help: "Daily Yelp API call limit reported by the last response",
	})

	yelpQuotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yelp_quota_remaining",
		Help: "Yelp API calls remaining in the current day",
	})

	yelpQuotaLowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yelp_quota_low_total",
		Help: "Total number of responses observed below the low quota watermark",
	})
)

// Tracker records the daily quota reported by the API.
// The Redis client is optional; without it state is kept in memory only.
type Tracker struct {
	redis     *redis.Client
	logger    zerolog.Logger
	watermark float64

	mu   sync.RWMutex
	last *State
}

// NewTracker creates a new quota tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:     redisClient,
		logger:    logger,
		watermark: DefaultLowWatermark,
	}
}

// SetLowWatermark changes the fraction of the daily limit below which
// warnings are logged.
func (t *Tracker) SetLowWatermark(fraction float64) {
	t.watermark = fraction
}

// UpdateFromHeaders parses the quota headers and records the new state.
// Responses without quota headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	state := &State{
		Remaining:  remain,
		LastUpdate: time.Now(),
	}

	if limitStr := headers.Get(HeaderDailyLimit); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderDailyLimit, err)
		}
		state.DailyLimit = limit
	}

	if resetStr := headers.Get(HeaderResetTime); resetStr != "" {
		resetAt, err := parseResetTime(resetStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderResetTime, err)
		}
		state.ResetAt = resetAt
	}

	t.mu.Lock()
	t.last = state
	t.mu.Unlock()

	yelpQuotaRemaining.Set(float64(state.Remaining))
	if state.DailyLimit > 0 {
		yelpQuotaDailyLimit.Set(float64(state.DailyLimit))
	}

	if t.redis != nil {
		if err := t.store(ctx, state); err != nil {
			return err
		}
	}

	if state.IsLow(t.watermark) {
		yelpQuotaLowTotal.Inc()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Int("daily_limit", state.DailyLimit).
			Dur("until_reset", state.TimeUntilReset()).
			Msg("Yelp daily quota running low")
	} else {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("daily_limit", state.DailyLimit).
			Msg("Yelp quota state updated")
	}

	return nil
}

// store writes state to Redis. Keys expire when the quota resets.
func (t *Tracker) store(ctx context.Context, state *State) error {
	ttl := state.TimeUntilReset()

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyDailyLimit, state.DailyLimit, ttl)
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, state.LastUpdate.Unix(), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}
	return nil
}

// GetState returns the last observed quota. With Redis configured the
// state is read from Redis so it reflects calls made by other processes.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.RLock()
		defer t.mu.RUnlock()
		if t.last == nil {
			return nil, ErrNoState
		}
		s := *t.last
		return &s, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := t.redis.Get(ctx, RedisKeyDailyLimit).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get daily limit: %w", err)
	}

	resetUnix, err := t.redis.Get(ctx, RedisKeyResetAt).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset time: %w", err)
	}

	updateUnix, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &State{
		DailyLimit: limit,
		Remaining:  remaining,
		LastUpdate: time.Unix(updateUnix, 0),
	}
	if resetUnix > 0 {
		state.ResetAt = time.Unix(resetUnix, 0)
	}
	return state, nil
}

// parseResetTime accepts the ISO 8601 timestamps Yelp sends, with or
// without a zone offset.
func parseResetTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
