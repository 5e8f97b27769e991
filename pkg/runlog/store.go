package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound indicates no record exists for the requested run or search
	ErrNotFound = errors.New("run record not found")

	// ErrInvalidRecord indicates a stored record could not be decoded
	ErrInvalidRecord = errors.New("invalid run record")
)

// Config holds store configuration.
type Config struct {
	// TTL is how long records and indexes are kept.
	TTL time.Duration

	// History is the number of run IDs kept per search.
	History int
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		TTL:     30 * 24 * time.Hour,
		History: 50,
	}
}

// Store persists run records in Redis.
type Store struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
}

// NewStore creates a new run store with Redis backend.
func NewStore(redisClient *redis.Client, config Config) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	defaults := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.History <= 0 {
		config.History = defaults.History
	}
	return &Store{
		redis:  redisClient,
		config: config,
		logger: log.With().Str("component", "runlog").Logger(),
	}
}

// Save stores rec and pushes its ID onto the search's history.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("run record cannot be nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("run record has no id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		RunlogErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal run record: %w", err)
	}

	index := rec.Key().String()

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(rec.ID), data, s.config.TTL)
		pipe.LPush(ctx, index, rec.ID)
		pipe.LTrim(ctx, index, 0, int64(s.config.History-1))
		pipe.Expire(ctx, index, s.config.TTL)
		return nil
	})
	if err != nil {
		RunlogErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis save run: %w", err)
	}

	RunsRecorded.WithLabelValues(strconv.FormatBool(rec.Complete)).Inc()

	s.logger.Debug().
		Str("run_id", rec.ID).
		Str("index", index).
		Bool("complete", rec.Complete).
		Msg("Run recorded")

	return nil
}

// Get retrieves a record by run ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		RunlogErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decode(data)
}

// Latest returns the most recent record for a search.
func (s *Store) Latest(ctx context.Context, term, location string) (*Record, error) {
	records, err := s.History(ctx, term, location, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// History returns up to n records for a search, newest first. Records that
// expired before their index entry are skipped.
func (s *Store) History(ctx context.Context, term, location string, n int) ([]*Record, error) {
	if n <= 0 {
		n = s.config.History
	}

	index := SearchKey{Term: term, Location: location}.String()

	ids, err := s.redis.LRange(ctx, index, 0, int64(n-1)).Result()
	if err != nil {
		RunlogErrors.WithLabelValues("history").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		RunlogErrors.WithLabelValues("history").Inc()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	records := make([]*Record, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decode([]byte(str))
		if err != nil {
			s.logger.Warn().Err(err).Str("run_id", ids[i]).Msg("Skipping unreadable run record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		RunlogErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &rec, nil
}
