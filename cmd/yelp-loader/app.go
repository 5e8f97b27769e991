package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/yelp-loader/internal/config"
	"github.com/Sternrassler/yelp-loader/internal/pipeline"
	"github.com/Sternrassler/yelp-loader/pkg/client"
	"github.com/Sternrassler/yelp-loader/pkg/loader"
	"github.com/Sternrassler/yelp-loader/pkg/pagination"
	"github.com/Sternrassler/yelp-loader/pkg/quota"
	"github.com/Sternrassler/yelp-loader/pkg/runlog"
)

// app holds the long-lived dependencies of the run and serve commands.
type app struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	runs     *runlog.Store
	quota    *quota.Tracker
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

		a.runs = runlog.NewStore(a.redis, runlog.Config{
			TTL:     cfg.Redis.RunTTL,
			History: cfg.Redis.History,
		})
	}

	a.quota = quota.NewTracker(a.redis, log.With().Str("component", "quota").Logger())
	a.quota.SetLowWatermark(cfg.Yelp.QuotaLowWatermark)

	yelpClient, err := newClient(cfg, a.quota)
	if err != nil {
		a.Close()
		return nil, err
	}

	pool, err := loader.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	log.Info().
		Str("host", cfg.Database.Host).
		Str("dbname", cfg.Database.DBName).
		Msg("Connected to database")

	paginator := pagination.NewPaginator(yelpClient, pagination.Config{
		PageSize:   yelpClient.PageSize(),
		MaxResults: cfg.Pagination.MaxResults,
	})

	// A nil *runlog.Store must not become a non-nil Recorder.
	var recorder pipeline.Recorder
	if a.runs != nil {
		recorder = a.runs
	}

	a.pipeline = pipeline.New(paginator, loader.New(pool), recorder, cfg.Database.Target())

	return a, nil
}

func newClient(cfg *config.Config, tracker *quota.Tracker) (*client.Client, error) {
	clientCfg := cfg.Yelp.ClientConfig()
	clientCfg.Quota = tracker

	c, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create yelp client: %w", err)
	}
	return c, nil
}

// history returns the run history, or nil without Redis.
func (a *app) history() runHistory {
	if a.runs == nil {
		return nil
	}
	return a.runs
}

// ping checks every backing store.
func (a *app) ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
