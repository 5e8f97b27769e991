// Package pipeline runs one search end to end: collect every page, flatten
// the businesses, append them to the database and record the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/yelp-loader/pkg/flatten"
	"github.com/Sternrassler/yelp-loader/pkg/loader"
	"github.com/Sternrassler/yelp-loader/pkg/pagination"
	"github.com/Sternrassler/yelp-loader/pkg/runlog"
)

// Collector gathers every page of a search. *pagination.Paginator implements it.
type Collector interface {
	Collect(ctx context.Context, term, location string) (*pagination.Result, error)
}

// Appender writes a table to the database. *loader.Loader implements it.
type Appender interface {
	Append(ctx context.Context, target loader.Target, table *flatten.Table) (int64, error)
}

// Recorder stores run records. *runlog.Store implements it.
type Recorder interface {
	Save(ctx context.Context, rec *runlog.Record) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFlattener replaces the default flattener.
func WithFlattener(f *flatten.Flattener) Option {
	return func(p *Pipeline) {
		p.flattener = f
	}
}

// Pipeline ties collection, flattening and loading together.
type Pipeline struct {
	collector Collector
	appender  Appender
	recorder  Recorder
	target    loader.Target
	flattener *flatten.Flattener
	logger    zerolog.Logger
}

// New creates a Pipeline. recorder may be nil to disable run recording.
func New(collector Collector, appender Appender, recorder Recorder, target loader.Target, opts ...Option) *Pipeline {
	p := &Pipeline{
		collector: collector,
		appender:  appender,
		recorder:  recorder,
		target:    target,
		flattener: flatten.New(flatten.Options{}),
		logger:    log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one search. A partial collection is still loaded and is
// reported through the record's Complete, StopReason and Error fields; only
// a failed first page, a flattening failure or a failed load return an
// error. The record is returned in every case once the run started.
func (p *Pipeline) Run(ctx context.Context, term, location string) (*runlog.Record, error) {
	if location == "" {
		return nil, fmt.Errorf("location is required")
	}

	rec := runlog.NewRecord(term, location)
	logger := p.logger.With().Str("run_id", rec.ID).Str("term", term).Str("location", location).Logger()

	result, err := p.collector.Collect(ctx, term, location)
	if err != nil {
		return rec, p.fail(ctx, logger, rec, fmt.Errorf("collect: %w", err))
	}

	rec.Total = result.Total
	rec.Collected = len(result.Businesses)
	rec.Pages = result.Pages
	rec.Complete = result.Complete
	rec.StopReason = string(result.StopReason)
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}

	records, err := flatten.Records(result.Businesses)
	if err != nil {
		return rec, p.fail(ctx, logger, rec, fmt.Errorf("flatten: %w", err))
	}
	table := p.flattener.Flatten(records)

	n, err := p.appender.Append(ctx, p.target, table)
	if err != nil {
		return rec, p.fail(ctx, logger, rec, fmt.Errorf("load %s: %w", p.target, err))
	}
	rec.RowsLoaded = n

	rec.Finish(time.Now())
	p.record(ctx, logger, rec)

	event := logger.Info()
	if !rec.Complete {
		event = logger.Warn()
	}
	event.
		Int("total", rec.Total).
		Int("collected", rec.Collected).
		Int64("rows_loaded", rec.RowsLoaded).
		Bool("complete", rec.Complete).
		Str("stop_reason", rec.StopReason).
		Dur("duration", rec.Duration()).
		Msg("Run finished")

	return rec, nil
}

// fail stamps err on rec, records it and returns err.
func (p *Pipeline) fail(ctx context.Context, logger zerolog.Logger, rec *runlog.Record, err error) error {
	rec.Complete = false
	rec.Error = err.Error()
	rec.Finish(time.Now())
	p.record(ctx, logger, rec)

	logger.Error().Err(err).Msg("Run failed")
	return err
}

// record saves rec. A failure to record never fails the run.
func (p *Pipeline) record(ctx context.Context, logger zerolog.Logger, rec *runlog.Record) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Save(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run")
	}
}
