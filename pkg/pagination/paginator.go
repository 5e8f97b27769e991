package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/yelp-loader/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	yelpPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yelp_pages_fetched_total",
		Help: "Total search pages fetched successfully",
	})

	yelpPaginationStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_pagination_stops_total",
		Help: "Total collections finished by stop reason",
	}, []string{"reason"})

	yelpCollectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yelp_collect_duration_seconds",
		Help:    "Duration of a full paginated collection",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// StopReason explains why a collection ended.
type StopReason string

const (
	// StopTotalReached means the accumulated count covers the declared total.
	StopTotalReached StopReason = "total_reached"

	// StopEmptyPage means the API returned a page without businesses.
	StopEmptyPage StopReason = "empty_page"

	// StopFetchError means a page fetch after the first one failed.
	StopFetchError StopReason = "fetch_error"

	// StopMaxResults means the next page would exceed the API's result window.
	StopMaxResults StopReason = "max_results"

	// StopContextCanceled means the context ended between pages.
	StopContextCanceled StopReason = "context_canceled"
)

// PageFetcher fetches a single page of search results.
// *client.Client implements it.
type PageFetcher interface {
	Search(ctx context.Context, term, location string, offset int) (*client.SearchResult, error)
}

// Config holds paginator configuration.
type Config struct {
	// PageSize is the offset increment between pages. It must equal the
	// limit the fetcher requests. Zero takes the fetcher's PageSize() if it
	// has one, else 30.
	PageSize int

	// MaxResults caps offset+limit of any request. Yelp rejects requests
	// beyond 1000 results. Zero disables the cap.
	MaxResults int
}

// DefaultConfig returns the default paginator configuration. PageSize is
// left at zero so the fetcher's own page size is used.
func DefaultConfig() Config {
	return Config{
		MaxResults: 1000,
	}
}

// Result is the outcome of a collection.
type Result struct {
	// Businesses holds every business fetched, in page order.
	Businesses []client.Business

	// Total is the total declared by the most recent page.
	Total int

	// Pages is the number of pages fetched successfully.
	Pages int

	// Complete is true when pagination ended because the result set was
	// exhausted (total reached or empty page).
	Complete bool

	// StopReason explains why pagination ended.
	StopReason StopReason

	// Err is the page fetch or context error that ended pagination, if any.
	Err error
}

// Paginator collects every page of a search.
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewPaginator creates a new paginator.
func NewPaginator(fetcher PageFetcher, config Config) *Paginator {
	if config.PageSize <= 0 {
		config.PageSize = 30
		if sized, ok := fetcher.(interface{ PageSize() int }); ok && sized.PageSize() > 0 {
			config.PageSize = sized.PageSize()
		}
	}
	if config.MaxResults < 0 {
		config.MaxResults = 0
	}

	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "paginator").Logger(),
	}
}

// Collect fetches pages at offsets 0, PageSize, 2*PageSize, ... until the
// result set is exhausted or a page fails. An error is returned only when
// the first page cannot be fetched; later failures end collection and are
// reported in the Result.
func (p *Paginator) Collect(ctx context.Context, term, location string) (*Result, error) {
	start := time.Now()
	defer func() {
		yelpCollectDuration.Observe(time.Since(start).Seconds())
	}()

	first, err := p.fetcher.Search(ctx, term, location, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	yelpPagesFetchedTotal.Inc()

	result := &Result{
		Businesses: append([]client.Business(nil), first.Businesses...),
		Total:      first.Total,
		Pages:      1,
	}

	p.logger.Info().
		Str("term", term).
		Str("location", location).
		Int("total", first.Total).
		Int("page_size", p.config.PageSize).
		Msg("Starting collection")

	offset := 0
	lastPageLen := len(first.Businesses)

	for {
		if reason, done := p.shouldStop(result, lastPageLen, offset); done {
			p.finish(result, reason, nil)
			break
		}

		if err := ctx.Err(); err != nil {
			p.finish(result, StopContextCanceled, err)
			break
		}

		offset += p.config.PageSize

		page, err := p.fetcher.Search(ctx, term, location, offset)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Int("offset", offset).
				Int("collected", len(result.Businesses)).
				Int("total", result.Total).
				Msg("Page fetch failed - returning partial results")
			p.finish(result, StopFetchError, fmt.Errorf("fetch page at offset %d: %w", offset, err))
			break
		}
		yelpPagesFetchedTotal.Inc()

		result.Pages++
		result.Total = page.Total
		result.Businesses = append(result.Businesses, page.Businesses...)
		lastPageLen = len(page.Businesses)

		p.logger.Debug().
			Int("offset", offset).
			Int("page_len", lastPageLen).
			Int("collected", len(result.Businesses)).
			Int("total", result.Total).
			Msg("Fetched page")
	}

	p.logger.Info().
		Str("term", term).
		Str("location", location).
		Int("collected", len(result.Businesses)).
		Int("total", result.Total).
		Int("pages", result.Pages).
		Bool("complete", result.Complete).
		Str("stop_reason", string(result.StopReason)).
		Dur("duration", time.Since(start)).
		Msg("Collection finished")

	return result, nil
}

// shouldStop decides whether another page should be fetched after the page
// at offset, which held lastPageLen businesses.
func (p *Paginator) shouldStop(result *Result, lastPageLen, offset int) (StopReason, bool) {
	if len(result.Businesses) >= result.Total {
		return StopTotalReached, true
	}
	if lastPageLen == 0 {
		return StopEmptyPage, true
	}
	if p.config.MaxResults > 0 {
		next := offset + p.config.PageSize
		if next+p.config.PageSize > p.config.MaxResults {
			return StopMaxResults, true
		}
	}
	return "", false
}

func (p *Paginator) finish(result *Result, reason StopReason, err error) {
	result.StopReason = reason
	result.Err = err
	result.Complete = reason == StopTotalReached || reason == StopEmptyPage
	yelpPaginationStopsTotal.WithLabelValues(string(reason)).Inc()
}
