// Package client provides the Yelp Fusion API client used to search the
// business directory.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/yelp-loader/pkg/quota"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the root of the Yelp Fusion API.
const DefaultBaseURL = "https://api.yelp.com"

const (
	graphQLPath  = "/v3/graphql"
	restPrefix   = "/v3"
	businessPath = "/businesses/%s"

	maxLimit = 50
)

// Prometheus metrics for Yelp client operations.
var (
	yelpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_requests_total",
		Help: "Total Yelp API requests by operation and status",
	}, []string{"operation", "status"})

	yelpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yelp_request_duration_seconds",
		Help:    "Yelp API request duration in seconds by operation",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	yelpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yelp_errors_total",
		Help: "Total Yelp API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of API errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassGraphQL represents errors reported in a GraphQL errors array.
	ErrorClassGraphQL ErrorClass = "graphql"

	// ErrorClassDecode represents responses that could not be decoded.
	ErrorClassDecode ErrorClass = "decode"
)

var validSortBy = map[string]bool{
	"best_match":   true,
	"rating":       true,
	"review_count": true,
	"distance":     true,
}

// SearchOptions are the fixed filters applied to every search page.
type SearchOptions struct {
	SortBy  string
	OpenNow bool
	Limit   int
}

// DefaultSearchOptions returns the filters used by the loader: highest rated
// businesses that are open now, 30 per page.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		SortBy:  "rating",
		OpenNow: true,
		Limit:   30,
	}
}

// Config holds the client configuration.
type Config struct {
	// APIKey is the Yelp Fusion API key sent as a bearer token.
	APIKey string

	// BaseURL is the API root (default https://api.yelp.com).
	BaseURL string

	// Search holds the fixed search filters.
	Search SearchOptions

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Quota, if set, records the daily quota headers of every response.
	Quota *quota.Tracker
}

// DefaultConfig returns a default configuration for the given API key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		BaseURL: DefaultBaseURL,
		Search:  DefaultSearchOptions(),
		Timeout: 30 * time.Second,
	}
}

// Client executes search queries against the Yelp API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	config     Config
	logger     zerolog.Logger
}

// New creates a new Yelp client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.Search.Limit < 1 || cfg.Search.Limit > maxLimit {
		return nil, fmt.Errorf("search limit must be between 1 and %d (got %d)", maxLimit, cfg.Search.Limit)
	}

	if !validSortBy[cfg.Search.SortBy] {
		return nil, fmt.Errorf("unsupported sort_by %q", cfg.Search.SortBy)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: "Bearer " + cfg.APIKey,
		config:     cfg,
		logger:     log.With().Str("component", "yelp-client").Logger(),
	}, nil
}

// PageSize returns the number of businesses requested per search page.
func (c *Client) PageSize() int {
	return c.config.Search.Limit
}

// Search executes one page of a business search.
func (c *Client) Search(ctx context.Context, term, location string, offset int) (*SearchResult, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:         searchQuery,
		OperationName: "Search",
		Variables:     searchVariables(term, location, offset, c.config.Search),
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+graphQLPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().
		Str("term", term).
		Str("location", location).
		Int("offset", offset).
		Msg("Executing search")

	data, err := c.do(req, "search")
	if err != nil {
		return nil, err
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, c.fail("search", &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode search response",
			Err:        err,
		})
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return nil, c.fail("search", &GraphQLError{Messages: messages})
	}

	if envelope.Data == nil || envelope.Data.Search == nil {
		return nil, c.fail("search", fmt.Errorf("%w: missing data.search", ErrSchemaChanged))
	}

	result := envelope.Data.Search
	if result.Businesses == nil {
		result.Businesses = []Business{}
	}

	return result, nil
}

// Get performs a GET request against a REST endpoint below /v3 and returns
// the decoded JSON object.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	u := c.baseURL + restPrefix + escapePath(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	data, err := c.do(req, "get")
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, c.fail("get", &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode response",
			Err:        err,
		})
	}
	return out, nil
}

// Business looks up a single business by its Yelp ID or alias.
func (c *Client) Business(ctx context.Context, id string) (*Business, error) {
	if id == "" {
		return nil, fmt.Errorf("business id is required")
	}

	raw, err := c.Get(ctx, fmt.Sprintf(businessPath, id), nil)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode business: %w", err)
	}

	var b Business
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, c.fail("business", &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode business",
			Err:        err,
		})
	}
	return &b, nil
}

// do executes req with authentication and returns the body of a 2xx response.
func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	ctx := req.Context()

	startTime := time.Now()
	defer func() {
		yelpRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		yelpRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, c.fail(operation, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		})
	}
	defer resp.Body.Close()

	yelpRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	if c.config.Quota != nil {
		if err := c.config.Quota.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update quota from headers")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(operation, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(operation, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    errorMessage(resp.Status, body),
		})
	}

	return body, nil
}

// fail records and logs a failed operation and returns err unchanged.
func (c *Client) fail(operation string, err error) error {
	class := classOf(err)
	if class != "" {
		yelpErrorsTotal.WithLabelValues(string(class)).Inc()
	}
	c.logger.Warn().
		Err(err).
		Str("operation", operation).
		Str("error_class", string(class)).
		Msg("Yelp request error")
	return err
}

// classifyStatus categorizes a non-2xx HTTP status.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// errorMessage extracts the description of a Yelp error body, falling back
// to the HTTP status line.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Description != "" {
		return payload.Error.Code + ": " + payload.Error.Description
	}
	return status
}

// escapePath URL-escapes every segment of path.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	escaped := strings.Join(segments, "/")
	if !strings.HasPrefix(escaped, "/") {
		escaped = "/" + escaped
	}
	return escaped
}
