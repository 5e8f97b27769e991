// Package testutil provides testing utilities for the Yelp loader.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/graphql-go/graphql"
)

// TestAPIKey is the API key MockYelp accepts by default.
const TestAPIKey = "test-api-key"

// SearchCall records the arguments of one search the mock served.
type SearchCall struct {
	Term     string
	Location string
	Offset   int
	Limit    int
	SortBy   string
	OpenNow  bool
}

// MockYelp is a fake Yelp Fusion API. The GraphQL endpoint executes real
// GraphQL documents against an in-memory list of businesses.
type MockYelp struct {
	server *httptest.Server
	schema graphql.Schema

	mu            sync.RWMutex
	apiKey        string
	businesses    []map[string]any
	total         int
	httpFailures  map[int]int
	queryFailures map[int]string
	headers       map[string]string

	// Tracking
	requestCount int
	calls        []SearchCall
	lastHeader   http.Header
}

// NewMockYelp creates a new mock Yelp server serving businesses.
// The declared total defaults to len(businesses).
func NewMockYelp(businesses []map[string]any) *MockYelp {
	mock := &MockYelp{
		apiKey:        TestAPIKey,
		businesses:    businesses,
		total:         len(businesses),
		httpFailures:  make(map[int]int),
		queryFailures: make(map[int]string),
		headers: map[string]string{
			"RateLimit-DailyLimit": "5000",
			"RateLimit-Remaining":  "4999",
			"RateLimit-ResetTime":  "2026-10-20T00:00:00+00:00",
		},
	}

	schema, err := mock.buildSchema()
	if err != nil {
		panic(fmt.Sprintf("build mock schema: %v", err))
	}
	mock.schema = schema

	mux := http.NewServeMux()
	mux.HandleFunc("/v3/graphql", mock.handleGraphQL)
	mux.HandleFunc("/v3/businesses/", mock.handleBusiness)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastHeader = r.Header.Clone()
		headers := make(map[string]string, len(mock.headers))
		for k, v := range mock.headers {
			headers[k] = v
		}
		apiKey := mock.apiKey
		mock.mu.Unlock()

		for k, v := range headers {
			w.Header().Set(k, v)
		}

		if r.Header.Get("Authorization") != "Bearer "+apiKey {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED_ACCESS_TOKEN", "The access token provided is not valid")
			return
		}

		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockYelp) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockYelp) Close() {
	m.server.Close()
}

// SetTotal overrides the total reported by every search page.
func (m *MockYelp) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// SetAPIKey changes the bearer token the mock accepts.
func (m *MockYelp) SetAPIKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKey = key
}

// SetHeader sets a header on every response.
func (m *MockYelp) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// FailAtOffset makes the search page at offset respond with an HTTP status.
func (m *MockYelp) FailAtOffset(offset, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpFailures[offset] = status
}

// QueryErrorAtOffset makes the search page at offset return a GraphQL error.
func (m *MockYelp) QueryErrorAtOffset(offset int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryFailures[offset] = message
}

// RequestCount returns the number of HTTP requests received.
func (m *MockYelp) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// Calls returns the searches executed, in order.
func (m *MockYelp) Calls() []SearchCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SearchCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Offsets returns the offsets of the searches executed, in order.
func (m *MockYelp) Offsets() []int {
	calls := m.Calls()
	offsets := make([]int, len(calls))
	for i, c := range calls {
		offsets[i] = c.Offset
	}
	return offsets
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockYelp) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// Reset clears all tracking counters.
func (m *MockYelp) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.calls = nil
	m.lastHeader = nil
}

func (m *MockYelp) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var req struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	offset := 0
	if v, ok := req.Variables["offset"].(float64); ok {
		offset = int(v)
	}

	m.mu.RLock()
	status, fail := m.httpFailures[offset]
	m.mu.RUnlock()
	if fail {
		writeError(w, status, "INTERNAL_ERROR", fmt.Sprintf("injected failure at offset %d", offset))
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         m.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (m *MockYelp) handleBusiness(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v3/businesses/")

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.businesses {
		if b["id"] == id {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(b)
			return
		}
	}
	writeError(w, http.StatusNotFound, "BUSINESS_NOT_FOUND", "The requested business could not be found.")
}

// search serves one page of the in-memory business list.
func (m *MockYelp) search(call SearchCall) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)

	if msg, ok := m.queryFailures[call.Offset]; ok {
		return nil, fmt.Errorf("%s", msg)
	}

	start := call.Offset
	if start > len(m.businesses) {
		start = len(m.businesses)
	}
	end := start + call.Limit
	if end > len(m.businesses) {
		end = len(m.businesses)
	}

	page := make([]any, 0, end-start)
	for _, b := range m.businesses[start:end] {
		page = append(page, b)
	}

	return map[string]any{
		"total":    m.total,
		"business": page,
	}, nil
}

func (m *MockYelp) buildSchema() (graphql.Schema, error) {
	coordinatesType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinates",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	locationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Location",
		Fields: graphql.Fields{
			"address1": &graphql.Field{Type: graphql.String},
			"address2": &graphql.Field{Type: graphql.String},
			"address3": &graphql.Field{Type: graphql.String},
			"city":     &graphql.Field{Type: graphql.String},
			"state":    &graphql.Field{Type: graphql.String},
			"country":  &graphql.Field{Type: graphql.String},
		},
	})

	businessType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Business",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"rating":       &graphql.Field{Type: graphql.Float},
			"review_count": &graphql.Field{Type: graphql.Int},
			"coordinates":  &graphql.Field{Type: coordinatesType},
			"location":     &graphql.Field{Type: locationType},
		},
	})

	searchType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Businesses",
		Fields: graphql.Fields{
			"total":    &graphql.Field{Type: graphql.Int},
			"business": &graphql.Field{Type: graphql.NewList(businessType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"search": &graphql.Field{
				Type: searchType,
				Args: graphql.FieldConfigArgument{
					"term":     &graphql.ArgumentConfig{Type: graphql.String},
					"location": &graphql.ArgumentConfig{Type: graphql.String},
					"offset":   &graphql.ArgumentConfig{Type: graphql.Int},
					"sort_by":  &graphql.ArgumentConfig{Type: graphql.String},
					"open_now": &graphql.ArgumentConfig{Type: graphql.Boolean},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return m.search(SearchCall{
						Term:     stringArg(p.Args, "term"),
						Location: stringArg(p.Args, "location"),
						Offset:   intArg(p.Args, "offset", 0),
						Limit:    intArg(p.Args, "limit", 20),
						SortBy:   stringArg(p.Args, "sort_by"),
						OpenNow:  boolArg(p.Args, "open_now"),
					})
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]interface{}, name string, def int) int {
	if v, ok := args[name].(int); ok {
		return v
	}
	return def
}

func boolArg(args map[string]interface{}, name string) bool {
	b, _ := args[name].(bool)
	return b
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":        code,
			"description": description,
		},
	})
}

// Businesses returns n synthetic business records shaped like the API's.
func Businesses(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"id":           fmt.Sprintf("biz-%03d", i),
			"name":         fmt.Sprintf("Restaurant %d", i),
			"rating":       5.0 - float64(i%9)*0.5,
			"review_count": 100 + i,
			"coordinates": map[string]any{
				"latitude":  40.7580 + float64(i)*0.001,
				"longitude": -73.8303 - float64(i)*0.001,
			},
			"location": map[string]any{
				"address1": fmt.Sprintf("%d Main St", 100+i),
				"address2": nil,
				"address3": nil,
				"city":     "Flushing",
				"state":    "NY",
				"country":  "US",
			},
		})
	}
	return out
}
