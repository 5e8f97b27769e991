package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sternrassler/yelp-loader/internal/testutil"
	"github.com/Sternrassler/yelp-loader/pkg/quota"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	cfg := DefaultConfig(testutil.TestAPIKey)
	cfg.BaseURL = baseURL
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      func() Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: func() Config { return DefaultConfig("key") },
		},
		{
			name: "missing api key",
			config: func() Config {
				return DefaultConfig("")
			},
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name: "missing base url",
			config: func() Config {
				cfg := DefaultConfig("key")
				cfg.BaseURL = ""
				return cfg
			},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name: "limit too large",
			config: func() Config {
				cfg := DefaultConfig("key")
				cfg.Search.Limit = 51
				return cfg
			},
			expectError: true,
			errorMsg:    "search limit must be between 1 and 50 (got 51)",
		},
		{
			name: "limit zero",
			config: func() Config {
				cfg := DefaultConfig("key")
				cfg.Search.Limit = 0
				return cfg
			},
			expectError: true,
			errorMsg:    "search limit must be between 1 and 50 (got 0)",
		},
		{
			name: "unknown sort",
			config: func() Config {
				cfg := DefaultConfig("key")
				cfg.Search.SortBy = "popularity"
				return cfg
			},
			expectError: true,
			errorMsg:    `unsupported sort_by "popularity"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config())

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("secret")

	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "secret")
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Search.SortBy != "rating" {
		t.Errorf("SortBy = %q, want rating", cfg.Search.SortBy)
	}
	if !cfg.Search.OpenNow {
		t.Error("OpenNow should be true")
	}
	if cfg.Search.Limit != 30 {
		t.Errorf("Limit = %d, want 30", cfg.Search.Limit)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
}

func TestSearch_FirstPage(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(45))
	defer mock.Close()

	c := newTestClient(t, mock.URL())

	result, err := c.Search(context.Background(), "restaurant", "flushing", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if result.Total != 45 {
		t.Errorf("Total = %d, want 45", result.Total)
	}
	if len(result.Businesses) != 30 {
		t.Fatalf("len(Businesses) = %d, want 30", len(result.Businesses))
	}

	first := result.Businesses[0]
	if first.ID != "biz-000" {
		t.Errorf("ID = %q, want biz-000", first.ID)
	}
	if first.ReviewCount != 100 {
		t.Errorf("ReviewCount = %d, want 100", first.ReviewCount)
	}
	if first.Coordinates.Latitude != 40.758 {
		t.Errorf("Latitude = %v, want 40.758", first.Coordinates.Latitude)
	}
	if first.Location.City != "Flushing" {
		t.Errorf("City = %q, want Flushing", first.Location.City)
	}
	if first.Location.Address2 != nil {
		t.Errorf("Address2 = %v, want nil", *first.Location.Address2)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("Calls = %d, want 1", len(calls))
	}
	want := testutil.SearchCall{
		Term:     "restaurant",
		Location: "flushing",
		Offset:   0,
		Limit:    30,
		SortBy:   "rating",
		OpenNow:  true,
	}
	if calls[0] != want {
		t.Errorf("Call = %+v, want %+v", calls[0], want)
	}
}

func TestSearch_Offset(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(45))
	defer mock.Close()

	c := newTestClient(t, mock.URL())

	result, err := c.Search(context.Background(), "restaurant", "flushing", 30)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Businesses) != 15 {
		t.Errorf("len(Businesses) = %d, want 15", len(result.Businesses))
	}
	if result.Businesses[0].ID != "biz-030" {
		t.Errorf("first ID = %q, want biz-030", result.Businesses[0].ID)
	}
}

func TestSearch_InputIsNotInterpolated(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(3))
	defer mock.Close()

	c := newTestClient(t, mock.URL())

	term := `pizza", limit: 50) { total } } #`
	if _, err := c.Search(context.Background(), term, `new "york"`, 0); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("Calls = %d, want 1", len(calls))
	}
	if calls[0].Term != term {
		t.Errorf("Term = %q, want %q", calls[0].Term, term)
	}
	if calls[0].Location != `new "york"` {
		t.Errorf("Location = %q, want %q", calls[0].Location, `new "york"`)
	}
	if calls[0].Limit != 30 {
		t.Errorf("Limit = %d, want 30", calls[0].Limit)
	}
}

func TestSearch_BearerToken(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(1))
	defer mock.Close()

	c := newTestClient(t, mock.URL())
	if _, err := c.Search(context.Background(), "a", "b", 0); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	got := mock.LastRequestHeader().Get("Authorization")
	if got != "Bearer "+testutil.TestAPIKey {
		t.Errorf("Authorization = %q, want bearer token", got)
	}
}

func TestSearch_Unauthorized(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(1))
	defer mock.Close()
	mock.SetAPIKey("other-key")

	c := newTestClient(t, mock.URL())
	_, err := c.Search(context.Background(), "a", "b", 0)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %q, want client", apiErr.ErrorClass)
	}
	if !strings.Contains(apiErr.Message, "UNAUTHORIZED_ACCESS_TOKEN") {
		t.Errorf("Message = %q, want error code", apiErr.Message)
	}
}

func TestSearch_ServerError(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(60))
	defer mock.Close()
	mock.FailAtOffset(30, http.StatusServiceUnavailable)

	c := newTestClient(t, mock.URL())
	_, err := c.Search(context.Background(), "a", "b", 30)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassServer {
		t.Errorf("ErrorClass = %q, want server", apiErr.ErrorClass)
	}
}

func TestSearch_GraphQLError(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(10))
	defer mock.Close()
	mock.QueryErrorAtOffset(0, "LOCATION_NOT_FOUND")

	c := newTestClient(t, mock.URL())
	_, err := c.Search(context.Background(), "a", "nowhere", 0)

	var gqlErr *GraphQLError
	if !errors.As(err, &gqlErr) {
		t.Fatalf("error = %v, want *GraphQLError", err)
	}
	if len(gqlErr.Messages) != 1 || gqlErr.Messages[0] != "LOCATION_NOT_FOUND" {
		t.Errorf("Messages = %v, want [LOCATION_NOT_FOUND]", gqlErr.Messages)
	}
}

func TestSearch_SchemaChanged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data": {"businessSearch": {"count": 3}}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Search(context.Background(), "a", "b", 0)
	if !errors.Is(err, ErrSchemaChanged) {
		t.Errorf("error = %v, want ErrSchemaChanged", err)
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Search(context.Background(), "a", "b", 0)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassDecode {
		t.Errorf("ErrorClass = %q, want decode", apiErr.ErrorClass)
	}
}

func TestSearch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t, url)
	_, err := c.Search(context.Background(), "a", "b", 0)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want network", apiErr.ErrorClass)
	}
}

func TestSearch_RequestBody(t *testing.T) {
	var body graphQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		w.Write([]byte(`{"data": {"search": {"total": 0, "business": []}}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	result, err := c.Search(context.Background(), "tacos", "austin", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Businesses == nil {
		t.Error("Businesses should be an empty slice, not nil")
	}

	if strings.Contains(body.Query, "tacos") || strings.Contains(body.Query, "austin") {
		t.Error("query document must not contain user input")
	}
	if body.Variables["term"] != "tacos" {
		t.Errorf("term variable = %v, want tacos", body.Variables["term"])
	}
	if v, ok := body.Variables["offset"]; !ok || v != nil {
		t.Errorf("offset variable = %v, want null on first page", v)
	}
}

func TestSearch_QuotaTracked(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(5))
	defer mock.Close()
	mock.SetHeader(quota.HeaderRemaining, "1234")

	tracker := quota.NewTracker(nil, zerolog.Nop())
	cfg := DefaultConfig(testutil.TestAPIKey)
	cfg.BaseURL = mock.URL()
	cfg.Quota = tracker
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.Search(context.Background(), "a", "b", 0); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 1234 {
		t.Errorf("Remaining = %d, want 1234", state.Remaining)
	}
}

func TestBusiness(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(3))
	defer mock.Close()

	c := newTestClient(t, mock.URL())

	b, err := c.Business(context.Background(), "biz-002")
	if err != nil {
		t.Fatalf("Business() error = %v", err)
	}
	if b.Name != "Restaurant 2" {
		t.Errorf("Name = %q, want Restaurant 2", b.Name)
	}

	_, err = c.Business(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("error = %v, want 404 APIError", err)
	}
}

func TestGet_EscapesPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	out, err := c.Get(context.Background(), "/businesses/café du monde", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out["ok"] != true {
		t.Errorf("body = %v, want ok", out)
	}
	if gotPath != "/v3/businesses/caf%C3%A9%20du%20monde" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassClient},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.expected {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestSearch_Metrics(t *testing.T) {
	mock := testutil.NewMockYelp(testutil.Businesses(5))
	defer mock.Close()
	mock.FailAtOffset(30, http.StatusBadGateway)

	c := newTestClient(t, mock.URL())

	okBefore := promtest.ToFloat64(yelpRequestsTotal.WithLabelValues("search", "200"))
	serverBefore := promtest.ToFloat64(yelpErrorsTotal.WithLabelValues(string(ErrorClassServer)))

	if _, err := c.Search(context.Background(), "a", "b", 0); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, err := c.Search(context.Background(), "a", "b", 30); err == nil {
		t.Fatal("Expected error at offset 30")
	}

	if got := promtest.ToFloat64(yelpRequestsTotal.WithLabelValues("search", "200")); got != okBefore+1 {
		t.Errorf("yelp_requests_total{search,200} = %v, want %v", got, okBefore+1)
	}
	if got := promtest.ToFloat64(yelpErrorsTotal.WithLabelValues(string(ErrorClassServer))); got != serverBefore+1 {
		t.Errorf("yelp_errors_total{server} = %v, want %v", got, serverBefore+1)
	}
}
