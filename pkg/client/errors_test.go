package client

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 0,
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        io.EOF,
			},
			expected: "yelp network error (status 0): request failed: EOF",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "BUSINESS_NOT_FOUND: missing",
			},
			expected: "yelp client error (status 404): BUSINESS_NOT_FOUND: missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	err := &APIError{ErrorClass: ErrorClassNetwork, Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should find wrapped error")
	}
}

func TestGraphQLError_Error(t *testing.T) {
	err := &GraphQLError{Messages: []string{"first", "second"}}
	if got := err.Error(); got != "yelp graphql error: first; second" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"api error", &APIError{ErrorClass: ErrorClassServer}, ErrorClassServer},
		{"wrapped api error", fmt.Errorf("page 2: %w", &APIError{ErrorClass: ErrorClassClient}), ErrorClassClient},
		{"graphql error", &GraphQLError{Messages: []string{"x"}}, ErrorClassGraphQL},
		{"schema changed", fmt.Errorf("%w: missing", ErrSchemaChanged), ErrorClassDecode},
		{"unrelated", io.EOF, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classOf(tt.err); got != tt.expected {
				t.Errorf("classOf() = %q, want %q", got, tt.expected)
			}
		})
	}
}
