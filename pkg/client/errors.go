package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrSchemaChanged is returned when a response decodes but lacks the
	// expected search envelope.
	ErrSchemaChanged = errors.New("unexpected response schema")
)

// APIError represents a failed call to the Yelp API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("yelp %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("yelp %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Messages []string
}

// Error implements the error interface.
func (e *GraphQLError) Error() string {
	return "yelp graphql error: " + strings.Join(e.Messages, "; ")
}

// classOf returns the ErrorClass of err, or "" if err is not a client error.
func classOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return ErrorClassGraphQL
	}
	if errors.Is(err, ErrSchemaChanged) {
		return ErrorClassDecode
	}
	return ""
}
