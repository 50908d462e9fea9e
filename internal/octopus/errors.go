package octopus

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuth marks credential failures (bad API key, rejected token exchange).
// These are fatal for the cycle and surfaced to the operator rather than
// retried like transient network faults.
var ErrAuth = errors.New("octopus: authentication failed")

// APIError reports a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("octopus api error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("octopus api error (%d): %s", e.StatusCode, e.Message)
}

// Unwrap classifies 401/403 responses as authentication failures.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrAuth
	}
	return nil
}

// GraphQLError reports an error payload from the GraphQL endpoint.
type GraphQLError struct {
	Message string
	auth    bool
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("octopus graphql error: %s", e.Message)
}

func (e *GraphQLError) Unwrap() error {
	if e.auth {
		return ErrAuth
	}
	return nil
}
