package model

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned by backend constructors when the provider
// requires a credential and none was configured.
var ErrMissingAPIKey = errors.New("api key is required")

// APIError is a provider failure that carried an HTTP status code.
//
// Backends wrap SDK errors in APIError so callers can classify failures
// without importing every SDK.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
