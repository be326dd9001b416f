// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error variables for status classes returned by the remote service.
var (
	// ErrUnauthorized indicates the API key was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the conversation or route does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrBadRequest indicates the service rejected the request body.
	ErrBadRequest = errors.New("bad request")

	// ErrUpstream indicates a 5xx answer.
	ErrUpstream = errors.New("upstream error")

	// ErrIncomplete indicates a success answer missing an expected field.
	ErrIncomplete = errors.New("incomplete response")
)

// APIError is a non-2xx answer from the remote service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("remote error (HTTP %d): %s", e.Status, e.Message)
}

// Unwrap maps the status to its sentinel so errors.Is works on APIError.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrUpstream
	case e.Status >= 400:
		return ErrBadRequest
	}
	return nil
}

// TransportError means the request did not produce a usable response:
// connection refused or reset, timeout, or a non-2xx status on a stream.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteFailure means a CRUD call reached the service but did not succeed.
type RemoteFailure struct {
	Op      string
	Result  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RemoteFailure) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s failed (%s): %s", e.Op, e.Result, e.Message)
	default:
		return fmt.Sprintf("%s failed: result %q", e.Op, e.Result)
	}
}

// Unwrap returns the underlying error.
func (e *RemoteFailure) Unwrap() error {
	return e.Err
}

// apiErrorBody covers the two error envelopes seen in practice: the remote
// service's {code,message,status} and the proxy's {error,details}.
type apiErrorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Status  int             `json:"status"`
	Error   json.RawMessage `json:"error"`
	Details string          `json:"details"`
}

// handleErrorResponse converts a non-2xx answer into an *APIError.
func handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{Status: statusCode}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		if apiErr.Message == "" && len(parsed.Error) > 0 {
			var s string
			if json.Unmarshal(parsed.Error, &s) == nil {
				apiErr.Message = s
			} else {
				var nested struct {
					Message string `json:"message"`
					Code    string `json:"code"`
				}
				if json.Unmarshal(parsed.Error, &nested) == nil {
					apiErr.Message, apiErr.Code = nested.Message, nested.Code
				}
			}
			if parsed.Details != "" {
				apiErr.Message += ": " + parsed.Details
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
		if len(body) > 0 && len(body) < 512 {
			apiErr.Message = string(body)
		}
	}
	return apiErr
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstream) {
		return true
	}

	// Connection issues are retryable for idempotent reads.
	var te *TransportError
	return errors.As(err, &te)
}
