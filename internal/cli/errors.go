// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for difychat commands.
//
// Commands always return errors and never print them. Execute displays the
// error once, in text or JSON, and maps it to an exit code.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/difychat/internal/config"
	"github.com/jeranaias/difychat/internal/gateway"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the service rejected the API key
	ExitAuthError = 4
	// ExitNetworkError indicates the service could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a conversation was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a missing conversation or key.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in JSON mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		displayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", RenderConditional(ErrorStyle, "[ERROR]"), err.Error())
}

func displayErrorJSON(w io.Writer, err error) {
	output := map[string]any{
		"success":    false,
		"error":      err.Error(),
		"error_type": errorType(err),
		"exit_code":  GetExitCode(err),
	}

	var verr *ValidationError
	var nerr *NotFoundError
	var aerr *gateway.APIError
	switch {
	case errors.As(err, &verr):
		output["field"] = verr.Field
		output["reason"] = verr.Reason
	case errors.As(err, &nerr):
		output["resource"] = nerr.Resource
		output["id"] = nerr.ID
	case errors.As(err, &aerr):
		output["status"] = aerr.Status
		if aerr.Code != "" {
			output["code"] = aerr.Code
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}

func errorType(err error) string {
	var (
		verr  *ValidationError
		nerr  *NotFoundError
		cverr config.ValidationErrors
		terr  *gateway.TransportError
		aerr  *gateway.APIError
		rerr  *gateway.RemoteFailure
	)
	switch {
	case errors.As(err, &verr):
		return "validation_error"
	case errors.As(err, &nerr):
		return "not_found_error"
	case errors.As(err, &cverr):
		return "config_error"
	case errors.As(err, &terr):
		return "network_error"
	case errors.As(err, &aerr):
		return "api_error"
	case errors.As(err, &rerr):
		return "remote_failure"
	default:
		return "generic_error"
	}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		verr  *ValidationError
		nerr  *NotFoundError
		cverr config.ValidationErrors
		terr  *gateway.TransportError
	)
	switch {
	case errors.As(err, &verr):
		return ExitUsageError
	case errors.As(err, &cverr):
		return ExitConfigError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, gateway.ErrUnauthorized):
		return ExitAuthError
	case errors.As(err, &nerr), errors.Is(err, gateway.ErrNotFound):
		return ExitNotFoundError
	case errors.As(err, &terr):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}
