package acl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/jsamuelsen/quotebook/internal/adapters/clients"
	"github.com/jsamuelsen/quotebook/internal/domain"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrorResponse is the error body a remote may send, either nested
// ({"error":{"code","message"}}) or flat ({"code","message"}).
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// GetCode returns the nested code, falling back to the flat one.
func (e *ErrorResponse) GetCode() string {
	if e.Error.Code != "" {
		return e.Error.Code
	}

	return e.Code
}

// GetMessage returns the nested message, falling back to the flat one.
func (e *ErrorResponse) GetMessage() string {
	if e.Error.Message != "" {
		return e.Error.Message
	}

	return e.Message
}

// Remote error codes understood by MapHTTPError. They take precedence over
// the HTTP status when present.
const (
	ExternalCodeNotFound   = "NOT_FOUND"
	ExternalCodeConflict   = "CONFLICT"
	ExternalCodeValidation = "VALIDATION_ERROR"
	ExternalCodeForbidden  = "FORBIDDEN"
)

// ParseErrorResponse decodes an error body. It returns nil when the body is
// missing, not JSON, or carries neither a code nor a message.
func ParseErrorResponse(body io.Reader) *ErrorResponse {
	if body == nil {
		return nil
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(io.LimitReader(body, maxErrorBody)).Decode(&errResp); err != nil {
		return nil
	}

	if errResp.GetCode() == "" && errResp.GetMessage() == "" {
		return nil
	}

	return &errResp
}

// MapHTTPError converts a failed exchange into a domain error. clientErr is
// set when no response arrived; otherwise resp carries a non-2xx status.
// A 2xx response maps to nil.
func MapHTTPError(resp *http.Response, clientErr error, serviceName, operation string) error {
	if clientErr != nil {
		return mapClientError(clientErr, serviceName, operation)
	}

	if resp == nil {
		return domain.NewUnavailableError(serviceName, "no response received")
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	var errResp *ErrorResponse
	if resp.Body != nil {
		errResp = ParseErrorResponse(resp.Body)
	}

	if errResp != nil {
		if err := mapExternalCode(errResp, serviceName, operation); err != nil {
			return err
		}
	}

	return mapStatusCode(resp.StatusCode, errResp, serviceName, operation)
}

func mapClientError(err error, serviceName, operation string) error {
	switch {
	case errors.Is(err, clients.ErrCircuitOpen):
		return domain.NewUnavailableError(serviceName, "circuit breaker open during "+operation)
	case errors.Is(err, clients.ErrMaxRetriesExceeded):
		return domain.NewUnavailableError(serviceName, fmt.Sprintf("%s: %v", operation, err))
	default:
		return domain.NewUnavailableError(serviceName, fmt.Sprintf("%s failed: %v", operation, err))
	}
}

func mapExternalCode(errResp *ErrorResponse, serviceName, operation string) error {
	message := errResp.GetMessage()

	switch errResp.GetCode() {
	case ExternalCodeNotFound:
		return domain.NewNotFoundError(serviceName, operation)
	case ExternalCodeConflict:
		return conflictFrom(errResp, serviceName, message)
	case ExternalCodeValidation:
		return validationFrom(errResp, message)
	case ExternalCodeForbidden:
		return domain.NewForbiddenError(operation, message)
	default:
		return nil
	}
}

func mapStatusCode(status int, errResp *ErrorResponse, serviceName, operation string) error {
	message := fmt.Sprintf("%s failed with status %d", operation, status)
	if errResp != nil && errResp.GetMessage() != "" {
		message = errResp.GetMessage()
	}

	switch {
	case status == http.StatusNotFound:
		return domain.NewNotFoundError(serviceName, operation)
	case status == http.StatusConflict:
		return conflictFrom(errResp, serviceName, message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return validationFrom(errResp, message)
	case status == http.StatusUnauthorized:
		return domain.NewForbiddenError(operation, "authentication required")
	case status == http.StatusForbidden:
		return domain.NewForbiddenError(operation, message)
	case status == http.StatusTooManyRequests:
		return domain.NewUnavailableError(serviceName, "rate limit exceeded")
	case status >= http.StatusInternalServerError:
		return domain.NewUnavailableError(serviceName, message)
	default:
		return domain.NewValidationError("", message)
	}
}

// conflictFrom keeps the remote's detail fields, sorted by key, so callers
// can log which record collided.
func conflictFrom(errResp *ErrorResponse, serviceName, message string) error {
	if errResp == nil || len(errResp.Error.Details) == 0 {
		return domain.NewConflictError(serviceName, message)
	}

	pairs := make([]string, 0, len(errResp.Error.Details))
	for _, key := range slices.Sorted(maps.Keys(errResp.Error.Details)) {
		pairs = append(pairs, key+"="+errResp.Error.Details[key])
	}

	return domain.NewConflictErrorWithDetails(serviceName, message, strings.Join(pairs, ", "))
}

// validationFrom reports the first field-level detail when the remote sent
// any, else a general validation error.
func validationFrom(errResp *ErrorResponse, message string) error {
	if errResp != nil {
		for field, msg := range errResp.Error.Details {
			return domain.NewValidationError(field, msg)
		}
	}

	return domain.NewValidationError("", message)
}
