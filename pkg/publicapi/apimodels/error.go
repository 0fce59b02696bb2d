package apimodels

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/100monkeys-ai/monkey-troop/pkg/models"
)

// APIError is the structured JSON error body returned by every endpoint.
// Clients key off Code for programmatic handling and show Message to users.
type APIError struct {
	// HTTPStatusCode is the status code associated with this error.
	HTTPStatusCode int `json:"Status"`

	// Message is a short, human-readable description of the error.
	Message string `json:"Message"`

	// RequestID is the request ID of the request that caused the error.
	RequestID string `json:"RequestID"`

	// Code is the error code of the error.
	Code string `json:"Code"`

	// Component is the component that caused the error.
	Component string `json:"Component"`

	// Hint provides additional context or suggestions related to the error.
	Hint string `json:"Hint,omitempty"`

	// Details is a map of string key-value pairs with additional context.
	Details map[string]string `json:"Details,omitempty"`

	// RetryAfterSeconds tells rate-limited callers when to try again.
	RetryAfterSeconds int64 `json:"RetryAfterSeconds,omitempty"`
}

func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		HTTPStatusCode: statusCode,
		Message:        message,
		Details:        make(map[string]string),
	}
}

// Error implements the error interface, allowing APIError to be used as a
// standard Go error.
func (e *APIError) Error() string {
	return e.Message
}

// GenerateAPIErrorFromHTTPResponse parses an HTTP error response body into
// an APIError, falling back to a generic error when it is not our JSON
// shape.
func GenerateAPIErrorFromHTTPResponse(resp *http.Response) *APIError {
	if resp == nil {
		return NewAPIError(0, "API call error, invalid response")
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewAPIError(
			resp.StatusCode,
			fmt.Sprintf("Unable to read API call response body. Error: %q", err.Error()))
	}

	var apiErr APIError
	err = json.Unmarshal(body, &apiErr)
	if err != nil {
		return NewAPIError(
			resp.StatusCode,
			fmt.Sprintf("Unable to parse API call response body. Error: %q. Body received: %q",
				err.Error(),
				string(body),
			))
	}

	if apiErr.HTTPStatusCode == 0 {
		apiErr.HTTPStatusCode = resp.StatusCode
	}

	return &apiErr
}

// ToBaseError converts an APIError back into the domain error type so
// client callers can use the usual code checks and retry classification.
func (e *APIError) ToBaseError() *models.BaseError {
	details := e.Details
	if details == nil {
		details = make(map[string]string)
	}
	if e.RequestID != "" {
		details["request_id"] = e.RequestID
	}
	baseErr := models.NewBaseError(e.Message).
		WithHTTPStatusCode(e.HTTPStatusCode).
		WithCode(models.ErrorCode(e.Code)).
		WithComponent(e.Component).
		WithHint(e.Hint).
		WithDetails(details)
	if e.RetryAfterSeconds > 0 {
		baseErr = baseErr.WithRetryAfter(time.Duration(e.RetryAfterSeconds) * time.Second)
	}
	return baseErr
}
