package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorCode string

const (
	BadRequestError    ErrorCode = "BadRequest"
	InternalError      ErrorCode = "InternalError"
	NotFoundError      ErrorCode = "NotFound"
	ServiceUnavailable ErrorCode = "ServiceUnavailable"
	DatastoreFailure   ErrorCode = "DatastoreFailure"
	NetworkFailure     ErrorCode = "NetworkFailure"

	// Business outcomes. These are terminal and must never be retried.
	InsufficientCredit ErrorCode = "InsufficientCredit"
	NoNodeAvailable    ErrorCode = "NoNodeAvailable"
	RateLimited        ErrorCode = "RateLimited"

	// Ticket verification failures. Terminal and security-relevant.
	SignatureInvalid ErrorCode = "SignatureInvalid"
	TicketExpired    ErrorCode = "TicketExpired"
	WrongAudience    ErrorCode = "WrongAudience"
	MalformedTicket  ErrorCode = "MalformedTicket"

	// Resilience layer outcomes.
	CircuitOpen  ErrorCode = "CircuitOpen"
	TimeoutError ErrorCode = "Timeout"
)

type HasHint interface {
	// Hint A human-readable string that advises the user on how they might solve the error.
	Hint() string
}

type HasRetryable interface {
	// Retryable Whether the error could be retried, assuming the same input;
	// i.e. the error is transient and due to network capacity or a service
	// outage rather than a property of the request itself.
	Retryable() bool
}

type HasDetails interface {
	// Details An extra set of metadata provided by the error.
	Details() map[string]string
}

type HasCode interface {
	Code() ErrorCode
}

// HasHTTPStatusCode is an interface that defines a method for retrieving
// an HTTP status code associated with an error.
type HasHTTPStatusCode interface {
	HTTPStatusCode() int
}

// HasRetryAfter is implemented by errors that carry a hint for when the
// caller may try again, such as rate limit rejections.
type HasRetryAfter interface {
	RetryAfter() time.Duration
}

// BaseError is a custom error type that provides additional fields and
// methods for more detailed error handling. It implements the error
// interface, as well as additional interfaces for providing a hint,
// indicating whether the error is retryable, and for carrying a machine
// readable error code.
type BaseError struct {
	message        string
	hint           string
	retryable      bool
	component      string
	httpStatusCode int
	retryAfter     time.Duration
	details        map[string]string
	code           ErrorCode
}

// NewBaseError is a constructor function that creates a new BaseError with
// only the message field set.
func NewBaseError(format string, a ...any) *BaseError {
	return &BaseError{
		component: "Troop",
		message:   fmt.Sprintf(format, a...),
	}
}

// WithHint sets the hint field and returns the BaseError for chaining.
func (e *BaseError) WithHint(hint string) *BaseError {
	e.hint = hint
	return e
}

// WithRetryable marks the error as transient and returns the BaseError for chaining.
func (e *BaseError) WithRetryable() *BaseError {
	e.retryable = true
	return e
}

// WithDetails sets the details field and returns the BaseError for chaining.
func (e *BaseError) WithDetails(details map[string]string) *BaseError {
	e.details = details
	return e
}

// WithCode sets the code field and returns the BaseError for chaining.
func (e *BaseError) WithCode(code ErrorCode) *BaseError {
	e.code = code
	return e
}

// WithHTTPStatusCode sets a specific HTTP status code associated with the
// error, overriding the one inferred from the error code.
func (e *BaseError) WithHTTPStatusCode(statusCode int) *BaseError {
	e.httpStatusCode = statusCode
	return e
}

// WithComponent records which component of the system generated the error.
func (e *BaseError) WithComponent(component string) *BaseError {
	e.component = component
	return e
}

// WithRetryAfter records how long the caller should wait before trying again.
func (e *BaseError) WithRetryAfter(d time.Duration) *BaseError {
	e.retryAfter = d
	return e
}

func (e *BaseError) Error() string {
	return e.message
}

func (e *BaseError) Hint() string {
	return e.hint
}

func (e *BaseError) Retryable() bool {
	return e.retryable
}

func (e *BaseError) Details() map[string]string {
	return e.details
}

// Code returns a unique code to identify the error
func (e *BaseError) Code() ErrorCode {
	return e.code
}

func (e *BaseError) Component() string {
	return e.component
}

func (e *BaseError) RetryAfter() time.Duration {
	return e.retryAfter
}

// HTTPStatusCode returns the HTTP status code associated with the error,
// which is useful when translating the error into an HTTP response. If no
// explicit status code has been set it is inferred from the error code.
func (e *BaseError) HTTPStatusCode() int {
	if e.httpStatusCode != 0 {
		return e.httpStatusCode
	}
	return inferHTTPStatusCode(e.code)
}

func inferHTTPStatusCode(code ErrorCode) int {
	switch code {
	case BadRequestError, MalformedTicket:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case InsufficientCredit:
		return http.StatusPaymentRequired
	case NoNodeAvailable, ServiceUnavailable, CircuitOpen:
		return http.StatusServiceUnavailable
	case RateLimited:
		return http.StatusTooManyRequests
	case SignatureInvalid, TicketExpired, WrongAudience:
		return http.StatusUnauthorized
	case TimeoutError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func IsErrorWithCode(err error, code ErrorCode) bool {
	var baseErr *BaseError
	if errors.As(err, &baseErr) {
		return baseErr.Code() == code
	}
	return false
}

// IsRetryable reports whether err is a transient failure that the retry
// layer may attempt again. Errors that don't implement HasRetryable are
// treated as terminal.
func IsRetryable(err error) bool {
	var retryable HasRetryable
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return false
}
