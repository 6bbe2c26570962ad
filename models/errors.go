package models

import (
	"errors"
	"fmt"
)

// Kind classifies a lookup failure. Every failure that reaches the API layer
// carries exactly one Kind.
type Kind string

// Failure kinds produced by the lookup pipeline.
const (
	KindNotFound     Kind = "NOT_FOUND"
	KindTimeout      Kind = "TIMEOUT"
	KindTransient    Kind = "TRANSIENT_FAILURE"
	KindFatal        Kind = "FATAL_FAILURE"
	KindResourceInit Kind = "RESOURCE_INIT_FAILURE"

	// Facade-only kinds; the pipeline never produces these.
	KindInvalidInput Kind = "INVALID_INPUT"
	KindRateLimited  Kind = "RATE_LIMITED"
	KindUnauthorized Kind = "UNAUTHORIZED"
)

// OutcomeSuccess is the outcome label used for successful lookups in logs and
// metrics. It is not a Kind because success carries no error.
const OutcomeSuccess = "SUCCESS"

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Status string `json:"status"`
	Code   Kind   `json:"code"`
	Detail string `json:"detail"`
}

// LookupError is the internal error type carrying a failure Kind.
// It implements the error interface and supports error wrapping via Unwrap.
type LookupError struct {
	Kind    Kind
	Message string
	Err     error // wrapped original error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// NewLookupError creates a new LookupError.
func NewLookupError(kind Kind, message string, err error) *LookupError {
	return &LookupError{Kind: kind, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail. The
// wrapped cause is not exposed.
func (e *LookupError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Status: StatusError, Code: e.Kind, Detail: e.Message}
}

// KindOf returns the Kind of the first LookupError in err's chain. Errors
// that were never classified are reported as KindFatal.
func KindOf(err error) Kind {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindFatal
}

// OutcomeOf returns the outcome label for err: OutcomeSuccess for nil,
// otherwise the error's Kind.
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return string(KindOf(err))
}
