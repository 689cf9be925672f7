package domain

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels matched with errors.Is. The typed errors below unwrap to them.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrFetch marks a source page that could not be fetched or decoded.
	ErrFetch = errors.New("fetch failed")
	// ErrMalformedRecord marks one source record that cannot be ingested.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidExternalID marks an identifier without the expected type marker.
	ErrInvalidExternalID = errors.New("invalid external id")

	ErrConnectionUnavailable = errors.New("connection unavailable")
	// ErrConstraintViolation is an integrity error no conflict clause absorbs.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrLockHeld means another ingestion process owns the catalog.
	ErrLockHeld = errors.New("ingestion lock held by another process")
)

// Skip reasons reported for records that are not written.
const (
	SkipInvalidID           = "invalid_id"
	SkipCategoryMismatch    = "category_mismatch"
	SkipMissingTitle        = "missing_title"
	SkipValidation          = "validation"
	SkipWriteFailed         = "write_failed"
	SkipUnresolvedReference = "unresolved_reference"
	SkipConstraint          = "constraint_violation"
)

// ValidationError rejects one field of a normalized record.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError names the entity a lookup missed.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string { return e.Entity + " not found: " + e.ID }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RateLimitError is a 429 from a source, with its Retry-After when sent.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ExternalAPIError is any other non-200 answer from a source API. Without a
// Cause it matches ErrServiceUnavailable.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

func (e *ExternalAPIError) Unwrap() error {
	if e.Cause == nil {
		return ErrServiceUnavailable
	}
	return e.Cause
}

// FetchError reports a page of the source catalog that could not be fetched or
// did not carry the fields a page must have. It aborts the current pagination walk.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s %s", e.Source, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

func (e *FetchError) Unwrap() error { return e.Cause }

// MalformedRecordError is the soft, per-record failure: the record is skipped
// with Reason and the batch continues.
type MalformedRecordError struct {
	Entity     string
	ExternalID string
	Reason     string
	Detail     string
}

func NewMalformedRecordError(entity, externalID, reason, detail string) *MalformedRecordError {
	return &MalformedRecordError{Entity: entity, ExternalID: externalID, Reason: reason, Detail: detail}
}

func (e *MalformedRecordError) Error() string {
	id := cmp.Or(e.ExternalID, "<none>")
	if e.Detail == "" {
		return fmt.Sprintf("malformed %s %s: %s", e.Entity, id, e.Reason)
	}
	return fmt.Sprintf("malformed %s %s: %s (%s)", e.Entity, id, e.Reason, e.Detail)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

// ConnectionUnavailableError reports a database that stayed unreachable for
// every attempt. It matches ErrConnectionUnavailable and unwraps to the last cause.
type ConnectionUnavailableError struct {
	Target   string
	Attempts int
	Cause    error
}

func (e *ConnectionUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable after %d attempts: %v", e.Target, e.Attempts, e.Cause)
}

func (e *ConnectionUnavailableError) Is(target error) bool { return target == ErrConnectionUnavailable }

func (e *ConnectionUnavailableError) Unwrap() error { return e.Cause }

// ConstraintViolationError reports an unexpected integrity violation for one
// row. It matches ErrConstraintViolation and unwraps to the driver error.
type ConstraintViolationError struct {
	Table      string
	Constraint string
	Code       string
	Cause      error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation on %s (%s, sqlstate %s): %v", e.Table, e.Constraint, e.Code, e.Cause)
}

func (e *ConstraintViolationError) Is(target error) bool { return target == ErrConstraintViolation }

func (e *ConstraintViolationError) Unwrap() error { return e.Cause }

// SkipReason returns the skip reason carried by err, or SkipWriteFailed for any
// other error.
func SkipReason(err error) string {
	var mre *MalformedRecordError
	if errors.As(err, &mre) {
		return mre.Reason
	}
	if errors.Is(err, ErrConstraintViolation) {
		return SkipConstraint
	}
	return SkipWriteFailed
}
