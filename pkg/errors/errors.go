package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
)

// SourceErrorKind classifies a failed outbound request.
type SourceErrorKind string

const (
	// KindTransient covers network failures, 5xx and 429. Retried with backoff.
	KindTransient SourceErrorKind = "transient"
	// KindPermanent covers every other 4xx. Never retried.
	KindPermanent SourceErrorKind = "permanent"
	// KindRateLimited means the local window was exhausted and nothing was sent.
	KindRateLimited SourceErrorKind = "rate_limited"
	// KindInvalidRequest means the request could not be built. Never retried.
	KindInvalidRequest SourceErrorKind = "invalid_request"
)

// SourceError is a failure talking to an external source.
type SourceError struct {
	Kind       SourceErrorKind
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func (e *SourceError) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("rate limit exceeded: retry after %d seconds", int(e.RetryAfter.Round(time.Second)/time.Second))
	case KindInvalidRequest:
		return fmt.Sprintf("invalid request: %v", e.Err)
	}
	if e.StatusCode == 0 {
		return "network error: no response"
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *SourceError) Retryable() bool {
	return e.Kind == KindTransient
}

func (e *SourceError) ToHTTPError() *httperror.HTTPError {
	code := http.StatusBadGateway
	switch e.Kind {
	case KindRateLimited:
		code = http.StatusTooManyRequests
	case KindInvalidRequest:
		code = http.StatusBadRequest
	}
	return httperror.NewHTTPError(code, e.Error()).
		AddMetaValue("kind", string(e.Kind)).
		AddMetaValue("status_code", e.StatusCode)
}

// ClassifyStatus maps a non-2xx status to its error kind.
func ClassifyStatus(status int) SourceErrorKind {
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return KindTransient
	}
	return KindPermanent
}

// IsSourceError reports whether err is, or wraps, a SourceError.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

// ParseError means an uploaded file could not be read. Fatal to the whole upload.
type ParseError struct {
	FileName string
	Message  string
	Err      error
}

func NewParseError(fileName, format string, args ...any) *ParseError {
	return &ParseError{FileName: fileName, Message: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse %s: %s: %v", e.FileName, e.Message, e.Err)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.FileName, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("file_name", e.FileName)
}

// TransactionError means the persistence transaction aborted. Nothing was committed.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed: %v", e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, "upload transaction failed, no rows were committed")
}

// DuplicateKeyError is a unique-constraint violation on write.
type DuplicateKeyError struct {
	Constraint string
	Err        error
}

func (e *DuplicateKeyError) Error() string {
	if e.Constraint == "" {
		return "duplicate key"
	}
	return fmt.Sprintf("duplicate key violates %s", e.Constraint)
}

func (e *DuplicateKeyError) Unwrap() error {
	return e.Err
}

func (e *DuplicateKeyError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error())
}

const uniqueViolation = "23505"

// FromDatabase converts driver-level unique violations into DuplicateKeyError.
func FromDatabase(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return &DuplicateKeyError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}

// IsDuplicateKey reports whether err is a unique-constraint violation.
func IsDuplicateKey(err error) bool {
	var dk *DuplicateKeyError
	return errors.As(FromDatabase(err), &dk)
}
