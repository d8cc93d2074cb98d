package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind represents the category of a failure.
type Kind string

const (
	// KindClassification is returned when a URL matches no known marketplace pattern.
	KindClassification Kind = "classification"
	// KindFetch represents a failed remote call (transport error or non-200 status).
	KindFetch Kind = "fetch"
	// KindNestedDecode represents a malformed embedded JSON payload.
	KindNestedDecode Kind = "nested_decode"
	// KindWrite represents a persistence failure for a single capture.
	KindWrite Kind = "write"
	// KindNotFound is the expected "no data" outcome of a query.
	KindNotFound Kind = "not_found"
	// KindStoreFault means the underlying store is unreachable or errored.
	KindStoreFault Kind = "store_fault"
	// KindConfiguration represents invalid configuration.
	KindConfiguration Kind = "configuration"
)

// Error is the error type shared by ingestion and query code.
type Error struct {
	Kind     Kind
	Platform string
	Message  string
	Status   int
	Body     string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Kind)
	if e.Platform != "" {
		prefix += " " + e.Platform + ":"
	}
	msg := prefix + " " + e.Message
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += " - " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. It lets callers write
// errors.Is(err, errors.ErrNotFound) against the sentinel values below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Platform == ""
}

// IsRetryable returns true if repeating the operation may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindFetch:
		return e.Status == 0 || e.Status >= 500 || e.Status == 429
	case KindStoreFault:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is comparisons. Only Kind is set on them.
var (
	ErrClassification = &Error{Kind: KindClassification}
	ErrFetch          = &Error{Kind: KindFetch}
	ErrNestedDecode   = &Error{Kind: KindNestedDecode}
	ErrWrite          = &Error{Kind: KindWrite}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrStoreFault     = &Error{Kind: KindStoreFault}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
)

// New creates a new Error
func New(kind Kind, platform, message string, err error) *Error {
	return &Error{
		Kind:     kind,
		Platform: platform,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewClassification creates a classification failure for the given URL.
func NewClassification(rawURL, reason string) *Error {
	return New(KindClassification, "", fmt.Sprintf("%s: %s", reason, rawURL), nil)
}

// NewFetch creates a fetch failure carrying the remote status and body text.
func NewFetch(platform string, status int, body string, err error) *Error {
	e := New(KindFetch, platform, "remote call failed", err)
	e.Status = status
	e.Body = body
	return e
}

// NewNestedDecode creates a failure for an embedded payload that does not parse.
func NewNestedDecode(platform, message string, err error) *Error {
	return New(KindNestedDecode, platform, message, err)
}

// NewWrite creates a write failure
func NewWrite(platform, message string, err error) *Error {
	return New(KindWrite, platform, message, err)
}

// NewNotFound creates a not-found outcome
func NewNotFound(platform, message string) *Error {
	return New(KindNotFound, platform, message, nil)
}

// NewStoreFault creates a store fault
func NewStoreFault(platform, message string, err error) *Error {
	return New(KindStoreFault, platform, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *Error {
	return New(KindConfiguration, "", message, err)
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
