// Package errkind provides the error taxonomy shared by collectors, the
// scheduler, and the pipeline: every failure is classified into one of a
// small set of kinds with a fixed disposition (retry, skip, fail the tick,
// fail the run).
package errkind

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for the scheduler/pipeline's disposition logic.
type Kind string

const (
	// ConfigError is fatal for the affected plugin: missing credentials or
	// similar misconfiguration. The plugin is disabled and surfaced on
	// /health.
	ConfigError Kind = "config_error"
	// NetworkError is transient: retried with backoff within a tick.
	NetworkError Kind = "network_error"
	// ParseError is permanent for the current payload; the item or batch is
	// skipped without failing the tick.
	ParseError Kind = "parse_error"
	// QuotaError is transient and may carry a RetryAfter duration.
	QuotaError Kind = "quota_error"
	// StorageError is partitioned by store at the call site (ItemStore
	// failures abort the batch; VectorStore failures mark vector_pending;
	// CacheStore failures only warn).
	StorageError Kind = "storage_error"
	// LockTimeout means a fingerprint or item lock could not be acquired in
	// time; the tick is recorded Skipped(contended).
	LockTimeout Kind = "lock_timeout"
	// DeadlineExceeded means a tick or run ran past its deadline.
	DeadlineExceeded Kind = "deadline_exceeded"
)

// Transient reports whether errors of this kind are worth retrying within
// the current tick.
func (k Kind) Transient() bool {
	return k == NetworkError || k == QuotaError
}

// Error is a classified, wrapped error carrying an optional retry-after hint.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error without a wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithRetryAfter attaches a retry-after duration, used by QuotaError.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// Config, Network, Parse, Quota, Storage, Lock, Deadline are constructors for
// the common case of wrapping a lower-level error under a given kind.

func Config(message string, err error) *Error   { return Wrap(ConfigError, message, err) }
func Network(message string, err error) *Error  { return Wrap(NetworkError, message, err) }
func Parse(message string, err error) *Error    { return Wrap(ParseError, message, err) }
func Quota(message string, err error) *Error    { return Wrap(QuotaError, message, err) }
func Storage(message string, err error) *Error  { return Wrap(StorageError, message, err) }
func Lock(message string) *Error                { return New(LockTimeout, message) }
func Deadline(message string) *Error            { return New(DeadlineExceeded, message) }

// As extracts a *Error from an error chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Of reports the Kind of err, or "" if err is not a classified error.
func Of(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err is classified under kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
