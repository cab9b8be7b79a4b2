package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrCollectionUnavailable = errors.New("collection root unavailable")
	ErrInvalidKey            = errors.New("invalid record key")
	ErrInvalidCriteria       = errors.New("invalid match criteria")
	ErrTimeout               = errors.New("operation timed out")
)

// StorageKind classifies a durable store failure.
type StorageKind int

const (
	UnavailableCollectionRoot StorageKind = iota
	EncodingError
	DecodingError
)

// String returns the taxonomy name of the kind
func (k StorageKind) String() string {
	switch k {
	case UnavailableCollectionRoot:
		return "unavailableCollectionRoot"
	case EncodingError:
		return "encodingError"
	case DecodingError:
		return "decodingError"
	default:
		return "unknown"
	}
}

// StorageError is returned by durable store operations that have a caller
// able to react to them.
type StorageError struct {
	Kind       StorageKind
	Collection string
	Key        string // empty for collection-wide operations
	Err        error
}

func (e *StorageError) Error() string {
	target := e.Collection
	if e.Key != "" {
		target += "/" + e.Key
	}
	if e.Err == nil {
		return fmt.Sprintf("storage %s (%s)", e.Kind, target)
	}
	return fmt.Sprintf("storage %s (%s): %v", e.Kind, target, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCollectionUnavailable) match unavailable-root failures.
func (e *StorageError) Is(target error) bool {
	return target == ErrCollectionUnavailable && e.Kind == UnavailableCollectionRoot
}

// IsDecoding reports whether err is a storage decoding failure.
func IsDecoding(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == DecodingError
}

// ValidationError represents a field validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// WaitTimeoutError is the single failure signal of a poll-wait. It names the
// predicate and every supplied criterion so a failing test can be diagnosed
// without further instrumentation.
type WaitTimeoutError struct {
	Predicate string        // exists, exactly one, completed, absent
	Criteria  string        // rendered criteria set
	Timeout   time.Duration // wait budget that elapsed
	Observed  int           // matching exchanges seen by the last check
	Err       error         // hard failure surfaced by the final check, if any
}

func (e *WaitTimeoutError) Error() string {
	within := ""
	if e.Timeout > 0 {
		within = " within " + e.Timeout.String()
	}
	var msg string
	switch e.Predicate {
	case "absent":
		msg = fmt.Sprintf("expected no request matching %s%s, observed %d", e.Criteria, within, e.Observed)
	case "exactly one":
		msg = fmt.Sprintf("expected exactly one request matching %s%s, observed %d", e.Criteria, within, e.Observed)
	default:
		msg = fmt.Sprintf("timed out after %s waiting for %s request matching %s (observed %d)", e.Timeout, e.Predicate, e.Criteria, e.Observed)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the timeout sentinel and any final-check failure.
func (e *WaitTimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTimeout}
	}
	return []error{ErrTimeout, e.Err}
}
