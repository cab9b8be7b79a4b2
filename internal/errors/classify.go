package errors

import (
	"context"
	"errors"
	"strings"
)

// Severity indicates how serious a failure is for whoever reads the diagnostic.
type Severity int

const (
	SeverityInfo    Severity = iota // User should know, not blocking
	SeverityWarning                 // Degraded functionality
	SeverityError                   // Operation failed, can retry
	SeverityFatal                   // Process must exit
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Diagnostic wraps an error with human-facing presentation metadata.
type Diagnostic struct {
	Err      error
	Severity Severity
	Title    string   // Short user-facing title
	Message  string   // Detailed user-facing message
	Recovery []string // Suggested actions (bullet points)
	Details  string   // Technical details
}

func (d Diagnostic) Error() string {
	if d.Err != nil {
		return d.Err.Error()
	}
	return d.Title
}

// Unwrap returns the underlying error.
func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Format renders the diagnostic as a short multi-line report.
func (d Diagnostic) Format() string {
	var b strings.Builder
	b.WriteString(d.Title)
	if d.Message != "" {
		b.WriteString(": ")
		b.WriteString(d.Message)
	}
	for _, r := range d.Recovery {
		b.WriteString("\n  - ")
		b.WriteString(r)
	}
	if d.Details != "" {
		b.WriteString("\n")
		b.WriteString(d.Details)
	}
	return b.String()
}

// Classify converts a standard error into a Diagnostic with appropriate
// severity, title, message, and recovery suggestions.
func Classify(err error) *Diagnostic {
	if err == nil {
		return nil
	}

	// Check if already a Diagnostic
	var diag *Diagnostic
	if errors.As(err, &diag) {
		return diag
	}

	var waitErr *WaitTimeoutError
	if errors.As(err, &waitErr) {
		d := &Diagnostic{
			Err:      err,
			Severity: SeverityError,
			Title:    "Expectation Failed",
			Message:  waitErr.Error(),
			Recovery: []string{
				"Check the criteria for typos",
				"Confirm the application and the test share the same storage root",
				"Increase the wait timeout",
			},
		}
		if IsDecoding(waitErr.Err) {
			d.Title = "Corrupt Record"
			d.Recovery = []string{"Clear the Requests collection and rerun"}
		}
		return d
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		d := &Diagnostic{
			Err:      err,
			Severity: SeverityError,
			Details:  err.Error(),
		}
		switch storageErr.Kind {
		case UnavailableCollectionRoot:
			d.Title = "Storage Unavailable"
			d.Message = "The collection directory could not be created or read."
			d.Recovery = []string{"Check that the storage root exists and is writable", "Set HTTPSPY_SHARED_DIR"}
		case EncodingError:
			d.Title = "Encoding Failed"
			d.Message = "The record could not be serialized."
		case DecodingError:
			d.Title = "Corrupt Record"
			d.Message = "A stored record could not be decoded."
			d.Recovery = []string{"Remove the record or clear the collection"}
		}
		return d
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return &Diagnostic{
			Err:      err,
			Severity: SeverityError,
			Title:    "Operation Timeout",
			Message:  "The operation timed out.",
			Recovery: []string{"Try again", "Increase the timeout setting"},
		}

	case errors.Is(err, context.Canceled):
		return &Diagnostic{
			Err:      err,
			Severity: SeverityInfo,
			Title:    "Cancelled",
			Message:  "The operation was cancelled.",
			Recovery: []string{},
		}

	case errors.Is(err, ErrInvalidKey):
		return &Diagnostic{
			Err:      err,
			Severity: SeverityError,
			Title:    "Invalid Key",
			Message:  "Record keys must be plain file names.",
			Details:  err.Error(),
		}

	case errors.Is(err, ErrInvalidCriteria):
		return &Diagnostic{
			Err:      err,
			Severity: SeverityError,
			Title:    "Invalid Criteria",
			Message:  "The match criteria could not be compiled.",
			Recovery: []string{"Check the URL pattern is a valid regular expression"},
			Details:  err.Error(),
		}
	}

	// Validation errors
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return &Diagnostic{
			Err:      err,
			Severity: SeverityError,
			Title:    "Validation Error",
			Message:  validationErr.Message,
			Recovery: []string{"Correct the field value and try again"},
			Details:  validationErr.Error(),
		}
	}

	// Default fallback for unknown errors
	return &Diagnostic{
		Err:      err,
		Severity: SeverityError,
		Title:    "Unexpected Error",
		Message:  "An unexpected error occurred.",
		Recovery: []string{"Try again"},
		Details:  err.Error(),
	}
}
