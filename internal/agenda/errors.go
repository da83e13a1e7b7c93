package agenda

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBlankRow is returned by ParseRow for a row with no content.
	// Blank rows are skipped, not counted as failures.
	ErrBlankRow = errors.New("blank row")

	// ErrSyncInProgress is returned when a sync is requested while another
	// cycle is running. The request is dropped, not queued.
	ErrSyncInProgress = errors.New("agenda sync already in progress")

	// ErrUnconfigured is returned when no agenda sheet credentials were supplied.
	ErrUnconfigured = errors.New("agenda sheet is not configured")
)

// ParseError reports a sheet row that could not be turned into an entry.
type ParseError struct {
	Position int
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("row %d: %s", e.Position, e.Reason)
	}
	return e.Reason
}

// TransportError is a remote sheet call that still failed after retries.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an entry that is neither cached nor in the sheet.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agenda entry %s not found", e.ID)
}

// ValidationError reports user input that cannot be written to the sheet.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return "invalid agenda entry: " + strings.Join(parts, "; ")
}

// permanentError marks an error that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the Retrier gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
