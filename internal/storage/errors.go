package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrValidation matches any *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches any *NotFoundError
	ErrNotFound = errors.New("book not found")

	// ErrUpstream matches any *UpstreamError
	ErrUpstream = errors.New("upstream failure")

	// ErrConfiguration matches any *ConfigurationError
	ErrConfiguration = errors.New("invalid configuration")
)

// ValidationError reports required book fields that are blank or absent
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid book fields: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports an operation on an ID that does not exist
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book with id %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UpstreamError reports a failure of the system behind a store: a non-success
// status, an unreadable response, a network error or an expired deadline.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status code %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Timeout reports whether the operation failed because its deadline expired
func (e *UpstreamError) Timeout() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ConfigurationError reports a missing or malformed setting. It is returned
// while constructing a component, never from a store operation.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
