// Package search defines the search service used to gather evidence and the
// backends that implement it.
package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Request is one search query
type Request struct {
	Query      string
	MaxResults int
	DateRange  *DateRange
}

// DateRange bounds result publication dates. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Result is one ranked search hit
type Result struct {
	Title         string     `json:"title" yaml:"title"`
	URL           string     `json:"url" yaml:"url"`
	Snippet       string     `json:"snippet" yaml:"snippet"`
	PublishedDate *time.Time `json:"published_date,omitempty" yaml:"published_date,omitempty"`
	VenueType     string     `json:"venue_type,omitempty" yaml:"venue_type,omitempty"`
}

// Service answers search requests. Implementations must be safe for
// concurrent use.
type Service interface {
	Search(ctx context.Context, req Request) ([]Result, error)
}

// ErrDisallowed is returned when robots.txt forbids querying the backend
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError is a non-2xx backend response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// TransientError marks a failure worth retrying
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether a failed search may succeed on retry: timeouts,
// network errors, 429 and 5xx responses. Cancellation of the caller's context
// is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}
