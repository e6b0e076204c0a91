package engineclient

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineUnavailable is matched (errors.Is) by the error returned once
	// every attempt of a call has failed.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrCancelled is returned when the caller's context ends a call. It is
	// not an engine outage and never changes the health state.
	ErrCancelled = errors.New("engine call cancelled")

	// ErrInvalidPolicy is returned for a retry policy that cannot be executed.
	ErrInvalidPolicy = errors.New("invalid retry policy")
)

// Attempt records one try of a logical call. It lives only as long as the
// call (and the error describing it).
type Attempt struct {
	Number     int
	Delay      time.Duration // wait before this attempt; 0 for the first
	StatusCode int           // 0 when the transport failed
	Err        error
}

// StatusError is the failure recorded for a non-2xx engine response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("engine returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("engine returned status %d: %s", e.StatusCode, e.Body)
}

// UnavailableError is the terminal failure after all attempts are exhausted.
// It carries the last underlying error.
type UnavailableError struct {
	Attempts []Attempt
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("engine unavailable after %d attempt(s): %v", len(e.Attempts), e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrEngineUnavailable }

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
