package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when there is no session and none has been configured.
	ErrNotConnected = errors.New("session not connected")
	// ErrClosed is returned after Close until the next explicit Connect.
	ErrClosed = errors.New("session controller closed")
)

// ConnectionFailedError means every connect attempt failed.
type ConnectionFailedError struct {
	Attempts int
	Last     error
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("connection failed after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *ConnectionFailedError) Unwrap() error { return e.Last }

// CircuitOpenError is returned without contacting the upstream while the breaker is open.
type CircuitOpenError struct {
	Until time.Time
}

func (e *CircuitOpenError) Error() string {
	return "circuit open until " + e.Until.Format(time.RFC3339)
}

// RetryAfter is the time left on the breaker relative to now.
func (e *CircuitOpenError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IsCircuitOpen reports whether err is, or wraps, a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var ce *CircuitOpenError
	return errors.As(err, &ce)
}
