package backend

import (
	"errors"
	"fmt"
)

// ErrNotDone is returned by [Pending.Result] while the exchange is in flight.
var ErrNotDone = errors.New("backend: turn still in flight")

// NetworkError reports a transport failure: connection refused, timeout, TLS
// failure, or an open circuit breaker.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: network error talking to %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError reports a response that arrived but cannot be used: a
// non-2xx status, a body that is not a JSON object of the expected shape, or
// reply audio that is not valid base64.
type ProtocolError struct {
	// StatusCode is the HTTP status, or 0 if the status was fine.
	StatusCode int
	Reason     string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := "backend: protocol error: " + e.Reason
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TripsBreaker reports whether err should count against the circuit breaker.
// Client errors (4xx) and malformed bodies point at this client, not at an
// unhealthy backend.
func TripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.StatusCode >= 500
	}
	return true
}
