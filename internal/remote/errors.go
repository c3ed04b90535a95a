package remote

import (
	"errors"
	"fmt"
)

// Errors returned by adapters.
//
// Check them with errors.Is:
//
//	if remote.IsRetryable(err) {
//	    // try again on the next scheduled run
//	}
var (
	// ErrUnavailable is returned when the remote cannot be reached or
	// answers with a non-success status.
	ErrUnavailable = errors.New("remote service unavailable")

	// ErrMissingProperty is returned when a remote entry lacks a property
	// the record cannot exist without.
	ErrMissingProperty = errors.New("missing required property")

	// ErrMalformed is returned when a remote response body cannot be decoded.
	ErrMalformed = errors.New("malformed remote response")
)

// StatusError is a non-success HTTP answer from the remote.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, body)
}

// Unwrap lets errors.Is(err, ErrUnavailable) match any status error.
func (e *StatusError) Unwrap() error {
	return ErrUnavailable
}

// IsRetryable returns true if the error is likely to succeed on a later run.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable)
}

// IsBadRequest returns true if the error comes from invalid remote data
// rather than from the transport.
func IsBadRequest(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrMissingProperty) || errors.Is(err, ErrMalformed)
}
