package slide

import (
	"errors"
	"fmt"
)

// ErrResourceNotFound is returned when an expected local pyramid file is missing.
// It is a configuration error and must not be retried.
var ErrResourceNotFound = errors.New("resource not found")

// NetworkError describes a failed range request, either a transport failure
// (Status == 0) or an unexpected HTTP status.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("range request to %s failed: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("range request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TileFetchError is returned when a remote tile could not be obtained after all
// attempts or its payload could not be decoded.  It is never fatal to a sampling
// session.
type TileFetchError struct {
	ID       SlideID
	X, Y     int
	Level    int
	Attempts int
	Err      error
}

func (e *TileFetchError) Error() string {
	return fmt.Sprintf("tile [%s, %d, %d, level %d] unavailable after %d attempt(s): %v",
		e.ID, e.X, e.Y, e.Level, e.Attempts, e.Err)
}

func (e *TileFetchError) Unwrap() error {
	return e.Err
}
