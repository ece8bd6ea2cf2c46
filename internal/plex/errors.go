package plex

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the token's account has no server, or
	// knows no user with the given name.
	ErrNotFound = errors.New("plex: not found")

	// ErrNoLibraries is returned when no method produced a library list.
	ErrNoLibraries = errors.New("plex: no libraries found")
)

// UnavailableError is a transport failure: timeout, DNS, refused connection.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("plex %s: unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// RejectedError is a reachable API answering with a non-2xx status or a body
// that could not be understood.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("plex %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func IsUnavailable(err error) bool {
	var u *UnavailableError
	return errors.As(err, &u)
}

func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}
