package domain

import (
	"errors"
	"fmt"
)

// Request failure classes. Gateway errors unwrap to one of these so callers
// can use errors.Is instead of inspecting status codes.
var (
	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("transport failure")

	// ErrUnauthorized indicates missing, invalid or expired credentials (HTTP 401/403).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates the backend rejected the request (other HTTP 4xx).
	ErrValidation = errors.New("validation failed")

	// ErrServer indicates an unexpected backend failure (HTTP 5xx).
	ErrServer = errors.New("server error")
)

var (
	// ErrNoCredential is returned by operations that need a logged-in session.
	ErrNoCredential = fmt.Errorf("no credential: %w", ErrUnauthorized)

	// ErrLoadInProgress is returned when a pull is already in flight for a feed.
	ErrLoadInProgress = errors.New("load already in progress")

	// ErrFeedClosed is returned by operations on a closed feed.
	ErrFeedClosed = errors.New("feed closed")

	// ErrUnsupported is returned by sources that do not implement an operation,
	// e.g. creating a notification.
	ErrUnsupported = errors.New("operation not supported")

	// ErrNotFound is returned when an item id is not in a feed.
	ErrNotFound = errors.New("item not found")

	// ErrInvalidReaction indicates an unknown reaction kind.
	ErrInvalidReaction = errors.New("invalid reaction kind")
)

// IsAuthError returns true if re-authenticating might help.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
