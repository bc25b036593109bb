/*
errors.go - Centralized error types for the marketplace core

PURPOSE:
  All error kinds in one place so callers can branch with errors.Is and the
  presentation layer can show a specific message per kind.

ERROR CATEGORIES:
  1. Validation errors - invalid input, never retried
  2. Ownership/lookup errors - NotOwner, NotFound, UnknownTrack, UnknownArtist
  3. Storage errors - persistence provider failures (StorageError)

RETRIES:
  The core never retries. RecordSupport is not idempotent, so retrying it
  without caller-supplied deduplication could charge a fan twice.

SEE ALSO:
  - api/errors.go: HTTP status mapping
*/
package market

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrUnknownTrack         = errors.New("unknown track")
	ErrSelfSupportForbidden = errors.New("self support forbidden")
	ErrEmptyName            = errors.New("empty name")
	ErrDuplicateTrackIDs    = errors.New("duplicate track ids")
	ErrNotOwner             = errors.New("not owner")
	ErrNotFound             = errors.New("not found")

	// ErrUnknownArtist is returned when an artist has no catalog tracks.
	ErrUnknownArtist = errors.New("unknown artist")

	// ErrMissingIdentity is returned when the acting account id is blank.
	ErrMissingIdentity = errors.New("missing identity")

	// ErrArtistMismatch is returned when a support names an artist that does
	// not own the track.
	ErrArtistMismatch = errors.New("artist does not own track")

	// ErrNotPermutation is returned by Reorder when the new order is not a
	// permutation of the playlist's current tracks.
	ErrNotPermutation = errors.New("order is not a permutation of playlist tracks")

	// ErrInvalidTrack is returned when uploaded track metadata is malformed.
	ErrInvalidTrack = errors.New("invalid track")

	// ErrStorageUnavailable marks persistence provider failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StorageError wraps a driver failure. errors.Is(err, ErrStorageUnavailable)
// holds for it, and Unwrap exposes the underlying driver error.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// ValidationError carries the offending field for a validation failure.
type ValidationError struct {
	Field string
	Kind  error
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(field string, kind error, msg string) error {
	return &ValidationError{Field: field, Kind: kind, Msg: msg}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSelfSupportForbidden) ||
		errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrDuplicateTrackIDs) ||
		errors.Is(err, ErrNotPermutation) ||
		errors.Is(err, ErrInvalidTrack) ||
		errors.Is(err, ErrArtistMismatch) ||
		errors.Is(err, ErrMissingIdentity)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownTrack) ||
		errors.Is(err, ErrUnknownArtist)
}

// UserMessage returns the message the presentation layer shows for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "amount must be positive"
	case errors.Is(err, ErrSelfSupportForbidden):
		return "you cannot support your own track"
	case errors.Is(err, ErrUnknownTrack):
		return "track not found"
	case errors.Is(err, ErrUnknownArtist):
		return "artist not found"
	case errors.Is(err, ErrArtistMismatch):
		return "this track belongs to a different artist"
	case errors.Is(err, ErrEmptyName):
		return "playlist name cannot be empty"
	case errors.Is(err, ErrDuplicateTrackIDs):
		return "a playlist cannot contain the same track twice"
	case errors.Is(err, ErrNotPermutation):
		return "new order must contain exactly the playlist's current tracks"
	case errors.Is(err, ErrNotOwner):
		return "you do not own this resource"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrInvalidTrack):
		return "track details are invalid"
	case errors.Is(err, ErrMissingIdentity):
		return "you must be signed in"
	case errors.Is(err, ErrStorageUnavailable):
		return "service temporarily unavailable, please try again"
	default:
		return "something went wrong"
	}
}
