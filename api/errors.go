package api

import (
	"errors"
	"net/http"

	"github.com/warp/fanfund/market"
)

var (
	errForbidden    = errors.New("forbidden")
	errArtistOnly   = errors.New("only artists can do this")
	errInvalidInput = errors.New("invalid input")
)

// statusFor maps a core error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrMissingIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrSelfSupportForbidden),
		errors.Is(err, errForbidden),
		errors.Is(err, errArtistOnly):
		return http.StatusForbidden
	case market.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, market.ErrDuplicateTrackIDs):
		return http.StatusConflict
	case market.IsClientError(err), errors.Is(err, errInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage extends market.UserMessage with API-only errors.
func userMessage(err error) string {
	switch {
	case errors.Is(err, errArtistOnly):
		return errArtistOnly.Error()
	case errors.Is(err, errForbidden):
		return "you cannot access this resource"
	case errors.Is(err, errInvalidInput):
		return err.Error()
	default:
		return market.UserMessage(err)
	}
}
