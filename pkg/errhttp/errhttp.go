// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/ghuser/campusreserve/pkg/httpx"
	"github.com/ghuser/campusreserve/services/reservation/domain"
)

// BusyRetryAfter is the Retry-After value, in seconds, sent with 503 Busy.
const BusyRetryAfter = "1"

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Unrecognized errors and 5xx responses carry a generic message only.
func WriteError(w http.ResponseWriter, err error) {
	status := mapErrorToStatus(err)
	msg := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", BusyRetryAfter)
		msg = domain.ErrBusy.Error()
	case status >= http.StatusInternalServerError:
		msg = http.StatusText(status)
	}
	httpx.JSONError(w, status, msg)
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden // 403
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrAlreadyReserved),
		errors.Is(err, domain.ErrAlreadyClosed),
		errors.Is(err, domain.ErrNotCancellable):
		return http.StatusConflict // 409
	case errors.Is(err, domain.ErrInvalidDuration):
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
