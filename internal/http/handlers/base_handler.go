// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gogo/internal/docstore"
	"gogo/internal/http/middleware"
	"gogo/internal/modules/promo"
	"gogo/internal/modules/ride"
)

type errorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// SessionSource resolves the caller's ride session.
type SessionSource interface {
	Session(uid string) *ride.Synchronizer
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func session(c *gin.Context, sessions SessionSource) *ride.Synchronizer {
	return sessions.Session(middleware.CallerUID(c))
}

// writeRideError maps session and promo errors to a status code. Messages of
// known errors are safe to show the passenger.
func writeRideError(c *gin.Context, err error) {
	var limited *promo.RateLimitedError
	switch {
	case errors.As(err, &limited):
		secs := limited.RetrySeconds()
		c.Header("Retry-After", strconv.Itoa(secs))
		writeJSON(c, http.StatusTooManyRequests, errorResponse{Error: promo.ErrRateLimited.Error(), RetryAfterSeconds: secs})
	case errors.Is(err, ride.ErrUnauthenticated):
		writeError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ride.ErrIncompleteBooking),
		errors.Is(err, ride.ErrInvalidCoordinates),
		errors.Is(err, ride.ErrInvalidRating),
		errors.Is(err, ride.ErrMissingLocation),
		errors.Is(err, ride.ErrInvalidPayment),
		errors.Is(err, ride.ErrInvalidSchedule),
		errors.Is(err, ride.ErrUnknownVehicle),
		errors.Is(err, promo.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNoActiveRide), errors.Is(err, ride.ErrRideNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrRideActive),
		errors.Is(err, ride.ErrRideFinished),
		errors.Is(err, ride.ErrSessionChanged),
		errors.Is(err, ride.ErrClosed):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, promo.ErrNotFound),
		errors.Is(err, promo.ErrInactive),
		errors.Is(err, promo.ErrExpired),
		errors.Is(err, promo.ErrLimitReached),
		errors.Is(err, promo.ErrNotApplicable),
		errors.Is(err, promo.ErrBelowMinimum):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, docstore.ErrUnavailable):
		writeError(c, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
