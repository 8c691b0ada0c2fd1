// README: Ride lifecycle handlers: book, cancel and rate.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RideHandler struct {
	sessions SessionSource
}

func NewRideHandler(sessions SessionSource) *RideHandler {
	return &RideHandler{sessions: sessions}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type rateRequest struct {
	Stars  int    `json:"stars"`
	Review string `json:"review"`
}

func (h *RideHandler) Book(c *gin.Context) {
	s := session(c, h.sessions)
	id, err := s.BookRide(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride_id": id, "session": s.View()})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	// The body is optional.
	_ = c.ShouldBindJSON(&req)
	s := session(c, h.sessions)
	if err := s.CancelRide(c.Request.Context(), req.Reason); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, s.View())
}

func (h *RideHandler) Rate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "stars must be a whole number")
		return
	}
	s := session(c, h.sessions)
	if err := s.RateRide(c.Request.Context(), req.Stars, req.Review); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.View())
}
