// README: Session editing handlers: endpoints, vehicle, payment, schedule, fare and promo.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gogo/internal/modules/pricing"
	"gogo/internal/types"
)

type SessionHandler struct {
	sessions SessionSource
	pricing  *pricing.Service
}

func NewSessionHandler(sessions SessionSource, pricingService *pricing.Service) *SessionHandler {
	return &SessionHandler{sessions: sessions, pricing: pricingService}
}

type placeRequest struct {
	Lat     *float64 `json:"lat" binding:"required"`
	Lng     *float64 `json:"lng" binding:"required"`
	Address string   `json:"address"`
}

func (r placeRequest) place() types.Place {
	return types.Place{Point: types.Point{Lat: *r.Lat, Lng: *r.Lng}, Address: r.Address}
}

type vehicleRequest struct {
	VehicleClass string `json:"vehicle_class" binding:"required"`
}

type paymentRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required"`
}

// scheduleRequest clears the schedule when ScheduledFor is omitted.
type scheduleRequest struct {
	ScheduledFor *time.Time `json:"scheduled_for"`
}

type promoRequest struct {
	Code string `json:"code"`
}

type vehicleQuote struct {
	pricing.VehicleClass
	Fare *pricing.Fare `json:"fare,omitempty"`
}

// Vehicles lists the catalogue; when the session has a route each class
// carries its fare at the current surge, discounted only where the session
// promo holds for that class.
func (h *SessionHandler) Vehicles(c *gin.Context) {
	s := session(c, h.sessions)
	view := s.View()
	classes := h.pricing.Catalog().List()
	out := make([]vehicleQuote, 0, len(classes))
	for _, vc := range classes {
		q := vehicleQuote{VehicleClass: vc}
		if view.Route != nil {
			if fare, err := s.QuoteClass(vc.ID); err == nil {
				q.Fare = &fare
			}
		}
		out = append(out, q)
	}
	writeJSON(c, http.StatusOK, gin.H{"vehicles": out, "surge_multiplier": view.Surge})
}

func (h *SessionHandler) View(c *gin.Context) {
	writeJSON(c, http.StatusOK, session(c, h.sessions).View())
}

func (h *SessionHandler) SetPickup(c *gin.Context) {
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	s := session(c, h.sessions)
	if err := s.SetPickup(req.place()); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.View())
}

func (h *SessionHandler) SetDropoff(c *gin.Context) {
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	s := session(c, h.sessions)
	if err := s.SetDropoff(req.place()); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.View())
}

func (h *SessionHandler) SelectVehicle(c *gin.Context) {
	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "vehicle_class is required")
		return
	}
	s := session(c, h.sessions)
	if err := s.SelectVehicle(req.VehicleClass); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.View())
}

func (h *SessionHandler) SetPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "payment_method is required")
		return
	}
	s := session(c, h.sessions)
	if err := s.SetPaymentMethod(req.PaymentMethod); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.View())
}

func (h *SessionHandler) Schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "scheduled_for must be an RFC 3339 time")
		return
	}
	s := session(c, h.sessions)
	if err := s.ScheduleFor(req.ScheduledFor); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.View())
}

func (h *SessionHandler) CalculateFare(c *gin.Context) {
	s := session(c, h.sessions)
	fare, err := s.CalculateFare(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"fare": fare, "session": s.View()})
}

func (h *SessionHandler) ApplyPromo(c *gin.Context) {
	var req promoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	s := session(c, h.sessions)
	code, err := s.ApplyPromoCode(c.Request.Context(), req.Code)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"promo": code, "session": s.View()})
}

func (h *SessionHandler) RemovePromo(c *gin.Context) {
	s := session(c, h.sessions)
	if err := s.RemovePromoCode(); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.View())
}

// Reset clears the session back to an empty booking.
func (h *SessionHandler) Reset(c *gin.Context) {
	s := session(c, h.sessions)
	s.ResetRide()
	writeJSON(c, http.StatusOK, s.View())
}
