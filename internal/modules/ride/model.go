// README: Ride status lifecycle, the stored ride record and the session view model.
package ride

import (
	"time"

	"gogo/internal/modules/location"
	"gogo/internal/modules/pricing"
	"gogo/internal/modules/promo"
	"gogo/internal/types"
)

type Status string

const (
	StatusNone       Status = ""
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusAccepted   Status = "accepted"
	StatusArriving   Status = "arriving"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// AllowedTransitions is the lifecycle as seen by the passenger. The store is
// authoritative, so a push outside this table is applied anyway and logged.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusPending, StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusArriving, StatusArrived, StatusInProgress, StatusCancelled},
	StatusArriving:   {StatusArrived, StatusInProgress, StatusCancelled},
	StatusArrived:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Collections used by the synchronizer.
const (
	RidesCollection   = "rides"
	DriversCollection = "drivers"
)

// Record is the subset of a ride document the passenger side reacts to.
type Record struct {
	ID                 string `mapstructure:"-"`
	PassengerID        string `mapstructure:"passengerId"`
	DriverID           string `mapstructure:"driverId"`
	Status             Status `mapstructure:"status"`
	VehicleType        string `mapstructure:"vehicleType"`
	CancelledBy        string `mapstructure:"cancelledBy"`
	CancellationReason string `mapstructure:"cancellationReason"`
}

// Payment methods a passenger can pick. Only the label is recorded; capture
// happens outside the ride core.
const (
	PaymentCash  = "cash"
	PaymentGCash = "gcash"
	PaymentMaya  = "maya"
	PaymentCard  = "card"
)

var paymentMethods = map[string]bool{
	PaymentCash: true, PaymentGCash: true, PaymentMaya: true, PaymentCard: true,
}

// Session is the passenger's view of one booking flow. Values handed out by
// View and Watch are copies; pointer fields are replaced, never mutated.
type Session struct {
	Pickup        *types.Place  `json:"pickup,omitempty"`
	Dropoff       *types.Place  `json:"dropoff,omitempty"`
	VehicleClass  string        `json:"vehicle_class"`
	PaymentMethod string        `json:"payment_method"`
	ScheduledFor  *time.Time    `json:"scheduled_for,omitempty"`
	Route         *types.Route  `json:"route,omitempty"`
	Fare          *pricing.Fare `json:"fare,omitempty"`
	Promo         *promo.Code   `json:"promo,omitempty"`
	Surge         float64       `json:"surge_multiplier"`

	ActiveRideID   string                 `json:"active_ride_id,omitempty"`
	Status         Status                 `json:"status,omitempty"`
	DriverID       string                 `json:"driver_id,omitempty"`
	Driver         *location.DriverRecord `json:"driver,omitempty"`
	DriverLocation *types.Point           `json:"driver_location,omitempty"`
	// DriverDistanceMeters is the straight-line gap between the driver and
	// the pickup; zero until the driver publishes a position.
	DriverDistanceMeters float64 `json:"driver_distance_meters,omitempty"`
	IsBooking            bool    `json:"is_booking"`
	IsFindingDriver      bool    `json:"is_finding_driver"`
	// RatableRideID survives the automatic reset after completion so the
	// passenger can still rate the trip.
	RatableRideID string `json:"ratable_ride_id,omitempty"`
	LastError     string `json:"last_error,omitempty"`

	// Version increases on every change; watchers drop stale deliveries.
	Version uint64 `json:"version"`
}
