// README: Driver document as pushed by the store while a ride is being tracked.
package location

import (
	"time"

	"gogo/internal/types"
)

// Vehicle describes the car the driver is using for the trip.
type Vehicle struct {
	Model       string `json:"model,omitempty" mapstructure:"model"`
	Color       string `json:"color,omitempty" mapstructure:"color"`
	PlateNumber string `json:"plate_number,omitempty" mapstructure:"plateNumber"`
}

// DriverRecord mirrors a document in the drivers collection.
type DriverRecord struct {
	ID        types.ID     `json:"id" mapstructure:"-"`
	Name      string       `json:"name" mapstructure:"name"`
	Phone     string       `json:"phone,omitempty" mapstructure:"phone"`
	PhotoURL  string       `json:"photo_url,omitempty" mapstructure:"photoUrl"`
	Rating    float64      `json:"rating,omitempty" mapstructure:"rating"`
	Vehicle   Vehicle      `json:"vehicle" mapstructure:"vehicle"`
	Location  *types.Point `json:"location,omitempty" mapstructure:"location"`
	Heading   float64      `json:"heading,omitempty" mapstructure:"heading"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty" mapstructure:"updatedAt"`
}

// DistanceTo reports how far the driver is from p, or false when the driver
// has not published a position yet.
func (d DriverRecord) DistanceTo(p types.Point) (float64, bool) {
	if d.Location == nil {
		return 0, false
	}
	return HaversineMeters(*d.Location, p), true
}
