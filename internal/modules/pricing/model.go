// README: Vehicle-class rate table and the fare value object.
package pricing

import (
	"sort"

	"gogo/internal/types"
)

// VehicleClass is one row of the rate table. Amounts are in whole currency units.
type VehicleClass struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	BaseFare  float64 `json:"base_fare"`
	PerKm     float64 `json:"per_km"`
	PerMinute float64 `json:"per_minute"`
	MinFare   float64 `json:"min_fare"`
	Capacity  int     `json:"capacity"`
	ETA       string  `json:"eta"`
	sortOrder int
}

// Catalog is immutable once built.
type Catalog struct {
	classes map[string]VehicleClass
}

func NewCatalog(classes []VehicleClass) *Catalog {
	c := &Catalog{classes: make(map[string]VehicleClass, len(classes))}
	for i, vc := range classes {
		vc.sortOrder = i
		c.classes[vc.ID] = vc
	}
	return c
}

// DefaultCatalog is the built-in rate table.
func DefaultCatalog() *Catalog {
	return NewCatalog([]VehicleClass{
		{ID: "motorcycle", Name: "Moto", BaseFare: 30, PerKm: 7, PerMinute: 1, MinFare: 35, Capacity: 1, ETA: "2-5 min"},
		{ID: "car", Name: "Car", BaseFare: 45, PerKm: 12, PerMinute: 2, MinFare: 60, Capacity: 4, ETA: "3-7 min"},
		{ID: "van", Name: "Van", BaseFare: 80, PerKm: 18, PerMinute: 3, MinFare: 120, Capacity: 10, ETA: "5-10 min"},
		{ID: "delivery", Name: "Delivery", BaseFare: 40, PerKm: 8, PerMinute: 1, MinFare: 49, Capacity: 0, ETA: "5-15 min"},
		{ID: "moving", Name: "Moving Service", BaseFare: 250, PerKm: 25, PerMinute: 5, MinFare: 400, Capacity: 2, ETA: "15-30 min"},
		{ID: "airport", Name: "Airport Transfer", BaseFare: 450, PerKm: 0, PerMinute: 0, MinFare: 450, Capacity: 4, ETA: "Scheduled"},
	})
}

func (c *Catalog) Get(id string) (VehicleClass, bool) {
	vc, ok := c.classes[id]
	return vc, ok
}

// List returns the classes in table order.
func (c *Catalog) List() []VehicleClass {
	out := make([]VehicleClass, 0, len(c.classes))
	for _, vc := range c.classes {
		out = append(out, vc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sortOrder < out[j].sortOrder })
	return out
}

// Fare is a priced trip. Components are kept at full precision; Subtotal and
// Total are whole units.
type Fare struct {
	Base              float64 `json:"base"`
	DistanceComponent float64 `json:"distance"`
	TimeComponent     float64 `json:"time"`
	// SurgeAmount is zero when surge added nothing.
	SurgeAmount int64 `json:"surge,omitempty"`
	// DiscountAmount is zero when no promo applies.
	DiscountAmount float64 `json:"discount,omitempty"`
	// Subtotal is the surged fare before any discount.
	Subtotal int64 `json:"subtotal"`
	Total    int64 `json:"total"`

	Class           VehicleClass `json:"-"`
	DistanceMeters  float64      `json:"distance_meters"`
	DurationSeconds float64      `json:"duration_seconds"`
	SurgeMultiplier float64      `json:"surge_multiplier"`
	PromoCode       string       `json:"promo_code,omitempty"`
}

func (f Fare) Money(currency string) types.Money {
	return types.Money{Amount: f.Total, Currency: currency}
}
