// README: Identifiers and geographic value objects shared by the ride modules.
package types

type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" mapstructure:"lat"`
	Lng float64 `json:"lng" mapstructure:"lng"`
}

// Place is a point picked by the passenger, with the address shown to them.
type Place struct {
	Point   `mapstructure:",squash"`
	Address string `json:"address,omitempty" mapstructure:"address"`
}

// Route is the travel estimate between pickup and dropoff.
type Route struct {
	DistanceMeters  float64 `json:"distance_meters" mapstructure:"distance"`
	DurationSeconds float64 `json:"duration_seconds" mapstructure:"duration"`
	Polyline        string  `json:"polyline,omitempty" mapstructure:"polyline"`
}
