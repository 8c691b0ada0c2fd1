// README: Fare engine: rate table, surge and promo discount combined into a Fare.
package pricing

import (
	"errors"
	"math"
	"time"

	"gogo/internal/modules/promo"
	"gogo/internal/observability"
)

var ErrUnknownVehicle = errors.New("unknown vehicle class")

// ComputeFare prices a trip. Only Subtotal, SurgeAmount and Total are
// rounded; everything feeding them stays at full precision. The discount is
// always derived from the surged subtotal of this call, so swapping promos
// never compounds.
func ComputeFare(vc VehicleClass, distanceMeters, durationSeconds, surge float64, code *promo.Code) Fare {
	distanceMeters = math.Max(distanceMeters, 0)
	durationSeconds = math.Max(durationSeconds, 0)
	if surge <= 0 {
		surge = 1
	}

	f := Fare{
		Base:              vc.BaseFare,
		DistanceComponent: distanceMeters / 1000 * vc.PerKm,
		TimeComponent:     durationSeconds / 60 * vc.PerMinute,
		Class:             vc,
		DistanceMeters:    distanceMeters,
		DurationSeconds:   durationSeconds,
		SurgeMultiplier:   surge,
	}

	raw := math.Max(f.Base+f.DistanceComponent+f.TimeComponent, vc.MinFare)
	f.Subtotal = int64(math.Round(raw * surge))
	if extra := f.Subtotal - int64(math.Round(raw)); extra > 0 {
		f.SurgeAmount = extra
	}

	discount := promo.ComputeDiscount(code, float64(f.Subtotal))
	discount = math.Min(math.Max(discount, 0), float64(f.Subtotal))
	f.DiscountAmount = discount
	if code != nil && discount > 0 {
		f.PromoCode = code.Code
	}
	f.Total = int64(math.Round(float64(f.Subtotal) - discount))
	if f.Total < 0 {
		f.Total = 0
	}
	return f
}

// RemovePromo reprices f without any discount; Total returns to Subtotal.
func RemovePromo(f Fare) Fare {
	return ComputeFare(f.Class, f.DistanceMeters, f.DurationSeconds, f.SurgeMultiplier, nil)
}

// WithPromo reprices f from its own inputs with code attached.
func WithPromo(f Fare, code *promo.Code) Fare {
	return ComputeFare(f.Class, f.DistanceMeters, f.DurationSeconds, f.SurgeMultiplier, code)
}

type Service struct {
	catalog *Catalog
	surge   SurgeConfig
}

func NewService(catalog *Catalog, surge SurgeConfig) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{catalog: catalog, surge: surge}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// SurgeAt evaluates the multiplier for now.
func (s *Service) SurgeAt(now time.Time) float64 {
	return s.surge.Multiplier(now)
}

type QuoteRequest struct {
	VehicleClass    string
	DistanceMeters  float64
	DurationSeconds float64
	Surge           float64
	Promo           *promo.Code
}

// Quote resolves the vehicle class and prices the trip.
func (s *Service) Quote(req QuoteRequest) (Fare, error) {
	vc, ok := s.catalog.Get(req.VehicleClass)
	if !ok {
		return Fare{}, ErrUnknownVehicle
	}
	observability.FareQuotesTotal.WithLabelValues(vc.ID).Inc()
	return ComputeFare(vc, req.DistanceMeters, req.DurationSeconds, req.Surge, req.Promo), nil
}
