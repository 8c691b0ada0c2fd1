// README: Discount computation per promo kind.
package promo

import (
	"log/slog"

	"gogo/internal/observability"
)

// ComputeDiscount returns the amount a promo takes off subtotal. The result is
// not clamped; the fare engine bounds it by the subtotal.
func ComputeDiscount(c *Code, subtotal float64) float64 {
	if c == nil {
		return 0
	}
	switch c.Kind {
	case KindPercentage:
		d := subtotal * c.Value / 100
		if c.MaxDiscount != nil && d > *c.MaxDiscount {
			d = *c.MaxDiscount
		}
		return d
	case KindFixed:
		return c.Value
	case KindFreeDelivery:
		// Delivery-fee waivers apply to order subtotals, never to ride fares.
		return 0
	default:
		observability.PromoUnknownKindTotal.Inc()
		slog.Default().Warn("promo has unknown discount kind; applying no discount",
			"promo", c.Code, "kind", string(c.Kind))
		return 0
	}
}
