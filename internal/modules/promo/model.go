// README: Promo code entity and rejection reasons.
package promo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixed        Kind = "fixed"
	KindFreeDelivery Kind = "free_delivery"
)

// ServiceRides is the applicable-service tag for ride fares.
const ServiceRides = "rides"

// Code mirrors a document in the promoCodes collection. Codes are stored
// uppercase and matched case-insensitively.
type Code struct {
	ID                 string    `json:"id" mapstructure:"-"`
	Code               string    `json:"code" mapstructure:"code"`
	Description        string    `json:"description,omitempty" mapstructure:"description"`
	Kind               Kind      `json:"type" mapstructure:"type"`
	Value              float64   `json:"value" mapstructure:"value"`
	MaxDiscount        *float64  `json:"max_discount,omitempty" mapstructure:"maxDiscount"`
	MinOrder           *float64  `json:"min_order,omitempty" mapstructure:"minOrder"`
	UsageLimit         *int      `json:"usage_limit,omitempty" mapstructure:"usageLimit"`
	UsedCount          int       `json:"used_count" mapstructure:"usedCount"`
	IsActive           bool      `json:"is_active" mapstructure:"isActive"`
	ValidFrom          time.Time `json:"valid_from" mapstructure:"validFrom"`
	ValidTo            time.Time `json:"valid_to" mapstructure:"validTo"`
	ApplicableServices []string  `json:"applicable_services" mapstructure:"applicableServices"`
}

var (
	ErrInvalidInput  = errors.New("promo code is required")
	ErrRateLimited   = errors.New("too many promo attempts")
	ErrNotFound      = errors.New("promo code not found")
	ErrInactive      = errors.New("promo code is no longer active")
	ErrExpired       = errors.New("promo code is not valid at this time")
	ErrLimitReached  = errors.New("promo code usage limit reached")
	ErrNotApplicable = errors.New("promo code does not apply to this service")
	ErrBelowMinimum  = errors.New("order is below the promo minimum")
)

// RateLimitedError carries the wait before the next attempt is accepted.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s, retry in %ds", ErrRateLimited, e.RetrySeconds())
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// RetrySeconds rounds the wait up so a client never retries early.
func (e *RateLimitedError) RetrySeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Normalize trims and uppercases a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check applies the entity-level rules in order; the first failure wins.
// subtotal is the pre-discount fare, nil when no fare has been computed yet.
func (c *Code) Check(service string, subtotal *int64, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
		return ErrExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrLimitReached
	}
	if !c.appliesTo(service) {
		return ErrNotApplicable
	}
	if c.MinOrder != nil && subtotal != nil && float64(*subtotal) < *c.MinOrder {
		return ErrBelowMinimum
	}
	return nil
}

func (c *Code) appliesTo(service string) bool {
	for _, s := range c.ApplicableServices {
		if strings.EqualFold(s, service) {
			return true
		}
	}
	return false
}
