// README: Promo service validates codes against throttle, store and entity rules.
package promo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gogo/internal/docstore"
	"gogo/internal/observability"
)

type Service struct {
	store   *Store
	limiter Limiter
	log     *slog.Logger
}

func NewService(store *Store, limiter Limiter, log *slog.Logger) *Service {
	if limiter == nil {
		limiter = NewWindowLimiter(DefaultMaxAttempts, DefaultWindow)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, limiter: limiter, log: log}
}

type ApplyRequest struct {
	Code    string
	Service string
	// Subtotal is the pre-discount fare; nil skips the minimum-order rule.
	Subtotal *int64
	// Key scopes the attempt throttle, normally the session id.
	Key string
	Now time.Time
}

// Forget drops the attempt history of key when the limiter keeps one in
// process memory. Shared limiters expire their own keys.
func (s *Service) Forget(key string) {
	if f, ok := s.limiter.(interface{ Forget(string) }); ok {
		f.Forget(key)
	}
}

// Apply validates a code. The first failing rule wins, in this order: empty
// input, throttle, lookup, then the entity rules of Code.Check.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*Code, error) {
	code, err := s.apply(ctx, req)
	observability.PromoAttemptsTotal.WithLabelValues(outcome(err)).Inc()
	return code, err
}

func (s *Service) apply(ctx context.Context, req ApplyRequest) (*Code, error) {
	normalized := Normalize(req.Code)
	if normalized == "" {
		return nil, ErrInvalidInput
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	if req.Service == "" {
		req.Service = ServiceRides
	}

	wait, ok, err := s.limiter.Allow(ctx, req.Key, req.Now)
	if err != nil {
		// A broken limiter backend must not lock every passenger out.
		s.log.Error("promo limiter failed; admitting attempt", "session", req.Key, "err", err)
	} else if !ok {
		return nil, &RateLimitedError{RetryAfter: wait}
	}

	c, err := s.store.FindByCode(ctx, normalized)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, docstore.ErrUnavailable) {
			err = errors.Join(docstore.ErrUnavailable, err)
		}
		return nil, err
	}
	if err := c.Check(req.Service, req.Subtotal, req.Now); err != nil {
		s.log.Info("promo rejected", "promo", c.Code, "reason", err.Error())
		return nil, err
	}
	return c, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrLimitReached):
		return "limit_reached"
	case errors.Is(err, ErrNotApplicable):
		return "not_applicable"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	default:
		return "store_error"
	}
}
