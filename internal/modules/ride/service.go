// README: Ride session synchronizer: local booking state merged with live ride and driver pushes.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gogo/internal/docstore"
	"gogo/internal/modules/location"
	"gogo/internal/modules/pricing"
	"gogo/internal/modules/promo"
	"gogo/internal/observability"
	"gogo/internal/types"
)

var (
	ErrUnauthenticated    = errors.New("sign in to book a ride")
	ErrIncompleteBooking  = errors.New("pickup, dropoff and fare are required")
	ErrInvalidCoordinates = errors.New("pickup or dropoff coordinates are invalid")
	ErrNoActiveRide       = errors.New("no active ride")
	ErrInvalidRating      = errors.New("rating must be a whole number from 1 to 5")
	ErrRideNotFound       = errors.New("ride not found")
	ErrRideFinished       = errors.New("ride already completed")
	ErrRideActive         = errors.New("a ride is already booked in this session")
	ErrMissingLocation    = errors.New("pickup and dropoff are required")
	ErrInvalidPayment     = errors.New("unsupported payment method")
	ErrInvalidSchedule    = errors.New("scheduled time must be in the future")
	ErrSessionChanged     = errors.New("session changed while the request was in flight")
	ErrClosed             = errors.New("session closed")
	ErrUnknownVehicle     = pricing.ErrUnknownVehicle
)

// Messages surfaced through Session.LastError.
const (
	msgBookFailed   = "could not book the ride, please try again"
	msgCancelFailed = "could not cancel the ride, please try again"
	msgRateFailed   = "could not save your rating, please try again"
	msgPromoOffline = "promo codes are unavailable right now, please try again"
	msgLiveUpdates  = "live ride updates were interrupted"
	msgRideNotFound = "ride not found"
	msgPromoDropped = "promo removed: "
)

const (
	anonymousUserID    = "anonymous"
	cancelledByRider   = "passenger"
	reasonSessionReset = "session reset"
)

// Identity exposes the signed-in user; ok is false for anonymous callers.
type Identity interface {
	UserID() (string, bool)
}

// StaticIdentity is an Identity fixed at construction, as used by the HTTP
// registry where each session belongs to one verified user.
type StaticIdentity string

func (id StaticIdentity) UserID() (string, bool) { return string(id), id != "" }

// Router returns a road route between two points.
type Router interface {
	Route(ctx context.Context, from, to types.Point) (types.Route, error)
}

type Config struct {
	// ResetDelay is how long a finished ride stays visible before the
	// session clears itself.
	ResetDelay      time.Duration
	AverageSpeedKmh float64
	// AllowAnonymous books rides without a signed-in user (test mode).
	AllowAnonymous bool
	StoreTimeout   time.Duration
	Currency       string
	DefaultVehicle string
	PromoService   string
	// IdleTTL is how long a registry session may go unused before it is
	// evicted.
	IdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		ResetDelay:      5 * time.Second,
		AverageSpeedKmh: 30,
		StoreTimeout:    10 * time.Second,
		Currency:        "PHP",
		DefaultVehicle:  "motorcycle",
		PromoService:    promo.ServiceRides,
		IdleTTL:         30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ResetDelay <= 0 {
		c.ResetDelay = d.ResetDelay
	}
	if c.AverageSpeedKmh <= 0 {
		c.AverageSpeedKmh = d.AverageSpeedKmh
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	if c.DefaultVehicle == "" {
		c.DefaultVehicle = d.DefaultVehicle
	}
	if c.PromoService == "" {
		c.PromoService = d.PromoService
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	return c
}

type Deps struct {
	Store    docstore.Store
	Identity Identity
	// Router is optional; without it fares use the straight-line estimate.
	Router  Router
	Pricing *pricing.Service
	Promos  *promo.Service
	Clock   func() time.Time
	Logger  *slog.Logger
	NewID   func() (string, error)
}

// Synchronizer owns one passenger's ride session. Store pushes arrive on
// store goroutines; the mutex guards the session and is never held across a
// store call, so every continuation re-reads state after relocking. Callbacks
// carry the generation they were opened under and do nothing once it moves.
type Synchronizer struct {
	key  string
	deps Deps
	cfg  Config
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	sess            Session
	gen             uint64
	editGen         uint64
	rideUnsub       docstore.Unsubscribe
	driverUnsub     docstore.Unsubscribe
	driverSubID     string
	driverGen       uint64
	resetTimer      *time.Timer
	cancelRequested bool
	closed          bool
	watchers        map[uint64]func(Session)
	nextWatcher     uint64
}

// NewSynchronizer builds a session keyed by key (used for the promo throttle
// and logs). deps.Store is required.
func NewSynchronizer(key string, deps Deps, cfg Config) *Synchronizer {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = NewRideID
	}
	if deps.Pricing == nil {
		deps.Pricing = pricing.NewService(pricing.DefaultCatalog(), pricing.DefaultSurgeConfig())
	}
	if deps.Promos == nil {
		deps.Promos = promo.NewService(promo.NewStore(deps.Store), nil, deps.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		key:      key,
		deps:     deps,
		cfg:      cfg,
		log:      deps.Logger.With("session", key),
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[uint64]func(Session)),
	}
	s.sess = s.emptySession()
	s.sess.Surge = deps.Pricing.SurgeAt(deps.Clock())
	return s
}

// NewRideID returns 32 hex characters from a random (v4) UUID.
func NewRideID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

func (s *Synchronizer) emptySession() Session {
	return Session{VehicleClass: s.cfg.DefaultVehicle, PaymentMethod: PaymentCash}
}

func (s *Synchronizer) now() time.Time { return s.deps.Clock() }

func (s *Synchronizer) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// unlockAndNotify bumps the version, releases the lock and hands the new view
// to every watcher.
func (s *Synchronizer) unlockAndNotify() {
	s.sess.Version++
	view := s.sess
	fns := make([]func(Session), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(view)
	}
}

func (s *Synchronizer) editableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.sess.ActiveRideID != "" || s.sess.IsBooking {
		return ErrRideActive
	}
	return nil
}

// invalidateFareLocked drops route and fare after an endpoint changes.
func (s *Synchronizer) invalidateFareLocked() {
	s.sess.Route = nil
	s.sess.Fare = nil
	s.editGen++
}

func (s *Synchronizer) SetPickup(p types.Place) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sess.Pickup = &p
	s.invalidateFareLocked()
	s.unlockAndNotify()
	return nil
}

func (s *Synchronizer) SetDropoff(p types.Place) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sess.Dropoff = &p
	s.invalidateFareLocked()
	s.unlockAndNotify()
	return nil
}

// SelectVehicle switches class and reprices the known route, if any.
func (s *Synchronizer) SelectVehicle(id string) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.deps.Pricing.Catalog().Get(id); !ok {
		s.mu.Unlock()
		return ErrUnknownVehicle
	}
	s.sess.VehicleClass = id
	if s.sess.Route != nil {
		fare, err := s.priceLocked(*s.sess.Route)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.sess.Fare = &fare
	}
	s.unlockAndNotify()
	return nil
}

func (s *Synchronizer) SetPaymentMethod(method string) error {
	method = strings.ToLower(strings.TrimSpace(method))
	if !paymentMethods[method] {
		return ErrInvalidPayment
	}
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sess.PaymentMethod = method
	s.unlockAndNotify()
	return nil
}

// ScheduleFor books for later when at is set; nil books immediately.
func (s *Synchronizer) ScheduleFor(at *time.Time) error {
	if at != nil && !at.After(s.now()) {
		return ErrInvalidSchedule
	}
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if at != nil {
		t := *at
		s.sess.ScheduledFor = &t
	} else {
		s.sess.ScheduledFor = nil
	}
	s.unlockAndNotify()
	return nil
}

// CalculateFare routes pickup to dropoff and prices the selected class at the
// current surge. The router is consulted without the lock; if an endpoint
// moved meanwhile the result is discarded.
func (s *Synchronizer) CalculateFare(ctx context.Context) (pricing.Fare, error) {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return pricing.Fare{}, err
	}
	if s.sess.Pickup == nil || s.sess.Dropoff == nil {
		s.mu.Unlock()
		return pricing.Fare{}, ErrMissingLocation
	}
	from, to := s.sess.Pickup.Point, s.sess.Dropoff.Point
	gen, edit := s.gen, s.editGen
	s.mu.Unlock()

	route := s.route(ctx, from, to)
	surge := s.deps.Pricing.SurgeAt(s.now())

	s.mu.Lock()
	if s.closed || gen != s.gen || edit != s.editGen {
		s.mu.Unlock()
		return pricing.Fare{}, ErrSessionChanged
	}
	s.sess.Surge = surge
	fare, err := s.priceLocked(route)
	if err != nil {
		s.mu.Unlock()
		return pricing.Fare{}, err
	}
	s.sess.Route = &route
	s.sess.Fare = &fare
	s.unlockAndNotify()
	return fare, nil
}

func (s *Synchronizer) route(ctx context.Context, from, to types.Point) types.Route {
	if s.deps.Router != nil {
		rctx, cancel := s.storeCtx(ctx)
		r, err := s.deps.Router.Route(rctx, from, to)
		cancel()
		if err == nil && r.DistanceMeters > 0 {
			return r
		}
		s.log.Warn("routing failed; using straight-line estimate", "err", err)
	}
	observability.RouteFallbacksTotal.Inc()
	return location.EstimateRoute(from, to, s.cfg.AverageSpeedKmh)
}

// priceLocked prices route for the selected class with the attached promo.
// A promo whose minimum the new subtotal no longer meets is dropped.
func (s *Synchronizer) priceLocked(route types.Route) (pricing.Fare, error) {
	fare, err := s.deps.Pricing.Quote(pricing.QuoteRequest{
		VehicleClass:    s.sess.VehicleClass,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: route.DurationSeconds,
		Surge:           s.sess.Surge,
		Promo:           s.sess.Promo,
	})
	if err != nil {
		return pricing.Fare{}, err
	}
	if p := s.sess.Promo; p != nil {
		if err := p.Check(s.cfg.PromoService, &fare.Subtotal, s.now()); err != nil {
			s.sess.Promo = nil
			s.sess.LastError = msgPromoDropped + err.Error()
			fare = pricing.RemovePromo(fare)
		}
	}
	return fare, nil
}

// QuoteClass prices the session's route for another vehicle class. The
// session promo is included only when it holds for that class's subtotal.
func (s *Synchronizer) QuoteClass(class string) (pricing.Fare, error) {
	s.mu.Lock()
	route, surge, code := s.sess.Route, s.sess.Surge, s.sess.Promo
	s.mu.Unlock()
	if route == nil {
		return pricing.Fare{}, ErrIncompleteBooking
	}
	fare, err := s.deps.Pricing.Quote(pricing.QuoteRequest{
		VehicleClass:    class,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: route.DurationSeconds,
		Surge:           surge,
	})
	if err != nil {
		return pricing.Fare{}, err
	}
	if code != nil && code.Check(s.cfg.PromoService, &fare.Subtotal, s.now()) == nil {
		fare = pricing.WithPromo(fare, code)
	}
	return fare, nil
}

// ApplyPromoCode validates code against the current subtotal and, when a
// fare exists, reprices it from the surged subtotal with the new promo.
func (s *Synchronizer) ApplyPromoCode(ctx context.Context, code string) (*promo.Code, error) {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var subtotal *int64
	if s.sess.Fare != nil {
		st := s.sess.Fare.Subtotal
		subtotal = &st
	}
	gen := s.gen
	s.mu.Unlock()

	pctx, cancel := s.storeCtx(ctx)
	c, err := s.deps.Promos.Apply(pctx, promo.ApplyRequest{
		Code:     code,
		Service:  s.cfg.PromoService,
		Subtotal: subtotal,
		Key:      s.key,
		Now:      s.now(),
	})
	cancel()

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return nil, ErrSessionChanged
	}
	if err != nil {
		if errors.Is(err, docstore.ErrUnavailable) {
			s.log.Error("promo lookup failed", "promo", code, "err", err)
			s.sess.LastError = msgPromoOffline
			s.unlockAndNotify()
			return nil, err
		}
		s.mu.Unlock()
		return nil, err
	}
	if s.sess.Fare != nil {
		// The fare may have been repriced while the lookup was in flight.
		if err := c.Check(s.cfg.PromoService, &s.sess.Fare.Subtotal, s.now()); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		fare := pricing.WithPromo(*s.sess.Fare, c)
		s.sess.Fare = &fare
	}
	s.sess.Promo = c
	s.unlockAndNotify()
	return c, nil
}

func (s *Synchronizer) RemovePromoCode() error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sess.Promo = nil
	if s.sess.Fare != nil {
		fare := pricing.RemovePromo(*s.sess.Fare)
		s.sess.Fare = &fare
	}
	s.unlockAndNotify()
	return nil
}

// BookRide writes the ride record and starts tracking it. This is the only
// status change made locally; later ones come from the ride subscription.
func (s *Synchronizer) BookRide(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if s.sess.ActiveRideID != "" || s.sess.IsBooking {
		s.mu.Unlock()
		return "", ErrRideActive
	}
	uid, ok := "", false
	if s.deps.Identity != nil {
		uid, ok = s.deps.Identity.UserID()
	}
	if !ok {
		if !s.cfg.AllowAnonymous {
			s.mu.Unlock()
			observability.BookingsTotal.WithLabelValues("unauthenticated").Inc()
			return "", ErrUnauthenticated
		}
		uid = anonymousUserID
	}
	if s.sess.Pickup == nil || s.sess.Dropoff == nil || s.sess.Fare == nil {
		s.mu.Unlock()
		observability.BookingsTotal.WithLabelValues("incomplete").Inc()
		return "", ErrIncompleteBooking
	}
	if !location.ValidCoordinate(s.sess.Pickup.Point) || !location.ValidCoordinate(s.sess.Dropoff.Point) {
		s.mu.Unlock()
		observability.BookingsTotal.WithLabelValues("invalid_coordinates").Inc()
		return "", ErrInvalidCoordinates
	}
	id, err := s.deps.NewID()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	status := StatusPending
	if s.sess.ScheduledFor != nil {
		status = StatusScheduled
	}
	fields := s.recordLocked(uid, status)
	s.sess.IsBooking = true
	s.sess.LastError = ""
	gen := s.gen
	s.unlockAndNotify()

	cctx, cancel := s.storeCtx(ctx)
	err = s.deps.Store.Create(cctx, RidesCollection, id, fields)
	cancel()

	s.mu.Lock()
	if gen == s.gen {
		s.sess.IsBooking = false
	}
	if err != nil {
		if gen == s.gen {
			s.sess.LastError = msgBookFailed
		}
		s.unlockAndNotify()
		observability.BookingsTotal.WithLabelValues("store_error").Inc()
		s.log.Error("create ride failed", "ride_id", id, "err", err)
		return "", err
	}
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.log.Warn("ride created after the session was reset; cancelling it", "ride_id", id)
		s.cancelOrphan(ctx, id)
		return id, ErrSessionChanged
	}
	s.sess.ActiveRideID = id
	s.sess.Status = status
	s.sess.IsFindingDriver = status == StatusPending
	s.sess.RatableRideID = ""
	s.cancelRequested = false
	s.unlockAndNotify()

	observability.BookingsTotal.WithLabelValues("booked").Inc()
	s.log.Info("ride booked", "ride_id", id, "status", string(status))
	s.subscribeRide(gen, id)
	return id, nil
}

// recordLocked builds the ride document. Optional fields are left out rather
// than written as null.
func (s *Synchronizer) recordLocked(uid string, status Status) map[string]any {
	fare := s.sess.Fare
	total := fare.Money(s.cfg.Currency)
	fareFields := map[string]any{
		"base":     fare.Base,
		"distance": fare.DistanceComponent,
		"time":     fare.TimeComponent,
		"subtotal": fare.Subtotal,
		"total":    total.Amount,
		"currency": total.Currency,
	}
	if fare.SurgeAmount > 0 {
		fareFields["surge"] = fare.SurgeAmount
	}
	if fare.DiscountAmount > 0 {
		fareFields["discount"] = fare.DiscountAmount
	}

	fields := map[string]any{
		"passengerId":     uid,
		"vehicleType":     s.sess.VehicleClass,
		"pickup":          placeFields(*s.sess.Pickup),
		"dropoff":         placeFields(*s.sess.Dropoff),
		"fare":            fareFields,
		"paymentMethod":   s.sess.PaymentMethod,
		"surgeMultiplier": fare.SurgeMultiplier,
		"isScheduled":     s.sess.ScheduledFor != nil,
		"status":          string(status),
		"createdAt":       docstore.ServerTimestamp,
	}
	if r := s.sess.Route; r != nil {
		route := map[string]any{"distance": r.DistanceMeters, "duration": r.DurationSeconds}
		if r.Polyline != "" {
			route["polyline"] = r.Polyline
		}
		fields["route"] = route
	}
	if p := s.sess.Promo; p != nil {
		fields["promoCode"] = p.Code
	}
	if s.sess.ScheduledFor != nil {
		fields["scheduledTime"] = *s.sess.ScheduledFor
	}
	return fields
}

func placeFields(p types.Place) map[string]any {
	out := map[string]any{"lat": p.Lat, "lng": p.Lng}
	if p.Address != "" {
		out["address"] = p.Address
	}
	return out
}

func (s *Synchronizer) subscribeRide(gen uint64, id string) {
	unsub, err := s.deps.Store.Subscribe(s.ctx, RidesCollection, id, func(snap docstore.Snapshot) {
		s.onRide(gen, id, snap)
	})

	s.mu.Lock()
	if err != nil {
		if gen == s.gen {
			s.sess.LastError = msgLiveUpdates
		}
		s.unlockAndNotify()
		s.log.Error("subscribe to ride failed", "ride_id", id, "err", err)
		return
	}
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		unsub()
		return
	}
	s.rideUnsub = unsub
	s.mu.Unlock()
}

func (s *Synchronizer) onRide(gen uint64, id string, snap docstore.Snapshot) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.sess.ActiveRideID != id {
		s.mu.Unlock()
		return
	}
	switch {
	case snap.Err != nil:
		s.sess.LastError = msgLiveUpdates
		s.unlockAndNotify()
		observability.SubscriptionPushesTotal.WithLabelValues("ride", "error").Inc()
		s.log.Warn("ride subscription error", "ride_id", id, "err", snap.Err)
		return
	case snap.Doc == nil:
		// Status is left as is; the missing record is only signalled.
		s.sess.LastError = msgRideNotFound
		s.unlockAndNotify()
		observability.SubscriptionPushesTotal.WithLabelValues("ride", "not_found").Inc()
		s.log.Warn("ride record missing", "ride_id", id)
		return
	}

	var rec Record
	if err := docstore.Decode(snap.Doc.Data, &rec); err != nil || rec.Status == StatusNone {
		s.mu.Unlock()
		observability.SubscriptionPushesTotal.WithLabelValues("ride", "malformed").Inc()
		s.log.Warn("ignoring malformed ride push", "ride_id", id, "err", err)
		return
	}
	rec.ID = snap.Doc.ID

	if prev := s.sess.Status; prev != rec.Status && !CanTransition(prev, rec.Status) {
		s.log.Warn("unexpected ride status change", "ride_id", id, "from", string(prev), "to", string(rec.Status))
	}
	s.sess.Status = rec.Status
	s.sess.IsFindingDriver = rec.Status == StatusPending
	if s.sess.LastError == msgRideNotFound || s.sess.LastError == msgLiveUpdates {
		s.sess.LastError = ""
	}

	var closeDriver docstore.Unsubscribe
	openDriver := ""
	switch {
	case rec.Status.Terminal():
		closeDriver = s.detachDriverLocked()
		s.scheduleResetLocked(gen)
	case rec.DriverID == "" && s.driverSubID != "":
		closeDriver = s.detachDriverLocked()
		s.sess.DriverID = ""
		s.sess.Driver = nil
		s.sess.DriverLocation = nil
		s.sess.DriverDistanceMeters = 0
	case rec.DriverID != "" && rec.DriverID != s.driverSubID:
		closeDriver = s.detachDriverLocked()
		s.sess.Driver = nil
		s.sess.DriverLocation = nil
		s.sess.DriverDistanceMeters = 0
		s.driverSubID = rec.DriverID
		openDriver = rec.DriverID
	}
	if rec.DriverID != "" {
		s.sess.DriverID = rec.DriverID
	}
	driverGen := s.driverGen
	s.unlockAndNotify()
	observability.SubscriptionPushesTotal.WithLabelValues("ride", "applied").Inc()

	if closeDriver != nil {
		closeDriver()
	}
	if openDriver != "" {
		s.subscribeDriver(gen, driverGen, openDriver)
	}
}

// detachDriverLocked forgets the driver subscription and returns its handle
// for the caller to release after unlocking.
func (s *Synchronizer) detachDriverLocked() docstore.Unsubscribe {
	unsub := s.driverUnsub
	s.driverUnsub = nil
	s.driverSubID = ""
	s.driverGen++
	return unsub
}

func (s *Synchronizer) subscribeDriver(gen, driverGen uint64, driverID string) {
	unsub, err := s.deps.Store.Subscribe(s.ctx, DriversCollection, driverID, func(snap docstore.Snapshot) {
		s.onDriver(gen, driverGen, driverID, snap)
	})

	s.mu.Lock()
	if err != nil {
		if gen == s.gen && driverGen == s.driverGen {
			// Cleared so the next ride push retries.
			s.driverSubID = ""
		}
		s.mu.Unlock()
		s.log.Error("subscribe to driver failed", "driver_id", driverID, "err", err)
		return
	}
	if s.closed || gen != s.gen || driverGen != s.driverGen {
		s.mu.Unlock()
		unsub()
		return
	}
	s.driverUnsub = unsub
	s.mu.Unlock()
}

func (s *Synchronizer) onDriver(gen, driverGen uint64, driverID string, snap docstore.Snapshot) {
	s.mu.Lock()
	if s.closed || gen != s.gen || driverGen != s.driverGen {
		s.mu.Unlock()
		return
	}
	if snap.Err != nil || snap.Doc == nil {
		s.mu.Unlock()
		outcome := "not_found"
		if snap.Err != nil {
			outcome = "error"
		}
		observability.SubscriptionPushesTotal.WithLabelValues("driver", outcome).Inc()
		s.log.Warn("no driver update", "driver_id", driverID, "err", snap.Err)
		return
	}

	var d location.DriverRecord
	if err := docstore.Decode(snap.Doc.Data, &d); err != nil {
		s.mu.Unlock()
		observability.SubscriptionPushesTotal.WithLabelValues("driver", "malformed").Inc()
		s.log.Warn("ignoring malformed driver push", "driver_id", driverID, "err", err)
		return
	}
	d.ID = types.ID(driverID)
	s.sess.Driver = &d
	if d.Location != nil {
		loc := *d.Location
		s.sess.DriverLocation = &loc
	}
	if s.sess.Pickup != nil {
		if dist, ok := d.DistanceTo(s.sess.Pickup.Point); ok {
			s.sess.DriverDistanceMeters = dist
		}
	}
	s.unlockAndNotify()
	observability.SubscriptionPushesTotal.WithLabelValues("driver", "applied").Inc()
}

func (s *Synchronizer) scheduleResetLocked(gen uint64) {
	if s.resetTimer != nil {
		return
	}
	s.resetTimer = time.AfterFunc(s.cfg.ResetDelay, func() { s.autoReset(gen) })
}

func (s *Synchronizer) autoReset(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	ratable := ""
	if s.sess.Status == StatusCompleted {
		ratable = s.sess.ActiveRideID
	}
	unsubs := s.clearLocked()
	s.sess.RatableRideID = ratable
	s.unlockAndNotify()
	release(unsubs)
	s.log.Info("session reset after ride finished")
}

// clearLocked empties the session and invalidates every outstanding callback.
// The returned handles must be released after unlocking.
func (s *Synchronizer) clearLocked() []docstore.Unsubscribe {
	s.gen++
	s.editGen++
	unsubs := []docstore.Unsubscribe{s.rideUnsub, s.detachDriverLocked()}
	s.rideUnsub = nil
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	s.cancelRequested = false

	fresh := s.emptySession()
	fresh.Surge = s.sess.Surge
	fresh.Version = s.sess.Version
	s.sess = fresh
	return unsubs
}

func release(unsubs []docstore.Unsubscribe) {
	for _, u := range unsubs {
		if u != nil {
			u()
		}
	}
}

// ResetRide clears the session and releases its subscriptions before
// returning.
func (s *Synchronizer) ResetRide() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	unsubs := s.clearLocked()
	s.unlockAndNotify()
	release(unsubs)
}

// CancelRide asks the store to cancel the active ride. Status is not changed
// here; the ride subscription reports the cancellation.
func (s *Synchronizer) CancelRide(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	id := s.sess.ActiveRideID
	switch {
	case id == "":
		s.mu.Unlock()
		return ErrNoActiveRide
	case s.sess.Status == StatusCancelled || s.cancelRequested:
		s.mu.Unlock()
		return nil
	case s.sess.Status == StatusCompleted:
		s.mu.Unlock()
		return ErrRideFinished
	}
	s.cancelRequested = true
	gen := s.gen
	s.mu.Unlock()

	cctx, cancel := s.storeCtx(ctx)
	err := s.deps.Store.Update(cctx, RidesCollection, id, cancelFields(reason))
	cancel()
	if err == nil {
		s.log.Info("ride cancel requested", "ride_id", id)
		return nil
	}

	s.mu.Lock()
	if gen == s.gen {
		s.cancelRequested = false
		s.sess.LastError = msgCancelFailed
	}
	s.unlockAndNotify()
	s.log.Error("cancel ride failed", "ride_id", id, "err", err)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrRideNotFound
	}
	return err
}

func cancelFields(reason string) map[string]any {
	fields := map[string]any{
		"status":      string(StatusCancelled),
		"cancelledAt": docstore.ServerTimestamp,
		"cancelledBy": cancelledByRider,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		fields["cancellationReason"] = reason
	}
	return fields
}

// cancelOrphan cancels a ride whose create landed after the session was reset
// or closed; nothing tracks it, so it must not stay pending in the store.
func (s *Synchronizer) cancelOrphan(ctx context.Context, id string) {
	cctx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.deps.Store.Update(cctx, RidesCollection, id, cancelFields(reasonSessionReset)); err != nil {
		s.log.Error("cancel untracked ride failed", "ride_id", id, "err", err)
		return
	}
	observability.BookingsTotal.WithLabelValues("orphan_cancelled").Inc()
}

// RateRide records stars and an optional review on the active ride, or on the
// ride that just completed if the session has already reset.
func (s *Synchronizer) RateRide(ctx context.Context, stars int, review string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	id := s.sess.ActiveRideID
	if id == "" {
		id = s.sess.RatableRideID
	}
	if id == "" {
		s.mu.Unlock()
		return ErrNoActiveRide
	}
	if stars < 1 || stars > 5 {
		s.mu.Unlock()
		return ErrInvalidRating
	}
	gen := s.gen
	s.mu.Unlock()

	fields := map[string]any{"rating": stars, "ratedAt": docstore.ServerTimestamp}
	if review = strings.TrimSpace(review); review != "" {
		fields["review"] = review
	}
	cctx, cancel := s.storeCtx(ctx)
	err := s.deps.Store.Update(cctx, RidesCollection, id, fields)
	cancel()

	s.mu.Lock()
	if err != nil {
		if gen == s.gen {
			s.sess.LastError = msgRateFailed
		}
		s.unlockAndNotify()
		s.log.Error("rate ride failed", "ride_id", id, "err", err)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrRideNotFound
		}
		return err
	}
	if gen == s.gen && s.sess.RatableRideID == id {
		s.sess.RatableRideID = ""
	}
	s.unlockAndNotify()
	return nil
}

// RefreshSurge re-evaluates the multiplier and reprices an unbooked fare.
// While a ride is booked the session keeps the multiplier it was booked at.
func (s *Synchronizer) RefreshSurge(now time.Time) float64 {
	m := s.deps.Pricing.SurgeAt(now)
	s.mu.Lock()
	if s.closed || m == s.sess.Surge || s.editableLocked() != nil {
		s.mu.Unlock()
		return m
	}
	s.sess.Surge = m
	if s.sess.Route != nil && s.sess.Fare != nil {
		if fare, err := s.priceLocked(*s.sess.Route); err == nil {
			s.sess.Fare = &fare
		}
	}
	s.unlockAndNotify()
	return m
}

// idle reports whether the session can be evicted: nothing booked and no
// one watching.
func (s *Synchronizer) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || (s.sess.ActiveRideID == "" && !s.sess.IsBooking && len(s.watchers) == 0)
}

// View returns a copy of the current session.
func (s *Synchronizer) View() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// Watch calls fn with every new view until the returned func is called. fn
// runs on the goroutine that made the change and must not block; views may
// arrive out of order, so compare Version.
func (s *Synchronizer) Watch(fn func(Session)) (stop func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// Close releases every subscription and timer; later pushes are ignored and
// further operations return ErrClosed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.clearLocked()
	s.watchers = map[uint64]func(Session){}
	s.mu.Unlock()
	s.cancel()
	release(unsubs)
}
