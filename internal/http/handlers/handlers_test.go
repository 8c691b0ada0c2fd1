// README: Handler tests over an in-memory store and a stub token verifier.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gogo/internal/docstore"
	"gogo/internal/http/handlers"
	httpmiddleware "gogo/internal/http/middleware"
	"gogo/internal/infra"
	"gogo/internal/modules/pricing"
	"gogo/internal/modules/ride"
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

type testEnv struct {
	router *gin.Engine
	store  *docstore.MemoryStore
}

// buildTestRouter wires the auth middleware and every session and ride
// handler on a memory store. Clock is a weekday noon, so no surge applies.
func buildTestRouter(t *testing.T, verifier infra.TokenVerifier) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	noon := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	store := docstore.NewMemoryStore()
	pricingService := pricing.NewService(nil, pricing.DefaultSurgeConfig())
	cfg := ride.DefaultConfig()
	cfg.ResetDelay = time.Hour
	registry := ride.NewRegistry(ride.Deps{
		Store:   store,
		Pricing: pricingService,
		Clock:   func() time.Time { return noon },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg, time.Hour)
	t.Cleanup(registry.Close)

	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier, false))
	sh := handlers.NewSessionHandler(registry, pricingService)
	r.GET("/api/vehicles", sh.Vehicles)
	r.GET("/api/session", sh.View)
	r.PUT("/api/session/pickup", sh.SetPickup)
	r.PUT("/api/session/dropoff", sh.SetDropoff)
	r.PUT("/api/session/vehicle", sh.SelectVehicle)
	r.PUT("/api/session/payment", sh.SetPayment)
	r.PUT("/api/session/schedule", sh.Schedule)
	r.POST("/api/session/fare", sh.CalculateFare)
	r.POST("/api/session/promo", sh.ApplyPromo)
	r.DELETE("/api/session/promo", sh.RemovePromo)
	r.POST("/api/session/reset", sh.Reset)
	rh := handlers.NewRideHandler(registry)
	r.POST("/api/rides", rh.Book)
	r.POST("/api/rides/cancel", rh.Cancel)
	r.POST("/api/rides/rate", rh.Rate)
	return testEnv{router: r, store: store}
}

func makeVerifier(uid string) *stubTokenVerifier {
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: map[string]interface{}{}}}
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

const bearer = "Bearer token"

var (
	pickup  = map[string]any{"lat": 14.5995, "lng": 120.9842, "address": "Intramuros"}
	dropoff = map[string]any{"lat": 14.5547, "lng": 121.0244, "address": "Makati"}
)

func TestSession_Unauthenticated(t *testing.T) {
	env := buildTestRouter(t, &stubTokenVerifier{err: errors.New("no token")})
	w := doRequest(env.router, http.MethodGet, "/api/session", nil, "Bearer badtoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestVehicles(t *testing.T) {
	env := buildTestRouter(t, makeVerifier("rider-1"))
	w := doRequest(env.router, http.MethodGet, "/api/vehicles", nil, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Vehicles []struct {
			ID   string        `json:"id"`
			Fare *pricing.Fare `json:"fare"`
		} `json:"vehicles"`
	}
	decode(t, w, &body)
	if len(body.Vehicles) != 6 {
		t.Fatalf("got %d vehicles, want 6", len(body.Vehicles))
	}
	if body.Vehicles[0].ID != "motorcycle" {
		t.Errorf("first vehicle = %s, want motorcycle", body.Vehicles[0].ID)
	}
	if body.Vehicles[0].Fare != nil {
		t.Error("fare quoted before a route exists")
	}
}

func TestBookingFlow(t *testing.T) {
	env := buildTestRouter(t, makeVerifier("rider-1"))
	r := env.router

	if w := doRequest(r, http.MethodPost, "/api/rides", nil, bearer); w.Code != http.StatusBadRequest {
		t.Fatalf("book before fare: expected 400, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPost, "/api/session/fare", nil, bearer); w.Code != http.StatusBadRequest {
		t.Fatalf("fare without endpoints: expected 400, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/api/session/pickup", pickup, bearer); w.Code != http.StatusOK {
		t.Fatalf("pickup: expected 200, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/api/session/dropoff", dropoff, bearer); w.Code != http.StatusOK {
		t.Fatalf("dropoff: expected 200, got %d", w.Code)
	}

	w := doRequest(r, http.MethodPost, "/api/session/fare", nil, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("fare: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var fareBody struct {
		Fare pricing.Fare `json:"fare"`
	}
	decode(t, w, &fareBody)
	if fareBody.Fare.Total < 35 {
		t.Errorf("fare total = %d, want at least the motorcycle minimum 35", fareBody.Fare.Total)
	}

	w = doRequest(r, http.MethodPost, "/api/rides", nil, bearer)
	if w.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var booked struct {
		RideID  string       `json:"ride_id"`
		Session ride.Session `json:"session"`
	}
	decode(t, w, &booked)
	if booked.RideID == "" || booked.Session.ActiveRideID != booked.RideID {
		t.Fatalf("ride id = %q, session active = %q", booked.RideID, booked.Session.ActiveRideID)
	}
	doc, err := env.store.Get(context.Background(), ride.RidesCollection, booked.RideID)
	if err != nil {
		t.Fatalf("ride record not written: %v", err)
	}
	if doc.Data["passengerId"] != "rider-1" || doc.Data["status"] != "pending" {
		t.Errorf("record = %v", doc.Data)
	}

	if w := doRequest(r, http.MethodPost, "/api/rides", nil, bearer); w.Code != http.StatusConflict {
		t.Errorf("second book: expected 409, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/api/session/pickup", pickup, bearer); w.Code != http.StatusConflict {
		t.Errorf("edit while booked: expected 409, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/api/rides/cancel", map[string]any{"reason": "changed plans"}, bearer)
	if w.Code != http.StatusAccepted {
		t.Fatalf("cancel: expected 202, got %d: %s", w.Code, w.Body.String())
	}
	doc, _ = env.store.Get(context.Background(), ride.RidesCollection, booked.RideID)
	if doc.Data["status"] != "cancelled" || doc.Data["cancellationReason"] != "changed plans" {
		t.Errorf("cancelled record = %v", doc.Data)
	}
}

// tokenUIDVerifier treats the raw token as the uid.
type tokenUIDVerifier struct{}

func (tokenUIDVerifier) VerifyIDToken(_ context.Context, token string) (*infra.FirebaseToken, error) {
	return &infra.FirebaseToken{UID: token}, nil
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	env := buildTestRouter(t, tokenUIDVerifier{})
	if w := doRequest(env.router, http.MethodPut, "/api/session/pickup", pickup, "Bearer rider-1"); w.Code != http.StatusOK {
		t.Fatalf("pickup: expected 200, got %d", w.Code)
	}

	var view ride.Session
	decode(t, doRequest(env.router, http.MethodGet, "/api/session", nil, "Bearer rider-2"), &view)
	if view.Pickup != nil {
		t.Error("rider-2 sees rider-1's pickup")
	}
	decode(t, doRequest(env.router, http.MethodGet, "/api/session", nil, "Bearer rider-1"), &view)
	if view.Pickup == nil || view.Pickup.Address != "Intramuros" {
		t.Errorf("rider-1 pickup = %+v", view.Pickup)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"pickup without coordinates", http.MethodPut, "/api/session/pickup", map[string]any{"address": "x"}, http.StatusBadRequest},
		{"unknown vehicle", http.MethodPut, "/api/session/vehicle", map[string]any{"vehicle_class": "boat"}, http.StatusBadRequest},
		{"unsupported payment", http.MethodPut, "/api/session/payment", map[string]any{"payment_method": "bitcoin"}, http.StatusBadRequest},
		{"schedule in the past", http.MethodPut, "/api/session/schedule", map[string]any{"scheduled_for": "2020-01-01T00:00:00Z"}, http.StatusBadRequest},
		{"empty promo", http.MethodPost, "/api/session/promo", map[string]any{"code": "  "}, http.StatusBadRequest},
		{"unknown promo", http.MethodPost, "/api/session/promo", map[string]any{"code": "NOPE"}, http.StatusUnprocessableEntity},
		{"rate without ride", http.MethodPost, "/api/rides/rate", map[string]any{"stars": 5}, http.StatusNotFound},
		{"cancel without ride", http.MethodPost, "/api/rides/cancel", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := buildTestRouter(t, makeVerifier("rider-1"))
			w := doRequest(env.router, tt.method, tt.path, tt.body, bearer)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestPayment_Accepted(t *testing.T) {
	env := buildTestRouter(t, makeVerifier("rider-1"))
	w := doRequest(env.router, http.MethodPut, "/api/session/payment", map[string]any{"payment_method": "GCash"}, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view ride.Session
	decode(t, w, &view)
	if view.PaymentMethod != ride.PaymentGCash {
		t.Errorf("payment = %s, want %s", view.PaymentMethod, ride.PaymentGCash)
	}
}

func TestPromo_RateLimited(t *testing.T) {
	env := buildTestRouter(t, makeVerifier("rider-1"))
	for i := 0; i < 5; i++ {
		w := doRequest(env.router, http.MethodPost, "/api/session/promo", map[string]any{"code": "NOPE"}, bearer)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("attempt %d: expected 422, got %d", i+1, w.Code)
		}
	}
	w := doRequest(env.router, http.MethodPost, "/api/session/promo", map[string]any{"code": "NOPE"}, bearer)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var body struct {
		RetryAfterSeconds int `json:"retry_after_seconds"`
	}
	decode(t, w, &body)
	if body.RetryAfterSeconds < 1 || body.RetryAfterSeconds > 60 {
		t.Errorf("retry_after_seconds = %d, want 1..60", body.RetryAfterSeconds)
	}
}

func TestReset(t *testing.T) {
	env := buildTestRouter(t, makeVerifier("rider-1"))
	doRequest(env.router, http.MethodPut, "/api/session/pickup", pickup, bearer)
	w := doRequest(env.router, http.MethodPost, "/api/session/reset", nil, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view ride.Session
	decode(t, w, &view)
	if view.Pickup != nil {
		t.Error("pickup survived reset")
	}
}

func TestVehicles_PromoOnlyWhereItHolds(t *testing.T) {
	env := buildTestRouter(t, makeVerifier("rider-1"))
	r := env.router
	doRequest(r, http.MethodPut, "/api/session/pickup", pickup, bearer)
	doRequest(r, http.MethodPut, "/api/session/dropoff", dropoff, bearer)
	if w := doRequest(r, http.MethodPut, "/api/session/vehicle", map[string]any{"vehicle_class": "car"}, bearer); w.Code != http.StatusOK {
		t.Fatalf("vehicle: expected 200, got %d", w.Code)
	}
	var fareBody struct {
		Fare pricing.Fare `json:"fare"`
	}
	decode(t, doRequest(r, http.MethodPost, "/api/session/fare", nil, bearer), &fareBody)

	// The minimum is the car subtotal, which a motorcycle never reaches.
	noon := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	env.store.Set("promoCodes", "CARONLY", map[string]any{
		"code":               "CARONLY",
		"type":               "fixed",
		"value":              10,
		"minOrder":           float64(fareBody.Fare.Subtotal),
		"isActive":           true,
		"validFrom":          noon.Add(-time.Hour),
		"validTo":            noon.Add(time.Hour),
		"applicableServices": []any{"rides"},
	})
	if w := doRequest(r, http.MethodPost, "/api/session/promo", map[string]any{"code": "CARONLY"}, bearer); w.Code != http.StatusOK {
		t.Fatalf("promo: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Vehicles []struct {
			ID   string        `json:"id"`
			Fare *pricing.Fare `json:"fare"`
		} `json:"vehicles"`
	}
	decode(t, doRequest(r, http.MethodGet, "/api/vehicles", nil, bearer), &body)
	fares := map[string]*pricing.Fare{}
	for _, v := range body.Vehicles {
		fares[v.ID] = v.Fare
	}
	if f := fares["car"]; f == nil || f.PromoCode != "CARONLY" || f.DiscountAmount != 10 {
		t.Errorf("car fare = %+v, want CARONLY discount 10", f)
	}
	if f := fares["motorcycle"]; f == nil || f.PromoCode != "" || f.DiscountAmount != 0 || f.Total != f.Subtotal {
		t.Errorf("motorcycle fare = %+v, want no promo", f)
	}
}
