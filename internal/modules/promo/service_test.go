package promo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gogo/internal/docstore"
)

type failingStore struct {
	docstore.Store
	queries int
}

func (f *failingStore) Query(context.Context, docstore.Query) ([]docstore.Document, error) {
	f.queries++
	return nil, errors.New("deadline exceeded")
}

func seededService(t *testing.T) (*Service, *docstore.MemoryStore) {
	t.Helper()
	mem := docstore.NewMemoryStore()
	mem.Set(collection, "p1", map[string]any{
		"code":               "RIDE20",
		"type":               "percentage",
		"value":              20,
		"maxDiscount":        50,
		"usedCount":          0,
		"isActive":           true,
		"validFrom":          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		"validTo":            time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		"applicableServices": []any{"rides"},
		"minOrder":           60,
	})
	mem.Set(collection, "p2", map[string]any{
		"code":               "OLD",
		"type":               "fixed",
		"value":              30,
		"isActive":           false,
		"validFrom":          "2025-01-01T00:00:00Z",
		"validTo":            "2025-02-01T00:00:00Z",
		"applicableServices": []any{"rides"},
	})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(NewStore(mem), NewWindowLimiter(5, time.Minute), log), mem
}

func TestService_Apply(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := seededService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		code     string
		subtotal *int64
		want     error
	}{
		{"empty", "   ", nil, ErrInvalidInput},
		{"unknown", "NOPE", nil, ErrNotFound},
		{"inactive", "old", nil, ErrInactive},
		{"below minimum", "ride20", int64Ptr(40), ErrBelowMinimum},
		{"lowercase input matches", " ride20", int64Ptr(80), nil},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "session-" + string(rune('a'+i))
			c, err := svc.Apply(ctx, ApplyRequest{Code: tt.code, Service: ServiceRides, Subtotal: tt.subtotal, Key: key, Now: now})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply(%q) err = %v, want %v", tt.code, err, tt.want)
			}
			if tt.want == nil {
				if c.Code != "RIDE20" || c.ID != "p1" || c.Kind != KindPercentage {
					t.Errorf("Apply() = %+v, want RIDE20/p1/percentage", c)
				}
				if c.MaxDiscount == nil || *c.MaxDiscount != 50 {
					t.Errorf("MaxDiscount = %v, want 50", c.MaxDiscount)
				}
			}
		})
	}
}

func TestService_ApplyRateLimited(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := seededService(t)
	ctx := context.Background()

	// Five attempts fail on their own merits; the sixth is throttled even
	// though the code is valid.
	for i := 0; i < 5; i++ {
		_, err := svc.Apply(ctx, ApplyRequest{Code: "WRONG", Key: "s", Now: now.Add(time.Duration(i) * time.Second)})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d err = %v, want %v", i+1, err, ErrNotFound)
		}
	}
	_, err := svc.Apply(ctx, ApplyRequest{Code: "RIDE20", Subtotal: int64Ptr(80), Key: "s", Now: now.Add(30 * time.Second)})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("6th attempt err = %v, want %v", err, ErrRateLimited)
	}
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("error %T is not *RateLimitedError", err)
	}
	if got := rl.RetrySeconds(); got != 30 {
		t.Errorf("RetrySeconds() = %d, want 30", got)
	}

	// Empty input is rejected before the throttle.
	if _, err := svc.Apply(ctx, ApplyRequest{Code: "", Key: "s", Now: now.Add(31 * time.Second)}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty code err = %v, want %v", err, ErrInvalidInput)
	}
}

func TestService_ApplyThrottleSkipsStore(t *testing.T) {
	fs := &failingStore{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(NewStore(fs), NewWindowLimiter(1, time.Minute), log)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.Apply(ctx, ApplyRequest{Code: "X", Key: "k", Now: now})
	if !errors.Is(err, docstore.ErrUnavailable) {
		t.Fatalf("store failure err = %v, want %v", err, docstore.ErrUnavailable)
	}
	if _, err := svc.Apply(ctx, ApplyRequest{Code: "X", Key: "k", Now: now}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second attempt err = %v, want %v", err, ErrRateLimited)
	}
	if fs.queries != 1 {
		t.Errorf("store queried %d times, want 1", fs.queries)
	}
}
