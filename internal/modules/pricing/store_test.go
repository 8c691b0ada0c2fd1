package pricing

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestStore_LoadCatalog(t *testing.T) {
	dsn := os.Getenv("GOGO_TEST_DSN")
	if dsn == "" {
		t.Skip("GOGO_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()

	migration, err := os.ReadFile("../../../migrations/0001_vehicle_classes.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, string(migration)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	cat, err := NewStore(pool).LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	moto, ok := cat.Get("motorcycle")
	if !ok {
		t.Fatal("motorcycle missing from loaded catalog")
	}
	if moto.BaseFare != 30 || moto.PerKm != 7 || moto.PerMinute != 1 || moto.MinFare != 35 {
		t.Errorf("motorcycle = %+v, want 30/7/1/35", moto)
	}
	if got := cat.List()[0].ID; got != "motorcycle" {
		t.Errorf("first class = %s, want motorcycle", got)
	}
}
