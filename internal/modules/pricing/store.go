// README: Rate-table store backed by PostgreSQL; read once at start-up.
package pricing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// LoadCatalog reads the vehicle_classes table. An empty table yields the
// built-in catalogue so a fresh database still prices rides.
func (s *Store) LoadCatalog(ctx context.Context) (*Catalog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, base_fare, per_km, per_minute, min_fare, capacity, eta
		FROM vehicle_classes
		WHERE active
		ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("query vehicle_classes: %w", err)
	}
	defer rows.Close()

	var classes []VehicleClass
	for rows.Next() {
		var vc VehicleClass
		if err := rows.Scan(&vc.ID, &vc.Name, &vc.BaseFare, &vc.PerKm, &vc.PerMinute, &vc.MinFare, &vc.Capacity, &vc.ETA); err != nil {
			return nil, fmt.Errorf("scan vehicle_classes: %w", err)
		}
		classes = append(classes, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read vehicle_classes: %w", err)
	}
	if len(classes) == 0 {
		return DefaultCatalog(), nil
	}
	return NewCatalog(classes), nil
}
