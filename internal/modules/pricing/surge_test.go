package pricing

import (
	"testing"
	"time"
)

func TestComputeSurgeMultiplier(t *testing.T) {
	// 2026-02-10 is a Tuesday, 2026-02-14 a Saturday.
	tue := func(h, m int) time.Time { return time.Date(2026, 2, 10, h, m, 0, 0, time.UTC) }
	sat := func(h, m int) time.Time { return time.Date(2026, 2, 14, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"weekday midday", tue(12, 0), 1.0},
		{"weekday morning peak start", tue(6, 0), 1.15},
		{"weekday morning peak end exclusive", tue(9, 0), 1.0},
		{"weekday last minute of morning peak", tue(8, 59), 1.15},
		{"weekday evening peak", tue(17, 30), 1.15},
		{"weekday evening peak end exclusive", tue(20, 0), 1.0},
		{"weekend off-peak", sat(12, 0), 1.05},
		{"weekend peak", sat(7, 0), 1.21},
		{"sunday late night", time.Date(2026, 2, 15, 23, 0, 0, 0, time.UTC), 1.05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeSurgeMultiplier(tt.now); got != tt.want {
				t.Errorf("ComputeSurgeMultiplier(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestSurgeBounds(t *testing.T) {
	start := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7*24*4; i++ {
		now := start.Add(time.Duration(i) * 15 * time.Minute)
		m := ComputeSurgeMultiplier(now)
		if m < 1.0 || m > 1.21 {
			t.Fatalf("ComputeSurgeMultiplier(%v) = %v, out of [1.0, 1.21]", now, m)
		}
	}
}

func TestSurgeConfig_Location(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	cfg := DefaultSurgeConfig()
	cfg.Location = manila

	// 23:00 UTC Monday is 07:00 Tuesday in Manila.
	now := time.Date(2026, 2, 9, 23, 0, 0, 0, time.UTC)
	if got := cfg.Multiplier(now); got != 1.15 {
		t.Errorf("Multiplier() = %v, want 1.15", got)
	}
	sc := cfg.Context(now)
	if sc.Hour != 7 || sc.Weekday != time.Tuesday || sc.Weather != "normal" {
		t.Errorf("Context() = %+v, want hour 7 Tuesday normal", sc)
	}
}
