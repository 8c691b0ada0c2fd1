// README: Time-of-day and weekend surge multiplier.
package pricing

import "time"

// HourWindow is a half-open [From, To) range of local hours.
type HourWindow struct {
	From, To int
}

func (w HourWindow) contains(hour int) bool { return hour >= w.From && hour < w.To }

type SurgeConfig struct {
	PeakWindows   []HourWindow
	PeakFactor    float64
	WeekendFactor float64
	// Location is the zone whose wall clock decides peak and weekend; nil
	// uses the zone carried by the time passed in.
	Location *time.Location
}

func DefaultSurgeConfig() SurgeConfig {
	return SurgeConfig{
		PeakWindows:   []HourWindow{{From: 6, To: 9}, {From: 17, To: 20}},
		PeakFactor:    1.15,
		WeekendFactor: 1.05,
	}
}

// SurgeContext is derived from the clock, never stored.
type SurgeContext struct {
	Hour    int
	Weekday time.Weekday
	// Weather is a fixed placeholder until a demand feed exists.
	Weather string
}

func (c SurgeConfig) Context(now time.Time) SurgeContext {
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return SurgeContext{Hour: now.Hour(), Weekday: now.Weekday(), Weather: "normal"}
}

// Multiplier returns the surge for now, rounded to two decimals.
func (c SurgeConfig) Multiplier(now time.Time) float64 {
	sc := c.Context(now)

	// Fixed point at 1e-4 keeps products like 1.15*1.05 exact before rounding.
	const scale = 10000
	m := int64(scale)
	for _, w := range c.PeakWindows {
		if w.contains(sc.Hour) {
			m = applyFactor(m, c.PeakFactor)
			break
		}
	}
	if sc.Weekday == time.Saturday || sc.Weekday == time.Sunday {
		m = applyFactor(m, c.WeekendFactor)
	}
	hundredths := (m + 50) / 100
	if hundredths < 100 {
		hundredths = 100
	}
	return float64(hundredths) / 100
}

func applyFactor(m int64, factor float64) int64 {
	const scale = 10000
	if factor <= 0 {
		return m
	}
	bp := int64(factor*scale + 0.5)
	return (m*bp + scale/2) / scale
}

// ComputeSurgeMultiplier uses the default tuning.
func ComputeSurgeMultiplier(now time.Time) float64 {
	return DefaultSurgeConfig().Multiplier(now)
}
