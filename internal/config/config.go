// README: Config loader: GOGO_* env vars and an optional .env file via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

type PricingConfig struct {
	Currency      string
	Timezone      string
	PeakFactor    float64
	WeekendFactor float64
	SurgeRefresh  time.Duration
}

type PromoConfig struct {
	MaxAttempts int
	Window      time.Duration
	Service     string
}

type RideConfig struct {
	ResetDelay      time.Duration
	AverageSpeedKmh float64
	AllowAnonymous  bool
	StoreTimeout    time.Duration
	DefaultVehicle  string
	IdleTTL         time.Duration
}

type Config struct {
	HTTP struct {
		Addr string
	}
	// Store selects the document store backend.
	Store string
	DB    struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Maps struct {
		APIKey string
		Region string
	}
	Log struct {
		Level string
	}
	Pricing PricingConfig
	Promo   PromoConfig
	Ride    RideConfig
}

var ErrMissingProject = errors.New("GOGO_FIREBASE_PROJECT_ID is required unless GOGO_STORE=memory and GOGO_ALLOW_ANONYMOUS=true")

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("GOGO_HTTP_ADDR", ":8080")
	v.SetDefault("GOGO_STORE", StoreFirestore)
	v.SetDefault("GOGO_DB_DSN", "")
	v.SetDefault("GOGO_REDIS_ADDR", "")
	v.SetDefault("GOGO_FIREBASE_PROJECT_ID", "")
	v.SetDefault("GOGO_FIREBASE_CREDENTIALS", "")
	v.SetDefault("GOGO_MAPS_API_KEY", "")
	v.SetDefault("GOGO_MAPS_REGION", "ph")
	v.SetDefault("GOGO_LOG_LEVEL", "info")

	v.SetDefault("GOGO_CURRENCY", "PHP")
	v.SetDefault("GOGO_TIMEZONE", "Asia/Manila")
	v.SetDefault("GOGO_PEAK_FACTOR", 1.15)
	v.SetDefault("GOGO_WEEKEND_FACTOR", 1.05)
	v.SetDefault("GOGO_SURGE_REFRESH", "5m")

	v.SetDefault("GOGO_PROMO_MAX_ATTEMPTS", 5)
	v.SetDefault("GOGO_PROMO_WINDOW", "60s")
	v.SetDefault("GOGO_PROMO_SERVICE", "rides")

	v.SetDefault("GOGO_RESET_DELAY", "5s")
	v.SetDefault("GOGO_AVERAGE_SPEED_KMH", 30)
	v.SetDefault("GOGO_ALLOW_ANONYMOUS", false)
	v.SetDefault("GOGO_STORE_TIMEOUT", "10s")
	v.SetDefault("GOGO_DEFAULT_VEHICLE", "motorcycle")
	v.SetDefault("GOGO_SESSION_IDLE_TTL", "30m")

	// A missing .env is normal outside local development.
	_ = v.ReadInConfig()

	var cfg Config
	cfg.HTTP.Addr = v.GetString("GOGO_HTTP_ADDR")
	cfg.Store = strings.ToLower(v.GetString("GOGO_STORE"))
	cfg.DB.DSN = v.GetString("GOGO_DB_DSN")
	cfg.Redis.Addr = v.GetString("GOGO_REDIS_ADDR")
	cfg.Firebase.ProjectID = v.GetString("GOGO_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = v.GetString("GOGO_FIREBASE_CREDENTIALS")
	cfg.Maps.APIKey = v.GetString("GOGO_MAPS_API_KEY")
	cfg.Maps.Region = v.GetString("GOGO_MAPS_REGION")
	cfg.Log.Level = v.GetString("GOGO_LOG_LEVEL")

	cfg.Pricing = PricingConfig{
		Currency:      v.GetString("GOGO_CURRENCY"),
		Timezone:      v.GetString("GOGO_TIMEZONE"),
		PeakFactor:    v.GetFloat64("GOGO_PEAK_FACTOR"),
		WeekendFactor: v.GetFloat64("GOGO_WEEKEND_FACTOR"),
		SurgeRefresh:  v.GetDuration("GOGO_SURGE_REFRESH"),
	}
	cfg.Promo = PromoConfig{
		MaxAttempts: v.GetInt("GOGO_PROMO_MAX_ATTEMPTS"),
		Window:      v.GetDuration("GOGO_PROMO_WINDOW"),
		Service:     v.GetString("GOGO_PROMO_SERVICE"),
	}
	cfg.Ride = RideConfig{
		ResetDelay:      v.GetDuration("GOGO_RESET_DELAY"),
		AverageSpeedKmh: v.GetFloat64("GOGO_AVERAGE_SPEED_KMH"),
		AllowAnonymous:  v.GetBool("GOGO_ALLOW_ANONYMOUS"),
		StoreTimeout:    v.GetDuration("GOGO_STORE_TIMEOUT"),
		DefaultVehicle:  v.GetString("GOGO_DEFAULT_VEHICLE"),
		IdleTTL:         v.GetDuration("GOGO_SESSION_IDLE_TTL"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreFirestore, StoreMemory:
	default:
		return fmt.Errorf("GOGO_STORE must be %q or %q, got %q", StoreFirestore, StoreMemory, c.Store)
	}
	if c.Firebase.ProjectID == "" && !(c.Store == StoreMemory && c.Ride.AllowAnonymous) {
		return ErrMissingProject
	}
	// Evicting a session forgets its promo attempts, so it must outlive them.
	if c.Ride.IdleTTL < c.Promo.Window {
		return fmt.Errorf("GOGO_SESSION_IDLE_TTL (%v) must not be shorter than GOGO_PROMO_WINDOW (%v)", c.Ride.IdleTTL, c.Promo.Window)
	}
	if _, err := time.LoadLocation(c.Pricing.Timezone); err != nil {
		return fmt.Errorf("GOGO_TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves the pricing timezone; validated by Load.
func (c PricingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
