// README: Prints the fare of every vehicle class for a trip, optionally with a promo.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"gogo/internal/infra"
	"gogo/internal/modules/pricing"
	"gogo/internal/modules/promo"
)

type Config struct {
	DistanceMeters  float64
	DurationSeconds float64
	At              time.Time
	Timezone        string
	DSN             string

	PromoKind  string
	PromoValue float64
	PromoCap   float64
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	catalog := pricing.DefaultCatalog()
	if cfg.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := infra.NewDB(ctx, cfg.DSN)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer pool.Close()
		if catalog, err = pricing.NewStore(pool).LoadCatalog(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := printQuotes(os.Stdout, cfg, catalog); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(args []string) (Config, error) {
	var cfg Config
	var at string
	fs := flag.NewFlagSet("farequote", flag.ContinueOnError)
	fs.Float64Var(&cfg.DistanceMeters, "distance", envOrDefaultFloat("GOGO_QUOTE_DISTANCE", 5000), "Trip distance in meters")
	fs.Float64Var(&cfg.DurationSeconds, "duration", envOrDefaultFloat("GOGO_QUOTE_DURATION", 900), "Trip duration in seconds")
	fs.StringVar(&at, "at", envOrDefault("GOGO_QUOTE_AT", ""), "Pickup time, RFC 3339 (default now)")
	fs.StringVar(&cfg.Timezone, "timezone", envOrDefault("GOGO_TIMEZONE", "Asia/Manila"), "Zone whose wall clock decides surge")
	fs.StringVar(&cfg.DSN, "dsn", envOrDefault("GOGO_DB_DSN", ""), "Postgres DSN for the vehicle catalogue (default built-in)")
	fs.StringVar(&cfg.PromoKind, "promo-kind", "", "percentage, fixed or free_delivery")
	fs.Float64Var(&cfg.PromoValue, "promo-value", 0, "Promo percentage or fixed amount")
	fs.Float64Var(&cfg.PromoCap, "promo-cap", 0, "Maximum discount for percentage promos (0 = none)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.At = time.Now()
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return Config{}, fmt.Errorf("-at: %w", err)
		}
		cfg.At = t
	}
	if cfg.DistanceMeters < 0 || cfg.DurationSeconds < 0 {
		return Config{}, fmt.Errorf("distance and duration must not be negative")
	}
	return cfg, nil
}

func (c Config) promo() *promo.Code {
	if c.PromoKind == "" {
		return nil
	}
	code := &promo.Code{Code: "CLI", Kind: promo.Kind(strings.ToLower(c.PromoKind)), Value: c.PromoValue}
	if c.PromoCap > 0 {
		capped := c.PromoCap
		code.MaxDiscount = &capped
	}
	return code
}

func printQuotes(w io.Writer, cfg Config, catalog *pricing.Catalog) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("-timezone: %w", err)
	}
	surgeCfg := pricing.DefaultSurgeConfig()
	surgeCfg.Location = loc
	svc := pricing.NewService(catalog, surgeCfg)
	surge := svc.SurgeAt(cfg.At)

	fmt.Fprintf(w, "distance=%.0fm duration=%.0fs surge=x%.2f at %s\n",
		cfg.DistanceMeters, cfg.DurationSeconds, surge, cfg.At.In(loc).Format(time.RFC1123))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tSUBTOTAL\tSURGE\tDISCOUNT\tTOTAL")
	for _, vc := range catalog.List() {
		fare, err := svc.Quote(pricing.QuoteRequest{
			VehicleClass:    vc.ID,
			DistanceMeters:  cfg.DistanceMeters,
			DurationSeconds: cfg.DurationSeconds,
			Surge:           surge,
			Promo:           cfg.promo(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\n", vc.ID, fare.Subtotal, fare.SurgeAmount,
			strconv.FormatFloat(fare.DiscountAmount, 'f', -1, 64), fare.Total)
	}
	return tw.Flush()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
