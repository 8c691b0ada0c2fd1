// README: Entry point; loads config, wires stores and services, serves the ride session API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"gogo/internal/config"
	"gogo/internal/docstore"
	httptransport "gogo/internal/http"
	"gogo/internal/http/handlers"
	"gogo/internal/infra"
	"gogo/internal/logging"
	"gogo/internal/maps"
	"gogo/internal/modules/pricing"
	"gogo/internal/modules/promo"
	"gogo/internal/modules/ride"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gogo-api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.NewLogger(cfg.Log.Level)
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		verifier infra.TokenVerifier
		store    docstore.Store
	)
	if cfg.Firebase.ProjectID != "" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		if verifier, err = infra.NewFirebaseVerifier(ctx, app); err != nil {
			return err
		}
		if cfg.Store == config.StoreFirestore {
			client, err := infra.NewFirestore(ctx, app)
			if err != nil {
				return err
			}
			defer client.Close()
			store = docstore.NewFirestoreStore(client, log)
		}
	}
	if store == nil {
		log.Warn("using in-memory document store; rides are lost on restart")
		store = docstore.NewMemoryStore()
	}

	catalog := pricing.DefaultCatalog()
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if catalog, err = pricing.NewStore(pool).LoadCatalog(ctx); err != nil {
			return err
		}
		log.Info("vehicle catalogue loaded from postgres", "classes", len(catalog.List()))
	}

	surge := pricing.DefaultSurgeConfig()
	surge.PeakFactor = cfg.Pricing.PeakFactor
	surge.WeekendFactor = cfg.Pricing.WeekendFactor
	surge.Location = cfg.Pricing.Location()
	pricingSvc := pricing.NewService(catalog, surge)

	var limiter promo.Limiter = promo.NewWindowLimiter(cfg.Promo.MaxAttempts, cfg.Promo.Window)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = promo.NewRedisLimiter(rdb, cfg.Promo.MaxAttempts, cfg.Promo.Window)
	}
	promoSvc := promo.NewService(promo.NewStore(store), limiter, log)

	deps := ride.Deps{
		Store:   store,
		Pricing: pricingSvc,
		Promos:  promoSvc,
		Logger:  log,
	}
	var places *maps.PlacesService
	if cfg.Maps.APIKey != "" {
		router, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			return err
		}
		deps.Router = router
		if places, err = maps.NewPlacesService(cfg.Maps.APIKey, cfg.Maps.Region); err != nil {
			return err
		}
	} else {
		log.Warn("GOGO_MAPS_API_KEY not set; fares use straight-line routes")
	}

	registry := ride.NewRegistry(deps, ride.Config{
		ResetDelay:      cfg.Ride.ResetDelay,
		AverageSpeedKmh: cfg.Ride.AverageSpeedKmh,
		AllowAnonymous:  cfg.Ride.AllowAnonymous,
		StoreTimeout:    cfg.Ride.StoreTimeout,
		Currency:        cfg.Pricing.Currency,
		DefaultVehicle:  cfg.Ride.DefaultVehicle,
		PromoService:    cfg.Promo.Service,
		IdleTTL:         cfg.Ride.IdleTTL,
	}, cfg.Pricing.SurgeRefresh)
	defer registry.Close()

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Sessions:       registry,
		Pricing:        pricingSvc,
		Places:         placeSearcher(places),
		Verifier:       verifier,
		AllowAnonymous: cfg.Ride.AllowAnonymous,
		Logger:         log,
	})
	return httptransport.NewServer(cfg.HTTP.Addr, handler, log).Run(ctx)
}

// placeSearcher keeps a nil service from becoming a non-nil interface.
func placeSearcher(p *maps.PlacesService) handlers.PlaceSearcher {
	if p == nil {
		return nil
	}
	return p
}
