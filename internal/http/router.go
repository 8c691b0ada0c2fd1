// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gogo/internal/http/handlers"
	"gogo/internal/http/middleware"
	"gogo/internal/infra"
	"gogo/internal/modules/pricing"
)

type RouterDeps struct {
	Sessions handlers.SessionSource
	Pricing  *pricing.Service
	// Places is optional; /api/places is only served when set.
	Places   handlers.PlaceSearcher
	Verifier infra.TokenVerifier
	// AllowAnonymous lets requests without a token through as X-Debug-User.
	AllowAnonymous bool
	Logger         *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier, deps.AllowAnonymous))

	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Pricing)
	api.GET("/vehicles", sessionHandler.Vehicles)
	api.GET("/session", sessionHandler.View)
	api.PUT("/session/pickup", sessionHandler.SetPickup)
	api.PUT("/session/dropoff", sessionHandler.SetDropoff)
	api.PUT("/session/vehicle", sessionHandler.SelectVehicle)
	api.PUT("/session/payment", sessionHandler.SetPayment)
	api.PUT("/session/schedule", sessionHandler.Schedule)
	api.POST("/session/fare", sessionHandler.CalculateFare)
	api.POST("/session/promo", sessionHandler.ApplyPromo)
	api.DELETE("/session/promo", sessionHandler.RemovePromo)
	api.POST("/session/reset", sessionHandler.Reset)

	streamHandler := handlers.NewStreamHandler(deps.Sessions, log)
	api.GET("/session/stream", streamHandler.Stream)

	if deps.Places != nil {
		api.GET("/places", handlers.NewPlacesHandler(deps.Places, log).Search)
	}

	rideHandler := handlers.NewRideHandler(deps.Sessions)
	api.POST("/rides", rideHandler.Book)
	api.POST("/rides/cancel", rideHandler.Cancel)
	api.POST("/rides/rate", rideHandler.Rate)

	return r
}
