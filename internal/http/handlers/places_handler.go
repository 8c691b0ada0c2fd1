// README: Address search for choosing pickup and dropoff.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gogo/internal/maps"
	"gogo/internal/types"
)

type PlaceSearcher interface {
	Search(ctx context.Context, query string, near *types.Point) ([]types.Place, error)
}

type PlacesHandler struct {
	places PlaceSearcher
	log    *slog.Logger
}

func NewPlacesHandler(places PlaceSearcher, log *slog.Logger) *PlacesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PlacesHandler{places: places, log: log}
}

// Search handles GET /api/places?q=...&lat=..&lng=.. (lat/lng optional).
func (h *PlacesHandler) Search(c *gin.Context) {
	var near *types.Point
	if lat, lng := c.Query("lat"), c.Query("lng"); lat != "" || lng != "" {
		la, errLat := strconv.ParseFloat(lat, 64)
		ln, errLng := strconv.ParseFloat(lng, 64)
		if errLat != nil || errLng != nil {
			writeError(c, http.StatusBadRequest, "lat and lng must both be numbers")
			return
		}
		near = &types.Point{Lat: la, Lng: ln}
	}

	places, err := h.places.Search(c.Request.Context(), c.Query("q"), near)
	if err != nil {
		if errors.Is(err, maps.ErrEmptyQuery) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("place search failed", "err", err)
		writeError(c, http.StatusBadGateway, "place search is unavailable")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"places": places})
}
