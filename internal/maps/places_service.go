// README: Google Places text search used to pick pickup and dropoff addresses.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"gogo/internal/types"
)

var ErrEmptyQuery = errors.New("search query is required")

const (
	defaultSearchRadius = 20000
	maxSearchResults    = 5
)

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
	region string
}

func NewPlacesService(apiKey, region string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client, region: region}, nil
}

// Search returns up to five places for query, biased towards near when set.
// Results without a geometry are skipped.
func (s *PlacesService) Search(ctx context.Context, query string, near *types.Point) ([]types.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	r := &maps.TextSearchRequest{
		Query:    query,
		Region:   s.region,
		Language: "en",
	}
	if near != nil {
		r.Location = &maps.LatLng{Lat: near.Lat, Lng: near.Lng}
		r.Radius = defaultSearchRadius
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}
	return toPlaces(resp.Results), nil
}

func toPlaces(results []maps.PlacesSearchResult) []types.Place {
	out := make([]types.Place, 0, maxSearchResults)
	for _, res := range results {
		loc := res.Geometry.Location
		if loc.Lat == 0 && loc.Lng == 0 {
			continue
		}
		addr := res.FormattedAddress
		if res.Name != "" && !strings.HasPrefix(addr, res.Name) {
			addr = res.Name + ", " + addr
		}
		out = append(out, types.Place{Point: types.Point{Lat: loc.Lat, Lng: loc.Lng}, Address: strings.TrimSuffix(addr, ", ")})
		if len(out) == maxSearchResults {
			break
		}
	}
	return out
}
