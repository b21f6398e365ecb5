package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// GoogleMapsProvider resolves shared locations through the Geocoding API.
type GoogleMapsProvider struct {
	client   *maps.Client
	language string
}

func NewGoogleMapsProvider(apiKey, language string) (*GoogleMapsProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	return &GoogleMapsProvider{client: client, language: language}, nil
}

func (g *GoogleMapsProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error) {
	if !validCoordinates(lat, lng) {
		return nil, fmt.Errorf("reverse geocode %.6f,%.6f: %w", lat, lng, ErrInvalidCoordinates)
	}

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lng},
		Language: g.language,
	})
	if err != nil {
		return nil, fmt.Errorf("reverse geocode %.6f,%.6f: %w", lat, lng, err)
	}
	return toGeocodeResponse(results), nil
}

func toGeocodeResponse(results []maps.GeocodingResult) *GeocodeResponse {
	resp := &GeocodeResponse{Results: make([]GeocodeResult, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, GeocodeResult{
			PlaceID:     r.PlaceID,
			Address:     r.FormattedAddress,
			Coordinates: Location{Latitude: r.Geometry.Location.Lat, Longitude: r.Geometry.Location.Lng},
			Types:       r.Types,
		})
	}
	return resp
}
