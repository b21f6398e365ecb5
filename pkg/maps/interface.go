package maps

import (
	"context"
	"errors"
)

// ErrInvalidCoordinates is returned before any lookup for points off the globe.
var ErrInvalidCoordinates = errors.New("coordinates out of range")

// MapsProvider turns a shared location into a human readable address.
type MapsProvider interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error)
}

type GeocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

// precise result types, most specific first
var addressPrecision = []string{"street_address", "premise", "route", "intersection"}

// FormattedAddress returns the address of the most precise result, falling
// back to the first one. It is "" when nothing was found.
func (r *GeocodeResponse) FormattedAddress() string {
	if r == nil || len(r.Results) == 0 {
		return ""
	}
	for _, want := range addressPrecision {
		for _, result := range r.Results {
			if result.hasType(want) && result.Address != "" {
				return result.Address
			}
		}
	}
	return r.Results[0].Address
}

type GeocodeResult struct {
	PlaceID     string   `json:"place_id"`
	Address     string   `json:"formatted_address"`
	Coordinates Location `json:"geometry"`
	Types       []string `json:"types"`
}

func (g GeocodeResult) hasType(t string) bool {
	for _, have := range g.Types {
		if have == t {
			return true
		}
	}
	return false
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
