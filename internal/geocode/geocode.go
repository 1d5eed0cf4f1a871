// Package geocode resolves street addresses to coordinates for map display.
package geocode

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound reports an address the geocoder could not place.
var ErrNotFound = errors.New("geocode: address not found")

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder resolves an address to a location or ErrNotFound.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (Location, error)
}

// Static resolves from a fixed address table. Keys are matched after
// normalisation, so lookups ignore case and surrounding whitespace.
type Static map[string]Location

// Resolve implements Geocoder.
func (s Static) Resolve(ctx context.Context, address string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	want := normalize(address)
	if want == "" {
		return Location{}, ErrNotFound
	}
	for k, loc := range s {
		if normalize(k) == want {
			return loc, nil
		}
	}
	return Location{}, ErrNotFound
}

func normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
