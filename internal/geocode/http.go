package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPGeocoder queries a Nominatim-compatible search endpoint.
type HTTPGeocoder struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// HTTPOption customises an HTTPGeocoder.
type HTTPOption func(*HTTPGeocoder)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGeocoder) {
		if c != nil {
			g.client = c
		}
	}
}

// WithUserAgent sets the User-Agent sent with each lookup.
func WithUserAgent(ua string) HTTPOption {
	return func(g *HTTPGeocoder) { g.userAgent = ua }
}

// NewHTTPGeocoder builds a geocoder against baseURL, e.g.
// https://nominatim.openstreetmap.org/search.
func NewHTTPGeocoder(baseURL string, opts ...HTTPOption) *HTTPGeocoder {
	g := &HTTPGeocoder{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		userAgent: "rentalcore",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type searchHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolve implements Geocoder.
func (g *HTTPGeocoder) Resolve(ctx context.Context, address string) (Location, error) {
	if normalize(address) == "" {
		return Location{}, ErrNotFound
	}
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return Location{}, fmt.Errorf("geocode: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var hits []searchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return Location{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(hits) == 0 {
		return Location{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Location{}, fmt.Errorf("geocode: parse lat: %w", err)
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Location{}, fmt.Errorf("geocode: parse lon: %w", err)
	}
	return Location{Lat: lat, Lng: lng}, nil
}
