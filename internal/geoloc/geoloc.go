// Package geoloc implements the WiFi geolocation backends. Each backend
// turns a fingerprint into a position by querying a third-party lookup
// service; they are interchangeable behind geo.Resolver and selected by
// name at construction time.
package geoloc

import (
	"fmt"
	"net/http"
	"time"

	"wifitrk-ng/internal/geo"
)

const (
	requestTimeout = 5 * time.Second

	// maxResponseBytes bounds how much of a backend reply we are
	// willing to buffer and decode.
	maxResponseBytes = 64 << 10

	mozillaURL = "https://location.services.mozilla.com/v1/geolocate"
	googleURL  = "https://www.googleapis.com/geolocation/v1/geolocate"
	wigleURL   = "https://api.wigle.net/api/v2/network/search"
)

// Config selects and parameterizes a backend. URL overrides the
// backend's default endpoint, mainly for tests.
type Config struct {
	Provider string // mozilla, google or wigle
	APIKey   string
	URL      string
}

// New returns the resolver named by cfg.Provider.
func New(cfg Config) (geo.Resolver, error) {
	client := &http.Client{Timeout: requestTimeout}
	switch cfg.Provider {
	case "mozilla":
		return newJSONProvider(or(cfg.URL, mozillaURL), cfg.APIKey, client), nil
	case "google":
		return newJSONProvider(or(cfg.URL, googleURL), cfg.APIKey, client), nil
	case "wigle":
		return newWigleProvider(or(cfg.URL, wigleURL), cfg.APIKey, client), nil
	default:
		return nil, fmt.Errorf("geoloc: unknown provider %q", cfg.Provider)
	}
}

func or(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
