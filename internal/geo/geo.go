// Package geo resolves a best-effort location for an IP address.
// Resolution never blocks or fails the redirect path: any error degrades to
// an unknown location.
package geo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linktrail/linktrail/internal/cache"
)

// Location is a resolved (possibly empty) location.
type Location struct {
	CountryCode string // ISO 3166-1 alpha-2
	City        string
}

// Resolver resolves locations from trusted edge headers first and an
// optional external lookup second, cached per IP hash.
type Resolver struct {
	cache   *cache.Cache
	client  *http.Client
	baseURL string
	enabled bool
	logger  *slog.Logger
}

// New creates a Resolver. When lookupURL is empty or enabled is false, only
// header-based resolution happens.
func New(c *cache.Cache, lookupURL string, timeout time.Duration, enabled bool, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Resolver{
		cache:   c,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(lookupURL, "/"),
		enabled: enabled && lookupURL != "",
		logger:  logger,
	}
}

// FromHeaders extracts a location from edge-provided headers
// (CF-IPCountry style). Returns a zero Location when absent.
func FromHeaders(h http.Header) Location {
	country := strings.ToUpper(strings.TrimSpace(h.Get("CF-IPCountry")))
	if country == "" {
		country = strings.ToUpper(strings.TrimSpace(h.Get("X-Country-Code")))
	}
	if country == "XX" || len(country) != 2 {
		country = ""
	}

	return Location{
		CountryCode: country,
		City:        strings.TrimSpace(h.Get("X-City")),
	}
}

// Resolve returns the best available location for the request. The header
// value wins; the external lookup only fills gaps and its failures are
// logged and swallowed.
func (r *Resolver) Resolve(ctx context.Context, ip string, headers http.Header) Location {
	loc := FromHeaders(headers)
	if loc.CountryCode != "" || !r.enabled || ip == "" {
		return loc
	}

	ipHash := hashIP(ip)

	if cached, err := r.cache.GetGeo(ctx, ipHash); err == nil {
		return Location{CountryCode: cached.CountryCode, City: cached.City}
	}

	looked, err := r.lookup(ctx, ip)
	if err != nil {
		r.logger.Debug("geo lookup failed", "error", err)
		return loc
	}

	if err := r.cache.SetGeo(ctx, ipHash, &cache.GeoEntry{
		CountryCode: looked.CountryCode,
		City:        looked.City,
	}); err != nil {
		r.logger.Debug("geo cache write failed", "error", err)
	}

	return looked
}

// lookupResponse matches the common ip-api style JSON shape.
type lookupResponse struct {
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
}

func (r *Resolver) lookup(ctx context.Context, ip string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return Location{}, fmt.Errorf("build geo request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo lookup status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("decode geo response: %w", err)
	}

	country := strings.ToUpper(body.CountryCode)
	if len(country) != 2 {
		country = ""
	}

	return Location{CountryCode: country, City: body.City}, nil
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
