package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	geoKeyPrefix = "geo:"

	// GeoCacheTTL caps how long a per-IP geo lookup result is reused.
	GeoCacheTTL = 24 * time.Hour
)

// GeoEntry is a cached geolocation result for a hashed IP.
type GeoEntry struct {
	CountryCode string `json:"country_code,omitempty"`
	City        string `json:"city,omitempty"`
}

// GetGeo retrieves a cached geolocation entry by IP hash.
// Returns ErrSignalMiss when absent.
func (c *Cache) GetGeo(ctx context.Context, ipHash string) (*GeoEntry, error) {
	payload, err := c.client.Get(ctx, geoKeyPrefix+ipHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSignalMiss
		}
		return nil, fmt.Errorf("failed to read geo cache: %w", err)
	}

	var entry GeoEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal geo entry: %w", err)
	}

	return &entry, nil
}

// SetGeo caches a geolocation result. Best-effort, like every geo step.
func (c *Cache) SetGeo(ctx context.Context, ipHash string, entry *GeoEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal geo entry: %w", err)
	}

	if err := c.client.Set(ctx, geoKeyPrefix+ipHash, payload, GeoCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to write geo cache: %w", err)
	}

	return nil
}
