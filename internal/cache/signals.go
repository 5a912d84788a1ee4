package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linktrail/linktrail/internal/model"
)

// SignalKind names the secondary key an attribution record is stored under.
// Each kind carries its own TTL: browser session cookies live longest on the
// same device, IP and fingerprint signals are shared across users and decay
// fast, email survives across devices.
type SignalKind string

const (
	SignalSession     SignalKind = "session"
	SignalIP          SignalKind = "ip"
	SignalFingerprint SignalKind = "fp"
	SignalEmail       SignalKind = "email"
)

// TTLs per signal kind.
const (
	SessionSignalTTL     = 30 * 24 * time.Hour
	IPSignalTTL          = 7 * 24 * time.Hour
	FingerprintSignalTTL = 7 * 24 * time.Hour
	EmailSignalTTL       = 90 * 24 * time.Hour
)

// ErrSignalMiss indicates no record is stored under the key.
var ErrSignalMiss = errors.New("signal not found")

// TTL returns the time-to-live for the signal kind.
func (k SignalKind) TTL() time.Duration {
	switch k {
	case SignalSession:
		return SessionSignalTTL
	case SignalIP:
		return IPSignalTTL
	case SignalFingerprint:
		return FingerprintSignalTTL
	case SignalEmail:
		return EmailSignalTTL
	default:
		return IPSignalTTL
	}
}

func signalKey(kind SignalKind, key string) string {
	return fmt.Sprintf("attr:%s:%s", kind, key)
}

// PutSignal stores an attribution record under the given kind and key with
// the kind's TTL. Callers treat failures as non-fatal: a lost hint costs
// attribution accuracy, never a redirect.
func (c *Cache) PutSignal(ctx context.Context, kind SignalKind, key string, rec *model.AttributionRecord) error {
	if key == "" {
		return nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal attribution record: %w", err)
	}

	if err := c.client.Set(ctx, signalKey(kind, key), payload, kind.TTL()).Err(); err != nil {
		return fmt.Errorf("failed to store signal: %w", err)
	}

	return nil
}

// GetSignal retrieves the attribution record stored under kind/key.
// Returns ErrSignalMiss when absent or expired.
func (c *Cache) GetSignal(ctx context.Context, kind SignalKind, key string) (*model.AttributionRecord, error) {
	if key == "" {
		return nil, ErrSignalMiss
	}

	payload, err := c.client.Get(ctx, signalKey(kind, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSignalMiss
		}
		return nil, fmt.Errorf("failed to read signal: %w", err)
	}

	var rec model.AttributionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attribution record: %w", err)
	}

	return &rec, nil
}

// DeleteSignals removes the records under the given kind/key pairs. Used
// after a resolved conversion so a second unrelated purchase from the same
// browser is not re-attributed to the same click.
func (c *Cache) DeleteSignals(ctx context.Context, keys map[SignalKind]string) error {
	redisKeys := make([]string, 0, len(keys))
	for kind, key := range keys {
		if key != "" {
			redisKeys = append(redisKeys, signalKey(kind, key))
		}
	}
	if len(redisKeys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("failed to delete signals: %w", err)
	}

	return nil
}
