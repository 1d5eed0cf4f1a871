package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cachePrefix   = "geocode:"
	notFoundValue = "notfound"
	// DefaultTTL bounds how long a resolved address is reused.
	DefaultTTL = 24 * time.Hour
)

// Cache is the subset of the redis client used for geocode results.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Logger receives cache degradation warnings. *slog.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Cached wraps a Geocoder with a redis result cache. Concurrent lookups of
// the same address share one upstream call. Cache failures fall through to
// the upstream geocoder.
type Cached struct {
	next   Geocoder
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger Logger
}

// NewCached wraps next. A zero ttl selects DefaultTTL; logger may be nil.
func NewCached(next Geocoder, cache Cache, ttl time.Duration, logger Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(address string) string {
	sum := sha256.Sum256([]byte(normalize(address)))
	return cachePrefix + hex.EncodeToString(sum[:])
}

// Resolve implements Geocoder.
func (c *Cached) Resolve(ctx context.Context, address string) (Location, error) {
	if normalize(address) == "" {
		return Location{}, ErrNotFound
	}
	key := cacheKey(address)
	if loc, hit, err := c.lookup(ctx, key); hit {
		return loc, err
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		loc, err := c.next.Resolve(ctx, address)
		switch {
		case errors.Is(err, ErrNotFound):
			c.store(ctx, key, notFoundValue)
		case err == nil:
			payload, mErr := json.Marshal(loc)
			if mErr == nil {
				c.store(ctx, key, string(payload))
			}
		}
		return loc, err
	})
	if err != nil {
		return Location{}, err
	}
	return v.(Location), nil
}

func (c *Cached) lookup(ctx context.Context, key string) (Location, bool, error) {
	raw, err := c.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("geocode cache read failed", key, err)
		}
		return Location{}, false, nil
	}
	if raw == notFoundValue {
		return Location{}, true, ErrNotFound
	}
	var loc Location
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		c.warn("geocode cache entry corrupt", key, err)
		return Location{}, false, nil
	}
	return loc, true, nil
}

func (c *Cached) store(ctx context.Context, key, value string) {
	if err := c.cache.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.warn("geocode cache write failed", key, err)
	}
}

func (c *Cached) warn(msg, key string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, "key", key, "error", err)
	}
}
