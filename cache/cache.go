// Package cache provides the definition cache that lets point records be joined with
// previously decoded definition records.
//
// Entries expire after a period without access. Every Get and Set refreshes an entry,
// so definitions of live series stay cached as long as points keep arriving, while
// definitions of series that stopped streaming are reclaimed. The default TTL is one
// minute longer than the hourly interval at which MDM producers resend definitions.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/arloliu/mdm/internal/options"
	"github.com/arloliu/mdm/schema"
)

// DefaultTTL is the default expire-after-access horizon.
const DefaultTTL = time.Hour + time.Minute

// Config holds the DefinitionCache settings.
type Config struct {
	ttl      time.Duration
	capacity uint64
	logger   zerolog.Logger
}

// Option configures a DefinitionCache.
type Option = options.Option[*Config]

// WithTTL sets the expire-after-access horizon. It must be positive.
func WithTTL(ttl time.Duration) Option {
	return options.New(func(c *Config) error {
		if ttl <= 0 {
			return errors.New("cache ttl must be positive")
		}
		c.ttl = ttl

		return nil
	})
}

// WithCapacity bounds the number of cached definitions. When full, the entry closest to
// expiry is evicted. Zero means unbounded.
func WithCapacity(n uint64) Option {
	return options.NoError(func(c *Config) {
		c.capacity = n
	})
}

// WithLogger sets the logger used for eviction events.
func WithLogger(logger zerolog.Logger) Option {
	return options.NoError(func(c *Config) {
		c.logger = logger
	})
}

type items = ttlcache.Cache[schema.MetricKey, schema.MetricDefinition]

// DefinitionCache maps MetricKey to the last seen MetricDefinition. It is safe for
// concurrent use.
type DefinitionCache struct {
	items      *items
	logger     zerolog.Logger
	ttl        time.Duration
	unsubEvict func()
}

// New creates a DefinitionCache.
//
// Expired entries are dropped lazily on access. Call Run to also sweep them
// periodically.
//
// Returns:
//   - *DefinitionCache: The cache
//   - error: Invalid option values
func New(opts ...Option) (*DefinitionCache, error) {
	cfg := &Config{ttl: DefaultTTL, logger: zerolog.Nop()}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	ttlOpts := []ttlcache.Option[schema.MetricKey, schema.MetricDefinition]{
		ttlcache.WithTTL[schema.MetricKey, schema.MetricDefinition](cfg.ttl),
	}
	if cfg.capacity > 0 {
		ttlOpts = append(ttlOpts, ttlcache.WithCapacity[schema.MetricKey, schema.MetricDefinition](cfg.capacity))
	}

	c := &DefinitionCache{
		items:  ttlcache.New(ttlOpts...),
		logger: cfg.logger,
		ttl:    cfg.ttl,
	}
	c.unsubEvict = c.items.OnEviction(c.logEviction)

	return c, nil
}

func (c *DefinitionCache) logEviction(_ context.Context, reason ttlcache.EvictionReason,
	item *ttlcache.Item[schema.MetricKey, schema.MetricDefinition],
) {
	if e := c.logger.Debug(); e.Enabled() {
		e.Stringer("key", item.Key()).
			Str("name", item.Value().Name).
			Str("reason", evictionReason(reason)).
			Msg("definition evicted")
	}
}

func evictionReason(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Set stores def under key, replacing any previous definition and resetting the expiry.
func (c *DefinitionCache) Set(key schema.MetricKey, def schema.MetricDefinition) {
	c.items.Set(key, def, ttlcache.DefaultTTL)
}

// Get returns the definition cached for key and refreshes its expiry.
//
// Returns:
//   - schema.MetricDefinition: Cached definition
//   - bool: False on a miss or when the entry has expired
func (c *DefinitionCache) Get(key schema.MetricKey) (schema.MetricDefinition, bool) {
	item := c.items.Get(key)
	if item == nil {
		return schema.MetricDefinition{}, false
	}

	return item.Value(), true
}

// Len returns the number of entries, including expired entries not yet swept.
func (c *DefinitionCache) Len() int {
	return c.items.Len()
}

// TTL returns the expire-after-access horizon.
func (c *DefinitionCache) TTL() time.Duration {
	return c.ttl
}

// Range calls fn for every unexpired entry until fn returns false. Entries are not
// refreshed. fn must not call back into the cache.
func (c *DefinitionCache) Range(fn func(key schema.MetricKey, def schema.MetricDefinition) bool) {
	now := time.Now()
	c.items.Range(func(item *ttlcache.Item[schema.MetricKey, schema.MetricDefinition]) bool {
		if !item.ExpiresAt().IsZero() && now.After(item.ExpiresAt()) {
			return true
		}

		return fn(item.Key(), item.Value())
	})
}

// DeleteExpired removes every expired entry now.
func (c *DefinitionCache) DeleteExpired() {
	c.items.DeleteExpired()
}

// Run sweeps expired entries periodically until ctx is done.
func (c *DefinitionCache) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.items.Start()
	}()

	<-ctx.Done()
	c.items.Stop()
	<-done
}

// Close releases the eviction hook. The cache stays readable.
func (c *DefinitionCache) Close() {
	if c.unsubEvict != nil {
		c.unsubEvict()
		c.unsubEvict = nil
	}
}
