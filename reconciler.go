package mdm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arloliu/mdm/cache"
	"github.com/arloliu/mdm/errs"
	"github.com/arloliu/mdm/internal/options"
	"github.com/arloliu/mdm/schema"
)

// Cache stores definitions by key for the Reconciler. Implementations must be safe for
// concurrent use. *cache.DefinitionCache satisfies it.
type Cache interface {
	Get(key schema.MetricKey) (schema.MetricDefinition, bool)
	Set(key schema.MetricKey, def schema.MetricDefinition)
}

// ReconcilerConfig holds the Reconciler settings.
type ReconcilerConfig struct {
	cache     Cache
	logger    zerolog.Logger
	metrics   *Metrics
	digester  *schema.Digester
	cacheOpts []cache.Option
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption = options.Option[*ReconcilerConfig]

// WithCache makes the Reconciler use c instead of creating its own DefinitionCache.
// WithCacheTTL and WithCacheCapacity are ignored when a cache is supplied.
func WithCache(c Cache) ReconcilerOption {
	return options.New(func(cfg *ReconcilerConfig) error {
		if c == nil {
			return errors.New("reconciler cache must not be nil")
		}
		cfg.cache = c

		return nil
	})
}

// WithLogger sets the logger. Misses and decode errors are logged at debug level.
func WithLogger(logger zerolog.Logger) ReconcilerOption {
	return options.NoError(func(cfg *ReconcilerConfig) {
		cfg.logger = logger
	})
}

// WithMetrics enables outcome counters.
func WithMetrics(m *Metrics) ReconcilerOption {
	return options.NoError(func(cfg *ReconcilerConfig) {
		cfg.metrics = m
	})
}

// WithCacheTTL sets the expire-after-access horizon of the Reconciler's own cache.
func WithCacheTTL(ttl time.Duration) ReconcilerOption {
	return options.NoError(func(cfg *ReconcilerConfig) {
		cfg.cacheOpts = append(cfg.cacheOpts, cache.WithTTL(ttl))
	})
}

// WithCacheCapacity bounds the Reconciler's own cache.
func WithCacheCapacity(n uint64) ReconcilerOption {
	return options.NoError(func(cfg *ReconcilerConfig) {
		cfg.cacheOpts = append(cfg.cacheOpts, cache.WithCapacity(n))
	})
}

// WithDigester sets the digester used to key incoming definitions. Points are looked up
// by the key the producer computed, so a non-MD5 digester only joins points from
// producers that use the same hash.
func WithDigester(dg *schema.Digester) ReconcilerOption {
	return options.New(func(cfg *ReconcilerConfig) error {
		if dg == nil {
			return errors.New("reconciler digester must not be nil")
		}
		cfg.digester = dg

		return nil
	})
}

// Reconciler turns a stream of MDM messages back into full metric samples. Definition
// records are cached under their key, and point records are joined with the cached
// definition for their key. It is safe for concurrent use.
type Reconciler struct {
	cache    Cache
	owned    *cache.DefinitionCache
	logger   zerolog.Logger
	metrics  *Metrics
	digester *schema.Digester
}

// NewReconciler creates a Reconciler.
//
// Without WithCache, it owns a cache.DefinitionCache configured by WithCacheTTL and
// WithCacheCapacity. With WithMetrics, the size of any cache that has a Len method is
// exported as the mdm_cached_definitions gauge.
//
// Returns:
//   - *Reconciler: The reconciler
//   - error: Invalid option values or a metrics registration failure
func NewReconciler(opts ...ReconcilerOption) (*Reconciler, error) {
	cfg := &ReconcilerConfig{logger: zerolog.Nop()}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	r := &Reconciler{
		cache:    cfg.cache,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		digester: cfg.digester,
	}

	if r.cache == nil {
		cacheOpts := append([]cache.Option{cache.WithLogger(cfg.logger)}, cfg.cacheOpts...)
		owned, err := cache.New(cacheOpts...)
		if err != nil {
			return nil, err
		}
		r.owned = owned
		r.cache = owned
	}

	if r.metrics != nil {
		if sized, ok := r.cache.(interface{ Len() int }); ok {
			if err := r.metrics.observeCacheSize(sized.Len); err != nil {
				r.Close()
				return nil, fmt.Errorf("register cache gauge: %w", err)
			}
		}
	}

	return r, nil
}

// Cache returns the cache the Reconciler reads and writes.
func (r *Reconciler) Cache() Cache {
	return r.cache
}

// Reconcile decodes one MDM message.
//
// A definition record is stored under its key and returned. A point record is joined
// with the cached definition for its key. A point whose definition is not cached is not
// an error: the producer resends definitions periodically, so the sample is dropped and
// ok is false.
//
// Reconcile is Decode followed by Apply.
//
// Parameters:
//   - data: One complete MDM message
//
// Returns:
//   - schema.MetricData: The reconstructed sample, zero when ok is false
//   - bool: Whether a sample was produced
//   - error: Any decode error, unchanged so errors.Is matches the errs sentinels
func (r *Reconciler) Reconcile(data []byte) (schema.MetricData, bool, error) {
	rec, err := r.Decode(data)
	if err != nil {
		return schema.MetricData{}, false, err
	}

	return r.Apply(rec)
}

// Decode decodes one MDM message without touching the cache. Failures are counted and
// logged the same way Reconcile does.
func (r *Reconciler) Decode(data []byte) (Record, error) {
	rec, err := Decode(data)
	if err != nil {
		r.metrics.incError(err)
		r.logger.Debug().Err(err).Int("size", len(data)).Msg("decode failed")

		return Record{}, err
	}

	return rec, nil
}

// Apply stores a decoded definition or joins a decoded point with the cache, with the
// same results as Reconcile.
func (r *Reconciler) Apply(rec Record) (schema.MetricData, bool, error) {
	switch rec.Kind {
	case KindDefinition:
		key, err := r.keyOf(rec.Data.Definition)
		if err != nil {
			r.metrics.incError(err)
			r.logger.Debug().Err(err).Str("name", rec.Data.Definition.Name).Msg("definition key failed")

			return schema.MetricData{}, false, err
		}
		r.cache.Set(key, rec.Data.Definition)
		r.metrics.incDefinition()

		return rec.Data, true, nil
	case KindPoint:
		def, ok := r.cache.Get(rec.Point.Key)
		if !ok {
			r.metrics.incMissed()
			r.logger.Debug().Stringer("key", rec.Point.Key).Msg("no definition for point")

			return schema.MetricData{}, false, nil
		}
		r.metrics.incJoined()

		return schema.Join(def, rec.Point), true, nil
	default:
		err := fmt.Errorf("%w: record kind %s", errs.ErrFormat, rec.Kind)
		r.metrics.incError(err)

		return schema.MetricData{}, false, err
	}
}

func (r *Reconciler) keyOf(def schema.MetricDefinition) (schema.MetricKey, error) {
	if r.digester != nil {
		return def.KeyWith(r.digester)
	}

	return def.Key()
}

// Run sweeps expired entries of the owned cache until ctx is done. With a caller
// supplied cache it only waits for ctx.
func (r *Reconciler) Run(ctx context.Context) {
	if r.owned == nil {
		<-ctx.Done()
		return
	}
	r.owned.Run(ctx)
}

// Close releases the owned cache. A cache supplied with WithCache is left untouched.
func (r *Reconciler) Close() {
	if r.owned != nil {
		r.owned.Close()
	}
}
