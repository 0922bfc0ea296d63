package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// Config holds the sizing of the in-process memoization table.
type Config struct {
	// Capacity is the maximum number of entries per TTL class.
	Capacity int
	// NumShards is the number of sturdyc shards per TTL class.
	NumShards int
	// EvictionPercentage is the share of entries evicted when a class is full.
	EvictionPercentage int
}

// DefaultConfig returns sizing suitable for a single site.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          16,
		EvictionPercentage: 10,
	}
}

// Validate checks the sizing values.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be greater than 0")
	}
	if c.NumShards <= 0 {
		return fmt.Errorf("cache shards must be greater than 0")
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return fmt.Errorf("cache eviction percentage must be between 1 and 100")
	}
	return nil
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Lookups       int64 `json:"lookups"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	Entries       int   `json:"entries"`
}

// Engine memoizes computed values with per-policy freshness windows.
//
// Concurrent lookups of the same key while its value is being computed share
// one computation. Failed computations are never stored.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	// one sturdyc client per distinct TTL
	clients *xsync.MapOf[time.Duration, *sturdyc.Client[any]]
	// namespaced key -> client holding it
	owners *xsync.MapOf[string, *sturdyc.Client[any]]
	// tag -> set of namespaced keys
	tags *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
	// tag -> invalidation count, never removed
	generations *xsync.MapOf[string, *atomic.Uint64]

	lookups       atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for invalidation events.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine with the given sizing.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		logger:  slog.Default(),
		clients: xsync.NewMapOf[time.Duration, *sturdyc.Client[any]](),
		owners:  xsync.NewMapOf[string, *sturdyc.Client[any]](),
		tags:    xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),

		generations: xsync.NewMapOf[string, *atomic.Uint64](),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) client(ttl time.Duration) *sturdyc.Client[any] {
	c, _ := e.clients.LoadOrCompute(ttl, func() *sturdyc.Client[any] {
		return sturdyc.New[any](e.cfg.Capacity, e.cfg.NumShards, ttl, e.cfg.EvictionPercentage)
	})
	return c
}

func (e *Engine) track(key string, c *sturdyc.Client[any], tags []string) {
	e.owners.Store(key, c)
	for _, tag := range tags {
		set, _ := e.tags.LoadOrCompute(tag, func() *xsync.MapOf[string, struct{}] {
			return xsync.NewMapOf[string, struct{}]()
		})
		set.Store(key, struct{}{})
		if set.Size() > e.cfg.Capacity {
			e.prune(set)
		}
	}
}

func (e *Engine) generation(tag string) *atomic.Uint64 {
	g, _ := e.generations.LoadOrCompute(tag, func() *atomic.Uint64 {
		return new(atomic.Uint64)
	})
	return g
}

// snapshot returns the current generation of each tag, in order.
func (e *Engine) snapshot(tags []string) []uint64 {
	gens := make([]uint64, len(tags))
	for i, tag := range tags {
		gens[i] = e.generation(tag).Load()
	}
	return gens
}

// invalidatedSince reports whether any tag was invalidated after gens was taken.
func (e *Engine) invalidatedSince(tags []string, gens []uint64) bool {
	for i, tag := range tags {
		if e.generation(tag).Load() != gens[i] {
			return true
		}
	}
	return false
}

// prune drops keys whose entries the underlying client has already evicted.
func (e *Engine) prune(set *xsync.MapOf[string, struct{}]) {
	set.Range(func(key string, _ struct{}) bool {
		c, ok := e.owners.Load(key)
		if !ok {
			set.Delete(key)
			return true
		}
		if _, present := c.Get(key); !present {
			set.Delete(key)
			e.owners.Delete(key)
		}
		return true
	})
}

// Invalidate drops every memoized entry carrying any of tags and returns
// how many entries were dropped.
func (e *Engine) Invalidate(ctx context.Context, tags ...string) int {
	if e == nil {
		return 0
	}

	dropped := 0
	for _, tag := range tags {
		e.generation(tag).Add(1)
		set, ok := e.tags.LoadAndDelete(tag)
		if !ok {
			continue
		}
		set.Range(func(key string, _ struct{}) bool {
			if c, ok := e.owners.LoadAndDelete(key); ok {
				if _, present := c.Get(key); present {
					dropped++
				}
				c.Delete(key)
			}
			return true
		})
	}

	e.invalidations.Add(int64(dropped))
	e.logger.DebugContext(ctx, "cache invalidated", "tags", tags, "dropped", dropped)
	return dropped
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	if e == nil {
		return Stats{}
	}

	entries := 0
	e.clients.Range(func(_ time.Duration, c *sturdyc.Client[any]) bool {
		entries += len(c.ScanKeys())
		return true
	})

	lookups := e.lookups.Load()
	misses := e.misses.Load()
	return Stats{
		Lookups:       lookups,
		Hits:          lookups - misses,
		Misses:        misses,
		Invalidations: e.invalidations.Load(),
		Entries:       entries,
	}
}

// GetOrCompute returns the value memoized under key for policy, invoking
// compute when there is none or it has expired. Callers that arrive while a
// computation for the same key is running wait for and share its result.
//
// A value whose computation overlapped an Invalidate of one of its tags is
// returned to the callers that shared it but not kept.
//
// A nil engine or a policy without TTL computes on every call. extraTags are
// registered alongside the policy's own tags.
func GetOrCompute[T any](ctx context.Context, e *Engine, key string, policy Policy, compute func(context.Context) (T, error), extraTags ...string) (T, error) {
	if e == nil || !policy.Memoized() {
		return compute(ctx)
	}

	full := namespaced(policy.Name, key)
	c := e.client(policy.TTL)
	tags := append(append([]string(nil), policy.Tags...), extraTags...)
	gens := e.snapshot(tags)
	e.track(full, c, tags)
	e.lookups.Add(1)

	v, err := c.GetOrFetch(ctx, full, func(ctx context.Context) (any, error) {
		e.misses.Add(1)
		return compute(ctx)
	})
	if e.invalidatedSince(tags, gens) {
		c.Delete(full)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	if v == nil {
		var zero T
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache entry %s holds %T", full, v)
	}
	return typed, nil
}
