package cache

import (
	"sync/atomic"
	"time"

	"github.com/quickdb/quickdb/internal/logging"
)

// Config configures a Cache: the L1 tier is always active, the L2 tier is
// enabled only when L2Enabled is true, per spec.md §4.4 ("the on-disk tier
// is optional").
type Config struct {
	L1 L1Config
	L2 L2Config

	L2Enabled bool
}

func DefaultConfig() Config {
	return Config{L1: DefaultL1Config()}
}

// Stats is CacheStats from spec.md §4.4/§8.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
	Bytes   int64
}

func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is CacheLayer from spec.md §4.4: a two-tier cache checked on every
// read-only operation unless bypassed, and invalidated by (alias,
// collection) scope on every mutation.
type Cache struct {
	alias string
	l1    *L1
	l2    *L2

	hits   int64
	misses int64
}

// New constructs a Cache for one alias. cfg.L2Enabled false disables the
// on-disk tier.
func New(alias string, cfg Config, sink logging.EventSink) (*Cache, error) {
	c := &Cache{
		alias: alias,
		l1:    NewL1(cfg.L1, sink),
	}
	if cfg.L2Enabled {
		l2, err := NewL2(cfg.L2, sink)
		if err != nil {
			c.l1.Stop()
			return nil, err
		}
		c.l2 = l2
	}
	return c, nil
}

// Get consults L1, then L2 (promoting an L2 hit back into L1), returning
// (nil, false) on a full miss. Callers pass bypass=true to skip the cache
// entirely for one call, per spec.md §4.4's per-call bypass knob.
func (c *Cache) Get(key string, bypass bool) ([]byte, bool) {
	if bypass {
		return nil, false
	}

	if v, ok := c.l1.Get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		return v.SerializedValue, true
	}

	if c.l2 != nil {
		if v, ok := c.l2.Get(key); ok {
			atomic.AddInt64(&c.hits, 1)
			c.l1.Put(key, v, c.l1.cfg.DefaultTTL)
			return v, true
		}
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Put writes value into L1 and, when enabled, L2, under the same TTL.
func (c *Cache) Put(key string, value []byte, ttl time.Duration, bypass bool) {
	if bypass {
		return
	}
	c.l1.Put(key, value, ttl)
	if c.l2 != nil {
		if err := c.l2.Put(key, value, ttl); err != nil {
			// L1 already holds the value; a failed L2 write only costs a
			// future cold start after restart, not correctness now.
			_ = err
		}
	}
}

// Invalidate clears every L1 entry for (alias, collection), per spec.md
// §4.4: "any create/update/delete... invalidates cache entries scoped to
// that (alias, collection) pair." L2, when enabled, cannot be cleared by
// scope and is cleared entirely, other collections' entries included.
func (c *Cache) Invalidate(collection string) {
	scope := ScopeKey(c.alias, collection)
	c.l1.InvalidateScope(scope)
	if c.l2 != nil {
		_ = c.l2.InvalidateAll()
	}
}

// DefaultTTL returns the L1 tier's configured default TTL, used by callers
// that Put a value without computing their own per-entry TTL.
func (c *Cache) DefaultTTL() time.Duration {
	return c.l1.cfg.DefaultTTL
}

// Stats snapshots hit/miss counters plus L1 occupancy.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: c.l1.Len(),
		Bytes:   c.l1.Bytes(),
	}
}

// Clear empties L1 (and L2, if enabled) without affecting hit/miss counters.
func (c *Cache) Clear() {
	c.l1.Clear()
	if c.l2 != nil {
		_ = c.l2.InvalidateAll()
	}
}

// Close stops both tiers' background sweepers.
func (c *Cache) Close() {
	c.l1.Stop()
	if c.l2 != nil {
		c.l2.Stop()
	}
}
