package cache

import (
	"sync"
	"time"

	"github.com/quickdb/quickdb/internal/logging"
)

// EvictionPolicy selects which entry L1 discards when at capacity, per
// spec.md §4.4.
type EvictionPolicy int

const (
	LRU EvictionPolicy = iota
	LFU
	FIFO
)

// Entry is CacheEntry from spec.md §3.
type Entry struct {
	Key             string
	SerializedValue []byte
	InsertedAt      time.Time
	TTL             time.Duration
	SizeBytes       int

	lastAccessed time.Time
	accessCount  int64
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) > e.TTL
}

// L1Config configures the bounded in-memory tier of spec.md §4.4.
type L1Config struct {
	MaxCapacity   int
	MaxMemoryMB   int
	DefaultTTL    time.Duration
	MaxTTL        time.Duration
	CheckInterval time.Duration
	Policy        EvictionPolicy
}

func DefaultL1Config() L1Config {
	return L1Config{
		MaxCapacity:   10_000,
		MaxMemoryMB:   64,
		DefaultTTL:    60 * time.Second,
		MaxTTL:        1 * time.Hour,
		CheckInterval: 10 * time.Second,
		Policy:        LRU,
	}
}

// L1 is the bounded in-memory tier of spec.md §4.4: "bounded by
// max_capacity entries and max_memory_mb... a sweeper runs every
// check_interval." The sweeper goroutine's ticker-and-stop-channel shape is
// grounded on the teacher's internal/collectioncache/cache.go:Manager.Start
// refresh loop, adapted from "refresh a schema cache from Postgres" to
// "sweep expired entries from an in-memory map."
type L1 struct {
	cfg  L1Config
	sink logging.EventSink

	mu          sync.Mutex
	entries     map[string]*Entry
	memoryBytes int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewL1(cfg L1Config, sink logging.EventSink) *L1 {
	if sink == nil {
		sink = logging.NopSink{}
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = time.Hour
	}
	if cfg.DefaultTTL > cfg.MaxTTL {
		cfg.DefaultTTL = cfg.MaxTTL
	}
	l := &L1{
		cfg:     cfg,
		sink:    sink,
		entries: make(map[string]*Entry),
		stopCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.sweepLoop()
	return l
}

func (l *L1) sweepLoop() {
	defer l.wg.Done()
	interval := l.cfg.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweepExpired()
		}
	}
}

func (l *L1) sweepExpired() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, e := range l.entries {
		if e.expired(now) {
			l.memoryBytes -= e.SizeBytes
			delete(l.entries, key)
			removed++
		}
	}
	if removed > 0 {
		l.sink.Debug("L1 sweep removed expired entries", "count", removed)
	}
}

// Stop halts the sweeper goroutine. Safe to call more than once.
func (l *L1) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// Get returns the entry for key if present and unexpired; absent otherwise.
func (l *L1) Get(key string) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		l.memoryBytes -= e.SizeBytes
		delete(l.entries, key)
		return nil, false
	}
	e.lastAccessed = time.Now()
	e.accessCount++
	return e, true
}

// Put inserts or replaces the entry for key, evicting per Policy if the
// tier is at capacity.
func (l *L1) Put(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > l.cfg.MaxTTL {
		ttl = l.cfg.DefaultTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[key]; ok {
		l.memoryBytes -= existing.SizeBytes
	}

	for l.overCapacity(len(value)) {
		if !l.evictOneLocked() {
			break
		}
	}

	now := time.Now()
	l.entries[key] = &Entry{
		Key:             key,
		SerializedValue: value,
		InsertedAt:      now,
		TTL:             ttl,
		SizeBytes:       len(value),
		lastAccessed:    now,
		accessCount:     0,
	}
	l.memoryBytes += len(value)
}

func (l *L1) overCapacity(incomingBytes int) bool {
	maxBytes := l.cfg.MaxMemoryMB * 1024 * 1024
	return len(l.entries) >= l.cfg.MaxCapacity || (maxBytes > 0 && l.memoryBytes+incomingBytes > maxBytes)
}

func (l *L1) evictOneLocked() bool {
	if len(l.entries) == 0 {
		return false
	}
	var victimKey string
	switch l.cfg.Policy {
	case LFU:
		var minCount int64 = -1
		for k, e := range l.entries {
			if minCount == -1 || e.accessCount < minCount {
				minCount = e.accessCount
				victimKey = k
			}
		}
	case FIFO:
		var oldest time.Time
		first := true
		for k, e := range l.entries {
			if first || e.InsertedAt.Before(oldest) {
				oldest = e.InsertedAt
				victimKey = k
				first = false
			}
		}
	default: // LRU
		var oldest time.Time
		first := true
		for k, e := range l.entries {
			if first || e.lastAccessed.Before(oldest) {
				oldest = e.lastAccessed
				victimKey = k
				first = false
			}
		}
	}
	if victimKey == "" {
		return false
	}
	l.memoryBytes -= l.entries[victimKey].SizeBytes
	delete(l.entries, victimKey)
	return true
}

// InvalidateScope removes every entry whose key carries the given
// (alias, collection) scope prefix, per spec.md §4.4's coarse invalidation.
func (l *L1) InvalidateScope(scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if scopeOf(key) == scope {
			l.memoryBytes -= e.SizeBytes
			delete(l.entries, key)
		}
	}
}

// Clear empties every entry regardless of scope.
func (l *L1) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*Entry)
	l.memoryBytes = 0
}

// Len reports the current entry count.
func (l *L1) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Bytes reports the current tracked memory footprint.
func (l *L1) Bytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(l.memoryBytes)
}
