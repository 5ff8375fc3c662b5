package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/logging"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

func TestFingerprintIsDeterministicAndOrderSensitiveOnlyInContent(t *testing.T) {
	conds := []adapter.Condition{{Field: "age", Operator: adapter.OpGte, Value: valuedomain.NewInt(18)}}
	opts := adapter.FindOptions{Limit: 10}

	k1 := Fingerprint("default", "users", "find", conds, opts)
	k2 := Fingerprint("default", "users", "find", conds, opts)
	if k1 != k2 {
		t.Fatalf("expected identical fingerprints for identical input, got %q vs %q", k1, k2)
	}

	k3 := Fingerprint("default", "users", "find", nil, opts)
	if k1 == k3 {
		t.Fatalf("expected different fingerprints for different conditions")
	}
}

func TestScopeOfMatchesScopeKey(t *testing.T) {
	key := FingerprintByID("default", "users", "find_by_id", valuedomain.NewInt(1))
	if got, want := scopeOf(key), ScopeKey("default", "users"); got != want {
		t.Fatalf("scopeOf(%q) = %q, want %q", key, got, want)
	}
}

func TestL1PutGetRoundTrip(t *testing.T) {
	l1 := NewL1(DefaultL1Config(), logging.NopSink{})
	defer l1.Stop()

	l1.Put("k1", []byte("hello"), time.Minute)
	e, ok := l1.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(e.SerializedValue) != "hello" {
		t.Fatalf("got %q", e.SerializedValue)
	}
}

func TestL1EvictsUnderCapacity(t *testing.T) {
	cfg := DefaultL1Config()
	cfg.MaxCapacity = 2
	cfg.Policy = FIFO
	l1 := NewL1(cfg, logging.NopSink{})
	defer l1.Stop()

	l1.Put("a", []byte("1"), time.Minute)
	l1.Put("b", []byte("1"), time.Minute)
	l1.Put("c", []byte("1"), time.Minute)

	if l1.Len() > 2 {
		t.Fatalf("expected capacity enforced, got %d entries", l1.Len())
	}
	if _, ok := l1.Get("a"); ok {
		t.Fatal("expected oldest entry evicted under FIFO")
	}
}

func TestL1ExpiresByTTL(t *testing.T) {
	l1 := NewL1(DefaultL1Config(), logging.NopSink{})
	defer l1.Stop()

	l1.Put("k", []byte("v"), time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if _, ok := l1.Get("k"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestL2RoundTripsCompressedAndUncompressed(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultL2Config(filepath.Join(dir, "cache"))
	cfg.CompressionThreshold = 8
	l2, err := NewL2(cfg, logging.NopSink{})
	if err != nil {
		t.Fatalf("NewL2: %v", err)
	}
	defer l2.Stop()

	small := []byte("hi")
	if err := l2.Put("small", small, time.Minute); err != nil {
		t.Fatalf("Put small: %v", err)
	}
	got, ok := l2.Get("small")
	if !ok || string(got) != "hi" {
		t.Fatalf("round trip failed for small value: %q, %v", got, ok)
	}

	large := make([]byte, 4096)
	for i := range large {
		large[i] = byte(i % 251)
	}
	if err := l2.Put("large", large, time.Minute); err != nil {
		t.Fatalf("Put large: %v", err)
	}
	got, ok = l2.Get("large")
	if !ok || len(got) != len(large) {
		t.Fatalf("round trip failed for large value: len=%d ok=%v", len(got), ok)
	}
	for i := range large {
		if got[i] != large[i] {
			t.Fatalf("byte mismatch at %d", i)
		}
	}
}

func TestL2ExpiresByTTL(t *testing.T) {
	dir := t.TempDir()
	l2, err := NewL2(DefaultL2Config(dir), logging.NopSink{})
	if err != nil {
		t.Fatalf("NewL2: %v", err)
	}
	defer l2.Stop()

	if err := l2.Put("k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, ok := l2.Get("k"); ok {
		t.Fatal("expected blob to have expired")
	}
}

func TestCacheGetMissThenHitUpdatesStats(t *testing.T) {
	c, err := New("default", DefaultConfig(), logging.NopSink{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	key := Fingerprint("default", "users", "find", nil, adapter.FindOptions{})
	if _, ok := c.Get(key, false); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(key, []byte("payload"), time.Minute, false)
	v, ok := c.Get(key, false)
	if !ok || string(v) != "payload" {
		t.Fatalf("expected hit with payload, got %q ok=%v", v, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestCacheBypassSkipsReadAndWrite(t *testing.T) {
	c, err := New("default", DefaultConfig(), logging.NopSink{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	key := Fingerprint("default", "users", "find", nil, adapter.FindOptions{})
	c.Put(key, []byte("payload"), time.Minute, true)
	if _, ok := c.Get(key, false); ok {
		t.Fatal("expected bypassed Put to not populate the cache")
	}

	c.Put(key, []byte("payload"), time.Minute, false)
	if _, ok := c.Get(key, true); ok {
		t.Fatal("expected bypassed Get to report a miss even though the entry exists")
	}
}

func TestCacheInvalidateClearsScopedEntriesOnly(t *testing.T) {
	c, err := New("default", DefaultConfig(), logging.NopSink{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	usersKey := Fingerprint("default", "users", "find", nil, adapter.FindOptions{})
	postsKey := Fingerprint("default", "posts", "find", nil, adapter.FindOptions{})
	c.Put(usersKey, []byte("u"), time.Minute, false)
	c.Put(postsKey, []byte("p"), time.Minute, false)

	c.Invalidate("users")

	if _, ok := c.Get(usersKey, false); ok {
		t.Fatal("expected users scope invalidated")
	}
	if _, ok := c.Get(postsKey, false); !ok {
		t.Fatal("expected posts scope untouched")
	}
}

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	id := valuedomain.NewInt(42)
	dt := valuedomain.NewDateTime(time.Now())
	rec := adapter.Record{
		"id":     id,
		"name":   valuedomain.NewString("ada"),
		"active": valuedomain.NewBool(true),
		"tags":   valuedomain.NewArray([]valuedomain.Value{valuedomain.NewString("x"), valuedomain.NewString("y")}),
		"joined": dt,
	}

	encoded, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	decoded, err := DecodeRecord(encoded)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}

	for field, want := range rec {
		got, ok := decoded[field]
		if !ok {
			t.Fatalf("missing field %q after round trip", field)
		}
		if !valuedomain.Equal(got, want) {
			t.Fatalf("field %q: got %+v, want %+v", field, got, want)
		}
	}
}
