package idgen

import (
	"regexp"
	"testing"

	"github.com/quickdb/quickdb/internal/valuedomain"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
var objectIDRe = regexp.MustCompile(`^[0-9a-f]{24}$`)

func TestAutoIncrementReturnsNull(t *testing.T) {
	g := New()
	v, err := g.Next(valuedomain.AutoIncrement())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected Null, got %v", v.Kind())
	}
}

func TestUuidStrategyShape(t *testing.T) {
	g := New()
	v, err := g.Next(valuedomain.UuidStrategy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := v.String()
	if !ok || !uuidRe.MatchString(s) {
		t.Fatalf("expected a valid uuid v4, got %q", s)
	}
}

func TestObjectIdStrategyShape(t *testing.T) {
	g := New()
	v, err := g.Next(valuedomain.ObjectIdStrategy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := v.String()
	if !ok || !objectIDRe.MatchString(s) {
		t.Fatalf("expected a 24-hex ObjectId, got %q", s)
	}
}

func TestSnowflakeProducesIncreasingPositiveIntegers(t *testing.T) {
	g := New()
	strategy := valuedomain.Snowflake(1, 1)

	var last int64 = -1
	for i := 0; i < 1000; i++ {
		v, err := g.Next(strategy)
		if err != nil {
			t.Fatalf("unexpected error at iteration %d: %v", i, err)
		}
		n, ok := v.Int()
		if !ok || n <= 0 {
			t.Fatalf("expected positive integer, got %v", v)
		}
		if n <= last {
			t.Fatalf("expected strictly increasing ids, got %d after %d", n, last)
		}
		last = n
	}
}

func TestCustomPrefixProducesDistinctIdsWithPrefix(t *testing.T) {
	g := New()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		v, err := g.Next(valuedomain.CustomPrefix("usr_"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s, ok := v.String()
		if !ok || len(s) < 4 || s[:4] != "usr_" {
			t.Fatalf("expected prefixed string id, got %q", s)
		}
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate id generated: %q", s)
		}
		seen[s] = struct{}{}
	}
}
