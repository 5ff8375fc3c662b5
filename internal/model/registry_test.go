package model

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

func userMeta() ModelMeta {
	return ModelMeta{
		Collection: "users",
		Fields: []FieldEntry{
			{Name: "id", Def: valuedomain.FieldDefinition{Type: valuedomain.Integer()}},
			{Name: "name", Def: valuedomain.FieldDefinition{Type: valuedomain.StringType(), Required: true}},
		},
		IDField:    "id",
		IDStrategy: valuedomain.AutoIncrement(),
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	if err := r.Register(userMeta()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(userMeta()); err != nil {
		t.Fatalf("second identical register should succeed: %v", err)
	}
}

func TestRegisterConflict(t *testing.T) {
	r := New()
	if err := r.Register(userMeta()); err != nil {
		t.Fatalf("first register: %v", err)
	}

	conflicting := userMeta()
	conflicting.Fields = append(conflicting.Fields, FieldEntry{
		Name: "age", Def: valuedomain.FieldDefinition{Type: valuedomain.Integer()},
	})

	err := r.Register(conflicting)
	if err == nil {
		t.Fatal("expected ModelConflict")
	}
	if errs.KindOf(err) != errs.KindModelConflict {
		t.Fatalf("expected ModelConflict kind, got %v", errs.KindOf(err))
	}
}

func TestRegisterRejectsIdFieldMismatch(t *testing.T) {
	r := New()
	meta := userMeta()
	meta.IDStrategy = valuedomain.UuidStrategy()

	err := r.Register(meta)
	if err == nil || errs.KindOf(err) != errs.KindSchemaError {
		t.Fatalf("expected SchemaError for mismatched id strategy, got %v", err)
	}
}

func TestRegisterRejectsOversizeCompositeIndex(t *testing.T) {
	r := New()
	maxLen := 2000
	meta := ModelMeta{
		Collection: "articles",
		Fields: []FieldEntry{
			{Name: "id", Def: valuedomain.FieldDefinition{Type: valuedomain.Integer()}},
			{Name: "title", Def: valuedomain.FieldDefinition{Type: valuedomain.FieldType{Kind: valuedomain.FieldString, MaxLen: &maxLen}}},
			{Name: "subtitle", Def: valuedomain.FieldDefinition{Type: valuedomain.FieldType{Kind: valuedomain.FieldString, MaxLen: &maxLen}}},
		},
		Indexes: []IndexDef{
			{Name: "idx_title_subtitle", Fields: []string{"title", "subtitle"}},
		},
		IDField:    "id",
		IDStrategy: valuedomain.AutoIncrement(),
	}

	err := r.Register(meta)
	if err == nil || errs.KindOf(err) != errs.KindSchemaError {
		t.Fatalf("expected SchemaError for oversize composite index, got %v", err)
	}
}

func TestEnsureOnceRunsExactlyOncePerKeyUnderConcurrency(t *testing.T) {
	r := New()
	var calls int64

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.EnsureOnce("alias-a", "users", func(ModelMeta) error {
				atomic.AddInt64(&calls, 1)
				return nil
			}, userMeta())
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected ensure to run exactly once, ran %d times", calls)
	}
}

func TestEnsureOnceIsolatesKeysPerAliasAndCollection(t *testing.T) {
	r := New()
	seen := make(map[string]bool)
	var mu sync.Mutex

	run := func(alias, coll string) {
		_ = r.EnsureOnce(alias, coll, func(ModelMeta) error {
			mu.Lock()
			seen[fmt.Sprintf("%s/%s", alias, coll)] = true
			mu.Unlock()
			return nil
		}, userMeta())
	}

	run("a", "users")
	run("b", "users")
	run("a", "orders")

	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct ensure calls, got %d: %v", len(seen), seen)
	}
}
