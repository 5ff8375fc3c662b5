package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

func userMeta() model.ModelMeta {
	return model.ModelMeta{
		Collection: "users",
		IDField:    "id",
		IDStrategy: valuedomain.AutoIncrement(),
		Fields: []model.FieldEntry{
			{Name: "id", Def: valuedomain.FieldDefinition{Type: valuedomain.Integer()}},
			{Name: "name", Def: valuedomain.FieldDefinition{Type: valuedomain.StringType(), Required: true}},
			{Name: "age", Def: valuedomain.FieldDefinition{Type: valuedomain.Integer()}},
			{Name: "active", Def: valuedomain.FieldDefinition{Type: valuedomain.Boolean()}},
			{Name: "external_id", Def: valuedomain.FieldDefinition{Type: valuedomain.Uuid()}},
		},
	}
}

func openTestDB(t *testing.T) interface{} {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndFindByID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := New()
	meta := userMeta()

	if err := b.CreateTable(ctx, db, meta); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	rec := adapter.Record{
		"id":   valuedomain.NewInt(1),
		"name": valuedomain.NewString("ada"),
		"age":  valuedomain.NewInt(30),
	}
	if _, err := b.Create(ctx, db, "users", rec, meta); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, found, err := b.FindByID(ctx, db, "users", valuedomain.NewInt(1), meta)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !found {
		t.Fatal("expected to find created record")
	}
	if name, _ := got["name"].String(); name != "ada" {
		t.Fatalf("got name %q", name)
	}
}

func TestUpdateByIDAndDeleteByID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := New()
	meta := userMeta()
	if err := b.CreateTable(ctx, db, meta); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rec := adapter.Record{"id": valuedomain.NewInt(1), "name": valuedomain.NewString("ada"), "age": valuedomain.NewInt(30)}
	if _, err := b.Create(ctx, db, "users", rec, meta); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := b.UpdateByID(ctx, db, "users", valuedomain.NewInt(1), adapter.Patch{"age": valuedomain.NewInt(31)}, meta)
	if err != nil || !ok {
		t.Fatalf("UpdateByID: ok=%v err=%v", ok, err)
	}

	got, _, _ := b.FindByID(ctx, db, "users", valuedomain.NewInt(1), meta)
	if age, _ := got["age"].Int(); age != 31 {
		t.Fatalf("expected updated age 31, got %d", age)
	}

	ok, err = b.DeleteByID(ctx, db, "users", valuedomain.NewInt(1))
	if err != nil || !ok {
		t.Fatalf("DeleteByID: ok=%v err=%v", ok, err)
	}
	_, found, _ := b.FindByID(ctx, db, "users", valuedomain.NewInt(1), meta)
	if found {
		t.Fatal("expected record deleted")
	}
}

func TestFindWithConditionsAndLimit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := New()
	meta := userMeta()
	if err := b.CreateTable(ctx, db, meta); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := 1; i <= 3; i++ {
		rec := adapter.Record{
			"id":   valuedomain.NewInt(int64(i)),
			"name": valuedomain.NewString("user"),
			"age":  valuedomain.NewInt(int64(20 + i)),
		}
		if _, err := b.Create(ctx, db, "users", rec, meta); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	results, err := b.Find(ctx, db, "users", []adapter.Condition{
		{Field: "age", Operator: adapter.OpGte, Value: valuedomain.NewInt(22)},
	}, adapter.FindOptions{Sort: []adapter.Sort{{Field: "age", Direction: adapter.Desc}}}, meta)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if age, _ := results[0]["age"].Int(); age != 23 {
		t.Fatalf("expected first result age 23 (desc sort), got %d", age)
	}
}

func TestCountAndExists(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := New()
	meta := userMeta()
	if err := b.CreateTable(ctx, db, meta); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rec := adapter.Record{"id": valuedomain.NewInt(1), "name": valuedomain.NewString("ada"), "age": valuedomain.NewInt(30)}
	if _, err := b.Create(ctx, db, "users", rec, meta); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := b.Count(ctx, db, "users", nil)
	if err != nil || n != 1 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}
	exists, err := b.Exists(ctx, db, "users", []adapter.Condition{{Field: "name", Operator: adapter.OpEq, Value: valuedomain.NewString("ada")}})
	if err != nil || !exists {
		t.Fatalf("Exists: exists=%v err=%v", exists, err)
	}
}

// TestBooleanRoundTrip guards spec.md §8's round-trip law for the one
// backend that has no native BOOLEAN column: SQLite stores Boolean fields as
// INTEGER, so the read path must consult the declared FieldType to coerce
// 0/1 back to false/true rather than surfacing an Int.
func TestBooleanRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := New()
	meta := userMeta()
	if err := b.CreateTable(ctx, db, meta); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rec := adapter.Record{
		"id":     valuedomain.NewInt(1),
		"name":   valuedomain.NewString("ada"),
		"age":    valuedomain.NewInt(30),
		"active": valuedomain.NewBool(true),
	}
	if _, err := b.Create(ctx, db, "users", rec, meta); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, found, err := b.FindByID(ctx, db, "users", valuedomain.NewInt(1), meta)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !found {
		t.Fatal("expected to find created record")
	}
	if got["active"].Kind() != valuedomain.KindBool {
		t.Fatalf("expected active to decode as Bool, got Kind %v", got["active"].Kind())
	}
	active, _ := got["active"].Bool()
	if !active {
		t.Fatal("expected active to round-trip as true")
	}
}

// TestMalformedUuidRejected covers spec.md §4.1's "a malformed Uuid fails
// with InvalidValue" invariant.
func TestMalformedUuidRejected(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := New()
	meta := userMeta()
	if err := b.CreateTable(ctx, db, meta); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	rec := adapter.Record{
		"id":          valuedomain.NewInt(1),
		"name":        valuedomain.NewString("ada"),
		"external_id": valuedomain.NewString("not-a-uuid"),
	}
	_, err := b.Create(ctx, db, "users", rec, meta)
	if err == nil {
		t.Fatal("expected malformed uuid to be rejected")
	}
	if errs.KindOf(err) != errs.KindInvalidValue {
		t.Fatalf("expected InvalidValue, got %v", errs.KindOf(err))
	}
}

// TestFindByIDAgainstMissingTable covers scenario S5: reading a collection
// whose table was never created surfaces TableNotExistError, not a bare
// TransportError.
func TestFindByIDAgainstMissingTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	b := New()
	_, _, err := b.FindByID(ctx, db, "ghosts", valuedomain.NewInt(1), model.ModelMeta{})
	if err == nil {
		t.Fatal("expected an error against a table that was never created")
	}
	if errs.KindOf(err) != errs.KindTableNotExist {
		t.Fatalf("expected TableNotExist, got %v", errs.KindOf(err))
	}
}
