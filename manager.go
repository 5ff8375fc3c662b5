package quickdb

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ModelManager[T] is the generic, typed wrapper of spec.md §4.8's expanded
// scope: it converts a Go struct T to/from Record using a field-tag
// precedence of its own (quickdb tag, falling back to json, falling back to
// the field's own name), then delegates every operation to the untyped
// Facade functions.
// Grounded on the teacher's client-side pattern of a thin typed wrapper
// around an untyped transport (pkg/client/client.go's Collection[T]).
type ModelManager[T any] struct {
	db         *DB
	collection string
	alias      string
}

// NewModelManager builds a manager for collection against DefaultDB. alias
// empty uses the default alias.
func NewModelManager[T any](collection, alias string) *ModelManager[T] {
	return &ModelManager[T]{db: DefaultDB, collection: collection, alias: alias}
}

// fieldName resolves the Record key for a struct field, per the tag
// precedence documented on ModelManager.
func fieldName(f reflect.StructField) (string, bool) {
	if tag, ok := f.Tag.Lookup("quickdb"); ok {
		name := strings.Split(tag, ",")[0]
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	if tag, ok := f.Tag.Lookup("json"); ok {
		name := strings.Split(tag, ",")[0]
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return f.Name, true
}

// toRecord converts a struct value to a Record, one key per exported field.
func toRecord(v any) (Record, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Record{}, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("quickdb: ModelManager requires a struct type, got %s", rv.Kind())
	}

	rec := Record{}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		name, ok := fieldName(sf)
		if !ok {
			continue
		}
		val, err := goToValue(rv.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("quickdb: field %s: %w", sf.Name, err)
		}
		rec[name] = val
	}
	return rec, nil
}

// fromRecord populates dst (a pointer to a struct) from rec.
func fromRecord(rec Record, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("quickdb: ModelManager requires *struct, got %T", dst)
	}
	rv = rv.Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		name, ok := fieldName(sf)
		if !ok {
			continue
		}
		val, present := rec[name]
		if !present {
			continue
		}
		if err := valueToGo(val, rv.Field(i)); err != nil {
			return fmt.Errorf("quickdb: field %s: %w", sf.Name, err)
		}
	}
	return nil
}

// goToValue converts a Go field value to Value, covering the scalar kinds
// spec.md §3's ValueDomain defines plus time.Time and []byte.
func goToValue(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case nil:
		return Null(), nil
	case bool:
		return NewBool(x), nil
	case int:
		return NewInt(int64(x)), nil
	case int32:
		return NewInt(int64(x)), nil
	case int64:
		return NewInt(x), nil
	case float32:
		return NewFloat(float64(x)), nil
	case float64:
		return NewFloat(x), nil
	case string:
		return NewString(x), nil
	case []byte:
		return NewBytes(x), nil
	case time.Time:
		return NewDateTime(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported field type %T", v)
	}
}

// valueToGo assigns val into field, the inverse of goToValue.
func valueToGo(val Value, field reflect.Value) error {
	if val.IsNull() {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	switch field.Kind() {
	case reflect.Bool:
		b, ok := val.Bool()
		if !ok {
			return fmt.Errorf("expected Bool, got %v", val.Kind())
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := val.Int()
		if !ok {
			return fmt.Errorf("expected Int, got %v", val.Kind())
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, ok := val.Float()
		if !ok {
			return fmt.Errorf("expected Float, got %v", val.Kind())
		}
		field.SetFloat(f)
	case reflect.String:
		s, ok := val.String()
		if !ok {
			return fmt.Errorf("expected String, got %v", val.Kind())
		}
		field.SetString(s)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.Uint8 {
			b, ok := val.Bytes()
			if !ok {
				return fmt.Errorf("expected Bytes, got %v", val.Kind())
			}
			field.SetBytes(b)
			return nil
		}
		return fmt.Errorf("unsupported slice field type %s", field.Type())
	case reflect.Struct:
		if field.Type() == reflect.TypeOf(time.Time{}) {
			t, ok := val.Time()
			if !ok {
				return fmt.Errorf("expected DateTime, got %v", val.Kind())
			}
			field.Set(reflect.ValueOf(t))
			return nil
		}
		if field.Type() == reflect.TypeOf(Value{}) {
			field.Set(reflect.ValueOf(val))
			return nil
		}
		return fmt.Errorf("unsupported struct field type %s", field.Type())
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// idOf reads the "id" key off a converted Record, used to decide whether
// Save creates or updates.
func idOf(rec Record) (Value, bool) {
	id, ok := rec["id"]
	if !ok || id.IsNull() {
		return Value{}, false
	}
	return id, true
}

// Save creates record if it has no non-null id field, else updates the
// record whose id matches, per spec.md §4.8's expansion: "save() routes to
// create or update_by_id based on whether id is populated."
func (m *ModelManager[T]) Save(ctx context.Context, record *T) error {
	rec, err := toRecord(record)
	if err != nil {
		return err
	}

	if id, ok := idOf(rec); ok {
		delete(rec, "id")
		if _, err := m.db.UpdateByID(ctx, m.collection, id, Patch(rec), m.alias); err != nil {
			return err
		}
		return nil
	}

	newID, err := m.db.Create(ctx, m.collection, rec, m.alias)
	if err != nil {
		return err
	}
	return fromRecord(Record{"id": newID}, record)
}

// FindByID looks up a single record by ID and decodes it into a new T.
func (m *ModelManager[T]) FindByID(ctx context.Context, id Value) (*T, bool, error) {
	rec, found, err := m.db.FindByID(ctx, m.collection, id, m.alias)
	if err != nil || !found {
		return nil, found, err
	}
	var out T
	if err := fromRecord(rec, &out); err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

// Find returns every record matching conditions, decoded into []T.
func (m *ModelManager[T]) Find(ctx context.Context, conditions []Condition, options FindOptions) ([]T, error) {
	recs, err := m.db.Find(ctx, m.collection, conditions, options, m.alias)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(recs))
	for i, rec := range recs {
		if err := fromRecord(rec, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes every record matching conditions.
func (m *ModelManager[T]) Delete(ctx context.Context, conditions []Condition) (int64, error) {
	return m.db.Delete(ctx, m.collection, conditions, m.alias)
}

// DeleteByID removes the single record with the given ID.
func (m *ModelManager[T]) DeleteByID(ctx context.Context, id Value) (bool, error) {
	return m.db.DeleteByID(ctx, m.collection, id, m.alias)
}

// Count returns the number of records matching conditions.
func (m *ModelManager[T]) Count(ctx context.Context, conditions []Condition) (int64, error) {
	return m.db.Count(ctx, m.collection, conditions, m.alias)
}
