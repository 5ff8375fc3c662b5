// Package model implements ModelRegistry (spec.md §4.2): a process-wide,
// append-mostly mapping from collection name to ModelMeta, plus the
// per-(alias,collection) ensure-once gate that guarantees at-most-once
// table bootstrap. Grounded on the teacher's internal/collectioncache/cache.go
// sync.RWMutex-guarded map, generalized from a periodically-refreshed read
// cache to an append-mostly registry with explicit conflict detection.
package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// IndexDef is the per-index schema entry of spec.md §3.
type IndexDef struct {
	Fields []string
	Unique bool
	Name   string
}

// ModelMeta is the per-collection schema entry of spec.md §3.
type ModelMeta struct {
	Collection string
	Alias      string // empty means "default alias"
	Fields     []FieldEntry
	Indexes    []IndexDef
	IDField    string
	IDStrategy valuedomain.IdStrategy
}

// FieldEntry pairs a field name with its definition, preserving declaration
// order the way spec.md's OrderedMapping<String,FieldDefinition> requires.
type FieldEntry struct {
	Name string
	Def  valuedomain.FieldDefinition
}

// Field looks up a field definition by name.
func (m ModelMeta) Field(name string) (valuedomain.FieldDefinition, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Def, true
		}
	}
	return valuedomain.FieldDefinition{}, false
}

// HasField reports whether name is a declared field, used by the Facade to
// reject UnknownField before enqueue (spec.md §4.8).
func (m ModelMeta) HasField(name string) bool {
	_, ok := m.Field(name)
	return ok
}

// maxIdentifierKeyBytes is the conservative shared limit used for the
// composite-index byte-size invariant in spec.md §3 ("must not exceed the
// backend's key-length limit"). MySQL's InnoDB default (3072 bytes for a
// utf8mb4 column with a 4-byte prefix per ASCII char) is the tightest of the
// three SQL backends, so registration is validated against it regardless of
// the model's target backend — a model portable across SQL backends must
// satisfy the strictest one.
const maxIdentifierKeyBytes = 3072

// bytesPerChar is the worst-case UTF-8 expansion factor (utf8mb4) used when
// estimating a String field's maximum on-disk byte size.
const bytesPerChar = 4

// EnsureFunc bootstraps a collection's table/collection and declared indexes
// for one alias. The Registry calls it at most once per (alias, collection)
// regardless of concurrent callers.
type EnsureFunc func(meta ModelMeta) error

// Registry is the process-wide ModelRegistry of spec.md §4.2.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelMeta

	ensureMu    sync.Mutex
	ensureGates map[string]*sync.Once
	ensureErrs  map[string]error
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		models:      make(map[string]ModelMeta),
		ensureGates: make(map[string]*sync.Once),
		ensureErrs:  make(map[string]error),
	}
}

// Register is idempotent by collection name; re-registration with a
// different field set fails with ModelConflict (spec.md §4.2, §8 idempotence
// law).
func (r *Registry) Register(meta ModelMeta) error {
	if err := validateMeta(meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.models[meta.Collection]
	if !ok {
		r.models[meta.Collection] = meta
		return nil
	}
	if !metaEqual(existing, meta) {
		return errs.New(errs.KindModelConflict,
			fmt.Sprintf("collection %q already registered with a different schema", meta.Collection))
	}
	return nil
}

// Lookup returns the ModelMeta registered for collection, if any.
func (r *Registry) Lookup(collection string) (ModelMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[collection]
	return m, ok
}

// EnsureOnce guarantees ensure runs at most once per (alias, collection),
// per spec.md §4.2: "the system must guarantee at-most-once table ensurance
// per (alias, collection) using a per-key lock." Concurrent callers for the
// same key block on the first call's sync.Once and observe its result.
func (r *Registry) EnsureOnce(alias, collection string, ensure EnsureFunc, meta ModelMeta) error {
	key := alias + "\x00" + collection

	r.ensureMu.Lock()
	once, exists := r.ensureGates[key]
	if !exists {
		once = &sync.Once{}
		r.ensureGates[key] = once
	}
	r.ensureMu.Unlock()

	once.Do(func() {
		err := ensure(meta)
		r.ensureMu.Lock()
		r.ensureErrs[key] = err
		r.ensureMu.Unlock()
	})

	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	return r.ensureErrs[key]
}

func metaEqual(a, b ModelMeta) bool {
	if a.Collection != b.Collection || a.IDField != b.IDField || len(a.Fields) != len(b.Fields) {
		return false
	}
	af := fieldsByName(a.Fields)
	bf := fieldsByName(b.Fields)
	for name, adef := range af {
		bdef, ok := bf[name]
		if !ok {
			return false
		}
		if adef.Type.Kind != bdef.Type.Kind || adef.Required != bdef.Required || adef.Unique != bdef.Unique {
			return false
		}
	}
	return true
}

func fieldsByName(fields []FieldEntry) map[string]valuedomain.FieldDefinition {
	out := make(map[string]valuedomain.FieldDefinition, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Def
	}
	return out
}

func validateMeta(meta ModelMeta) error {
	if meta.Collection == "" {
		return errs.New(errs.KindSchemaError, "model collection name must not be empty")
	}
	if meta.IDField == "" {
		return errs.New(errs.KindSchemaError, "model id_field must not be empty").WithCollection(meta.Collection)
	}
	idDef, ok := meta.Field(meta.IDField)
	if !ok {
		return errs.New(errs.KindSchemaError, fmt.Sprintf("id_field %q is not a declared field", meta.IDField)).WithCollection(meta.Collection)
	}
	allowed := meta.IDStrategy.NaturalFieldKind()
	matched := false
	for _, k := range allowed {
		if k == idDef.Type.Kind {
			matched = true
			break
		}
	}
	if !matched {
		return errs.New(errs.KindSchemaError,
			fmt.Sprintf("id_field %q type does not match id_strategy", meta.IDField)).WithCollection(meta.Collection)
	}

	for _, idx := range meta.Indexes {
		if err := validateIndexByteSize(meta, idx); err != nil {
			return err
		}
	}
	return nil
}

// validate is the process-wide validator.Validate instance, matching the
// teacher's internal/config.Config use of go-playground/validator/v10. The
// "indexbytes" tag registered below is the cross-field form of that same
// library: it reaches back into a sibling struct field via FieldLevel.Parent
// instead of only inspecting the tagged field in isolation.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("indexbytes", validateIndexBytesTag); err != nil {
		panic(fmt.Sprintf("model: failed to register indexbytes validation: %v", err))
	}
	return v
}

// indexSizeCheck is the struct validate.Struct is run against to apply the
// "indexbytes" tag: Meta rides along unexported from validation itself so
// the tag function can resolve each Fields entry's declared FieldDefinition
// via FieldLevel.Parent().
type indexSizeCheck struct {
	Meta   ModelMeta
	Fields []string `validate:"indexbytes"`
}

// validateIndexBytesTag implements spec.md §3's IndexDef invariant: "the sum
// of maximum string-field byte sizes across a composite index must not
// exceed the backend's key-length limit; a violation is a registration-time
// error, not a runtime one." It is registered under the "indexbytes" tag so
// indexSizeCheck.Fields triggers it through validate.Struct rather than a
// hand-rolled loop.
func validateIndexBytesTag(fl validator.FieldLevel) bool {
	parent, ok := fl.Parent().Interface().(indexSizeCheck)
	if !ok {
		return false
	}
	total := 0
	for _, fieldName := range parent.Fields {
		def, ok := parent.Meta.Field(fieldName)
		if !ok {
			// Undeclared fields are reported separately by validateIndexByteSize
			// before this tag runs; treat them as contributing no bytes here.
			continue
		}
		if def.Type.Kind != valuedomain.FieldString {
			continue
		}
		maxLen := 255
		if def.Type.MaxLen != nil {
			maxLen = *def.Type.MaxLen
		}
		total += maxLen * bytesPerChar
	}
	return total <= maxIdentifierKeyBytes
}

// validateIndexByteSize enforces spec.md §3's IndexDef invariant, delegating
// the byte-size arithmetic to the "indexbytes" custom validation function
// registered on the package-level validator above; it first checks for
// undeclared fields, which need a field-name-carrying error the generic
// validator.FieldError can't produce.
func validateIndexByteSize(meta ModelMeta, idx IndexDef) error {
	for _, fieldName := range idx.Fields {
		if !meta.HasField(fieldName) {
			return errs.New(errs.KindSchemaError,
				fmt.Sprintf("index %q references undeclared field %q", idx.Name, fieldName)).WithCollection(meta.Collection)
		}
	}

	check := indexSizeCheck{Meta: meta, Fields: idx.Fields}
	if err := validate.Struct(check); err != nil {
		return errs.New(errs.KindSchemaError,
			fmt.Sprintf("index %q on %v exceeds key-length limit (%d bytes)",
				idx.Name, idx.Fields, maxIdentifierKeyBytes)).WithCollection(meta.Collection)
	}
	return nil
}

// SortedCollections returns every registered collection name, sorted, for
// deterministic iteration in tests and introspection.
func (r *Registry) SortedCollections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
