package quickdb

import (
	"context"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/alias"
	"github.com/quickdb/quickdb/internal/cache"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/idgen"
	"github.com/quickdb/quickdb/internal/logging"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/worker"
)

// DB is the engine backing every Facade function: an AliasDirectory, a
// process-wide ModelRegistry, and an IdGenerator, grounded on the teacher's
// pkg/client/client.go Client struct (constructor validating config,
// context-first methods). spec.md §9 calls the registry/directory/id
// counters "process-wide singletons... created on first use"; this module
// realizes that as the package-level DefaultDB, initialized the moment the
// package is loaded, with New available for callers who want an isolated
// instance (e.g. tests running many scenarios in one process).
type DB struct {
	dir      *alias.Directory
	registry *model.Registry
	ids      *idgen.Generator
	sink     logging.EventSink
}

// New constructs an independent DB instance with its own AliasDirectory,
// ModelRegistry, and IdGenerator. Most callers use the package-level Facade
// functions instead, which operate on DefaultDB.
func New(sink logging.EventSink) *DB {
	if sink == nil {
		sink = logging.NopSink{}
	}
	return &DB{
		dir:      alias.NewDirectory(sink),
		registry: model.New(),
		ids:      idgen.New(),
		sink:     sink,
	}
}

// DefaultDB is the process-wide instance the package-level Facade functions
// delegate to.
var DefaultDB = New(nil)

// AddDatabase registers a new alias, per spec.md §6's add_database(config).
func (db *DB) AddDatabase(ctx context.Context, cfg DatabaseConfig) error {
	return db.dir.AddDatabase(ctx, cfg)
}

// RemoveDatabase drains and tears down an alias, per spec.md §6.
func (db *DB) RemoveDatabase(aliasName string) error {
	return db.dir.RemoveDatabase(aliasName)
}

// SetDefaultAlias mutates which alias is used when a Facade call omits one.
func (db *DB) SetDefaultAlias(aliasName string) error {
	return db.dir.SetDefaultAlias(aliasName)
}

// ListAliases returns a snapshot of every registered alias.
func (db *DB) ListAliases() []AliasInfo {
	return db.dir.ListAliases()
}

// CacheStats returns aliasName's cache counters (zero value if caching is
// disabled for that alias).
func (db *DB) CacheStats(aliasName string) (CacheSnapshot, error) {
	return db.dir.CacheStats(aliasName)
}

// ClearCache empties aliasName's cache without affecting its counters.
func (db *DB) ClearCache(aliasName string) error {
	return db.dir.ClearCache(aliasName)
}

// ClearAllCaches empties every registered alias's cache.
func (db *DB) ClearAllCaches() {
	db.dir.ClearAllCaches()
}

// RegisterModel registers meta with the ModelRegistry and, on first
// successful registration for its target alias, ensures the backing
// table/collection and declared indexes exist (spec.md §4.2). Idempotent:
// a second RegisterModel call with the same schema is a no-op past the
// first; a call with a conflicting schema fails with ModelConflict.
func (db *DB) RegisterModel(ctx context.Context, meta ModelMeta) error {
	if err := db.registry.Register(meta); err != nil {
		return err
	}
	a, err := db.dir.Resolve(meta.Alias)
	if err != nil {
		return err
	}
	return db.registry.EnsureOnce(a.Name, meta.Collection, func(m ModelMeta) error {
		resp := a.Submit(ctx, &worker.Request{Op: worker.OpCreateTable, Collection: m.Collection, Meta: m})
		if resp.Err != nil {
			return resp.Err
		}
		for _, idx := range m.Indexes {
			r := a.Submit(ctx, &worker.Request{Op: worker.OpCreateIndex, Collection: m.Collection, Index: idx})
			if r.Err != nil {
				return r.Err
			}
		}
		return nil
	}, meta)
}

// resolveIDStrategy returns the strategy pending ID generation should use
// for collection: the registered model's, if one exists, else the alias's
// own default.
func (db *DB) resolveIDStrategy(a *alias.Alias, collection string) IdStrategy {
	if meta, ok := db.registry.Lookup(collection); ok {
		return meta.IDStrategy
	}
	return a.IDStrategy
}

// validateRecordFields rejects a write naming a field the registered model
// doesn't declare, per spec.md §4.8: "UnknownField... before enqueue." A
// collection with no registered model skips validation — there is no
// schema to check against.
func (db *DB) validateRecordFields(collection string, fields map[string]Value) error {
	meta, ok := db.registry.Lookup(collection)
	if !ok {
		return nil
	}
	for field := range fields {
		if !meta.HasField(field) {
			return errs.New(errs.KindUnknownField, "field not declared on registered model").
				WithCollection(collection).WithField(field)
		}
	}
	return nil
}

func (db *DB) validateConditionFields(collection string, conditions []Condition) error {
	meta, ok := db.registry.Lookup(collection)
	if !ok {
		return nil
	}
	for _, c := range conditions {
		if !meta.HasField(c.Field) {
			return errs.New(errs.KindUnknownField, "field not declared on registered model").
				WithCollection(collection).WithField(c.Field)
		}
	}
	return nil
}

// checkOperatorSupport rejects JsonContains conditions before any I/O when
// the resolved alias's backend doesn't support it, per spec.md §4.6.
func checkOperatorSupport(a *alias.Alias, conditions []Condition) error {
	for _, c := range conditions {
		if c.Operator == OpJsonContains && !adapter.SupportsJsonContains(a.Backend().Kind()) {
			return errs.New(errs.KindUnsupportedOperator,
				"JsonContains is not supported on backend "+a.Backend().Kind())
		}
	}
	return nil
}

// Create inserts record into collection on aliasName (empty uses the
// default alias) and returns the assigned ID.
func (db *DB) Create(ctx context.Context, collection string, record Record, aliasName string) (Value, error) {
	if err := db.validateRecordFields(collection, record); err != nil {
		return Value{}, err
	}
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return Value{}, err
	}

	if record == nil {
		record = Record{}
	}
	if _, hasID := record["id"]; !hasID {
		id, err := db.ids.Next(db.resolveIDStrategy(a, collection))
		if err != nil {
			return Value{}, err
		}
		if !id.IsNull() {
			record["id"] = id
		}
	}

	invalidate(a, collection)
	meta, _ := db.registry.Lookup(collection)
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpCreate, Collection: collection, Record: record, Meta: meta})
	if resp.Err != nil {
		return Value{}, resp.Err
	}
	return resp.ID, nil
}

// FindByID looks up a single record by ID.
func (db *DB) FindByID(ctx context.Context, collection string, id Value, aliasName string) (Record, bool, error) {
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return nil, false, err
	}

	var key string
	if c := a.Cache(); c != nil {
		key = cache.FingerprintByID(a.Name, collection, "find_by_id", id)
		if raw, ok := c.Get(key, false); ok {
			rec, err := decodeRecord(raw)
			return rec, rec != nil, err
		}
	}

	meta, _ := db.registry.Lookup(collection)
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpFindByID, Collection: collection, ID: id, Meta: meta})
	if resp.Err != nil {
		return nil, false, resp.Err
	}
	if a.Cache() != nil && resp.Found {
		if encoded, err := encodeRecord(resp.Record); err == nil {
			a.Cache().Put(key, encoded, a.Cache().DefaultTTL(), false)
		}
	}
	return resp.Record, resp.Found, nil
}

// Find is sugar over FindWithConfig with case_insensitive left false on
// every condition, per spec.md §4.8.
func (db *DB) Find(ctx context.Context, collection string, conditions []Condition, options FindOptions, aliasName string) ([]Record, error) {
	return db.find(ctx, collection, conditions, options, false, aliasName)
}

// FindWithConfig sets CaseInsensitive on every condition before executing,
// per spec.md §4.8's "find_with_config carries the per-condition
// case_insensitive flag."
func (db *DB) FindWithConfig(ctx context.Context, collection string, conditions []Condition, options FindOptions, caseInsensitive bool, aliasName string) ([]Record, error) {
	adjusted := make([]Condition, len(conditions))
	for i, c := range conditions {
		c.CaseInsensitive = caseInsensitive
		adjusted[i] = c
	}
	return db.find(ctx, collection, adjusted, options, false, aliasName)
}

// FindWithCacheControl exposes the per-call bypass flag of spec.md §4.4.
func (db *DB) FindWithCacheControl(ctx context.Context, collection string, conditions []Condition, options FindOptions, bypassCache bool, aliasName string) ([]Record, error) {
	return db.find(ctx, collection, conditions, options, bypassCache, aliasName)
}

func (db *DB) find(ctx context.Context, collection string, conditions []Condition, options FindOptions, bypassCache bool, aliasName string) ([]Record, error) {
	if err := db.validateConditionFields(collection, conditions); err != nil {
		return nil, err
	}
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return nil, err
	}
	if err := checkOperatorSupport(a, conditions); err != nil {
		return nil, err
	}

	var key string
	if c := a.Cache(); c != nil {
		key = cache.Fingerprint(a.Name, collection, "find", conditions, options)
		if raw, ok := c.Get(key, bypassCache); ok {
			return decodeRecords(raw)
		}
	}

	meta, _ := db.registry.Lookup(collection)
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpFind, Collection: collection, Conditions: conditions, Options: options, Meta: meta})
	if resp.Err != nil {
		return nil, resp.Err
	}
	if c := a.Cache(); c != nil {
		if encoded, err := encodeRecords(resp.Records); err == nil {
			c.Put(key, encoded, c.DefaultTTL(), bypassCache)
		}
	}
	return resp.Records, nil
}

// Update applies patch to every record matching conditions.
func (db *DB) Update(ctx context.Context, collection string, conditions []Condition, patch Patch, aliasName string) (int64, error) {
	if err := db.validateConditionFields(collection, conditions); err != nil {
		return 0, err
	}
	if err := db.validateRecordFields(collection, patch); err != nil {
		return 0, err
	}
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return 0, err
	}
	if err := checkOperatorSupport(a, conditions); err != nil {
		return 0, err
	}

	// Invalidation precedes acknowledgment per spec.md §7: a failed
	// mutation must not leave the cache in a stale "believed-fresh" state,
	// so the scope is purged before the write, not after.
	invalidate(a, collection)
	meta, _ := db.registry.Lookup(collection)
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpUpdate, Collection: collection, Conditions: conditions, Patch: patch, Meta: meta})
	return resp.Count, resp.Err
}

// UpdateByID applies patch to the single record with the given ID.
func (db *DB) UpdateByID(ctx context.Context, collection string, id Value, patch Patch, aliasName string) (bool, error) {
	if err := db.validateRecordFields(collection, patch); err != nil {
		return false, err
	}
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return false, err
	}
	invalidate(a, collection)
	meta, _ := db.registry.Lookup(collection)
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpUpdateByID, Collection: collection, ID: id, Patch: patch, Meta: meta})
	return resp.Exists, resp.Err
}

// Delete removes every record matching conditions.
func (db *DB) Delete(ctx context.Context, collection string, conditions []Condition, aliasName string) (int64, error) {
	if err := db.validateConditionFields(collection, conditions); err != nil {
		return 0, err
	}
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return 0, err
	}
	if err := checkOperatorSupport(a, conditions); err != nil {
		return 0, err
	}
	invalidate(a, collection)
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpDelete, Collection: collection, Conditions: conditions})
	return resp.Count, resp.Err
}

// DeleteByID removes the single record with the given ID.
func (db *DB) DeleteByID(ctx context.Context, collection string, id Value, aliasName string) (bool, error) {
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return false, err
	}
	invalidate(a, collection)
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpDeleteByID, Collection: collection, ID: id})
	return resp.Exists, resp.Err
}

// DeleteMany removes every record in ids, fanning the individual
// delete_by_id requests out concurrently through the alias's worker —
// grounded on the teacher's pkg/client/client.go:c.init parallel
// per-collection fan-out, here applied to a batch of independent deletes
// rather than independent collection downloads (spec.md's own
// "delete_many across sharded requests" example for SubmitBatch).
func (db *DB) DeleteMany(ctx context.Context, collection string, ids []Value, aliasName string) (int64, error) {
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return 0, err
	}
	invalidate(a, collection)

	reqs := make([]*worker.Request, len(ids))
	for i, id := range ids {
		reqs[i] = &worker.Request{Op: worker.OpDeleteByID, Collection: collection, ID: id}
	}
	responses := a.SubmitBatch(ctx, reqs)

	var deleted int64
	for _, resp := range responses {
		if resp.Err != nil {
			return deleted, resp.Err
		}
		if resp.Exists {
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of records matching conditions.
func (db *DB) Count(ctx context.Context, collection string, conditions []Condition, aliasName string) (int64, error) {
	if err := db.validateConditionFields(collection, conditions); err != nil {
		return 0, err
	}
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return 0, err
	}
	if err := checkOperatorSupport(a, conditions); err != nil {
		return 0, err
	}
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpCount, Collection: collection, Conditions: conditions})
	return resp.Count, resp.Err
}

// Exists reports whether any record matches conditions.
func (db *DB) Exists(ctx context.Context, collection string, conditions []Condition, aliasName string) (bool, error) {
	if err := db.validateConditionFields(collection, conditions); err != nil {
		return false, err
	}
	a, err := db.dir.Resolve(aliasName)
	if err != nil {
		return false, err
	}
	if err := checkOperatorSupport(a, conditions); err != nil {
		return false, err
	}
	resp := a.Submit(ctx, &worker.Request{Op: worker.OpExists, Collection: collection, Conditions: conditions})
	return resp.Exists, resp.Err
}

func invalidate(a *alias.Alias, collection string) {
	if c := a.Cache(); c != nil {
		c.Invalidate(collection)
	}
}
