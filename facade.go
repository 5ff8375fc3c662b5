package quickdb

import "context"

// The package-level functions below are the Facade of spec.md §4.8/§6: "the
// core exposes only the facade functions." Each delegates to DefaultDB,
// matching spec.md §9's "created on first use" via this package's own
// load-time initialization of DefaultDB.

// AddDatabase registers a new alias.
func AddDatabase(ctx context.Context, cfg DatabaseConfig) error {
	return DefaultDB.AddDatabase(ctx, cfg)
}

// RemoveDatabase drains and tears down an alias.
func RemoveDatabase(aliasName string) error {
	return DefaultDB.RemoveDatabase(aliasName)
}

// SetDefaultAlias mutates which alias an omitted alias name resolves to.
func SetDefaultAlias(aliasName string) error {
	return DefaultDB.SetDefaultAlias(aliasName)
}

// ListAliases returns a snapshot of every registered alias.
func ListAliases() []AliasInfo {
	return DefaultDB.ListAliases()
}

// CacheStats returns aliasName's cache counters.
func CacheStats(aliasName string) (CacheSnapshot, error) {
	return DefaultDB.CacheStats(aliasName)
}

// ClearCache empties aliasName's cache.
func ClearCache(aliasName string) error {
	return DefaultDB.ClearCache(aliasName)
}

// ClearAllCaches empties every registered alias's cache.
func ClearAllCaches() {
	DefaultDB.ClearAllCaches()
}

// RegisterModel registers meta and ensures its backing table/collection and
// indexes exist, at most once per (alias, collection).
func RegisterModel(ctx context.Context, meta ModelMeta) error {
	return DefaultDB.RegisterModel(ctx, meta)
}

// Create inserts record into collection and returns the assigned ID.
// aliasName empty uses the current default alias.
func Create(ctx context.Context, collection string, record Record, aliasName string) (Value, error) {
	return DefaultDB.Create(ctx, collection, record, aliasName)
}

// FindByID looks up a single record by ID.
func FindByID(ctx context.Context, collection string, id Value, aliasName string) (Record, bool, error) {
	return DefaultDB.FindByID(ctx, collection, id, aliasName)
}

// Find returns every record matching conditions.
func Find(ctx context.Context, collection string, conditions []Condition, options FindOptions, aliasName string) ([]Record, error) {
	return DefaultDB.Find(ctx, collection, conditions, options, aliasName)
}

// FindWithConfig is Find with case_insensitive applied to every condition.
func FindWithConfig(ctx context.Context, collection string, conditions []Condition, options FindOptions, caseInsensitive bool, aliasName string) ([]Record, error) {
	return DefaultDB.FindWithConfig(ctx, collection, conditions, options, caseInsensitive, aliasName)
}

// FindWithCacheControl is Find with an explicit per-call cache bypass.
func FindWithCacheControl(ctx context.Context, collection string, conditions []Condition, options FindOptions, bypassCache bool, aliasName string) ([]Record, error) {
	return DefaultDB.FindWithCacheControl(ctx, collection, conditions, options, bypassCache, aliasName)
}

// Update applies patch to every record matching conditions.
func Update(ctx context.Context, collection string, conditions []Condition, patch Patch, aliasName string) (int64, error) {
	return DefaultDB.Update(ctx, collection, conditions, patch, aliasName)
}

// UpdateByID applies patch to the single record with the given ID.
func UpdateByID(ctx context.Context, collection string, id Value, patch Patch, aliasName string) (bool, error) {
	return DefaultDB.UpdateByID(ctx, collection, id, patch, aliasName)
}

// Delete removes every record matching conditions.
func Delete(ctx context.Context, collection string, conditions []Condition, aliasName string) (int64, error) {
	return DefaultDB.Delete(ctx, collection, conditions, aliasName)
}

// DeleteByID removes the single record with the given ID.
func DeleteByID(ctx context.Context, collection string, id Value, aliasName string) (bool, error) {
	return DefaultDB.DeleteByID(ctx, collection, id, aliasName)
}

// DeleteMany removes every record in ids concurrently.
func DeleteMany(ctx context.Context, collection string, ids []Value, aliasName string) (int64, error) {
	return DefaultDB.DeleteMany(ctx, collection, ids, aliasName)
}

// Count returns the number of records matching conditions.
func Count(ctx context.Context, collection string, conditions []Condition, aliasName string) (int64, error) {
	return DefaultDB.Count(ctx, collection, conditions, aliasName)
}

// Exists reports whether any record matches conditions.
func Exists(ctx context.Context, collection string, conditions []Condition, aliasName string) (bool, error) {
	return DefaultDB.Exists(ctx, collection, conditions, aliasName)
}
