// Package quickdb is a single, uniform data-access API over four
// heterogeneous backends — SQLite, PostgreSQL, MySQL, and MongoDB — per
// spec.md's ODM specification. It exposes only the facade functions of
// spec.md §4.8/§6: alias lifecycle, cache introspection, model registry,
// and untyped record operations, plus the generic ModelManager[T] for
// typed access. Grounded on the teacher's pkg/client/client.go public API
// shape: a struct wrapping internal state, a constructor validating
// config, context-first methods, and wrapped errors.
package quickdb

import (
	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/alias"
	"github.com/quickdb/quickdb/internal/cache"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/pool"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// Value is ValueDomain from spec.md §3, the single interchange
// representation between callers, the cache, the worker, and adapters.
type Value = valuedomain.Value

// Record is a single stored row/document keyed by field name.
type Record = adapter.Record

// Patch is a partial-update payload: field name to new value.
type Patch = adapter.Patch

// Operator enumerates the query condition operators of spec.md §4.6.
type Operator = adapter.Operator

const (
	OpEq           = adapter.OpEq
	OpNe           = adapter.OpNe
	OpGt           = adapter.OpGt
	OpGte          = adapter.OpGte
	OpLt           = adapter.OpLt
	OpLte          = adapter.OpLte
	OpIn           = adapter.OpIn
	OpNotIn        = adapter.OpNotIn
	OpContains     = adapter.OpContains
	OpStartsWith   = adapter.OpStartsWith
	OpEndsWith     = adapter.OpEndsWith
	OpRegex        = adapter.OpRegex
	OpExists       = adapter.OpExists
	OpIsNull       = adapter.OpIsNull
	OpIsNotNull    = adapter.OpIsNotNull
	OpJsonContains = adapter.OpJsonContains
)

// Condition is QueryCondition from spec.md §4.6.
type Condition = adapter.Condition

// SortDirection orders a Sort clause.
type SortDirection = adapter.SortDirection

const (
	Asc  = adapter.Asc
	Desc = adapter.Desc
)

// Sort is one field/direction pair in FindOptions.Sort.
type Sort = adapter.Sort

// FindOptions is the `options` parameter of spec.md §4.6's find operation.
type FindOptions = adapter.FindOptions

// FieldType describes the declared shape of a field per spec.md §3.
type FieldType = valuedomain.FieldType

// FieldDefinition is the per-field schema entry of spec.md §3.
type FieldDefinition = valuedomain.FieldDefinition

// IdStrategy describes how new primary keys are produced, per spec.md §3/§4.3.
type IdStrategy = valuedomain.IdStrategy

var (
	AutoIncrement   = valuedomain.AutoIncrement
	UuidStrategy    = valuedomain.UuidStrategy
	Snowflake       = valuedomain.Snowflake
	ObjectIdStrategy = valuedomain.ObjectIdStrategy
	CustomPrefix    = valuedomain.CustomPrefix
)

// FieldEntry pairs a field name with its definition, in declaration order.
type FieldEntry = model.FieldEntry

// IndexDef is the per-index schema entry of spec.md §3.
type IndexDef = model.IndexDef

// ModelMeta is the per-collection schema entry of spec.md §3.
type ModelMeta = model.ModelMeta

// PoolConfig configures a per-alias ConnectionPool, per spec.md §4.5.
type PoolConfig = pool.Config

// CacheConfig configures a per-alias two-tier Cache, per spec.md §4.4.
type CacheConfig = cache.Config

// CacheSnapshot is a read-only snapshot of one alias's cache counters
// (named to avoid colliding with the CacheStats facade function).
type CacheSnapshot = cache.Stats

// DatabaseConfig is the caller-constructed configuration of spec.md §6.
type DatabaseConfig = alias.DatabaseConfig

// Kind-specific connection variants for DatabaseConfig.Connection.
type (
	SqliteConnection = alias.SqliteConnection
	SQLConnection    = alias.SQLConnection
	MongoConnection  = alias.MongoConnection
	MongoAuth        = alias.MongoAuth
)

// Backend kind discriminants for DatabaseConfig.Kind.
const (
	Sqlite   = alias.KindSqlite
	Postgres = alias.KindPostgres
	MySQL    = alias.KindMySQL
	Mongo    = alias.KindMongo
)

// AliasInfo is a read-only snapshot of one registered alias.
type AliasInfo = alias.Info
