// Package adapter defines the BackendAdapter trait of spec.md §4.6 and the
// shared query types every backend implementation translates into its own
// native queries. The four concrete adapters (sqlite, postgres, mysql,
// mongo) live in their own sub-packages under internal/adapter.
package adapter

import (
	"context"

	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// Record is a single stored row/document decoded into ValueDomain, keyed by
// field name.
type Record map[string]valuedomain.Value

// Operator enumerates the query condition operators of spec.md §4.6.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNotIn
	OpContains
	OpStartsWith
	OpEndsWith
	OpRegex
	OpExists
	OpIsNull
	OpIsNotNull
	OpJsonContains
)

// Condition is QueryCondition from spec.md §4.6.
type Condition struct {
	Field           string
	Operator        Operator
	Value           valuedomain.Value
	CaseInsensitive bool
}

// SortDirection orders a Sort clause.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// Sort is one field/direction pair in FindOptions.Sort.
type Sort struct {
	Field     string
	Direction SortDirection
}

// FindOptions is the `options` parameter of spec.md §4.6's find operation.
type FindOptions struct {
	Sort       []Sort
	Skip       int64
	Limit      int64
	Projection []string
}

// Patch is a partial-update payload: field name to new value. A field
// mapped to valuedomain.Null() is an explicit null write, distinct from an
// absent field (which is left untouched).
type Patch map[string]valuedomain.Value

// Backend is the polymorphic BackendAdapter trait of spec.md §4.6. Conn is
// an opaque, backend-specific connection handle produced by that backend's
// pool/worker pairing (an internal/pool.Pool[C] for the SQL backends, a
// *mongo.Client session-scoped handle for Mongo).
type Backend interface {
	Create(ctx context.Context, conn any, collection string, record Record, meta model.ModelMeta) (valuedomain.Value, error)
	FindByID(ctx context.Context, conn any, collection string, id valuedomain.Value, meta model.ModelMeta) (Record, bool, error)
	Find(ctx context.Context, conn any, collection string, conditions []Condition, options FindOptions, meta model.ModelMeta) ([]Record, error)
	Update(ctx context.Context, conn any, collection string, conditions []Condition, patch Patch, meta model.ModelMeta) (int64, error)
	UpdateByID(ctx context.Context, conn any, collection string, id valuedomain.Value, patch Patch, meta model.ModelMeta) (bool, error)
	Delete(ctx context.Context, conn any, collection string, conditions []Condition) (int64, error)
	DeleteByID(ctx context.Context, conn any, collection string, id valuedomain.Value) (bool, error)
	Count(ctx context.Context, conn any, collection string, conditions []Condition) (int64, error)
	Exists(ctx context.Context, conn any, collection string, conditions []Condition) (bool, error)

	CreateTable(ctx context.Context, conn any, meta model.ModelMeta) error
	CreateIndex(ctx context.Context, conn any, collection string, index model.IndexDef) error
	TableExists(ctx context.Context, conn any, collection string) (bool, error)
	DropTable(ctx context.Context, conn any, collection string) error
	ServerVersion(ctx context.Context, conn any) (string, error)

	// Kind identifies which of {sqlite, postgres, mysql, mongo} this is,
	// for diagnostics and for the JsonContains support matrix.
	Kind() string
}

// SupportsJsonContains reports whether kind implements the JsonContains
// operator, per spec.md §4.6: implemented on Postgres and MongoDB,
// explicitly unsupported on MySQL and SQLite.
func SupportsJsonContains(kind string) bool {
	return kind == "postgres" || kind == "mongo"
}
