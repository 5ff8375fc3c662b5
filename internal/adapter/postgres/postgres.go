// Package postgres implements adapter.Backend over pgx/v5's pgxpool,
// grounded on the teacher's internal/db/db.go (pgxpool.Pool, $N-numbered
// queries, pgx.ErrNoRows handling) and internal/follower/sqlite_helpers.go's
// DDL shape, generalized to the full FieldType/Operator sets and to
// Postgres's native JSONB containment operator.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/adapter/sqlbuilder"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

var dialect = sqlbuilder.Dialect{
	Name:         "postgres",
	Placeholder:  sqlbuilder.DollarPlaceholder,
	QuoteIdent:   sqlbuilder.QuoteDouble,
	ColumnType:   columnType,
	SupportsJSON: true,
}

func columnType(ft valuedomain.FieldType) string {
	switch ft.Kind {
	case valuedomain.FieldInteger:
		return "BIGINT"
	case valuedomain.FieldFloat:
		return "DOUBLE PRECISION"
	case valuedomain.FieldBoolean:
		return "BOOLEAN"
	case valuedomain.FieldDateTime:
		return "TIMESTAMPTZ"
	case valuedomain.FieldUuid:
		return "UUID"
	case valuedomain.FieldObjectId, valuedomain.FieldString, valuedomain.FieldReference:
		return "TEXT"
	case valuedomain.FieldJson, valuedomain.FieldArray, valuedomain.FieldObject:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// Connect opens a pgxpool.Pool for databaseURL, matching the teacher's
// db.ConnectPostgres shape.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return pool, nil
}

// Backend implements adapter.Backend for Postgres.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Kind() string { return "postgres" }

func pool(conn any) (*pgxpool.Pool, error) {
	p, ok := conn.(*pgxpool.Pool)
	if !ok {
		return nil, errs.New(errs.KindInternal, "postgres adapter received a non-*pgxpool.Pool connection handle")
	}
	return p, nil
}

func (b *Backend) CreateTable(ctx context.Context, conn any, meta model.ModelMeta) error {
	p, err := pool(conn)
	if err != nil {
		return err
	}
	stmt, err := sqlbuilder.CreateTableSQL(dialect, meta)
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindTransportError, "postgres: create table failed", err).WithCollection(meta.Collection)
	}
	return nil
}

func (b *Backend) CreateIndex(ctx context.Context, conn any, collection string, index model.IndexDef) error {
	p, err := pool(conn)
	if err != nil {
		return err
	}
	stmt := sqlbuilder.CreateIndexSQL(dialect, collection, index)
	if _, err := p.Exec(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindTransportError, "postgres: create index failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, conn any, collection string) (bool, error) {
	p, err := pool(conn)
	if err != nil {
		return false, err
	}
	var exists bool
	row := p.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", collection)
	if err := row.Scan(&exists); err != nil {
		return false, errs.Wrap(errs.KindTransportError, "postgres: table_exists query failed", err).WithCollection(collection)
	}
	return exists, nil
}

func (b *Backend) DropTable(ctx context.Context, conn any, collection string) error {
	p, err := pool(conn)
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", dialect.QuoteIdent(collection))); err != nil {
		return errs.Wrap(errs.KindTransportError, "postgres: drop table failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) ServerVersion(ctx context.Context, conn any) (string, error) {
	p, err := pool(conn)
	if err != nil {
		return "", err
	}
	var version string
	if err := p.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", errs.Wrap(errs.KindTransportError, "postgres: version query failed", err)
	}
	return version, nil
}

func (b *Backend) Create(ctx context.Context, conn any, collection string, record adapter.Record, meta model.ModelMeta) (valuedomain.Value, error) {
	p, err := pool(conn)
	if err != nil {
		return valuedomain.Value{}, err
	}

	cols := make([]string, 0, len(record))
	placeholders := make([]string, 0, len(record))
	args := make([]any, 0, len(record))
	argIdx := 1
	for field, v := range record {
		cols = append(cols, dialect.QuoteIdent(field))
		enc, encErr := encodeForStorage(field, v, meta)
		if encErr != nil {
			return valuedomain.Value{}, encErr
		}
		placeholders = append(placeholders, dialect.Placeholder(argIdx))
		args = append(args, enc)
		argIdx++
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dialect.QuoteIdent(collection), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := p.Exec(ctx, stmt, args...); err != nil {
		return valuedomain.Value{}, translateWriteError(err, collection)
	}
	return record["id"], nil
}

func (b *Backend) FindByID(ctx context.Context, conn any, collection string, id valuedomain.Value, meta model.ModelMeta) (adapter.Record, bool, error) {
	p, err := pool(conn)
	if err != nil {
		return nil, false, err
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", dialect.QuoteIdent(collection), dialect.QuoteIdent("id"))
	rows, err := p.Query(ctx, stmt, sqlbuilder.NativeValue(id))
	if err != nil {
		return nil, false, translateQueryError(err, collection)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	rec, err := scanRecord(rows, meta)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (b *Backend) Find(ctx context.Context, conn any, collection string, conditions []adapter.Condition, options adapter.FindOptions, meta model.ModelMeta) ([]adapter.Record, error) {
	p, err := pool(conn)
	if err != nil {
		return nil, err
	}
	where, args, err := buildWhereWithJSON(conditions, 1)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s%s", dialect.QuoteIdent(collection), where, sqlbuilder.BuildOrderLimit(dialect, options))

	rows, err := p.Query(ctx, stmt, args...)
	if err != nil {
		return nil, translateQueryError(err, collection)
	}
	defer rows.Close()

	var out []adapter.Record
	for rows.Next() {
		rec, err := scanRecord(rows, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *Backend) Update(ctx context.Context, conn any, collection string, conditions []adapter.Condition, patch adapter.Patch, meta model.ModelMeta) (int64, error) {
	p, err := pool(conn)
	if err != nil {
		return 0, err
	}

	setClauses := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch))
	argIdx := 1
	for field, v := range patch {
		enc, encErr := encodeForStorage(field, v, meta)
		if encErr != nil {
			return 0, encErr
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", dialect.QuoteIdent(field), dialect.Placeholder(argIdx)))
		args = append(args, enc)
		argIdx++
	}
	where, whereArgs, err := buildWhereWithJSON(conditions, argIdx)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", dialect.QuoteIdent(collection), strings.Join(setClauses, ", "), where)
	tag, err := p.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, translateWriteError(err, collection)
	}
	return tag.RowsAffected(), nil
}

func (b *Backend) UpdateByID(ctx context.Context, conn any, collection string, id valuedomain.Value, patch adapter.Patch, meta model.ModelMeta) (bool, error) {
	n, err := b.Update(ctx, conn, collection, []adapter.Condition{{Field: "id", Operator: adapter.OpEq, Value: id}}, patch, meta)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Delete(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	p, err := pool(conn)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhereWithJSON(conditions, 1)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", dialect.QuoteIdent(collection), where)
	tag, err := p.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, errs.Wrap(errs.KindTransportError, "postgres: delete failed", err).WithCollection(collection)
	}
	return tag.RowsAffected(), nil
}

func (b *Backend) DeleteByID(ctx context.Context, conn any, collection string, id valuedomain.Value) (bool, error) {
	n, err := b.Delete(ctx, conn, collection, []adapter.Condition{{Field: "id", Operator: adapter.OpEq, Value: id}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Count(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	p, err := pool(conn)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhereWithJSON(conditions, 1)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", dialect.QuoteIdent(collection), where)
	var n int64
	if err := p.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.KindTransportError, "postgres: count failed", err).WithCollection(collection)
	}
	return n, nil
}

func (b *Backend) Exists(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (bool, error) {
	n, err := b.Count(ctx, conn, collection, conditions)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// buildWhereWithJSON extends sqlbuilder.BuildWhere with Postgres's JSONB
// containment operator, which the shared dialect-agnostic layer rejects
// (sqlbuilder has no way to express "@>" generically since only Postgres
// and Mongo support JsonContains per spec.md §4.6).
func buildWhereWithJSON(conditions []adapter.Condition, startArg int) (string, []any, error) {
	plain := make([]adapter.Condition, 0, len(conditions))
	var jsonClauses []string
	var jsonArgs []any
	nextArg := startArg

	for _, c := range conditions {
		if c.Operator != adapter.OpJsonContains {
			plain = append(plain, c)
			continue
		}
		enc, err := jsonEncodeValue(c.Value)
		if err != nil {
			return "", nil, errs.Wrap(errs.KindSerializationError, "postgres: encode JsonContains operand", err).WithField(c.Field)
		}
		jsonClauses = append(jsonClauses, fmt.Sprintf("%s @> %s::jsonb", dialect.QuoteIdent(c.Field), dialect.Placeholder(nextArg)))
		jsonArgs = append(jsonArgs, enc)
		nextArg++
	}

	// Plain conditions are numbered to start right after the JSON args so
	// the combined argument slice lines up with the placeholders in both
	// clause groups.
	where, plainArgs, err := sqlbuilder.BuildWhere(dialect, plain, startArg+len(jsonArgs))
	if err != nil {
		return "", nil, err
	}

	allArgs := append(jsonArgs, plainArgs...)
	if len(jsonClauses) == 0 {
		return where, allArgs, nil
	}
	if where == "1=1" {
		return strings.Join(jsonClauses, " AND "), allArgs, nil
	}
	return strings.Join(jsonClauses, " AND ") + " AND " + where, allArgs, nil
}

func scanRecord(rows pgx.Rows, meta model.ModelMeta) (adapter.Record, error) {
	fields := rows.FieldDescriptions()
	raw, err := rows.Values()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportError, "postgres: row scan failed", err)
	}
	rec := make(adapter.Record, len(fields))
	for i, f := range fields {
		name := string(f.Name)
		def, _ := meta.Field(name)
		rec[name] = decodeFromStorage(raw[i], def)
	}
	return rec, nil
}

// encodeForStorage converts a ValueDomain value into the driver-native type
// pgx expects. A String value written to a field declared Uuid is validated
// here via valuedomain.NewUuid, per spec.md §4.1: "a malformed Uuid fails
// with InvalidValue" rather than being handed to pgx and surfacing as a
// generic driver error.
func encodeForStorage(field string, v valuedomain.Value, meta model.ModelMeta) (any, error) {
	if def, ok := meta.Field(field); ok && v.Kind() == valuedomain.KindString && def.Type.Kind == valuedomain.FieldUuid {
		s, _ := v.String()
		uv, err := valuedomain.NewUuid(s)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidValue, "postgres: malformed uuid", err).WithField(field)
		}
		v = uv
	}
	switch v.Kind() {
	case valuedomain.KindArray, valuedomain.KindObject:
		enc, err := jsonEncodeValue(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindSerializationError, "postgres: encode JSONB field", err)
		}
		return enc, nil
	default:
		return sqlbuilder.NativeValue(v), nil
	}
}

func jsonEncodeValue(v valuedomain.Value) ([]byte, error) {
	goVal, err := toGoValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(goVal)
}

func toGoValue(v valuedomain.Value) (any, error) {
	switch v.Kind() {
	case valuedomain.KindNull:
		return nil, nil
	case valuedomain.KindBool:
		b, _ := v.Bool()
		return b, nil
	case valuedomain.KindInt:
		n, _ := v.Int()
		return n, nil
	case valuedomain.KindFloat:
		f, _ := v.Float()
		return f, nil
	case valuedomain.KindString, valuedomain.KindUuid, valuedomain.KindObjectId:
		s, _ := v.String()
		return s, nil
	case valuedomain.KindArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, item := range arr {
			gv, err := toGoValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = gv
		}
		return out, nil
	case valuedomain.KindObject:
		obj, _ := v.Object()
		out := make(map[string]any, len(obj))
		for k, item := range obj {
			gv, err := toGoValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %v for JSON encoding", v.Kind())
	}
}

// decodeFromStorage converts a pgx-decoded value back into a best-effort
// ValueDomain. pgx already decodes most Postgres types into native Go
// types, unlike database/sql's driver.Value restrictions — a UUID column
// in particular comes back as [16]byte, which is converted here via
// google/uuid and re-tagged KindUuid instead of falling into the generic
// fmt.Sprintf branch, per spec.md §8's round-trip law.
func decodeFromStorage(raw any, def valuedomain.FieldDefinition) valuedomain.Value {
	if b, ok := raw.([16]byte); ok {
		if v, err := valuedomain.NewUuid(uuid.UUID(b).String()); err == nil {
			return v
		}
	}
	if s, ok := raw.(string); ok && def.Type.Kind == valuedomain.FieldObjectId {
		if v, err := valuedomain.NewObjectId(s); err == nil {
			return v
		}
	}
	switch t := raw.(type) {
	case nil:
		return valuedomain.Null()
	case int64:
		return valuedomain.NewInt(t)
	case int32:
		return valuedomain.NewInt(int64(t))
	case float64:
		return valuedomain.NewFloat(t)
	case float32:
		return valuedomain.NewFloat(float64(t))
	case string:
		return valuedomain.NewString(t)
	case []byte:
		return valuedomain.NewString(string(t))
	case bool:
		return valuedomain.NewBool(t)
	default:
		return valuedomain.NewString(fmt.Sprintf("%v", t))
	}
}

// undefinedTable is Postgres's SQLSTATE for "relation does not exist",
// surfaced whenever a query or write targets a table that was never
// created — spec.md §4.6 scenario S5.
const undefinedTable = "42P01"

func translateQueryError(err error, collection string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return errs.TableNotExist(collection)
	}
	return errs.Wrap(errs.KindTransportError, "postgres: query failed", err).WithCollection(collection)
}

func translateWriteError(err error, collection string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return errs.TableNotExist(collection)
	}
	msg := err.Error()
	if strings.Contains(msg, "violates unique constraint") || strings.Contains(msg, "violates foreign key constraint") || strings.Contains(msg, "violates not-null constraint") {
		return errs.Wrap(errs.KindConstraintViolation, "postgres: constraint violation", err).WithCollection(collection)
	}
	return errs.Wrap(errs.KindTransportError, "postgres: write failed", err).WithCollection(collection)
}

var _ adapter.Backend = (*Backend)(nil)
