// Package sqlite implements adapter.Backend over database/sql and
// github.com/mattn/go-sqlite3, grounded on the teacher's pkg/client/sqlite.go
// (database/sql handle, quoted identifiers) and
// internal/follower/sqlite_helpers.go's ensureCollectionTableAndIndexes DDL
// shape, generalized to the full FieldType/Operator sets. Create issues a
// plain INSERT, so a duplicate id fails instead of replacing the row.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/adapter/sqlbuilder"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

var dialect = sqlbuilder.Dialect{
	Name:        "sqlite",
	Placeholder: sqlbuilder.PositionalPlaceholder,
	QuoteIdent:  sqlbuilder.QuoteDouble,
	ColumnType:  columnType,
}

func columnType(ft valuedomain.FieldType) string {
	switch ft.Kind {
	case valuedomain.FieldInteger:
		return "INTEGER"
	case valuedomain.FieldFloat:
		return "REAL"
	case valuedomain.FieldBoolean:
		return "INTEGER"
	case valuedomain.FieldDateTime:
		return "TEXT"
	case valuedomain.FieldUuid, valuedomain.FieldObjectId, valuedomain.FieldString, valuedomain.FieldReference:
		return "TEXT"
	case valuedomain.FieldJson, valuedomain.FieldArray, valuedomain.FieldObject:
		return "TEXT" // JSON-encoded; SQLite has no native JSON column type
	default:
		return "TEXT"
	}
}

// Open opens a *sql.DB for dbPath, matching the teacher's single-writer
// SetMaxOpenConns(1) discipline from pkg/client/sqlite.go:openSQLiteDB —
// mattn/go-sqlite3 serializes writers internally, so pool.Pool's own
// min/max accounting is kept at MaxConns=1 for this adapter by convention,
// not enforced here.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dbPath, err)
	}
	return db, nil
}

// Backend implements adapter.Backend for SQLite.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Kind() string { return "sqlite" }

func db(conn any) (*sql.DB, error) {
	d, ok := conn.(*sql.DB)
	if !ok {
		return nil, errs.New(errs.KindInternal, "sqlite adapter received a non-*sql.DB connection handle")
	}
	return d, nil
}

func (b *Backend) CreateTable(ctx context.Context, conn any, meta model.ModelMeta) error {
	d, err := db(conn)
	if err != nil {
		return err
	}
	stmt, err := sqlbuilder.CreateTableSQL(dialect, meta)
	if err != nil {
		return err
	}
	if _, err := d.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindTransportError, "sqlite: create table failed", err).WithCollection(meta.Collection)
	}
	return nil
}

func (b *Backend) CreateIndex(ctx context.Context, conn any, collection string, index model.IndexDef) error {
	d, err := db(conn)
	if err != nil {
		return err
	}
	stmt := sqlbuilder.CreateIndexSQL(dialect, collection, index)
	if _, err := d.ExecContext(ctx, stmt); err != nil {
		return errs.Wrap(errs.KindTransportError, "sqlite: create index failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, conn any, collection string) (bool, error) {
	d, err := db(conn)
	if err != nil {
		return false, err
	}
	var name string
	row := d.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name = ?", collection)
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, errs.Wrap(errs.KindTransportError, "sqlite: table_exists query failed", err).WithCollection(collection)
	}
	return true, nil
}

func (b *Backend) DropTable(ctx context.Context, conn any, collection string) error {
	d, err := db(conn)
	if err != nil {
		return err
	}
	if _, err := d.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", dialect.QuoteIdent(collection))); err != nil {
		return errs.Wrap(errs.KindTransportError, "sqlite: drop table failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) ServerVersion(ctx context.Context, conn any) (string, error) {
	d, err := db(conn)
	if err != nil {
		return "", err
	}
	var version string
	if err := d.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return "", errs.Wrap(errs.KindTransportError, "sqlite: version query failed", err)
	}
	return version, nil
}

func (b *Backend) Create(ctx context.Context, conn any, collection string, record adapter.Record, meta model.ModelMeta) (valuedomain.Value, error) {
	d, err := db(conn)
	if err != nil {
		return valuedomain.Value{}, err
	}

	cols := make([]string, 0, len(record))
	placeholders := make([]string, 0, len(record))
	args := make([]any, 0, len(record))
	for field, v := range record {
		cols = append(cols, dialect.QuoteIdent(field))
		placeholders = append(placeholders, "?")
		arg, encErr := encodeForStorage(field, v, meta)
		if encErr != nil {
			return valuedomain.Value{}, encErr
		}
		args = append(args, arg)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dialect.QuoteIdent(collection), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	res, err := d.ExecContext(ctx, stmt, args...)
	if err != nil {
		return valuedomain.Value{}, translateWriteError(err, collection)
	}
	if id, ok := record["id"]; ok {
		return id, nil
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return valuedomain.Value{}, errs.Wrap(errs.KindTransportError, "sqlite: last_insert_id failed", err).WithCollection(collection)
	}
	return valuedomain.NewInt(rowID), nil
}

func (b *Backend) FindByID(ctx context.Context, conn any, collection string, id valuedomain.Value, meta model.ModelMeta) (adapter.Record, bool, error) {
	d, err := db(conn)
	if err != nil {
		return nil, false, err
	}
	idField := "id"
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", dialect.QuoteIdent(collection), dialect.QuoteIdent(idField))
	rows, err := d.QueryContext(ctx, stmt, sqlbuilder.NativeValue(id))
	if err != nil {
		return nil, false, translateQueryError(err, collection)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, nil
	}
	rec, err := scanRecord(rows, meta)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (b *Backend) Find(ctx context.Context, conn any, collection string, conditions []adapter.Condition, options adapter.FindOptions, meta model.ModelMeta) ([]adapter.Record, error) {
	d, err := db(conn)
	if err != nil {
		return nil, err
	}
	where, args, err := sqlbuilder.BuildWhere(dialect, conditions, 1)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s%s", dialect.QuoteIdent(collection), where, sqlbuilder.BuildOrderLimit(dialect, options))

	rows, err := d.QueryContext(ctx, stmt, args...)
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
	d, err := db(conn)
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
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", dialect.QuoteIdent(field)))
		args = append(args, enc)
		argIdx++
	}
	where, whereArgs, err := sqlbuilder.BuildWhere(dialect, conditions, argIdx)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", dialect.QuoteIdent(collection), strings.Join(setClauses, ", "), where)
	res, err := d.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, translateWriteError(err, collection)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (b *Backend) UpdateByID(ctx context.Context, conn any, collection string, id valuedomain.Value, patch adapter.Patch, meta model.ModelMeta) (bool, error) {
	n, err := b.Update(ctx, conn, collection, []adapter.Condition{{Field: "id", Operator: adapter.OpEq, Value: id}}, patch, meta)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Delete(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	d, err := db(conn)
	if err != nil {
		return 0, err
	}
	where, args, err := sqlbuilder.BuildWhere(dialect, conditions, 1)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", dialect.QuoteIdent(collection), where)
	res, err := d.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errs.Wrap(errs.KindTransportError, "sqlite: delete failed", err).WithCollection(collection)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (b *Backend) DeleteByID(ctx context.Context, conn any, collection string, id valuedomain.Value) (bool, error) {
	n, err := b.Delete(ctx, conn, collection, []adapter.Condition{{Field: "id", Operator: adapter.OpEq, Value: id}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Count(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	d, err := db(conn)
	if err != nil {
		return 0, err
	}
	where, args, err := sqlbuilder.BuildWhere(dialect, conditions, 1)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", dialect.QuoteIdent(collection), where)
	var n int64
	if err := d.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, errs.Wrap(errs.KindTransportError, "sqlite: count failed", err).WithCollection(collection)
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

func scanRecord(rows *sql.Rows, meta model.ModelMeta) (adapter.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransportError, "sqlite: columns introspection failed", err)
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errs.Wrap(errs.KindTransportError, "sqlite: row scan failed", err)
	}

	rec := make(adapter.Record, len(cols))
	for i, col := range cols {
		def, _ := meta.Field(col)
		rec[col] = decodeFromStorage(raw[i], def)
	}
	return rec, nil
}

// encodeForStorage converts a ValueDomain value into the driver-native type
// SQLite stores, JSON-encoding Array/Object since SQLite has no native
// structured column type. When field is declared Uuid or ObjectId and the
// caller handed us a plain string, it is validated here so a malformed
// identifier fails at write time with InvalidValue (spec.md §4.1) rather
// than being stored unchecked.
func encodeForStorage(field string, v valuedomain.Value, meta model.ModelMeta) (any, error) {
	if def, ok := meta.Field(field); ok && v.Kind() == valuedomain.KindString {
		s, _ := v.String()
		switch def.Type.Kind {
		case valuedomain.FieldUuid:
			uv, err := valuedomain.NewUuid(s)
			if err != nil {
				return nil, errs.Wrap(errs.KindInvalidValue, "sqlite: malformed uuid", err).WithField(field)
			}
			v = uv
		case valuedomain.FieldObjectId:
			ov, err := valuedomain.NewObjectId(s)
			if err != nil {
				return nil, errs.Wrap(errs.KindInvalidValue, "sqlite: malformed object id", err).WithField(field)
			}
			v = ov
		}
	}
	switch v.Kind() {
	case valuedomain.KindArray, valuedomain.KindObject:
		rec, err := jsonEncodeValue(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindSerializationError, "sqlite: encode JSON field", err)
		}
		return rec, nil
	default:
		return sqlbuilder.NativeValue(v), nil
	}
}

func jsonEncodeValue(v valuedomain.Value) (string, error) {
	goVal, err := toGoValue(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(goVal)
	if err != nil {
		return "", err
	}
	return string(b), nil
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

// decodeFromStorage converts a raw database/sql scan result back into a
// ValueDomain. def is the column's declared FieldType, if any; when it names
// Boolean, the INTEGER SQLite stores is coerced back to Bool via
// valuedomain.CoerceBool instead of surfacing as a bare Int, satisfying
// spec.md §8's boolean round-trip law. An unregistered collection (def's
// zero value) falls back to the driver's native-type guess.
func decodeFromStorage(raw any, def valuedomain.FieldDefinition) valuedomain.Value {
	if def.Type.Kind == valuedomain.FieldBoolean {
		if b, ok := valuedomain.CoerceBool(raw); ok {
			return valuedomain.NewBool(b)
		}
	}
	if s, ok := raw.(string); ok {
		switch def.Type.Kind {
		case valuedomain.FieldUuid:
			if v, err := valuedomain.NewUuid(s); err == nil {
				return v
			}
		case valuedomain.FieldObjectId:
			if v, err := valuedomain.NewObjectId(s); err == nil {
				return v
			}
		}
	}
	switch t := raw.(type) {
	case nil:
		return valuedomain.Null()
	case int64:
		return valuedomain.NewInt(t)
	case float64:
		return valuedomain.NewFloat(t)
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

// translateQueryError distinguishes a read against a table that was never
// created from any other driver failure, returning the unified
// TableNotExistError of spec.md §4.6 scenario S5 instead of a generic
// TransportError.
func translateQueryError(err error, collection string) error {
	if strings.Contains(err.Error(), "no such table") {
		return errs.TableNotExist(collection)
	}
	return errs.Wrap(errs.KindTransportError, "sqlite: query failed", err).WithCollection(collection)
}

func translateWriteError(err error, collection string) error {
	if strings.Contains(err.Error(), "no such table") {
		return errs.TableNotExist(collection)
	}
	if strings.Contains(err.Error(), "constraint failed") {
		return errs.Wrap(errs.KindConstraintViolation, "sqlite: constraint violation", err).WithCollection(collection)
	}
	return errs.Wrap(errs.KindTransportError, "sqlite: write failed", err).WithCollection(collection)
}

var _ adapter.Backend = (*Backend)(nil)
