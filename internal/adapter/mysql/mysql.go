// Package mysql implements adapter.Backend over database/sql and
// github.com/go-sql-driver/mysql, grounded on the same
// internal/follower/sqlite_helpers.go DDL shape as the sqlite adapter,
// generalized to MySQL's backtick-quoted identifiers and REGEXP operator.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/adapter/sqlbuilder"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

var dialect = sqlbuilder.Dialect{
	Name:        "mysql",
	Placeholder: sqlbuilder.PositionalPlaceholder,
	QuoteIdent:  sqlbuilder.QuoteBacktick,
	ColumnType:  columnType,
}

func columnType(ft valuedomain.FieldType) string {
	switch ft.Kind {
	case valuedomain.FieldInteger:
		return "BIGINT"
	case valuedomain.FieldFloat:
		return "DOUBLE"
	case valuedomain.FieldBoolean:
		return "TINYINT(1)"
	case valuedomain.FieldDateTime:
		return "DATETIME(6)"
	case valuedomain.FieldUuid, valuedomain.FieldObjectId:
		return "CHAR(36)"
	case valuedomain.FieldString, valuedomain.FieldReference:
		return "VARCHAR(255)"
	case valuedomain.FieldJson, valuedomain.FieldArray, valuedomain.FieldObject:
		return "JSON"
	default:
		return "TEXT"
	}
}

// Open opens a *sql.DB for dsn, e.g. "user:pass@tcp(host:3306)/dbname".
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	return db, nil
}

// Backend implements adapter.Backend for MySQL.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Kind() string { return "mysql" }

func db(conn any) (*sql.DB, error) {
	d, ok := conn.(*sql.DB)
	if !ok {
		return nil, errs.New(errs.KindInternal, "mysql adapter received a non-*sql.DB connection handle")
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
		return errs.Wrap(errs.KindTransportError, "mysql: create table failed", err).WithCollection(meta.Collection)
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
		return errs.Wrap(errs.KindTransportError, "mysql: create index failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, conn any, collection string) (bool, error) {
	d, err := db(conn)
	if err != nil {
		return false, err
	}
	var name string
	row := d.QueryRowContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", collection)
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, errs.Wrap(errs.KindTransportError, "mysql: table_exists query failed", err).WithCollection(collection)
	}
	return true, nil
}

func (b *Backend) DropTable(ctx context.Context, conn any, collection string) error {
	d, err := db(conn)
	if err != nil {
		return err
	}
	if _, err := d.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", dialect.QuoteIdent(collection))); err != nil {
		return errs.Wrap(errs.KindTransportError, "mysql: drop table failed", err).WithCollection(collection)
	}
	return nil
}

func (b *Backend) ServerVersion(ctx context.Context, conn any) (string, error) {
	d, err := db(conn)
	if err != nil {
		return "", err
	}
	var version string
	if err := d.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", errs.Wrap(errs.KindTransportError, "mysql: version query failed", err)
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
		enc, encErr := encodeForStorage(field, v, meta)
		if encErr != nil {
			return valuedomain.Value{}, encErr
		}
		args = append(args, enc)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dialect.QuoteIdent(collection), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := d.ExecContext(ctx, stmt, args...); err != nil {
		return valuedomain.Value{}, translateWriteError(err, collection)
	}
	return record["id"], nil
}

func (b *Backend) FindByID(ctx context.Context, conn any, collection string, id valuedomain.Value, meta model.ModelMeta) (adapter.Record, bool, error) {
	d, err := db(conn)
	if err != nil {
		return nil, false, err
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", dialect.QuoteIdent(collection), dialect.QuoteIdent("id"))
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
	for field, v := range patch {
		enc, encErr := encodeForStorage(field, v, meta)
		if encErr != nil {
			return 0, encErr
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", dialect.QuoteIdent(field)))
		args = append(args, enc)
	}
	where, whereArgs, err := sqlbuilder.BuildWhere(dialect, conditions, len(patch)+1)
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
		return 0, errs.Wrap(errs.KindTransportError, "mysql: delete failed", err).WithCollection(collection)
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
		return 0, errs.Wrap(errs.KindTransportError, "mysql: count failed", err).WithCollection(collection)
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
		return nil, errs.Wrap(errs.KindTransportError, "mysql: columns introspection failed", err)
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errs.Wrap(errs.KindTransportError, "mysql: row scan failed", err)
	}

	rec := make(adapter.Record, len(cols))
	for i, col := range cols {
		def, _ := meta.Field(col)
		rec[col] = decodeFromStorage(raw[i], def)
	}
	return rec, nil
}

// encodeForStorage converts a ValueDomain value into the driver-native type
// MySQL stores, JSON-encoding Array/Object into its native JSON column type.
// A String value written to a Uuid/ObjectId field is validated the way the
// sqlite adapter does, since MySQL has no native UUID column type either —
// CHAR(36) stores the same malformed-input risk.
func encodeForStorage(field string, v valuedomain.Value, meta model.ModelMeta) (any, error) {
	if def, ok := meta.Field(field); ok && v.Kind() == valuedomain.KindString {
		s, _ := v.String()
		switch def.Type.Kind {
		case valuedomain.FieldUuid:
			uv, err := valuedomain.NewUuid(s)
			if err != nil {
				return nil, errs.Wrap(errs.KindInvalidValue, "mysql: malformed uuid", err).WithField(field)
			}
			v = uv
		case valuedomain.FieldObjectId:
			ov, err := valuedomain.NewObjectId(s)
			if err != nil {
				return nil, errs.Wrap(errs.KindInvalidValue, "mysql: malformed object id", err).WithField(field)
			}
			v = ov
		}
	}
	switch v.Kind() {
	case valuedomain.KindArray, valuedomain.KindObject:
		enc, err := jsonEncodeValue(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindSerializationError, "mysql: encode JSON field", err)
		}
		return enc, nil
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
// ValueDomain, using def (the column's declared FieldType, if any) to
// recover shapes the driver's []byte/int64 restrictions erase: a
// TINYINT(1) Boolean column round-trips through valuedomain.CoerceBool
// instead of surfacing as a bare Int, and a CHAR(36) Uuid/ObjectId column
// is re-tagged with its declared kind instead of staying a plain String.
func decodeFromStorage(raw any, def valuedomain.FieldDefinition) valuedomain.Value {
	if def.Type.Kind == valuedomain.FieldBoolean {
		if b, ok := valuedomain.CoerceBool(raw); ok {
			return valuedomain.NewBool(b)
		}
	}
	if b, ok := raw.([]byte); ok {
		switch def.Type.Kind {
		case valuedomain.FieldUuid:
			if v, err := valuedomain.NewUuid(string(b)); err == nil {
				return v
			}
		case valuedomain.FieldObjectId:
			if v, err := valuedomain.NewObjectId(string(b)); err == nil {
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

// tableDoesNotExist is MySQL's error number for "table doesn't exist"
// (ER_NO_SUCH_TABLE), surfaced as the unified TableNotExistError of
// spec.md §4.6 scenario S5.
const tableDoesNotExist = 1146

func translateQueryError(err error, collection string) error {
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == tableDoesNotExist {
		return errs.TableNotExist(collection)
	}
	return errs.Wrap(errs.KindTransportError, "mysql: query failed", err).WithCollection(collection)
}

func translateWriteError(err error, collection string) error {
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == tableDoesNotExist {
		return errs.TableNotExist(collection)
	}
	msg := err.Error()
	if strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "cannot be null") || strings.Contains(msg, "foreign key constraint") {
		return errs.Wrap(errs.KindConstraintViolation, "mysql: constraint violation", err).WithCollection(collection)
	}
	return errs.Wrap(errs.KindTransportError, "mysql: write failed", err).WithCollection(collection)
}

var _ adapter.Backend = (*Backend)(nil)
