// Package sqlbuilder holds the WHERE-clause and DDL construction logic
// shared by the three SQL-backed adapters (sqlite, postgres, mysql).
// Grounded on the teacher's internal/follower/sqlite_helpers.go
// (column-def building from a shape, quoted identifiers, "CREATE TABLE IF
// NOT EXISTS"/"CREATE INDEX IF NOT EXISTS"), generalized from one SQLite
// dialect and six shape.DataType kinds to three SQL dialects and the full
// FieldType set.
package sqlbuilder

import (
	"fmt"
	"strings"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// Dialect captures the three knobs that differ between sqlite/postgres/mysql
// SQL generation: how placeholders are numbered, how identifiers are quoted,
// and how FieldKind maps to a column type.
type Dialect struct {
	Name          string
	Placeholder   func(argIndex int) string // argIndex is 1-based
	QuoteIdent    func(ident string) string
	ColumnType    func(ft valuedomain.FieldType) string
	SupportsJSON  bool // whether JsonContains has a native translation
}

func QuoteDouble(ident string) string { return `"` + ident + `"` }
func QuoteBacktick(ident string) string { return "`" + ident + "`" }

// PositionalPlaceholder is the `?` style used by SQLite and MySQL.
func PositionalPlaceholder(int) string { return "?" }

// DollarPlaceholder is the `$1`, `$2`, ... style used by Postgres.
func DollarPlaceholder(argIndex int) string { return fmt.Sprintf("$%d", argIndex) }

// ColumnDefs builds the ordered column-definition list for a CREATE TABLE,
// with an id column first, exactly as ensureCollectionTableAndIndexes builds
// an "id" primary key column then one column per shape field.
func ColumnDefs(d Dialect, meta model.ModelMeta) ([]string, error) {
	idDef, ok := meta.Field(meta.IDField)
	if !ok {
		return nil, errs.New(errs.KindSchemaError, fmt.Sprintf("id_field %q not declared", meta.IDField)).WithCollection(meta.Collection)
	}
	defs := []string{fmt.Sprintf("%s %s PRIMARY KEY", d.QuoteIdent(meta.IDField), d.ColumnType(idDef.Type))}

	for _, f := range meta.Fields {
		if f.Name == meta.IDField {
			continue
		}
		col := fmt.Sprintf("%s %s", d.QuoteIdent(f.Name), d.ColumnType(f.Def.Type))
		if f.Def.Required {
			col += " NOT NULL"
		}
		if f.Def.Unique {
			col += " UNIQUE"
		}
		defs = append(defs, col)
	}
	return defs, nil
}

// CreateTableSQL renders the full CREATE TABLE IF NOT EXISTS statement.
func CreateTableSQL(d Dialect, meta model.ModelMeta) (string, error) {
	defs, err := ColumnDefs(d, meta)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdent(meta.Collection), strings.Join(defs, ", ")), nil
}

// CreateIndexSQL renders CREATE [UNIQUE] INDEX IF NOT EXISTS, naming the
// index idx_<collection>_<field1>_<field2>... when the caller hasn't named
// one.
func CreateIndexSQL(d Dialect, collection string, idx model.IndexDef) string {
	name := idx.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", collection, strings.Join(idx.Fields, "_"))
	}
	cols := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		cols[i] = d.QuoteIdent(f)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, d.QuoteIdent(name), d.QuoteIdent(collection), strings.Join(cols, ", "))
}

// operatorSQL is the fragment for one Condition, starting with the quoted
// field name (LOWER()-wrapped when CaseInsensitive) but excluding the
// leading "AND" — e.g. `"name" = ?`, `"age" IN (?, ?, ?)`.
func operatorSQL(d Dialect, c adapter.Condition, nextArg *int) (string, []any, error) {
	field := d.QuoteIdent(c.Field)
	if c.CaseInsensitive {
		field = fmt.Sprintf("LOWER(%s)", field)
	}

	ph := func() string {
		p := d.Placeholder(*nextArg)
		*nextArg++
		return p
	}

	lowerIfNeeded := func(v any) any {
		if c.CaseInsensitive {
			if s, ok := v.(string); ok {
				return strings.ToLower(s)
			}
		}
		return v
	}

	switch c.Operator {
	case adapter.OpEq:
		return fmt.Sprintf("%s = %s", field, ph()), []any{lowerIfNeeded(nativeValue(c.Value))}, nil
	case adapter.OpNe:
		return fmt.Sprintf("%s <> %s", field, ph()), []any{lowerIfNeeded(nativeValue(c.Value))}, nil
	case adapter.OpGt:
		return fmt.Sprintf("%s > %s", field, ph()), []any{nativeValue(c.Value)}, nil
	case adapter.OpGte:
		return fmt.Sprintf("%s >= %s", field, ph()), []any{nativeValue(c.Value)}, nil
	case adapter.OpLt:
		return fmt.Sprintf("%s < %s", field, ph()), []any{nativeValue(c.Value)}, nil
	case adapter.OpLte:
		return fmt.Sprintf("%s <= %s", field, ph()), []any{nativeValue(c.Value)}, nil
	case adapter.OpIn, adapter.OpNotIn:
		items, ok := c.Value.Array()
		if !ok {
			return "", nil, errs.New(errs.KindInvalidValue, "In/NotIn condition requires an array value").WithField(c.Field)
		}
		placeholders := make([]string, len(items))
		args := make([]any, len(items))
		for i, it := range items {
			placeholders[i] = ph()
			args[i] = lowerIfNeeded(nativeValue(it))
		}
		op := "IN"
		if c.Operator == adapter.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", field, op, strings.Join(placeholders, ", ")), args, nil
	case adapter.OpContains:
		s, _ := c.Value.String()
		return fmt.Sprintf("%s LIKE %s", field, ph()), []any{lowerIfNeeded("%" + s + "%")}, nil
	case adapter.OpStartsWith:
		s, _ := c.Value.String()
		return fmt.Sprintf("%s LIKE %s", field, ph()), []any{lowerIfNeeded(s + "%")}, nil
	case adapter.OpEndsWith:
		s, _ := c.Value.String()
		return fmt.Sprintf("%s LIKE %s", field, ph()), []any{lowerIfNeeded("%" + s)}, nil
	case adapter.OpRegex:
		if d.Name != "postgres" && d.Name != "mysql" {
			return "", nil, errs.New(errs.KindUnsupportedOperator, fmt.Sprintf("Regex operator is not supported on %s", d.Name)).WithField(c.Field)
		}
		s, _ := c.Value.String()
		regexOp := "~"
		if d.Name == "mysql" {
			regexOp = "REGEXP"
		}
		return fmt.Sprintf("%s %s %s", field, regexOp, ph()), []any{s}, nil
	case adapter.OpExists, adapter.OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", field), nil, nil
	case adapter.OpIsNull:
		return fmt.Sprintf("%s IS NULL", field), nil, nil
	case adapter.OpJsonContains:
		return "", nil, errs.New(errs.KindUnsupportedOperator, fmt.Sprintf("JsonContains is not supported on %s", d.Name)).WithField(c.Field)
	default:
		return "", nil, errs.New(errs.KindUnsupportedOperator, fmt.Sprintf("unknown operator %v", c.Operator)).WithField(c.Field)
	}
}

// BuildWhere renders the WHERE clause (without the leading "WHERE") and
// argument list for a condition list, numbering placeholders starting at
// startArg (1 for a standalone query; >1 when appended after other args).
func BuildWhere(d Dialect, conditions []adapter.Condition, startArg int) (string, []any, error) {
	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	nextArg := startArg
	var clauses []string
	var args []any
	for _, c := range conditions {
		clause, cargs, err := operatorSQL(d, c, &nextArg)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, cargs...)
	}
	return strings.Join(clauses, " AND "), args, nil
}

// BuildOrderLimit renders "ORDER BY ... LIMIT ... OFFSET ..." fragments.
func BuildOrderLimit(d Dialect, options adapter.FindOptions) string {
	var sb strings.Builder
	if len(options.Sort) > 0 {
		parts := make([]string, len(options.Sort))
		for i, s := range options.Sort {
			dir := "ASC"
			if s.Direction == adapter.Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", d.QuoteIdent(s.Field), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if options.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", options.Limit))
	}
	if options.Skip > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", options.Skip))
	}
	return sb.String()
}

// nativeValue unwraps a ValueDomain scalar into the Go type database/sql and
// pgx expect as a bind argument.
func nativeValue(v valuedomain.Value) any {
	switch v.Kind() {
	case valuedomain.KindNull:
		return nil
	case valuedomain.KindBool:
		b, _ := v.Bool()
		return b
	case valuedomain.KindInt:
		n, _ := v.Int()
		return n
	case valuedomain.KindFloat:
		f, _ := v.Float()
		return f
	case valuedomain.KindString, valuedomain.KindUuid, valuedomain.KindObjectId:
		s, _ := v.String()
		return s
	case valuedomain.KindBytes:
		b, _ := v.Bytes()
		return b
	case valuedomain.KindDateTime:
		t, _ := v.Time()
		return t
	default:
		return nil
	}
}

// NativeValue exposes nativeValue to adapter packages building INSERT/UPDATE
// argument lists outside of a Condition.
func NativeValue(v valuedomain.Value) any { return nativeValue(v) }
