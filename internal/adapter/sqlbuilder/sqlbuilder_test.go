package sqlbuilder

import (
	"strings"
	"testing"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

func testMeta() model.ModelMeta {
	return model.ModelMeta{
		Collection: "widgets",
		IDField:    "id",
		IDStrategy: valuedomain.AutoIncrement(),
		Fields: []model.FieldEntry{
			{Name: "id", Def: valuedomain.FieldDefinition{Type: valuedomain.Integer()}},
			{Name: "name", Def: valuedomain.FieldDefinition{Type: valuedomain.StringType(), Required: true, Unique: true}},
		},
	}
}

var sqliteDialect = Dialect{Name: "sqlite", Placeholder: PositionalPlaceholder, QuoteIdent: QuoteDouble, ColumnType: func(valuedomain.FieldType) string { return "TEXT" }}
var postgresDialect = Dialect{Name: "postgres", Placeholder: DollarPlaceholder, QuoteIdent: QuoteDouble, ColumnType: func(valuedomain.FieldType) string { return "TEXT" }, SupportsJSON: true}

func TestCreateTableSQLIncludesIDAndConstraints(t *testing.T) {
	stmt, err := CreateTableSQL(sqliteDialect, testMeta())
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if !strings.Contains(stmt, `"id" TEXT PRIMARY KEY`) {
		t.Fatalf("expected id primary key column, got %q", stmt)
	}
	if !strings.Contains(stmt, "NOT NULL") || !strings.Contains(stmt, "UNIQUE") {
		t.Fatalf("expected NOT NULL and UNIQUE on name column, got %q", stmt)
	}
}

func TestCreateTableSQLRejectsUndeclaredIDField(t *testing.T) {
	meta := testMeta()
	meta.IDField = "missing"
	if _, err := CreateTableSQL(sqliteDialect, meta); err == nil {
		t.Fatal("expected error for undeclared id_field")
	}
}

func TestCreateIndexSQLAutoNamesWhenEmpty(t *testing.T) {
	stmt := CreateIndexSQL(sqliteDialect, "widgets", model.IndexDef{Fields: []string{"name"}})
	if !strings.Contains(stmt, "idx_widgets_name") {
		t.Fatalf("expected auto-generated index name, got %q", stmt)
	}
}

func TestCreateIndexSQLUnique(t *testing.T) {
	stmt := CreateIndexSQL(sqliteDialect, "widgets", model.IndexDef{Fields: []string{"name"}, Unique: true})
	if !strings.Contains(stmt, "UNIQUE INDEX") {
		t.Fatalf("expected UNIQUE INDEX, got %q", stmt)
	}
}

func TestBuildWhereEmptyConditionsIsTautology(t *testing.T) {
	where, args, err := BuildWhere(sqliteDialect, nil, 1)
	if err != nil || where != "1=1" || len(args) != 0 {
		t.Fatalf("expected 1=1 with no args, got %q %v %v", where, args, err)
	}
}

func TestBuildWhereEqUsesDialectPlaceholder(t *testing.T) {
	conds := []adapter.Condition{{Field: "name", Operator: adapter.OpEq, Value: valuedomain.NewString("widget")}}

	where, args, err := BuildWhere(sqliteDialect, conds, 1)
	if err != nil {
		t.Fatalf("BuildWhere: %v", err)
	}
	if where != `"name" = ?` {
		t.Fatalf("expected ? placeholder, got %q", where)
	}
	if len(args) != 1 || args[0] != "widget" {
		t.Fatalf("unexpected args %v", args)
	}

	where, _, err = BuildWhere(postgresDialect, conds, 1)
	if err != nil {
		t.Fatalf("BuildWhere: %v", err)
	}
	if where != `"name" = $1` {
		t.Fatalf("expected $1 placeholder, got %q", where)
	}
}

func TestBuildWhereInRequiresArrayValue(t *testing.T) {
	conds := []adapter.Condition{{Field: "id", Operator: adapter.OpIn, Value: valuedomain.NewInt(1)}}
	if _, _, err := BuildWhere(sqliteDialect, conds, 1); err == nil {
		t.Fatal("expected error for non-array In value")
	}
}

func TestBuildWhereInExpandsPlaceholders(t *testing.T) {
	conds := []adapter.Condition{{
		Field:    "id",
		Operator: adapter.OpIn,
		Value:    valuedomain.NewArray([]valuedomain.Value{valuedomain.NewInt(1), valuedomain.NewInt(2), valuedomain.NewInt(3)}),
	}}
	where, args, err := BuildWhere(postgresDialect, conds, 1)
	if err != nil {
		t.Fatalf("BuildWhere: %v", err)
	}
	if where != `"id" IN ($1, $2, $3)` {
		t.Fatalf("unexpected where: %q", where)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
}

func TestBuildWhereRegexRejectedOnSQLite(t *testing.T) {
	conds := []adapter.Condition{{Field: "name", Operator: adapter.OpRegex, Value: valuedomain.NewString("^a")}}
	if _, _, err := BuildWhere(sqliteDialect, conds, 1); err == nil {
		t.Fatal("expected Regex to be rejected on sqlite")
	}
}

func TestBuildWhereJsonContainsAlwaysRejectedAtSharedLayer(t *testing.T) {
	conds := []adapter.Condition{{Field: "tags", Operator: adapter.OpJsonContains, Value: valuedomain.NewString("x")}}
	if _, _, err := BuildWhere(postgresDialect, conds, 1); err == nil {
		t.Fatal("expected JsonContains to be rejected at the shared sqlbuilder layer")
	}
}

func TestBuildOrderLimitRendersAllClauses(t *testing.T) {
	frag := BuildOrderLimit(sqliteDialect, adapter.FindOptions{
		Sort:  []adapter.Sort{{Field: "name", Direction: adapter.Desc}},
		Limit: 10,
		Skip:  5,
	})
	if !strings.Contains(frag, `ORDER BY "name" DESC`) || !strings.Contains(frag, "LIMIT 10") || !strings.Contains(frag, "OFFSET 5") {
		t.Fatalf("unexpected fragment: %q", frag)
	}
}

func TestNativeValueUnwrapsEachKind(t *testing.T) {
	cases := []struct {
		v    valuedomain.Value
		want any
	}{
		{valuedomain.Null(), nil},
		{valuedomain.NewBool(true), true},
		{valuedomain.NewInt(42), int64(42)},
		{valuedomain.NewString("x"), "x"},
	}
	for _, c := range cases {
		got := NativeValue(c.v)
		if got != c.want {
			t.Fatalf("NativeValue(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}
