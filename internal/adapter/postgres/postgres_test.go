package postgres

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

func TestBuildWhereWithJSONPlainConditionsOnly(t *testing.T) {
	conds := []adapter.Condition{{Field: "name", Operator: adapter.OpEq, Value: valuedomain.NewString("widget")}}
	where, args, err := buildWhereWithJSON(conds, 1)
	if err != nil {
		t.Fatalf("buildWhereWithJSON: %v", err)
	}
	if where != `"name" = $1` {
		t.Fatalf("unexpected where: %q", where)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %v", args)
	}
}

func TestBuildWhereWithJSONContainsUsesAtOperator(t *testing.T) {
	conds := []adapter.Condition{{
		Field:    "tags",
		Operator: adapter.OpJsonContains,
		Value:    valuedomain.NewArray([]valuedomain.Value{valuedomain.NewString("x")}),
	}}
	where, args, err := buildWhereWithJSON(conds, 1)
	if err != nil {
		t.Fatalf("buildWhereWithJSON: %v", err)
	}
	if !strings.Contains(where, `@> $1::jsonb`) {
		t.Fatalf("expected @> jsonb clause, got %q", where)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %v", args)
	}
}

func TestBuildWhereWithJSONMixesPlainAndContainsClauses(t *testing.T) {
	conds := []adapter.Condition{
		{Field: "tags", Operator: adapter.OpJsonContains, Value: valuedomain.NewArray([]valuedomain.Value{valuedomain.NewString("x")})},
		{Field: "name", Operator: adapter.OpEq, Value: valuedomain.NewString("widget")},
	}
	where, args, err := buildWhereWithJSON(conds, 1)
	if err != nil {
		t.Fatalf("buildWhereWithJSON: %v", err)
	}
	if !strings.Contains(where, "@>") || !strings.Contains(where, `"name" = $2`) {
		t.Fatalf("unexpected where: %q", where)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
}

func TestTranslateWriteErrorClassifiesUniqueViolation(t *testing.T) {
	err := translateWriteError(&fakeErr{"duplicate key value violates unique constraint \"widgets_name_key\""}, "widgets")
	if got := errs.KindOf(err); got != errs.KindConstraintViolation {
		t.Fatalf("expected ConstraintViolation, got %v", got)
	}
}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

func uuidFieldMeta() model.ModelMeta {
	return model.ModelMeta{
		Collection: "widgets",
		Fields: []model.FieldEntry{
			{Name: "external_id", Def: valuedomain.FieldDefinition{Type: valuedomain.Uuid()}},
		},
	}
}

func TestEncodeForStorageRejectsMalformedUuid(t *testing.T) {
	_, err := encodeForStorage("external_id", valuedomain.NewString("not-a-uuid"), uuidFieldMeta())
	if err == nil {
		t.Fatal("expected malformed uuid to be rejected")
	}
	if got := errs.KindOf(err); got != errs.KindInvalidValue {
		t.Fatalf("expected InvalidValue, got %v", got)
	}
}

func TestEncodeForStorageAcceptsWellFormedUuid(t *testing.T) {
	enc, err := encodeForStorage("external_id", valuedomain.NewString("123e4567-e89b-12d3-a456-426614174000"), uuidFieldMeta())
	if err != nil {
		t.Fatalf("encodeForStorage: %v", err)
	}
	if enc != "123e4567-e89b-12d3-a456-426614174000" {
		t.Fatalf("unexpected encoded value: %v", enc)
	}
}

func TestDecodeFromStorageRecognizesNativeUuidBytes(t *testing.T) {
	var raw [16]byte
	copy(raw[:], []byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00})
	def, _ := uuidFieldMeta().Field("external_id")
	got := decodeFromStorage(raw, def)
	if got.Kind() != valuedomain.KindUuid {
		t.Fatalf("expected KindUuid, got %v", got.Kind())
	}
	s, _ := got.String()
	if s != "123e4567-e89b-12d3-a456-426614174000" {
		t.Fatalf("unexpected decoded uuid: %q", s)
	}
}

func TestTranslateWriteErrorClassifiesUndefinedTable(t *testing.T) {
	err := translateWriteError(&pgconn.PgError{Code: undefinedTable, Message: "relation \"widgets\" does not exist"}, "widgets")
	if got := errs.KindOf(err); got != errs.KindTableNotExist {
		t.Fatalf("expected TableNotExist, got %v", got)
	}
}
