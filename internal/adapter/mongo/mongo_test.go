package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

func TestBuildFilterEqAndComparisonOperators(t *testing.T) {
	conds := []adapter.Condition{
		{Field: "age", Operator: adapter.OpGte, Value: valuedomain.NewInt(18)},
		{Field: "name", Operator: adapter.OpEq, Value: valuedomain.NewString("ada")},
	}
	filter, err := buildFilter(conds)
	if err != nil {
		t.Fatalf("buildFilter: %v", err)
	}
	if filter["name"] != "ada" {
		t.Fatalf("expected plain equality match, got %v", filter["name"])
	}
	gte, ok := filter["age"].(bson.M)
	if !ok || gte["$gte"] != int64(18) {
		t.Fatalf("expected $gte 18, got %v", filter["age"])
	}
}

func TestBuildFilterInRequiresArray(t *testing.T) {
	conds := []adapter.Condition{{Field: "id", Operator: adapter.OpIn, Value: valuedomain.NewInt(1)}}
	if _, err := buildFilter(conds); err == nil {
		t.Fatal("expected error for non-array In value")
	}
}

func TestBuildFilterJsonContainsArrayUsesAll(t *testing.T) {
	conds := []adapter.Condition{{
		Field:    "tags",
		Operator: adapter.OpJsonContains,
		Value:    valuedomain.NewArray([]valuedomain.Value{valuedomain.NewString("x"), valuedomain.NewString("y")}),
	}}
	filter, err := buildFilter(conds)
	if err != nil {
		t.Fatalf("buildFilter: %v", err)
	}
	clause, ok := filter["tags"].(bson.M)
	if !ok {
		t.Fatalf("expected bson.M clause, got %v", filter["tags"])
	}
	all, ok := clause["$all"].([]any)
	if !ok || len(all) != 2 {
		t.Fatalf("expected $all with 2 items, got %v", clause)
	}
}

func TestBuildFilterJsonContainsObjectFlattensDotPaths(t *testing.T) {
	conds := []adapter.Condition{{
		Field:    "address",
		Operator: adapter.OpJsonContains,
		Value:    valuedomain.NewObject(map[string]valuedomain.Value{"city": valuedomain.NewString("nyc")}),
	}}
	filter, err := buildFilter(conds)
	if err != nil {
		t.Fatalf("buildFilter: %v", err)
	}
	if filter["address.city"] != "nyc" {
		t.Fatalf("expected flattened dot-path filter, got %v", filter)
	}
}

func TestRegexEscapeEscapesSpecialCharacters(t *testing.T) {
	got := regexEscape("a.b*c")
	if got != `a\.b\*c` {
		t.Fatalf("unexpected escape: %q", got)
	}
}

func TestValueToBSONRoundTripsObjectId(t *testing.T) {
	v, err := valuedomain.NewObjectId("507f1f77bcf86cd799439011")
	if err != nil {
		t.Fatalf("NewObjectId: %v", err)
	}
	bv, err := valueToBSON(v)
	if err != nil {
		t.Fatalf("valueToBSON: %v", err)
	}
	back := bsonToValue(bv)
	s, _ := back.String()
	if s != "507f1f77bcf86cd799439011" {
		t.Fatalf("expected round-tripped ObjectId, got %q", s)
	}
}
