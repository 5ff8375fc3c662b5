package valuedomain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValueJSONRoundTripsEveryKind(t *testing.T) {
	uid, err := NewUuid("550e8400-e29b-41d4-a716-446655440000")
	if err != nil {
		t.Fatalf("NewUuid: %v", err)
	}
	oid, err := NewObjectId("507f1f77bcf86cd799439011")
	if err != nil {
		t.Fatalf("NewObjectId: %v", err)
	}
	values := []Value{
		Null(),
		NewBool(true),
		NewInt(42),
		NewFloat(3.5),
		NewString("hello"),
		NewBytes([]byte{1, 2, 3}),
		NewDateTime(time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)),
		uid,
		oid,
		NewArray([]Value{NewInt(1), NewString("x")}),
		NewObject(map[string]Value{"a": NewInt(1)}),
		NewReference("users", NewInt(7)),
	}

	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v.Kind(), err)
		}
		var back Value
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%v): %v", v.Kind(), err)
		}
		if !Equal(v, back) {
			t.Fatalf("round trip mismatch for kind %v: %v != %v", v.Kind(), v, back)
		}
	}
}

func TestValueJSONRoundTripsRecordMap(t *testing.T) {
	rec := map[string]Value{
		"id":   NewInt(1),
		"name": NewString("ada"),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back map[string]Value
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back) != 2 || !Equal(back["id"], NewInt(1)) || !Equal(back["name"], NewString("ada")) {
		t.Fatalf("unexpected round trip: %v", back)
	}
}
