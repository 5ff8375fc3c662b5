package valuedomain

import (
	"testing"
	"time"
)

func TestEqualDateTimeMicrosecondPrecision(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	a := NewDateTime(base)
	b := NewDateTime(base.Add(400 * time.Nanosecond))

	if !Equal(a, b) {
		t.Fatalf("expected DateTime values equal to the microsecond, got a=%v b=%v", a, b)
	}
}

func TestNewUuidRejectsMalformed(t *testing.T) {
	if _, err := NewUuid("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed UUID")
	}
	v, err := NewUuid("550e8400-e29b-41d4-a716-446655440000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, ok := v.String(); !ok || s != "550e8400-e29b-41d4-a716-446655440000" {
		t.Fatalf("unexpected string accessor result: %q ok=%v", s, ok)
	}
}

func TestNewObjectIdRequires24Hex(t *testing.T) {
	if _, err := NewObjectId("tooshort"); err == nil {
		t.Fatal("expected error for short ObjectId")
	}
	if _, err := NewObjectId("0123456789abcdef01234567"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCoerceBoolAcceptsDocumentedEncodings(t *testing.T) {
	cases := []any{int64(1), int64(0), "true", "false", "1", "0", true, false}
	for _, c := range cases {
		if _, ok := CoerceBool(c); !ok {
			t.Errorf("CoerceBool(%#v) should be accepted", c)
		}
	}
	if _, ok := CoerceBool("maybe"); ok {
		t.Error("CoerceBool(\"maybe\") should not be accepted")
	}
}

func TestIdStrategyNaturalFieldKind(t *testing.T) {
	if kinds := AutoIncrement().NaturalFieldKind(); len(kinds) != 1 || kinds[0] != FieldInteger {
		t.Fatalf("unexpected kinds for AutoIncrement: %v", kinds)
	}
	objKinds := ObjectIdStrategy().NaturalFieldKind()
	if len(objKinds) != 2 {
		t.Fatalf("expected ObjectId strategy to allow two field kinds, got %v", objKinds)
	}
}
