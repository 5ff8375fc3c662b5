// Package valuedomain implements ValueDomain, the single interchange
// representation between caller inputs, cache payloads, worker requests, and
// backend adapters (spec.md §3, §4.1). It is grounded on the teacher's
// tagged-variant handling of protobuf structpb.Value in
// pkg/client/sqlite.go:valueFromProto, generalized from a protobuf Kind
// switch to a hand-rolled tagged struct since this module has no wire
// format of its own.
package valuedomain

import (
	"fmt"
	"regexp"
	"time"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindDateTime
	KindUuid
	KindObjectId
	KindArray
	KindObject
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindDateTime:
		return "DateTime"
	case KindUuid:
		return "Uuid"
	case KindObjectId:
		return "ObjectId"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	case KindReference:
		return "Reference"
	default:
		return "Unknown"
	}
}

// Reference holds a target collection name and the referent's ID value, per
// spec.md §3: "Reference holds a target-collection name and an ID value of
// the referent's ID kind." The core never follows it automatically (§9).
type Reference struct {
	TargetCollection string
	ID               Value
}

// Value is the tagged union described in spec.md §3. Exactly one of the
// payload fields is meaningful, selected by Kind; the typed accessors
// return ok=false rather than panicking on a Kind mismatch.
type Value struct {
	kind      Kind
	boolVal   bool
	intVal    int64
	floatVal  float64
	stringVal string
	bytesVal  []byte
	timeVal   time.Time
	arrayVal  []Value
	objectVal map[string]Value
	refVal    *Reference
}

func Null() Value                { return Value{kind: KindNull} }
func NewBool(b bool) Value       { return Value{kind: KindBool, boolVal: b} }
func NewInt(i int64) Value       { return Value{kind: KindInt, intVal: i} }
func NewFloat(f float64) Value   { return Value{kind: KindFloat, floatVal: f} }
func NewString(s string) Value   { return Value{kind: KindString, stringVal: s} }
func NewBytes(b []byte) Value    { return Value{kind: KindBytes, bytesVal: b} }
func NewDateTime(t time.Time) Value {
	return Value{kind: KindDateTime, timeVal: t.UTC()}
}
func NewArray(vs []Value) Value { return Value{kind: KindArray, arrayVal: vs} }
func NewObject(m map[string]Value) Value {
	return Value{kind: KindObject, objectVal: m}
}
func NewReference(targetCollection string, id Value) Value {
	return Value{kind: KindReference, refVal: &Reference{TargetCollection: targetCollection, ID: id}}
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// NewUuid validates s is a well-formed UUID per the spec.md §3 invariant
// before tagging it; malformed input is the caller's programming error, not
// something this constructor silently fixes (see §9 "no nanny settings").
func NewUuid(s string) (Value, error) {
	if !uuidPattern.MatchString(s) {
		return Value{}, fmt.Errorf("not a well-formed UUID: %q", s)
	}
	return Value{kind: KindUuid, stringVal: s}, nil
}

// NewObjectId validates s is exactly 24 hex characters per spec.md §3.
func NewObjectId(s string) (Value, error) {
	if !objectIDPattern.MatchString(s) {
		return Value{}, fmt.Errorf("not a well-formed ObjectId: %q", s)
	}
	return Value{kind: KindObjectId, stringVal: s}, nil
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)       { return v.boolVal, v.kind == KindBool }
func (v Value) Int() (int64, bool)       { return v.intVal, v.kind == KindInt }
func (v Value) Float() (float64, bool)   { return v.floatVal, v.kind == KindFloat }
func (v Value) String() (string, bool) {
	switch v.kind {
	case KindString, KindUuid, KindObjectId:
		return v.stringVal, true
	default:
		return "", false
	}
}
func (v Value) Bytes() ([]byte, bool)       { return v.bytesVal, v.kind == KindBytes }
func (v Value) Time() (time.Time, bool)     { return v.timeVal, v.kind == KindDateTime }
func (v Value) Array() ([]Value, bool)      { return v.arrayVal, v.kind == KindArray }
func (v Value) Object() (map[string]Value, bool) { return v.objectVal, v.kind == KindObject }
func (v Value) Reference() (Reference, bool) {
	if v.refVal == nil {
		return Reference{}, v.kind == KindReference
	}
	return *v.refVal, v.kind == KindReference
}

// Equal reports deep value equality. DateTime compares to-the-microsecond
// in UTC per the round-trip law in spec.md §8.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindInt:
		return a.intVal == b.intVal
	case KindFloat:
		return a.floatVal == b.floatVal
	case KindString, KindUuid, KindObjectId:
		return a.stringVal == b.stringVal
	case KindBytes:
		if len(a.bytesVal) != len(b.bytesVal) {
			return false
		}
		for i := range a.bytesVal {
			if a.bytesVal[i] != b.bytesVal[i] {
				return false
			}
		}
		return true
	case KindDateTime:
		return a.timeVal.UTC().Truncate(time.Microsecond).Equal(b.timeVal.UTC().Truncate(time.Microsecond))
	case KindArray:
		if len(a.arrayVal) != len(b.arrayVal) {
			return false
		}
		for i := range a.arrayVal {
			if !Equal(a.arrayVal[i], b.arrayVal[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.objectVal) != len(b.objectVal) {
			return false
		}
		for k, av := range a.objectVal {
			bv, ok := b.objectVal[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindReference:
		return a.refVal.TargetCollection == b.refVal.TargetCollection && Equal(a.refVal.ID, b.refVal.ID)
	default:
		return false
	}
}

// CoerceBool implements the SQLite boolean-from-int coercion from spec.md
// §4.1: on read, any of {0,1,"0","1","true","false",true,false} decodes to
// Boolean.
func CoerceBool(raw any) (bool, bool) {
	switch t := raw.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		switch t {
		case "0":
			return false, true
		case "1":
			return true, true
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
