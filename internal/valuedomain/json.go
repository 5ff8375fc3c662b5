package valuedomain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

func parseWireTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.999999999Z07:00", s)
}

// wireValue is the JSON-on-the-wire shape for a Value, used only by the
// cache's L1/L2 tiers to serialize a query result between a Get/Put pair
// (spec.md §4.4's "byte-identical" round-trip invariant). This module has
// no proprietary wire format for its external interfaces (spec.md §6); this
// encoding never crosses a backend boundary, it only survives a cache
// entry's time in memory or on disk.
type wireValue struct {
	Kind   string       `json:"k"`
	Bool   bool         `json:"b,omitempty"`
	Int    int64        `json:"i,omitempty"`
	Float  float64      `json:"f,omitempty"`
	String string       `json:"s,omitempty"`
	Bytes  string        `json:"by,omitempty"` // base64
	Time   string        `json:"t,omitempty"`  // RFC3339Nano
	Array  []wireValue   `json:"a,omitempty"`
	Object map[string]wireValue `json:"o,omitempty"`
	RefCollection string `json:"rc,omitempty"`
	RefID  *wireValue    `json:"ri,omitempty"`
}

// MarshalJSON implements json.Marshaler for the cache's serialization path.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toWire())
}

func (v Value) toWire() wireValue {
	w := wireValue{Kind: v.kind.String()}
	switch v.kind {
	case KindBool:
		w.Bool = v.boolVal
	case KindInt:
		w.Int = v.intVal
	case KindFloat:
		w.Float = v.floatVal
	case KindString, KindUuid, KindObjectId:
		w.String = v.stringVal
	case KindBytes:
		w.Bytes = base64.StdEncoding.EncodeToString(v.bytesVal)
	case KindDateTime:
		w.Time = v.timeVal.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
	case KindArray:
		w.Array = make([]wireValue, len(v.arrayVal))
		for i, e := range v.arrayVal {
			w.Array[i] = e.toWire()
		}
	case KindObject:
		w.Object = make(map[string]wireValue, len(v.objectVal))
		for k, e := range v.objectVal {
			w.Object[k] = e.toWire()
		}
	case KindReference:
		w.RefCollection = v.refVal.TargetCollection
		ref := v.refVal.ID.toWire()
		w.RefID = &ref
	}
	return w
}

// UnmarshalJSON implements json.Unmarshaler for the cache's deserialization
// path, the exact inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	val, err := fromWire(w)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func fromWire(w wireValue) (Value, error) {
	switch w.Kind {
	case "Null":
		return Null(), nil
	case "Bool":
		return NewBool(w.Bool), nil
	case "Int":
		return NewInt(w.Int), nil
	case "Float":
		return NewFloat(w.Float), nil
	case "String":
		return NewString(w.String), nil
	case "Uuid":
		return NewUuid(w.String)
	case "ObjectId":
		return NewObjectId(w.String)
	case "Bytes":
		raw, err := base64.StdEncoding.DecodeString(w.Bytes)
		if err != nil {
			return Value{}, err
		}
		return NewBytes(raw), nil
	case "DateTime":
		t, err := parseWireTime(w.Time)
		if err != nil {
			return Value{}, err
		}
		return NewDateTime(t), nil
	case "Array":
		elems := make([]Value, len(w.Array))
		for i, ew := range w.Array {
			elem, err := fromWire(ew)
			if err != nil {
				return Value{}, err
			}
			elems[i] = elem
		}
		return NewArray(elems), nil
	case "Object":
		obj := make(map[string]Value, len(w.Object))
		for k, ew := range w.Object {
			elem, err := fromWire(ew)
			if err != nil {
				return Value{}, err
			}
			obj[k] = elem
		}
		return NewObject(obj), nil
	case "Reference":
		var id Value
		if w.RefID != nil {
			var err error
			id, err = fromWire(*w.RefID)
			if err != nil {
				return Value{}, err
			}
		}
		return NewReference(w.RefCollection, id), nil
	default:
		return Value{}, fmt.Errorf("valuedomain: unknown wire kind %q", w.Kind)
	}
}
