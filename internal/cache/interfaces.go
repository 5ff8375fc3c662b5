package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// cachedValue is the per-field wire shape EncodeRecord/EncodeRecords
// produce: a Value per field, round-tripped through its Kind so the
// deserialized Record carries the same typed ValueDomain it was cached with.
// The root package's engine does not use these helpers; it caches bytes
// produced by its own codec.go.
type cachedValue struct {
	Kind   valuedomain.Kind `json:"k"`
	Raw    json.RawMessage  `json:"v,omitempty"`
}

type cachedRecord map[string]cachedValue

// EncodeRecords serializes a slice of adapter.Record for storage in the
// cache, the way the teacher's internal/db/postgres_impl.go marshals JSONB
// columns with encoding/json rather than a bespoke binary codec.
func EncodeRecords(records []adapter.Record) ([]byte, error) {
	out := make([]cachedRecord, len(records))
	for i, rec := range records {
		cr, err := encodeRecord(rec)
		if err != nil {
			return nil, err
		}
		out[i] = cr
	}
	return json.Marshal(out)
}

// DecodeRecords is the inverse of EncodeRecords.
func DecodeRecords(data []byte) ([]adapter.Record, error) {
	var raw []cachedRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cache: decode records: %w", err)
	}
	out := make([]adapter.Record, len(raw))
	for i, cr := range raw {
		rec, err := decodeRecord(cr)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// EncodeRecord/DecodeRecord handle the single-record case (find_by_id).
func EncodeRecord(rec adapter.Record) ([]byte, error) {
	cr, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cr)
}

func DecodeRecord(data []byte) (adapter.Record, error) {
	var cr cachedRecord
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("cache: decode record: %w", err)
	}
	return decodeRecord(cr)
}

func encodeRecord(rec adapter.Record) (cachedRecord, error) {
	cr := make(cachedRecord, len(rec))
	for field, v := range rec {
		cv, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("cache: encode field %q: %w", field, err)
		}
		cr[field] = cv
	}
	return cr, nil
}

func decodeRecord(cr cachedRecord) (adapter.Record, error) {
	rec := make(adapter.Record, len(cr))
	for field, cv := range cr {
		v, err := decodeValue(cv)
		if err != nil {
			return nil, fmt.Errorf("cache: decode field %q: %w", field, err)
		}
		rec[field] = v
	}
	return rec, nil
}

func encodeValue(v valuedomain.Value) (cachedValue, error) {
	switch v.Kind() {
	case valuedomain.KindNull:
		return cachedValue{Kind: v.Kind()}, nil
	case valuedomain.KindBool:
		b, _ := v.Bool()
		return marshalKind(v.Kind(), b)
	case valuedomain.KindInt:
		n, _ := v.Int()
		return marshalKind(v.Kind(), n)
	case valuedomain.KindFloat:
		f, _ := v.Float()
		return marshalKind(v.Kind(), f)
	case valuedomain.KindString, valuedomain.KindUuid, valuedomain.KindObjectId:
		s, _ := v.String()
		return marshalKind(v.Kind(), s)
	case valuedomain.KindBytes:
		bs, _ := v.Bytes()
		return marshalKind(v.Kind(), bs)
	case valuedomain.KindDateTime:
		t, _ := v.Time()
		return marshalKind(v.Kind(), t)
	case valuedomain.KindArray:
		arr, _ := v.Array()
		items := make([]cachedValue, len(arr))
		for i, item := range arr {
			cv, err := encodeValue(item)
			if err != nil {
				return cachedValue{}, err
			}
			items[i] = cv
		}
		return marshalKind(v.Kind(), items)
	case valuedomain.KindObject:
		obj, _ := v.Object()
		cr, err := encodeRecord(adapter.Record(obj))
		if err != nil {
			return cachedValue{}, err
		}
		return marshalKind(v.Kind(), cr)
	default:
		return cachedValue{}, fmt.Errorf("unsupported value kind %v for caching", v.Kind())
	}
}

func marshalKind(kind valuedomain.Kind, payload any) (cachedValue, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return cachedValue{}, err
	}
	return cachedValue{Kind: kind, Raw: raw}, nil
}

func decodeValue(cv cachedValue) (valuedomain.Value, error) {
	switch cv.Kind {
	case valuedomain.KindNull:
		return valuedomain.Null(), nil
	case valuedomain.KindBool:
		var b bool
		if err := json.Unmarshal(cv.Raw, &b); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewBool(b), nil
	case valuedomain.KindInt:
		var n int64
		if err := json.Unmarshal(cv.Raw, &n); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewInt(n), nil
	case valuedomain.KindFloat:
		var f float64
		if err := json.Unmarshal(cv.Raw, &f); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewFloat(f), nil
	case valuedomain.KindString:
		var s string
		if err := json.Unmarshal(cv.Raw, &s); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewString(s), nil
	case valuedomain.KindUuid:
		var s string
		if err := json.Unmarshal(cv.Raw, &s); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewUuid(s)
	case valuedomain.KindObjectId:
		var s string
		if err := json.Unmarshal(cv.Raw, &s); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewObjectId(s)
	case valuedomain.KindBytes:
		var bs []byte
		if err := json.Unmarshal(cv.Raw, &bs); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewBytes(bs), nil
	case valuedomain.KindDateTime:
		var t time.Time
		if err := json.Unmarshal(cv.Raw, &t); err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewDateTime(t), nil
	case valuedomain.KindArray:
		var items []cachedValue
		if err := json.Unmarshal(cv.Raw, &items); err != nil {
			return valuedomain.Value{}, err
		}
		values := make([]valuedomain.Value, len(items))
		for i, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return valuedomain.Value{}, err
			}
			values[i] = v
		}
		return valuedomain.NewArray(values), nil
	case valuedomain.KindObject:
		var cr cachedRecord
		if err := json.Unmarshal(cv.Raw, &cr); err != nil {
			return valuedomain.Value{}, err
		}
		rec, err := decodeRecord(cr)
		if err != nil {
			return valuedomain.Value{}, err
		}
		return valuedomain.NewObject(map[string]valuedomain.Value(rec)), nil
	default:
		return valuedomain.Value{}, fmt.Errorf("unsupported value kind %v in cached payload", cv.Kind)
	}
}
