package quickdb

import "encoding/json"

// encodeRecord/decodeRecord and their plural forms serialize a Record or
// []Record for the cache's L1/L2 tiers, relying on Value's MarshalJSON/
// UnmarshalJSON (internal/valuedomain/json.go) to satisfy spec.md §4.4's
// byte-identical round-trip invariant.

func encodeRecord(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func encodeRecords(recs []Record) ([]byte, error) {
	return json.Marshal(recs)
}

func decodeRecords(data []byte) ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
