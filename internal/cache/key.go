// Package cache implements CacheLayer (spec.md §4.4): a two-tier cache
// keyed by fingerprint(alias, collection, operation, normalized_args). Only
// read-only operations participate; mutations invalidate by collection
// scope.
package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

const keyPrefix = "quickdb"

// Fingerprint builds the deterministic cache key of spec.md §4.4/§9. It
// follows original_source/src/cache/key_generator.rs exactly: a
// concatenated string signature (collection, operation, conditions
// signature, options signature), not a hash — chosen because a plain
// signature is inherently stable across process runs (the Open Question in
// spec.md §9) and remains readable in L2 blob filenames during debugging.
func Fingerprint(alias, collection, operation string, conditions []adapter.Condition, options adapter.FindOptions) string {
	conditionsSig := conditionsSignature(conditions)
	optionsSig := optionsSignature(options)
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s", keyPrefix, alias, collection, operation, conditionsSig, optionsSig)
}

// FingerprintByID builds the fingerprint for a find_by_id / exists-by-id
// style lookup, which has no condition list to sign.
func FingerprintByID(alias, collection, operation string, id valuedomain.Value) string {
	return fmt.Sprintf("%s:%s:%s:%s:id=%s", keyPrefix, alias, collection, operation, valueSignature(id))
}

func conditionsSignature(conditions []adapter.Condition) string {
	if len(conditions) == 0 {
		return "no_cond"
	}
	parts := make([]string, 0, len(conditions))
	for _, c := range conditions {
		parts = append(parts, fmt.Sprintf("%s%d%s%v%s", c.Field, c.Operator, valueSignature(c.Value), c.CaseInsensitive, "_"))
	}
	return strings.Join(parts, "_")
}

func optionsSignature(options adapter.FindOptions) string {
	var parts []string
	if options.Skip != 0 || options.Limit != 0 {
		parts = append(parts, fmt.Sprintf("p%d_%d", options.Skip, options.Limit))
	}
	if len(options.Sort) > 0 {
		sortParts := make([]string, 0, len(options.Sort))
		for _, s := range options.Sort {
			dir := "a"
			if s.Direction == adapter.Desc {
				dir = "d"
			}
			sortParts = append(sortParts, s.Field+dir)
		}
		parts = append(parts, "s"+strings.Join(sortParts, ","))
	}
	if len(options.Projection) > 0 {
		proj := append([]string(nil), options.Projection...)
		sort.Strings(proj)
		parts = append(parts, "f"+strings.Join(proj, ","))
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, "_")
}

func valueSignature(v valuedomain.Value) string {
	switch v.Kind() {
	case valuedomain.KindString, valuedomain.KindUuid, valuedomain.KindObjectId:
		s, _ := v.String()
		return s
	case valuedomain.KindInt:
		n, _ := v.Int()
		return fmt.Sprintf("%d", n)
	case valuedomain.KindFloat:
		f, _ := v.Float()
		return fmt.Sprintf("%v", f)
	case valuedomain.KindBool:
		b, _ := v.Bool()
		return fmt.Sprintf("%v", b)
	case valuedomain.KindNull:
		return "null"
	default:
		return "val"
	}
}

// ScopeKey is the (alias, collection) pair every invalidation operates over
// — coarse by design per spec.md §4.4.
func ScopeKey(alias, collection string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, alias, collection)
}

// scopeOf extracts the (alias, collection) scope prefix from a fingerprint
// produced by Fingerprint/FingerprintByID, used by L1.InvalidateScope to
// find matching entries without parsing the rest of the key.
func scopeOf(key string) string {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) < 3 {
		return key
	}
	return strings.Join(parts[:3], ":")
}
