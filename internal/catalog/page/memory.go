package page

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tabsdata.io/execcore/internal/catalog"
)

// FieldGetter extracts a comparable/stringified value for column col
// from item. Used by in-memory catalogs to apply the same filter/sort
// semantics Build renders as SQL, without a database.
type FieldGetter func(item any, col string) string

// Slice filters, sorts, and pages an in-memory slice the same way
// Build does for SQL, for the catalog/memory fake. items must be
// addressable via index; get extracts column values as strings for
// comparison (callers format timestamps/numbers sortably, e.g. RFC3339
// or zero-padded).
func Slice(spec Spec, c catalog.Cursor, filters []catalog.Filter, items []any, get FieldGetter) ([]any, bool, error) {
	orderBy := c.OrderBy
	if orderBy == "" {
		orderBy = spec.NaturalOrder
	}
	if !spec.SortableCols[orderBy] {
		return nil, false, fmt.Errorf("page: column %q is not sortable on %s", orderBy, spec.Table)
	}
	for _, f := range filters {
		if !spec.FilterCols[f.Column] {
			return nil, false, fmt.Errorf("page: column %q is not filterable on %s", f.Column, spec.Table)
		}
		if f.Op == catalog.OpLike && !spec.LikeCols[f.Column] {
			return nil, false, fmt.Errorf("page: column %q does not support :lk:", f.Column)
		}
	}

	filtered := make([]any, 0, len(items))
	for _, it := range items {
		if matchesFilters(it, filters, get) {
			filtered = append(filtered, it)
		}
	}

	descending := c.Descending
	reversed := false
	cursorVal, cursorID := c.Next, c.NextID
	if c.Previous != "" {
		cursorVal, cursorID = c.Previous, c.PreviousID
		descending = !descending
		reversed = true
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		vi, vj := get(filtered[i], orderBy), get(filtered[j], orderBy)
		if vi == vj {
			idi, idj := get(filtered[i], spec.IDColumn), get(filtered[j], spec.IDColumn)
			if descending {
				return idi > idj
			}
			return idi < idj
		}
		if descending {
			return vi > vj
		}
		return vi < vj
	})

	if cursorVal != "" {
		kept := filtered[:0:0]
		for _, it := range filtered {
			v, id := get(it, orderBy), get(it, spec.IDColumn)
			var keep bool
			if descending {
				keep = v <= cursorVal && id < cursorID
			} else {
				keep = v >= cursorVal && id > cursorID
			}
			if keep {
				kept = append(kept, it)
			}
		}
		filtered = kept
	}

	limit := c.Len
	if limit <= 0 {
		limit = spec.DefaultLen
	}
	if limit > spec.MaxLen {
		limit = spec.MaxLen
	}

	hasMore := len(filtered) > limit
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	if reversed {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	return filtered, hasMore, nil
}

func matchesFilters(item any, filters []catalog.Filter, get FieldGetter) bool {
	byCol := map[string][]catalog.Filter{}
	for _, f := range filters {
		byCol[f.Column] = append(byCol[f.Column], f)
	}
	for _, group := range byCol {
		matched := false
		for _, f := range group {
			if matchOne(get(item, f.Column), f) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func matchOne(actual string, f catalog.Filter) bool {
	switch f.Op {
	case catalog.OpEq:
		return actual == f.Value
	case catalog.OpNe:
		return actual != f.Value
	case catalog.OpGt:
		return actual > f.Value
	case catalog.OpGe:
		return actual >= f.Value
	case catalog.OpLt:
		return actual < f.Value
	case catalog.OpLe:
		return actual <= f.Value
	case catalog.OpLike:
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(f.Value), `\*`, ".*") + "$"
		ok, _ := regexp.MatchString(pattern, actual)
		return ok
	default:
		return false
	}
}
