// Package page builds the SQL WHERE/ORDER BY/LIMIT clauses for the
// cursor pagination and filter contract of section 6.2, once, for
// every paginatable entity — generalizing the
// `(created_at, id) < ($1,$2) ORDER BY created_at DESC, id DESC`
// cursor shape used for schedule listing in the scheduler example this
// module was cross-referenced against.
package page

import (
	"fmt"
	"strings"

	"tabsdata.io/execcore/internal/catalog"
)

// Spec declares everything one paginatable DTO must provide: its id
// column, the columns it may be sorted/filtered by, and default/max
// page lengths.
type Spec struct {
	Table          string
	IDColumn       string
	NaturalOrder   string // default order-by column when none requested
	SortableCols   map[string]bool
	FilterCols     map[string]bool
	LikeCols       map[string]bool
	DefaultLen     int
	MaxLen         int
}

// Built is the rendered query fragment plus its positional arguments.
type Built struct {
	Where   string // may be empty
	OrderBy string
	Limit   int
	Args    []any
}

var opSQL = map[catalog.Operator]string{
	catalog.OpEq: "=", catalog.OpNe: "<>",
	catalog.OpGt: ">", catalog.OpGe: ">=",
	catalog.OpLt: "<", catalog.OpLe: "<=",
	catalog.OpLike: "LIKE",
}

// Build renders the WHERE/ORDER BY/LIMIT clauses for one page request.
// Placeholders are Postgres-style ($1, $2, ...); callers targeting a
// different store substitute their own placeholder style over Built's
// Args before executing.
func Build(spec Spec, c catalog.Cursor, filters []catalog.Filter) (Built, error) {
	orderBy := c.OrderBy
	if orderBy == "" {
		orderBy = spec.NaturalOrder
	}
	if !spec.SortableCols[orderBy] {
		return Built{}, fmt.Errorf("page: column %q is not sortable on %s", orderBy, spec.Table)
	}

	limit := c.Len
	if limit <= 0 {
		limit = spec.DefaultLen
	}
	if limit > spec.MaxLen {
		limit = spec.MaxLen
	}

	var (
		clauses []string
		args    []any
	)
	argN := func() int { return len(args) }

	// Cursor clause: ASC next -> col >= v AND id > i; DESC mirrors it.
	// The paired previous form reverses comparators/sort and the
	// caller reverses the result slice client-side.
	descending := c.Descending
	switch {
	case c.Next != "":
		args = append(args, c.Next, c.NextID)
		cmp, idCmp := ">=", ">"
		if descending {
			cmp, idCmp = "<=", "<"
		}
		clauses = append(clauses, fmt.Sprintf("(%s %s $%d AND %s %s $%d)",
			orderBy, cmp, argN()-1, spec.IDColumn, idCmp, argN()))
	case c.Previous != "":
		args = append(args, c.Previous, c.PreviousID)
		cmp, idCmp := "<=", "<"
		if descending {
			cmp, idCmp = ">=", ">"
		}
		clauses = append(clauses, fmt.Sprintf("(%s %s $%d AND %s %s $%d)",
			orderBy, cmp, argN()-1, spec.IDColumn, idCmp, argN()))
		descending = !descending // reverse sort; caller reverses result back
	}

	filterSQL, filterArgs, err := buildFilters(spec, filters, len(args))
	if err != nil {
		return Built{}, err
	}
	if filterSQL != "" {
		clauses = append(clauses, filterSQL)
		args = append(args, filterArgs...)
	}

	dir := "ASC"
	if descending {
		dir = "DESC"
	}

	return Built{
		Where:   strings.Join(clauses, " AND "),
		OrderBy: fmt.Sprintf("%s %s, %s %s", orderBy, dir, spec.IDColumn, dir),
		Limit:   limit + 1, // ask for one extra row to compute HasMore
		Args:    args,
	}, nil
}

// buildFilters groups same-column filters with OR and different
// columns with AND, matching "Same-column filters OR, different-column
// filters AND, OR has precedence" from section 6.2.
func buildFilters(spec Spec, filters []catalog.Filter, argOffset int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	byCol := map[string][]catalog.Filter{}
	var order []string
	for _, f := range filters {
		if !spec.FilterCols[f.Column] {
			return "", nil, fmt.Errorf("page: column %q is not filterable on %s", f.Column, spec.Table)
		}
		if f.Op == catalog.OpLike && !spec.LikeCols[f.Column] {
			return "", nil, fmt.Errorf("page: column %q does not support :lk:", f.Column)
		}
		if _, ok := byCol[f.Column]; !ok {
			order = append(order, f.Column)
		}
		byCol[f.Column] = append(byCol[f.Column], f)
	}

	var args []any
	var andGroups []string
	n := argOffset
	for _, col := range order {
		var orTerms []string
		for _, f := range byCol[col] {
			n++
			val := f.Value
			if f.Op == catalog.OpLike {
				val = strings.ReplaceAll(val, "*", "%")
			}
			orTerms = append(orTerms, fmt.Sprintf("%s %s $%d", col, opSQL[f.Op], n))
			args = append(args, val)
		}
		if len(orTerms) == 1 {
			andGroups = append(andGroups, orTerms[0])
		} else {
			andGroups = append(andGroups, "("+strings.Join(orTerms, " OR ")+")")
		}
	}
	return strings.Join(andGroups, " AND "), args, nil
}
