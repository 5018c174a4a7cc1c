package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tabsdata.io/execcore/internal/catalog"
)

func testSpec() Spec {
	return Spec{
		Table:        "executions",
		IDColumn:     "id",
		NaturalOrder: "triggered_on",
		SortableCols: map[string]bool{"triggered_on": true, "name": true},
		FilterCols:   map[string]bool{"name": true},
		LikeCols:     map[string]bool{"name": true},
		DefaultLen:   10,
		MaxLen:       50,
	}
}

func TestBuildDefaultsOrderAndLimit(t *testing.T) {
	built, err := Build(testSpec(), catalog.Cursor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "triggered_on ASC, id ASC", built.OrderBy)
	assert.Equal(t, 11, built.Limit) // default 10 + 1 lookahead row
	assert.Empty(t, built.Where)
}

func TestBuildRejectsUnsortableColumn(t *testing.T) {
	_, err := Build(testSpec(), catalog.Cursor{OrderBy: "bogus"}, nil)
	assert.Error(t, err)
}

func TestBuildRejectsUnfilterableColumn(t *testing.T) {
	_, err := Build(testSpec(), catalog.Cursor{}, []catalog.Filter{{Column: "bogus", Op: catalog.OpEq, Value: "x"}})
	assert.Error(t, err)
}

func TestBuildCapsLenAtMax(t *testing.T) {
	built, err := Build(testSpec(), catalog.Cursor{Len: 1000}, nil)
	require.NoError(t, err)
	assert.Equal(t, 51, built.Limit)
}

type row struct {
	id          string
	name        string
	triggeredOn string
}

func getter(item any, col string) string {
	r := item.(row)
	switch col {
	case "id":
		return r.id
	case "name":
		return r.name
	case "triggered_on":
		return r.triggeredOn
	}
	return ""
}

func TestSlicePaginatesAscending(t *testing.T) {
	items := []any{
		row{id: "1", name: "a", triggeredOn: "2024-01-01"},
		row{id: "2", name: "b", triggeredOn: "2024-01-02"},
		row{id: "3", name: "c", triggeredOn: "2024-01-03"},
	}
	spec := testSpec()
	spec.DefaultLen = 2

	page1, more, err := Slice(spec, catalog.Cursor{}, nil, items, getter)
	require.NoError(t, err)
	require.True(t, more)
	require.Len(t, page1, 2)
	assert.Equal(t, "1", page1[0].(row).id)
	assert.Equal(t, "2", page1[1].(row).id)

	last := page1[len(page1)-1].(row)
	page2, more2, err := Slice(spec, catalog.Cursor{Next: last.triggeredOn, NextID: last.id}, nil, items, getter)
	require.NoError(t, err)
	assert.False(t, more2)
	require.Len(t, page2, 1)
	assert.Equal(t, "3", page2[0].(row).id)
}

func TestSliceAppliesLikeFilter(t *testing.T) {
	items := []any{
		row{id: "1", name: "alpha", triggeredOn: "2024-01-01"},
		row{id: "2", name: "beta", triggeredOn: "2024-01-02"},
	}
	spec := testSpec()
	results, _, err := Slice(spec, catalog.Cursor{}, []catalog.Filter{{Column: "name", Op: catalog.OpLike, Value: "al*"}}, items, getter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].(row).name)
}
