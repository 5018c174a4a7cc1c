package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabsdata.io/execcore/internal/bundlestore"
	"tabsdata.io/execcore/internal/catalog/memory"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/model"
)

func manifest(name string, outputs []ManifestOutput, deps []ManifestDependency, triggers []ManifestTrigger) *FunctionManifest {
	return &FunctionManifest{
		Kind: "function-manifest", Name: name,
		Bundle:       ManifestBundle{Hash: "sha256:abc", URI: "s3://bundles/abc.tar"},
		Outputs:      outputs,
		Dependencies: deps,
		Triggers:     triggers,
	}
}

func TestRegisterFunctionCreatesFunctionVersionAndOutputs(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	reg := New(cat, nil)

	fnID, fvID, err := reg.RegisterFunction(ctx, "col-1", manifest("producer", []ManifestOutput{{Table: "t1"}}, nil, nil), "alice")
	require.NoError(t, err)
	require.NotEmpty(t, fnID)
	require.NotEmpty(t, fvID)

	fv, err := cat.GetFunctionVersion(ctx, fvID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionActive, fv.Status)

	table, err := cat.GetTableByName(ctx, "col-1", "t1")
	require.NoError(t, err)
	assert.NotEmpty(t, table.CurrentTableVersionID)
}

func TestRegisterFunctionRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	reg := New(cat, nil)

	_, _, err := reg.RegisterFunction(ctx, "col-1", manifest("dup", nil, nil, nil), "alice")
	require.NoError(t, err)

	_, _, err = reg.RegisterFunction(ctx, "col-1", manifest("dup", nil, nil, nil), "alice")
	require.Error(t, err)
	assert.Equal(t, catalogerr.KindConflict, catalogerr.KindOf(err))
}

func TestRegisterFunctionRejectsUnknownDependency(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	reg := New(cat, nil)

	_, _, err := reg.RegisterFunction(ctx, "col-1", manifest("consumer", nil, []ManifestDependency{{Table: "missing"}}, nil), "alice")
	require.Error(t, err)
	assert.Equal(t, catalogerr.KindNotFound, catalogerr.KindOf(err))

	// the whole transaction must have rolled back: the function itself
	// must not have been left behind.
	_, err = cat.GetFunctionByName(ctx, "col-1", "consumer")
	assert.Error(t, err)
}

func TestUpdateFunctionFreezesPreviousVersion(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	reg := New(cat, nil)

	_, fv1, err := reg.RegisterFunction(ctx, "col-1", manifest("f", []ManifestOutput{{Table: "out1"}}, nil, nil), "alice")
	require.NoError(t, err)

	fv2, err := reg.UpdateFunction(ctx, "col-1", "f", manifest("f", []ManifestOutput{{Table: "out1"}, {Table: "out2"}}, nil, nil), "alice")
	require.NoError(t, err)
	assert.NotEqual(t, fv1, fv2)

	prev, err := cat.GetFunctionVersion(ctx, fv1)
	require.NoError(t, err)
	assert.Equal(t, model.VersionFrozen, prev.Status)

	cur, err := cat.GetFunctionVersion(ctx, fv2)
	require.NoError(t, err)
	assert.Equal(t, model.VersionActive, cur.Status)
}

func TestDeleteFunctionFreezesTablesAndRemovesFunctionRow(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	reg := New(cat, nil)

	_, _, err := reg.RegisterFunction(ctx, "col-1", manifest("f", []ManifestOutput{{Table: "out1"}}, nil, nil), "alice")
	require.NoError(t, err)

	require.NoError(t, reg.DeleteFunction(ctx, "col-1", "f"))

	_, err = cat.GetFunctionByName(ctx, "col-1", "f")
	assert.Error(t, err)

	table, err := cat.GetTableByName(ctx, "col-1", "out1")
	require.NoError(t, err)
	tv, err := cat.GetActiveTableVersion(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionFrozen, tv.Status)
}

func TestDeleteTableRequiresFrozenTable(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	reg := New(cat, nil)

	_, _, err := reg.RegisterFunction(ctx, "col-1", manifest("f", []ManifestOutput{{Table: "out1"}}, nil, nil), "alice")
	require.NoError(t, err)

	err = reg.DeleteTable(ctx, "col-1", "out1")
	require.Error(t, err)
	assert.Equal(t, catalogerr.KindPreconditionFailed, catalogerr.KindOf(err))

	require.NoError(t, reg.DeleteFunction(ctx, "col-1", "f"))
	require.NoError(t, reg.DeleteTable(ctx, "col-1", "out1"))

	_, err = cat.GetTableByName(ctx, "col-1", "out1")
	assert.Error(t, err)
}

func TestRegisterFunctionResurrectsFrozenTable(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	reg := New(cat, nil)

	_, _, err := reg.RegisterFunction(ctx, "col-1", manifest("f1", []ManifestOutput{{Table: "shared"}}, nil, nil), "alice")
	require.NoError(t, err)
	require.NoError(t, reg.DeleteFunction(ctx, "col-1", "f1"))

	before, err := cat.GetTableByName(ctx, "col-1", "shared")
	require.NoError(t, err)

	_, _, err = reg.RegisterFunction(ctx, "col-1", manifest("f2", []ManifestOutput{{Table: "shared"}}, nil, nil), "alice")
	require.NoError(t, err)

	after, err := cat.GetTableByName(ctx, "col-1", "shared")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID, "resurrecting a frozen table must reuse its table_id")
}

func TestRegisterFunctionWithBundleStoreRejectsAMissingBundle(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	store := bundlestore.NewMemory()
	reg := New(cat, nil).WithBundleStore(store)

	_, _, err := reg.RegisterFunction(ctx, "col-1", manifest("f", nil, nil, nil), "alice")
	require.Error(t, err)
	assert.Equal(t, catalogerr.KindInvalid, catalogerr.KindOf(err))
}

func TestRegisterFunctionWithBundleStoreAcceptsAnUploadedBundle(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	store := bundlestore.NewMemory()
	reg := New(cat, nil).WithBundleStore(store)

	uri, err := store.Put(ctx, "f.tar", strings.NewReader("bundle bytes"))
	require.NoError(t, err)

	m := manifest("f", nil, nil, nil)
	m.Bundle.URI = uri
	_, _, err = reg.RegisterFunction(ctx, "col-1", m, "alice")
	require.NoError(t, err)
}
