package registry

import (
	"context"

	"tabsdata.io/execcore/internal/bundlestore"
	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/obslog"
)

// Registry implements the five catalog mutation flows of section 4.2.
// Register, Update, Delete function and Delete table each run as exactly
// one catalog.Atomic transaction, so they never apply partially.
// DeleteCollection runs one transaction per folded delete plus one for
// the collection row; a failure partway leaves the earlier deletes
// applied.
type Registry struct {
	cat   catalog.Catalog
	ids   *idgen.Generator
	store bundlestore.Store // optional; nil skips the bundle-existence check
}

// New returns a Registry backed by cat, allocating ids from ids (or a
// fresh generator when ids is nil).
func New(cat catalog.Catalog, ids *idgen.Generator) *Registry {
	if ids == nil {
		ids = idgen.New()
	}
	return &Registry{cat: cat, ids: ids}
}

// WithBundleStore attaches store so RegisterFunction/UpdateFunction
// verify the manifest's declared bundle URI actually resolves before
// the catalog ever records it. Without a store (the zero value) a
// manifest's bundle.uri is trusted as-is, matching how the plain
// memory-catalog deployments in this package's tests run today.
func (r *Registry) WithBundleStore(store bundlestore.Store) *Registry {
	r.store = store
	return r
}

func (r *Registry) checkBundle(ctx context.Context, uri string) error {
	if r.store == nil {
		return nil
	}
	ok, err := r.store.Exists(ctx, uri)
	if err != nil {
		return err
	}
	if !ok {
		return catalogerr.Invalid("bundle %q does not exist in the configured bundle store", uri)
	}
	return nil
}

var log = obslog.Component("registry")

// RegisterFunction implements section 4.2's "Register function" flow.
func (r *Registry) RegisterFunction(ctx context.Context, collectionID string, m *FunctionManifest, actor string) (functionID, functionVersionID string, err error) {
	if err := r.checkBundle(ctx, m.Bundle.URI); err != nil {
		return "", "", err
	}
	err = r.cat.Atomic(ctx, func(tx catalog.Tx) error {
		if _, err := tx.GetFunctionByName(ctx, collectionID, m.Name); err == nil {
			return catalogerr.Conflict("function %q already exists in collection %s", m.Name, collectionID)
		}

		bundle := &model.Bundle{ID: r.ids.Next("bdl"), CollectionID: collectionID, Hash: m.Bundle.Hash, URI: m.Bundle.URI, EnvPrefix: m.Bundle.EnvPrefix}
		if err := tx.InsertBundle(ctx, bundle); err != nil {
			return err
		}

		fn := &model.Function{ID: r.ids.Next("fn"), CollectionID: collectionID, Name: m.Name}
		if err := tx.InsertFunction(ctx, fn); err != nil {
			return err
		}

		var stateTable *model.Table
		if m.InitialValues != "" {
			st, err := r.ensureStateTable(ctx, tx, collectionID, m.InitialValues)
			if err != nil {
				return err
			}
			stateTable = st
		}

		fv := &model.FunctionVersion{
			ID: r.ids.Next("fv"), FunctionID: fn.ID, CollectionID: collectionID, Name: m.Name, Description: m.Description,
			RuntimeValues: m.RuntimeValues, DataLocation: m.DataLocation, StorageVersion: m.StorageVersion,
			BundleID: bundle.ID, Snippet: m.Snippet, Status: model.VersionActive, TransactionBy: m.TransactionBy,
		}
		if stateTable != nil {
			fv.InitialValuesTableID = stateTable.ID
		}
		if err := tx.InsertFunctionVersion(ctx, fv); err != nil {
			return err
		}

		fn.CurrentFunctionVersionID = fv.ID
		if err := tx.UpdateFunction(ctx, fn); err != nil {
			return err
		}

		if stateTable != nil {
			if err := r.finishStateTable(ctx, tx, fv.ID, stateTable); err != nil {
				return err
			}
		}

		if err := r.insertOutputs(ctx, tx, collectionID, fv.ID, m.Outputs); err != nil {
			return err
		}
		if err := r.insertDependencies(ctx, tx, collectionID, fv.ID, m.Dependencies); err != nil {
			return err
		}
		if err := r.insertTriggers(ctx, tx, collectionID, fv.ID, m.Triggers); err != nil {
			return err
		}

		functionID, functionVersionID = fn.ID, fv.ID
		return nil
	})
	if err == nil {
		log.WithField("function_id", functionID).Info("function registered")
	}
	return functionID, functionVersionID, err
}

// stateSlotPos is the reserved function_param_pos/dep_pos an
// initial_values state carryover table and its implicit dependency are
// given, distinguishing them as a system (not user-visible) slot.
const stateSlotPos = -1

// ensureStateTable finds or creates the Table an initial_values
// declaration names, resurrecting a frozen one from a prior function
// version the same way insertOutputs does for a regular output.
func (r *Registry) ensureStateTable(ctx context.Context, tx catalog.Tx, collectionID, name string) (*model.Table, error) {
	table, err := tx.GetFrozenTableByName(ctx, collectionID, name)
	if err == nil {
		return table, nil
	}
	if catalogerr.KindOf(err) != catalogerr.KindNotFound {
		return nil, err
	}
	table = &model.Table{
		ID: r.ids.Next("tbl"), CollectionID: collectionID, Name: name,
		FunctionParamPos: stateSlotPos, Private: true,
	}
	if err := tx.InsertTable(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// finishStateTable produces functionVersionID's own TableVersion for
// its state table plus the implicit "read the last committed state"
// Dependency: table_versions "HEAD~0" names the most recent Committed
// version explicitly, so the Planner/Scheduler expand it through the
// ordinary requirement-resolution path (section 4.4's state carryover)
// rather than needing a dedicated resolver.
func (r *Registry) finishStateTable(ctx context.Context, tx catalog.Tx, functionVersionID string, table *model.Table) error {
	tv := &model.TableVersion{ID: r.ids.Next("tv"), TableID: table.ID, FunctionVersionID: functionVersionID, Status: model.VersionActive}
	if err := tx.InsertTableVersion(ctx, tv); err != nil {
		return err
	}
	table.CurrentTableVersionID = tv.ID
	table.FunctionParamPos = stateSlotPos
	table.Private = true
	if err := tx.UpdateTable(ctx, table); err != nil {
		return err
	}
	dep := &model.Dependency{
		ID: r.ids.Next("dep"), FunctionVersionID: functionVersionID, TableID: table.ID,
		DepPos: stateSlotPos, TableVersions: "HEAD~0", Status: model.VersionActive,
	}
	return tx.InsertDependency(ctx, dep)
}

// insertOutputs inserts Table/TableVersion rows for a function
// version's declared outputs, reusing the table_id of any pre-existing
// frozen table with the same (collection,name) per invariant I2.
func (r *Registry) insertOutputs(ctx context.Context, tx catalog.Tx, collectionID, functionVersionID string, outputs []ManifestOutput) error {
	for _, out := range outputs {
		table, err := tx.GetFrozenTableByName(ctx, collectionID, out.Table)
		if err != nil {
			if catalogerr.KindOf(err) != catalogerr.KindNotFound {
				return err
			}
			table = &model.Table{
				ID: r.ids.Next("tbl"), CollectionID: collectionID, Name: out.Table,
				FunctionParamPos: out.FunctionParamPos, Private: out.Private, Partitioned: out.Partitioned,
			}
			if err := tx.InsertTable(ctx, table); err != nil {
				return err
			}
		}

		tv := &model.TableVersion{ID: r.ids.Next("tv"), TableID: table.ID, FunctionVersionID: functionVersionID, Status: model.VersionActive}
		if err := tx.InsertTableVersion(ctx, tv); err != nil {
			return err
		}
		table.CurrentTableVersionID = tv.ID
		table.FunctionParamPos = out.FunctionParamPos
		table.Private = out.Private
		table.Partitioned = out.Partitioned
		if err := tx.UpdateTable(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) insertDependencies(ctx context.Context, tx catalog.Tx, collectionID, functionVersionID string, deps []ManifestDependency) error {
	for _, d := range deps {
		table, err := tx.GetTableByName(ctx, collectionID, d.Table)
		if err != nil {
			return catalogerr.NotFound("dependency table %q not found in collection %s", d.Table, collectionID)
		}
		dep := &model.Dependency{
			ID: r.ids.Next("dep"), FunctionVersionID: functionVersionID, TableID: table.ID,
			DepPos: d.DepPos, TableVersions: d.TableVersions, Status: model.VersionActive,
		}
		if err := tx.InsertDependency(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) insertTriggers(ctx context.Context, tx catalog.Tx, collectionID, functionVersionID string, triggers []ManifestTrigger) error {
	for _, tr := range triggers {
		table, err := tx.GetTableByName(ctx, collectionID, tr.Table)
		if err != nil {
			return catalogerr.NotFound("trigger table %q not found in collection %s", tr.Table, collectionID)
		}
		trig := &model.Trigger{ID: r.ids.Next("trg"), TableID: table.ID, ConsumerFunctionVersionID: functionVersionID, Status: model.VersionActive}
		if err := tx.InsertTrigger(ctx, trig); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFunction mirrors Register with a preceding drop of removed
// outputs/dependencies/triggers, marking the previous rows Frozen/Deleted
// rather than physically deleting history.
func (r *Registry) UpdateFunction(ctx context.Context, collectionID, functionName string, m *FunctionManifest, actor string) (functionVersionID string, err error) {
	if err := r.checkBundle(ctx, m.Bundle.URI); err != nil {
		return "", err
	}
	err = r.cat.Atomic(ctx, func(tx catalog.Tx) error {
		fn, err := tx.GetFunctionByName(ctx, collectionID, functionName)
		if err != nil {
			return catalogerr.NotFound("function %q not found in collection %s", functionName, collectionID)
		}
		if m.Name != functionName {
			if _, err := tx.GetFunctionByName(ctx, collectionID, m.Name); err == nil {
				return catalogerr.Conflict("name %q already in use", m.Name)
			}
		}

		prevFV, err := tx.GetActiveFunctionVersion(ctx, fn.ID)
		if err != nil {
			return err
		}
		prevDeps, err := tx.ListDependenciesByFunctionVersion(ctx, prevFV.ID)
		if err != nil {
			return err
		}
		prevTriggers, err := tx.ListActiveTriggersByConsumer(ctx, prevFV.ID)
		if err != nil {
			return err
		}

		keptOutputs := map[string]bool{}
		for _, o := range m.Outputs {
			keptOutputs[o.Table] = true
		}
		prevTableVersions, err := tx.ListTableVersionsByFunctionVersion(ctx, prevFV.ID)
		if err != nil {
			return err
		}
		for _, tv := range prevTableVersions {
			table, err := tx.GetTable(ctx, tv.TableID)
			if err != nil {
				continue
			}
			if !keptOutputs[table.Name] {
				if err := tx.UpdateTableVersionStatus(ctx, tv.ID, model.VersionFrozen); err != nil {
					return err
				}
			}
		}
		for _, d := range prevDeps {
			if err := tx.UpdateDependencyStatus(ctx, d.ID, model.VersionDeleted); err != nil {
				return err
			}
		}
		for _, tr := range prevTriggers {
			if err := tx.UpdateTriggerStatus(ctx, tr.ID, model.VersionDeleted); err != nil {
				return err
			}
		}
		if err := tx.UpdateFunctionVersionStatus(ctx, prevFV.ID, model.VersionFrozen); err != nil {
			return err
		}

		bundle := &model.Bundle{ID: r.ids.Next("bdl"), CollectionID: collectionID, Hash: m.Bundle.Hash, URI: m.Bundle.URI, EnvPrefix: m.Bundle.EnvPrefix}
		if err := tx.InsertBundle(ctx, bundle); err != nil {
			return err
		}

		var stateTable *model.Table
		if m.InitialValues != "" {
			stateTable, err = r.ensureStateTable(ctx, tx, collectionID, m.InitialValues)
			if err != nil {
				return err
			}
		}

		fv := &model.FunctionVersion{
			ID: r.ids.Next("fv"), FunctionID: fn.ID, CollectionID: collectionID, Name: m.Name, Description: m.Description,
			RuntimeValues: m.RuntimeValues, DataLocation: m.DataLocation, StorageVersion: m.StorageVersion,
			BundleID: bundle.ID, Snippet: m.Snippet, Status: model.VersionActive, TransactionBy: m.TransactionBy,
		}
		if stateTable != nil {
			fv.InitialValuesTableID = stateTable.ID
		}
		if err := tx.InsertFunctionVersion(ctx, fv); err != nil {
			return err
		}

		fn.Name = m.Name
		fn.CurrentFunctionVersionID = fv.ID
		if err := tx.UpdateFunction(ctx, fn); err != nil {
			return err
		}

		if stateTable != nil {
			if err := r.finishStateTable(ctx, tx, fv.ID, stateTable); err != nil {
				return err
			}
		}

		if err := r.insertOutputs(ctx, tx, collectionID, fv.ID, m.Outputs); err != nil {
			return err
		}
		if err := r.insertDependencies(ctx, tx, collectionID, fv.ID, m.Dependencies); err != nil {
			return err
		}
		if err := r.insertTriggers(ctx, tx, collectionID, fv.ID, m.Triggers); err != nil {
			return err
		}

		functionVersionID = fv.ID
		return nil
	})
	return functionVersionID, err
}

// DeleteFunction marks the function version Deleted, freezes all its
// tables, marks outgoing dependencies/triggers Deleted, and physically
// removes the Function row. User data is never deleted.
func (r *Registry) DeleteFunction(ctx context.Context, collectionID, functionName string) error {
	return r.cat.Atomic(ctx, func(tx catalog.Tx) error {
		fn, err := tx.GetFunctionByName(ctx, collectionID, functionName)
		if err != nil {
			return catalogerr.NotFound("function %q not found in collection %s", functionName, collectionID)
		}
		fv, err := tx.GetActiveFunctionVersion(ctx, fn.ID)
		if err != nil {
			return err
		}
		if err := tx.UpdateFunctionVersionStatus(ctx, fv.ID, model.VersionDeleted); err != nil {
			return err
		}

		producedTableVersions, err := tx.ListTableVersionsByFunctionVersion(ctx, fv.ID)
		if err != nil {
			return err
		}
		for _, tv := range producedTableVersions {
			if tv.Status == model.VersionActive {
				if err := tx.UpdateTableVersionStatus(ctx, tv.ID, model.VersionFrozen); err != nil {
					return err
				}
			}
		}

		deps, err := tx.ListDependenciesByFunctionVersion(ctx, fv.ID)
		if err != nil {
			return err
		}
		for _, d := range deps {
			if err := tx.UpdateDependencyStatus(ctx, d.ID, model.VersionDeleted); err != nil {
				return err
			}
		}
		triggers, err := tx.ListActiveTriggersByConsumer(ctx, fv.ID)
		if err != nil {
			return err
		}
		for _, t := range triggers {
			if err := tx.UpdateTriggerStatus(ctx, t.ID, model.VersionDeleted); err != nil {
				return err
			}
		}

		return tx.DeleteFunction(ctx, fn.ID)
	})
}

// DeleteTable implements section 4.2's "Delete table" flow: allowed
// only if the table is Frozen.
func (r *Registry) DeleteTable(ctx context.Context, collectionID, tableName string) error {
	return r.cat.Atomic(ctx, func(tx catalog.Tx) error {
		table, err := tx.GetTableByName(ctx, collectionID, tableName)
		if err != nil {
			return catalogerr.NotFound("table %q not found in collection %s", tableName, collectionID)
		}
		active, err := tx.GetActiveTableVersion(ctx, table.ID)
		if err != nil {
			return err
		}
		if active.Status != model.VersionFrozen {
			return catalogerr.PreconditionFailed("table %q is not frozen", tableName)
		}

		deleted := &model.TableVersion{ID: r.ids.Next("tv"), TableID: table.ID, FunctionVersionID: active.FunctionVersionID, Status: model.VersionDeleted}
		if err := tx.InsertTableVersion(ctx, deleted); err != nil {
			return err
		}

		deps, err := tx.ListActiveDependenciesByTable(ctx, table.ID)
		if err != nil {
			return err
		}
		for _, d := range deps {
			if err := tx.UpdateDependencyStatus(ctx, d.ID, model.VersionFrozen); err != nil {
				return err
			}
			if err := tx.UpdateFunctionVersionStatus(ctx, d.FunctionVersionID, model.VersionFrozen); err != nil {
				return err
			}
		}
		triggers, err := tx.ListTriggersByTable(ctx, table.ID)
		if err != nil {
			return err
		}
		for _, t := range triggers {
			if t.Status != model.VersionActive {
				continue
			}
			if err := tx.UpdateTriggerStatus(ctx, t.ID, model.VersionFrozen); err != nil {
				return err
			}
			if err := tx.UpdateFunctionVersionStatus(ctx, t.ConsumerFunctionVersionID, model.VersionFrozen); err != nil {
				return err
			}
		}

		return tx.DeleteTable(ctx, table.ID)
	})
}

// DeleteCollection folds to Delete function for every function and
// Delete table for every table, in dependency-safe (leaves-first)
// order; callers supply the enumerations since the Catalog interface
// intentionally exposes no "list all functions/tables in a collection"
// primitive beyond what Service already tracks.
func (r *Registry) DeleteCollection(ctx context.Context, collectionID string, functionNames, tableNames []string) error {
	for _, fname := range functionNames {
		if err := r.DeleteFunction(ctx, collectionID, fname); err != nil && catalogerr.KindOf(err) != catalogerr.KindNotFound {
			return err
		}
	}
	for _, tname := range tableNames {
		if err := r.DeleteTable(ctx, collectionID, tname); err != nil && catalogerr.KindOf(err) != catalogerr.KindNotFound {
			return err
		}
	}
	return r.cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.SoftDeleteCollection(ctx, collectionID)
	})
}
