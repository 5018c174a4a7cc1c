// Package memory is an in-process fake Catalog, backing unit tests for
// every Catalog consumer (Registry, Planner, Scheduler, Commit Engine,
// Service) without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/model"
)

// state holds every entity table as a map keyed by id. Catalog is
// implemented by cloning state wholesale at the start of each Atomic
// call and swapping it in only if the closure succeeds, giving the
// fake the same all-or-nothing semantics section 4.1 requires without
// needing a real transaction log.
type state struct {
	collections   map[string]*model.Collection
	functions     map[string]*model.Function
	funcVersions  map[string]*model.FunctionVersion
	bundles       map[string]*model.Bundle
	tables        map[string]*model.Table
	tableVersions map[string]*model.TableVersion
	dependencies  map[string]*model.Dependency
	triggers      map[string]*model.Trigger
	executions    map[string]*model.Execution
	transactions  map[string]*model.Transaction
	runs          map[string]*model.FunctionRun
	tdvs          map[string]*model.TableDataVersion
	partitions    map[string]*model.TablePartition
	requirements  map[string]*model.FunctionRequirement
	messages      map[string]*model.WorkerMessage
}

func newState() *state {
	return &state{
		collections:   map[string]*model.Collection{},
		functions:     map[string]*model.Function{},
		funcVersions:  map[string]*model.FunctionVersion{},
		bundles:       map[string]*model.Bundle{},
		tables:        map[string]*model.Table{},
		tableVersions: map[string]*model.TableVersion{},
		dependencies:  map[string]*model.Dependency{},
		triggers:      map[string]*model.Trigger{},
		executions:    map[string]*model.Execution{},
		transactions:  map[string]*model.Transaction{},
		runs:          map[string]*model.FunctionRun{},
		tdvs:          map[string]*model.TableDataVersion{},
		partitions:    map[string]*model.TablePartition{},
		requirements:  map[string]*model.FunctionRequirement{},
		messages:      map[string]*model.WorkerMessage{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.collections {
		cp := *v
		c.collections[k] = &cp
	}
	for k, v := range s.functions {
		cp := *v
		c.functions[k] = &cp
	}
	for k, v := range s.funcVersions {
		cp := *v
		c.funcVersions[k] = &cp
	}
	for k, v := range s.bundles {
		cp := *v
		c.bundles[k] = &cp
	}
	for k, v := range s.tables {
		cp := *v
		c.tables[k] = &cp
	}
	for k, v := range s.tableVersions {
		cp := *v
		c.tableVersions[k] = &cp
	}
	for k, v := range s.dependencies {
		cp := *v
		c.dependencies[k] = &cp
	}
	for k, v := range s.triggers {
		cp := *v
		c.triggers[k] = &cp
	}
	for k, v := range s.executions {
		cp := *v
		c.executions[k] = &cp
	}
	for k, v := range s.transactions {
		cp := *v
		c.transactions[k] = &cp
	}
	for k, v := range s.runs {
		cp := *v
		c.runs[k] = &cp
	}
	for k, v := range s.tdvs {
		cp := *v
		c.tdvs[k] = &cp
	}
	for k, v := range s.partitions {
		cp := *v
		c.partitions[k] = &cp
	}
	for k, v := range s.requirements {
		cp := *v
		c.requirements[k] = &cp
	}
	for k, v := range s.messages {
		cp := *v
		c.messages[k] = &cp
	}
	return c
}

// Catalog is the in-memory Catalog implementation.
type Catalog struct {
	mu sync.Mutex
	s  *state
}

// New returns an empty in-memory Catalog.
func New() *Catalog {
	return &Catalog{s: newState()}
}

// Atomic clones the current state, runs fn against a view over the
// clone, and swaps it in only on success.
func (c *Catalog) Atomic(ctx context.Context, fn func(tx catalog.Tx) error) error {
	c.mu.Lock()
	clone := c.s.clone()
	c.mu.Unlock()

	tx := &txView{s: clone}
	if err := fn(tx); err != nil {
		return err
	}

	c.mu.Lock()
	c.s = clone
	c.mu.Unlock()
	return nil
}

// Every mutating Tx method on Catalog itself runs as its own
// single-statement Atomic call, and getters and lists lock the catalog
// and read its current state directly, so callers may use Catalog
// directly for one-shot reads and writes that don't need to be grouped
// with others.
func (c *Catalog) with(fn func(tx catalog.Tx) error) error {
	return c.Atomic(context.Background(), fn)
}

func (c *Catalog) InsertCollection(ctx context.Context, v *model.Collection) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertCollection(ctx, v) })
}
func (c *Catalog) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetCollection(ctx, id)
}
func (c *Catalog) GetCollectionByName(ctx context.Context, name string) (*model.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetCollectionByName(ctx, name)
}
func (c *Catalog) SoftDeleteCollection(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.SoftDeleteCollection(ctx, id) })
}
func (c *Catalog) InsertFunction(ctx context.Context, v *model.Function) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunction(ctx, v) })
}
func (c *Catalog) UpdateFunction(ctx context.Context, v *model.Function) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateFunction(ctx, v) })
}
func (c *Catalog) DeleteFunction(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.DeleteFunction(ctx, id) })
}
func (c *Catalog) GetFunction(ctx context.Context, id string) (*model.Function, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetFunction(ctx, id)
}
func (c *Catalog) GetFunctionByName(ctx context.Context, collectionID, name string) (*model.Function, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetFunctionByName(ctx, collectionID, name)
}
func (c *Catalog) InsertFunctionVersion(ctx context.Context, v *model.FunctionVersion) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunctionVersion(ctx, v) })
}
func (c *Catalog) UpdateFunctionVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateFunctionVersionStatus(ctx, id, status) })
}
func (c *Catalog) GetFunctionVersion(ctx context.Context, id string) (*model.FunctionVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetFunctionVersion(ctx, id)
}
func (c *Catalog) GetActiveFunctionVersion(ctx context.Context, functionID string) (*model.FunctionVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetActiveFunctionVersion(ctx, functionID)
}
func (c *Catalog) InsertBundle(ctx context.Context, v *model.Bundle) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertBundle(ctx, v) })
}
func (c *Catalog) GetBundle(ctx context.Context, id string) (*model.Bundle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetBundle(ctx, id)
}
func (c *Catalog) InsertTable(ctx context.Context, v *model.Table) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTable(ctx, v) })
}
func (c *Catalog) UpdateTable(ctx context.Context, v *model.Table) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTable(ctx, v) })
}
func (c *Catalog) DeleteTable(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.DeleteTable(ctx, id) })
}
func (c *Catalog) GetTable(ctx context.Context, id string) (*model.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetTable(ctx, id)
}
func (c *Catalog) GetTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetTableByName(ctx, collectionID, name)
}
func (c *Catalog) GetFrozenTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetFrozenTableByName(ctx, collectionID, name)
}
func (c *Catalog) InsertTableVersion(ctx context.Context, v *model.TableVersion) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTableVersion(ctx, v) })
}
func (c *Catalog) UpdateTableVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTableVersionStatus(ctx, id, status) })
}
func (c *Catalog) GetTableVersion(ctx context.Context, id string) (*model.TableVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetTableVersion(ctx, id)
}
func (c *Catalog) GetActiveTableVersion(ctx context.Context, tableID string) (*model.TableVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetActiveTableVersion(ctx, tableID)
}
func (c *Catalog) ListTableVersionsByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.TableVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListTableVersionsByFunctionVersion(ctx, functionVersionID)
}
func (c *Catalog) InsertDependency(ctx context.Context, v *model.Dependency) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertDependency(ctx, v) })
}
func (c *Catalog) UpdateDependencyStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateDependencyStatus(ctx, id, status) })
}
func (c *Catalog) GetDependency(ctx context.Context, id string) (*model.Dependency, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetDependency(ctx, id)
}
func (c *Catalog) ListDependenciesByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.Dependency, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListDependenciesByFunctionVersion(ctx, functionVersionID)
}
func (c *Catalog) ListActiveDependenciesByTable(ctx context.Context, tableID string) ([]*model.Dependency, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListActiveDependenciesByTable(ctx, tableID)
}
func (c *Catalog) InsertTrigger(ctx context.Context, v *model.Trigger) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTrigger(ctx, v) })
}
func (c *Catalog) UpdateTriggerStatus(ctx context.Context, id string, status model.VersionStatus) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTriggerStatus(ctx, id, status) })
}
func (c *Catalog) ListTriggersByTable(ctx context.Context, tableID string) ([]*model.Trigger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListTriggersByTable(ctx, tableID)
}
func (c *Catalog) ListActiveTriggersByConsumer(ctx context.Context, functionVersionID string) ([]*model.Trigger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListActiveTriggersByConsumer(ctx, functionVersionID)
}
func (c *Catalog) InsertExecution(ctx context.Context, v *model.Execution) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertExecution(ctx, v) })
}
func (c *Catalog) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetExecution(ctx, id)
}
func (c *Catalog) InsertTransaction(ctx context.Context, v *model.Transaction) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTransaction(ctx, v) })
}
func (c *Catalog) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetTransaction(ctx, id)
}
func (c *Catalog) UpdateTransactionCommittedOn(ctx context.Context, id string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTransactionCommittedOn(ctx, id) })
}
func (c *Catalog) ListTransactionsByExecution(ctx context.Context, executionID string) ([]*model.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListTransactionsByExecution(ctx, executionID)
}
func (c *Catalog) InsertFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunctionRun(ctx, v) })
}
func (c *Catalog) UpdateFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateFunctionRun(ctx, v) })
}
func (c *Catalog) GetFunctionRun(ctx context.Context, id string) (*model.FunctionRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetFunctionRun(ctx, id)
}
func (c *Catalog) ListFunctionRunsByExecution(ctx context.Context, executionID string) ([]*model.FunctionRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListFunctionRunsByExecution(ctx, executionID)
}
func (c *Catalog) ListFunctionRunsByTransaction(ctx context.Context, transactionID string) ([]*model.FunctionRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListFunctionRunsByTransaction(ctx, transactionID)
}
func (c *Catalog) ListDispatchableFunctionRuns(ctx context.Context, limit int) ([]*model.FunctionRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListDispatchableFunctionRuns(ctx, limit)
}
func (c *Catalog) InsertTableDataVersion(ctx context.Context, v *model.TableDataVersion) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTableDataVersion(ctx, v) })
}
func (c *Catalog) UpdateTableDataVersionHasData(ctx context.Context, id string, hasData bool) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UpdateTableDataVersionHasData(ctx, id, hasData) })
}
func (c *Catalog) GetTableDataVersion(ctx context.Context, id string) (*model.TableDataVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetTableDataVersion(ctx, id)
}
func (c *Catalog) ListTableDataVersionTimeline(ctx context.Context, tableID string, onlyWithData bool) ([]*model.TableDataVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListTableDataVersionTimeline(ctx, tableID, onlyWithData)
}
func (c *Catalog) ListTableDataVersionsByFunctionRun(ctx context.Context, functionRunID string) ([]*model.TableDataVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListTableDataVersionsByFunctionRun(ctx, functionRunID)
}
func (c *Catalog) InsertTablePartition(ctx context.Context, v *model.TablePartition) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertTablePartition(ctx, v) })
}
func (c *Catalog) ListTablePartitions(ctx context.Context, tableDataVersionID string) ([]*model.TablePartition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListTablePartitions(ctx, tableDataVersionID)
}
func (c *Catalog) InsertFunctionRequirement(ctx context.Context, v *model.FunctionRequirement) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertFunctionRequirement(ctx, v) })
}
func (c *Catalog) ListFunctionRequirements(ctx context.Context, functionRunID string) ([]*model.FunctionRequirement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListFunctionRequirements(ctx, functionRunID)
}
func (c *Catalog) InsertWorkerMessage(ctx context.Context, v *model.WorkerMessage) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.InsertWorkerMessage(ctx, v) })
}
func (c *Catalog) LockWorkerMessage(ctx context.Context, functionRunID, owner string, leaseTTLSeconds int) (*model.WorkerMessage, error) {
	var out *model.WorkerMessage
	err := c.Atomic(ctx, func(tx catalog.Tx) error {
		m, err := tx.LockWorkerMessage(ctx, functionRunID, owner, leaseTTLSeconds)
		out = m
		return err
	})
	return out, err
}
func (c *Catalog) UnlockWorkerMessage(ctx context.Context, functionRunID string) error {
	return c.Atomic(ctx, func(tx catalog.Tx) error { return tx.UnlockWorkerMessage(ctx, functionRunID) })
}
func (c *Catalog) GetWorkerMessageByRun(ctx context.Context, functionRunID string) (*model.WorkerMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).GetWorkerMessageByRun(ctx, functionRunID)
}
func (c *Catalog) ListExpiredLeases(ctx context.Context) ([]*model.WorkerMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (&txView{s: c.s}).ListExpiredLeases(ctx)
}

var _ catalog.Catalog = (*Catalog)(nil)

// txView implements catalog.Tx over a (possibly cloned) state.
type txView struct {
	s *state
}

func (t *txView) InsertCollection(ctx context.Context, v *model.Collection) error {
	if _, ok := t.s.collections[v.ID]; ok {
		return catalogerr.Conflict("collection %s already exists", v.ID)
	}
	t.s.collections[v.ID] = v
	return nil
}

func (t *txView) GetCollection(ctx context.Context, id string) (*model.Collection, error) {
	if v, ok := t.s.collections[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("collection %s", id)
}

func (t *txView) GetCollectionByName(ctx context.Context, name string) (*model.Collection, error) {
	for _, v := range t.s.collections {
		if v.Name == name && v.Active() {
			cp := *v
			return &cp, nil
		}
	}
	return nil, catalogerr.NotFound("collection %q", name)
}

func (t *txView) SoftDeleteCollection(ctx context.Context, id string) error {
	v, ok := t.s.collections[id]
	if !ok {
		return catalogerr.NotFound("collection %s", id)
	}
	name := v.Name
	v.NameWhenDeleted = &name
	return nil
}

func (t *txView) InsertFunction(ctx context.Context, v *model.Function) error {
	if _, ok := t.s.functions[v.ID]; ok {
		return catalogerr.Conflict("function %s already exists", v.ID)
	}
	t.s.functions[v.ID] = v
	return nil
}

func (t *txView) UpdateFunction(ctx context.Context, v *model.Function) error {
	if _, ok := t.s.functions[v.ID]; !ok {
		return catalogerr.NotFound("function %s", v.ID)
	}
	t.s.functions[v.ID] = v
	return nil
}

func (t *txView) DeleteFunction(ctx context.Context, id string) error {
	if _, ok := t.s.functions[id]; !ok {
		return catalogerr.NotFound("function %s", id)
	}
	delete(t.s.functions, id)
	return nil
}

func (t *txView) GetFunction(ctx context.Context, id string) (*model.Function, error) {
	if v, ok := t.s.functions[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("function %s", id)
}

func (t *txView) GetFunctionByName(ctx context.Context, collectionID, name string) (*model.Function, error) {
	for _, v := range t.s.functions {
		if v.CollectionID == collectionID && v.Name == name {
			cp := *v
			return &cp, nil
		}
	}
	return nil, catalogerr.NotFound("function %q in collection %s", name, collectionID)
}

func (t *txView) InsertFunctionVersion(ctx context.Context, v *model.FunctionVersion) error {
	if _, ok := t.s.funcVersions[v.ID]; ok {
		return catalogerr.Conflict("function version %s already exists", v.ID)
	}
	t.s.funcVersions[v.ID] = v
	return nil
}

func (t *txView) UpdateFunctionVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	v, ok := t.s.funcVersions[id]
	if !ok {
		return catalogerr.NotFound("function version %s", id)
	}
	v.Status = status
	return nil
}

func (t *txView) GetFunctionVersion(ctx context.Context, id string) (*model.FunctionVersion, error) {
	if v, ok := t.s.funcVersions[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("function version %s", id)
}

func (t *txView) GetActiveFunctionVersion(ctx context.Context, functionID string) (*model.FunctionVersion, error) {
	for _, v := range t.s.funcVersions {
		if v.FunctionID == functionID && v.Status == model.VersionActive {
			cp := *v
			return &cp, nil
		}
	}
	return nil, catalogerr.NotFound("active function version for function %s", functionID)
}

func (t *txView) InsertBundle(ctx context.Context, v *model.Bundle) error {
	if _, ok := t.s.bundles[v.ID]; ok {
		return catalogerr.Conflict("bundle %s already exists", v.ID)
	}
	t.s.bundles[v.ID] = v
	return nil
}

func (t *txView) GetBundle(ctx context.Context, id string) (*model.Bundle, error) {
	if v, ok := t.s.bundles[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("bundle %s", id)
}

func (t *txView) InsertTable(ctx context.Context, v *model.Table) error {
	if _, ok := t.s.tables[v.ID]; ok {
		return catalogerr.Conflict("table %s already exists", v.ID)
	}
	t.s.tables[v.ID] = v
	return nil
}

func (t *txView) UpdateTable(ctx context.Context, v *model.Table) error {
	if _, ok := t.s.tables[v.ID]; !ok {
		return catalogerr.NotFound("table %s", v.ID)
	}
	t.s.tables[v.ID] = v
	return nil
}

func (t *txView) DeleteTable(ctx context.Context, id string) error {
	if _, ok := t.s.tables[id]; !ok {
		return catalogerr.NotFound("table %s", id)
	}
	delete(t.s.tables, id)
	return nil
}

func (t *txView) GetTable(ctx context.Context, id string) (*model.Table, error) {
	if v, ok := t.s.tables[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("table %s", id)
}

func (t *txView) GetTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	for _, v := range t.s.tables {
		if v.CollectionID == collectionID && v.Name == name && v.NameWhenDeleted == nil {
			cp := *v
			return &cp, nil
		}
	}
	return nil, catalogerr.NotFound("table %q in collection %s", name, collectionID)
}

func (t *txView) GetFrozenTableByName(ctx context.Context, collectionID, name string) (*model.Table, error) {
	for _, v := range t.s.tables {
		if v.CollectionID == collectionID && v.Name == name {
			tv, err := t.GetActiveTableVersion(ctx, v.ID)
			if err == nil && tv.Status == model.VersionFrozen {
				cp := *v
				return &cp, nil
			}
		}
	}
	return nil, catalogerr.NotFound("frozen table %q in collection %s", name, collectionID)
}

func (t *txView) InsertTableVersion(ctx context.Context, v *model.TableVersion) error {
	if _, ok := t.s.tableVersions[v.ID]; ok {
		return catalogerr.Conflict("table version %s already exists", v.ID)
	}
	t.s.tableVersions[v.ID] = v
	return nil
}

func (t *txView) UpdateTableVersionStatus(ctx context.Context, id string, status model.VersionStatus) error {
	v, ok := t.s.tableVersions[id]
	if !ok {
		return catalogerr.NotFound("table version %s", id)
	}
	v.Status = status
	return nil
}

func (t *txView) GetTableVersion(ctx context.Context, id string) (*model.TableVersion, error) {
	if v, ok := t.s.tableVersions[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("table version %s", id)
}

func (t *txView) GetActiveTableVersion(ctx context.Context, tableID string) (*model.TableVersion, error) {
	var best *model.TableVersion
	for _, v := range t.s.tableVersions {
		if v.TableID == tableID && (v.Status == model.VersionActive || v.Status == model.VersionFrozen) {
			if best == nil || v.ID > best.ID {
				best = v
			}
		}
	}
	if best == nil {
		return nil, catalogerr.NotFound("active table version for table %s", tableID)
	}
	cp := *best
	return &cp, nil
}

func (t *txView) ListTableVersionsByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.TableVersion, error) {
	var out []*model.TableVersion
	for _, v := range t.s.tableVersions {
		if v.FunctionVersionID == functionVersionID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) InsertDependency(ctx context.Context, v *model.Dependency) error {
	if _, ok := t.s.dependencies[v.ID]; ok {
		return catalogerr.Conflict("dependency %s already exists", v.ID)
	}
	t.s.dependencies[v.ID] = v
	return nil
}

func (t *txView) UpdateDependencyStatus(ctx context.Context, id string, status model.VersionStatus) error {
	v, ok := t.s.dependencies[id]
	if !ok {
		return catalogerr.NotFound("dependency %s", id)
	}
	v.Status = status
	return nil
}

func (t *txView) GetDependency(ctx context.Context, id string) (*model.Dependency, error) {
	if v, ok := t.s.dependencies[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("dependency %s", id)
}

func (t *txView) ListDependenciesByFunctionVersion(ctx context.Context, functionVersionID string) ([]*model.Dependency, error) {
	var out []*model.Dependency
	for _, v := range t.s.dependencies {
		if v.FunctionVersionID == functionVersionID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) ListActiveDependenciesByTable(ctx context.Context, tableID string) ([]*model.Dependency, error) {
	var out []*model.Dependency
	for _, v := range t.s.dependencies {
		if v.TableID == tableID && v.Status == model.VersionActive {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) InsertTrigger(ctx context.Context, v *model.Trigger) error {
	if _, ok := t.s.triggers[v.ID]; ok {
		return catalogerr.Conflict("trigger %s already exists", v.ID)
	}
	t.s.triggers[v.ID] = v
	return nil
}

func (t *txView) UpdateTriggerStatus(ctx context.Context, id string, status model.VersionStatus) error {
	v, ok := t.s.triggers[id]
	if !ok {
		return catalogerr.NotFound("trigger %s", id)
	}
	v.Status = status
	return nil
}

func (t *txView) ListTriggersByTable(ctx context.Context, tableID string) ([]*model.Trigger, error) {
	var out []*model.Trigger
	for _, v := range t.s.triggers {
		if v.TableID == tableID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) ListActiveTriggersByConsumer(ctx context.Context, functionVersionID string) ([]*model.Trigger, error) {
	var out []*model.Trigger
	for _, v := range t.s.triggers {
		if v.ConsumerFunctionVersionID == functionVersionID && v.Status == model.VersionActive {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) InsertExecution(ctx context.Context, v *model.Execution) error {
	if _, ok := t.s.executions[v.ID]; ok {
		return catalogerr.Conflict("execution %s already exists", v.ID)
	}
	t.s.executions[v.ID] = v
	return nil
}

func (t *txView) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	if v, ok := t.s.executions[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("execution %s", id)
}

func (t *txView) InsertTransaction(ctx context.Context, v *model.Transaction) error {
	if _, ok := t.s.transactions[v.ID]; ok {
		return catalogerr.Conflict("transaction %s already exists", v.ID)
	}
	t.s.transactions[v.ID] = v
	return nil
}

func (t *txView) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if v, ok := t.s.transactions[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("transaction %s", id)
}

func (t *txView) UpdateTransactionCommittedOn(ctx context.Context, id string) error {
	v, ok := t.s.transactions[id]
	if !ok {
		return catalogerr.NotFound("transaction %s", id)
	}
	now := time.Now().UTC()
	v.CommitedOn = &now
	return nil
}

func (t *txView) ListTransactionsByExecution(ctx context.Context, executionID string) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for _, v := range t.s.transactions {
		if v.ExecutionID == executionID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) InsertFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	if _, ok := t.s.runs[v.ID]; ok {
		return catalogerr.Conflict("function run %s already exists", v.ID)
	}
	t.s.runs[v.ID] = v
	return nil
}

func (t *txView) UpdateFunctionRun(ctx context.Context, v *model.FunctionRun) error {
	if _, ok := t.s.runs[v.ID]; !ok {
		return catalogerr.NotFound("function run %s", v.ID)
	}
	t.s.runs[v.ID] = v
	return nil
}

func (t *txView) GetFunctionRun(ctx context.Context, id string) (*model.FunctionRun, error) {
	if v, ok := t.s.runs[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("function run %s", id)
}

func (t *txView) ListFunctionRunsByExecution(ctx context.Context, executionID string) ([]*model.FunctionRun, error) {
	var out []*model.FunctionRun
	for _, v := range t.s.runs {
		if v.ExecutionID == executionID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) ListFunctionRunsByTransaction(ctx context.Context, transactionID string) ([]*model.FunctionRun, error) {
	var out []*model.FunctionRun
	for _, v := range t.s.runs {
		if v.TransactionID == transactionID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) ListDispatchableFunctionRuns(ctx context.Context, limit int) ([]*model.FunctionRun, error) {
	var out []*model.FunctionRun
	for _, v := range t.s.runs {
		if v.Status == model.StatusScheduled || v.Status == model.StatusReScheduled {
			cp := *v
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (t *txView) InsertTableDataVersion(ctx context.Context, v *model.TableDataVersion) error {
	if _, ok := t.s.tdvs[v.ID]; ok {
		return catalogerr.Conflict("table data version %s already exists", v.ID)
	}
	t.s.tdvs[v.ID] = v
	return nil
}

func (t *txView) UpdateTableDataVersionHasData(ctx context.Context, id string, hasData bool) error {
	v, ok := t.s.tdvs[id]
	if !ok {
		return catalogerr.NotFound("table data version %s", id)
	}
	v.HasData = &hasData
	return nil
}

func (t *txView) GetTableDataVersion(ctx context.Context, id string) (*model.TableDataVersion, error) {
	if v, ok := t.s.tdvs[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, catalogerr.NotFound("table data version %s", id)
}

func (t *txView) ListTableDataVersionTimeline(ctx context.Context, tableID string, onlyWithData bool) ([]*model.TableDataVersion, error) {
	var out []*model.TableDataVersion
	for _, v := range t.s.tdvs {
		if v.TableID != tableID {
			continue
		}
		if onlyWithData && (v.HasData == nil || !*v.HasData) {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (t *txView) ListTableDataVersionsByFunctionRun(ctx context.Context, functionRunID string) ([]*model.TableDataVersion, error) {
	var out []*model.TableDataVersion
	for _, v := range t.s.tdvs {
		if v.FunctionRunID == functionRunID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) InsertTablePartition(ctx context.Context, v *model.TablePartition) error {
	if _, ok := t.s.partitions[v.ID]; ok {
		return catalogerr.Conflict("table partition %s already exists", v.ID)
	}
	t.s.partitions[v.ID] = v
	return nil
}

func (t *txView) ListTablePartitions(ctx context.Context, tableDataVersionID string) ([]*model.TablePartition, error) {
	var out []*model.TablePartition
	for _, v := range t.s.partitions {
		if v.TableDataVersionID == tableDataVersionID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) InsertFunctionRequirement(ctx context.Context, v *model.FunctionRequirement) error {
	if _, ok := t.s.requirements[v.ID]; ok {
		return catalogerr.Conflict("function requirement %s already exists", v.ID)
	}
	t.s.requirements[v.ID] = v
	return nil
}

func (t *txView) ListFunctionRequirements(ctx context.Context, functionRunID string) ([]*model.FunctionRequirement, error) {
	var out []*model.FunctionRequirement
	for _, v := range t.s.requirements {
		if v.FunctionRunID == functionRunID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *txView) InsertWorkerMessage(ctx context.Context, v *model.WorkerMessage) error {
	if _, ok := t.s.messages[v.ID]; ok {
		return catalogerr.Conflict("worker message %s already exists", v.ID)
	}
	t.s.messages[v.ID] = v
	return nil
}

func (t *txView) LockWorkerMessage(ctx context.Context, functionRunID, owner string, leaseTTLSeconds int) (*model.WorkerMessage, error) {
	for _, v := range t.s.messages {
		if v.FunctionRunID == functionRunID {
			if v.MessageStatus == model.MessageLocked {
				return nil, catalogerr.Conflict("worker message for run %s already locked", functionRunID)
			}
			v.MessageStatus = model.MessageLocked
			v.LockedBy = owner
			expires := time.Now().UTC().Add(time.Duration(leaseTTLSeconds) * time.Second)
			v.LeaseExpiresOn = &expires
			cp := *v
			return &cp, nil
		}
	}
	return nil, catalogerr.NotFound("worker message for run %s", functionRunID)
}

func (t *txView) UnlockWorkerMessage(ctx context.Context, functionRunID string) error {
	for _, v := range t.s.messages {
		if v.FunctionRunID == functionRunID {
			v.MessageStatus = model.MessageUnlocked
			v.LockedBy = ""
			v.LeaseExpiresOn = nil
			return nil
		}
	}
	return catalogerr.NotFound("worker message for run %s", functionRunID)
}

func (t *txView) GetWorkerMessageByRun(ctx context.Context, functionRunID string) (*model.WorkerMessage, error) {
	for _, v := range t.s.messages {
		if v.FunctionRunID == functionRunID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, catalogerr.NotFound("worker message for run %s", functionRunID)
}

func (t *txView) ListExpiredLeases(ctx context.Context) ([]*model.WorkerMessage, error) {
	now := time.Now().UTC()
	var out []*model.WorkerMessage
	for _, v := range t.s.messages {
		if v.MessageStatus == model.MessageLocked && v.LeaseExpiresOn != nil && v.LeaseExpiresOn.Before(now) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}
