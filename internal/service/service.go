// Package service implements section 4.7: the thin façade the
// surrounding REST layer (and the CLI) drives the Execution Core
// through. Most exported methods are a single call into catalog,
// registry, planner, commit, or dispatcher. RegisterFunction and
// UpdateFunction also sync the planner graph, and CreateCollection,
// CancelExecution, HoldRun and ResumeRun run their own short catalog
// transactions with the status checks those operations need.
package service

import (
	"context"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/commit"
	"tabsdata.io/execcore/internal/dispatcher"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/manifest"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/obslog"
	"tabsdata.io/execcore/internal/planner"
	"tabsdata.io/execcore/internal/registry"
)

var log = obslog.Component("service")

// directTx adapts a Catalog to catalog.Tx for the rare call (today:
// Planner.SyncFunctionVersion) that wants a Tx outside of an Atomic
// closure. Catalog embeds Tx, so this is a zero-cost wrapper, not a
// new transaction — the same pattern the package's own tests use.
type directTx struct{ catalog.Catalog }

// Core is the Service API of section 4.7.
type Core struct {
	cat  catalog.Catalog
	reg  *registry.Registry
	pl   *planner.Planner
	disp *dispatcher.Dispatcher
	ids  *idgen.Generator
}

// New returns a Core wired to the given collaborators. disp may be nil
// for a Core that only plans/registers (tests exercising the registry
// and planner without a transport).
func New(cat catalog.Catalog, reg *registry.Registry, pl *planner.Planner, disp *dispatcher.Dispatcher, ids *idgen.Generator) *Core {
	if ids == nil {
		ids = idgen.New()
	}
	return &Core{cat: cat, reg: reg, pl: pl, disp: disp, ids: ids}
}

// CreateCollection inserts a new collection. Not itself one of section
// 4.7's named operations, but every other mutation flow assumes a
// collection already exists; the façade needs some way to make one.
func (c *Core) CreateCollection(ctx context.Context, name, actor string) (collectionID string, err error) {
	err = c.cat.Atomic(ctx, func(tx catalog.Tx) error {
		if _, err := tx.GetCollectionByName(ctx, name); err == nil {
			return catalogerr.Conflict("collection %q already exists", name)
		}
		col := &model.Collection{ID: c.ids.Next("col"), Name: name}
		if err := tx.InsertCollection(ctx, col); err != nil {
			return err
		}
		collectionID = col.ID
		return nil
	})
	return collectionID, err
}

// RegisterFunction implements "register_function": parses the
// submitted manifest, persists it via Registry, then syncs the
// trigger-dependency graph so Planner.Trigger sees the new edges.
func (c *Core) RegisterFunction(ctx context.Context, collectionID string, manifestDoc []byte, actor string) (functionID, functionVersionID string, err error) {
	m, err := registry.ParseFunctionManifest(manifestDoc)
	if err != nil {
		return "", "", err
	}
	functionID, functionVersionID, err = c.reg.RegisterFunction(ctx, collectionID, m, actor)
	if err != nil {
		return "", "", err
	}
	if err := c.pl.SyncFunctionVersion(ctx, directTx{c.cat}, functionVersionID); err != nil {
		return "", "", err
	}
	return functionID, functionVersionID, nil
}

// UpdateFunction implements "update_function".
func (c *Core) UpdateFunction(ctx context.Context, collectionID, functionName string, manifestDoc []byte, actor string) (functionVersionID string, err error) {
	m, err := registry.ParseFunctionManifest(manifestDoc)
	if err != nil {
		return "", err
	}
	functionVersionID, err = c.reg.UpdateFunction(ctx, collectionID, functionName, m, actor)
	if err != nil {
		return "", err
	}
	if err := c.pl.SyncFunctionVersion(ctx, directTx{c.cat}, functionVersionID); err != nil {
		return "", err
	}
	return functionVersionID, nil
}

// DeleteFunction implements "delete_function".
func (c *Core) DeleteFunction(ctx context.Context, collectionID, functionName string) error {
	return c.reg.DeleteFunction(ctx, collectionID, functionName)
}

// DeleteTable implements "delete_table".
func (c *Core) DeleteTable(ctx context.Context, collectionID, tableName string) error {
	return c.reg.DeleteTable(ctx, collectionID, tableName)
}

// DeleteCollection implements "delete_collection".
func (c *Core) DeleteCollection(ctx context.Context, collectionID string, functionNames, tableNames []string) error {
	return c.reg.DeleteCollection(ctx, collectionID, functionNames, tableNames)
}

// Trigger implements "trigger(collection, function, name?) ->
// execution_id": resolves the function's current active version, then
// runs the full planning algorithm of section 4.3.
func (c *Core) Trigger(ctx context.Context, collectionID, functionName, actor, executionName string) (executionID string, err error) {
	fn, err := c.cat.GetFunctionByName(ctx, collectionID, functionName)
	if err != nil {
		return "", catalogerr.NotFound("function %q not found in collection %s", functionName, collectionID)
	}
	fv, err := c.cat.GetActiveFunctionVersion(ctx, fn.ID)
	if err != nil {
		return "", err
	}
	executionID, err = c.pl.Trigger(ctx, fv.ID, actor, executionName)
	if err == nil {
		log.WithField("execution_id", executionID).WithField("actor", actor).Info("execution triggered")
	}
	return executionID, err
}

// ListExecutions implements "list_executions" (section 6.2 pagination).
func (c *Core) ListExecutions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Execution], error) {
	return c.cat.ListExecutions(ctx, cur, filters)
}

// ListTransactions implements "list_transactions".
func (c *Core) ListTransactions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Transaction], error) {
	return c.cat.ListTransactions(ctx, cur, filters)
}

// ListFunctionRuns implements "list_function_runs".
func (c *Core) ListFunctionRuns(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.FunctionRun], error) {
	return c.cat.ListFunctionRuns(ctx, cur, filters)
}

// ListTables implements "list_tables".
func (c *Core) ListTables(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.Table], error) {
	return c.cat.ListTables(ctx, cur, filters)
}

// ListTableDataVersions implements "list_table_data_versions".
func (c *Core) ListTableDataVersions(ctx context.Context, cur catalog.Cursor, filters []catalog.Filter) (catalog.Page[*model.TableDataVersion], error) {
	return c.cat.ListTableDataVersions(ctx, cur, filters)
}

// TransactionStatus rolls transactionID's runs up to the section 4.6
// status the REST layer surfaces alongside list_transactions rows.
func (c *Core) TransactionStatus(ctx context.Context, transactionID string) (model.RunStatus, error) {
	runs, err := c.cat.ListFunctionRunsByTransaction(ctx, transactionID)
	if err != nil {
		return "", err
	}
	return commit.TransactionStatus(runStatuses(runs)), nil
}

// ExecutionStatus rolls executionID's runs up to the section 4.6
// execution-level status.
func (c *Core) ExecutionStatus(ctx context.Context, executionID string) (model.RunStatus, error) {
	runs, err := c.cat.ListFunctionRunsByExecution(ctx, executionID)
	if err != nil {
		return "", err
	}
	return commit.ExecutionStatus(runStatuses(runs)), nil
}

func runStatuses(runs []*model.FunctionRun) []model.RunStatus {
	out := make([]model.RunStatus, len(runs))
	for i, r := range runs {
		out[i] = r.Status
	}
	return out
}

// CancelExecution implements "cancel_execution(id)": every non-terminal
// run in the execution moves to Canceled, and any WorkerMessage lease
// it holds is released so the Dispatcher doesn't wait on a callback
// that will never matter again.
func (c *Core) CancelExecution(ctx context.Context, executionID string) error {
	return c.cat.Atomic(ctx, func(tx catalog.Tx) error {
		runs, err := tx.ListFunctionRunsByExecution(ctx, executionID)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return catalogerr.NotFound("execution %s not found", executionID)
		}
		for _, r := range runs {
			if r.Status.IsTerminal() {
				continue
			}
			r.Status = model.StatusCanceled
			if err := tx.UpdateFunctionRun(ctx, r); err != nil {
				return err
			}
			if wm, err := tx.GetWorkerMessageByRun(ctx, r.ID); err == nil && wm.MessageStatus == model.MessageLocked {
				if err := tx.UnlockWorkerMessage(ctx, r.ID); err != nil {
					return err
				}
			} else if err != nil && catalogerr.KindOf(err) != catalogerr.KindNotFound {
				return err
			}
		}
		return nil
	})
}

// HoldRun implements "hold_run(id)": only a run still waiting to be
// dispatched (Scheduled/ReScheduled) can be put on hold.
func (c *Core) HoldRun(ctx context.Context, functionRunID string) error {
	return c.cat.Atomic(ctx, func(tx catalog.Tx) error {
		run, err := tx.GetFunctionRun(ctx, functionRunID)
		if err != nil {
			return err
		}
		if !run.Status.CanTransitionTo(model.StatusOnHold) {
			return catalogerr.PreconditionFailed("run %s in status %s cannot be held", functionRunID, run.Status)
		}
		run.Status = model.StatusOnHold
		return tx.UpdateFunctionRun(ctx, run)
	})
}

// ResumeRun implements "resume_run(id)": releases a held run back to
// Scheduled so the next Scheduler tick can pick it up again.
func (c *Core) ResumeRun(ctx context.Context, functionRunID string) error {
	return c.cat.Atomic(ctx, func(tx catalog.Tx) error {
		run, err := tx.GetFunctionRun(ctx, functionRunID)
		if err != nil {
			return err
		}
		if run.Status != model.StatusOnHold {
			return catalogerr.PreconditionFailed("run %s is not on hold", functionRunID)
		}
		run.Status = model.StatusScheduled
		return tx.UpdateFunctionRun(ctx, run)
	})
}

// TableVersionFor returns tableID's current active table version, the
// closest the Core comes to a schema lookup for the §6.4 "table
// schema" command.
func (c *Core) TableVersionFor(ctx context.Context, tableID string) (*model.TableVersion, error) {
	return c.cat.GetActiveTableVersion(ctx, tableID)
}

// WorkerCallback implements "worker_callback(function_run_id, body)",
// delegating to the Dispatcher that owns the retry/commit policy of
// section 4.5. The HTTP binding in internal/dispatcher/callback calls
// this same Dispatcher directly; Core exposes it too so a CLI or test
// driving the façade end-to-end never has to reach past Core.
func (c *Core) WorkerCallback(ctx context.Context, functionRunID string, resp *manifest.Response) error {
	if c.disp == nil {
		return catalogerr.Fatal("service: no dispatcher configured")
	}
	return c.disp.HandleCallback(ctx, functionRunID, resp)
}
