// Package planner implements section 4.3: given a triggering function
// version, compute the trigger-closure of runs it implies, order them,
// and eagerly materialize the full shape of the execution (runs,
// transactions, output slots, resolved input requirements) in one
// transaction.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/obslog"
	"tabsdata.io/execcore/internal/planner/graph"
	"tabsdata.io/execcore/internal/planner/tableversions"
)

var log = obslog.Component("planner")

// Planner computes and persists the trigger-closure of one execution.
type Planner struct {
	cat   catalog.Catalog
	graph graph.Graph
	ids   *idgen.Generator
}

// New returns a Planner backed by cat for catalog state and g for the
// trigger-dependency graph.
func New(cat catalog.Catalog, g graph.Graph, ids *idgen.Generator) *Planner {
	if ids == nil {
		ids = idgen.New()
	}
	return &Planner{cat: cat, graph: g, ids: ids}
}

// SyncFunctionVersion mirrors a function version's produces/triggers
// edges into the graph, rejecting any trigger edge that would close a
// cycle. Called by Registry after Register/Update so the graph and
// catalog never diverge.
func (p *Planner) SyncFunctionVersion(ctx context.Context, tx catalog.Tx, functionVersionID string) error {
	outputs, err := tx.ListTableVersionsByFunctionVersion(ctx, functionVersionID)
	if err != nil {
		return err
	}
	for _, tv := range outputs {
		if err := p.graph.UpsertEdge(ctx, functionVersionID, tv.TableID, graph.Produces); err != nil {
			return err
		}
	}

	triggers, err := tx.ListActiveTriggersByConsumer(ctx, functionVersionID)
	if err != nil {
		return err
	}
	for _, trig := range triggers {
		// "" walks both edge kinds: a function version only emits Produces
		// edges and a table only emits Triggers edges, so the mixed walk
		// is exactly the alternating produce/trigger path a real cycle
		// would follow.
		cycle, err := p.graph.WouldCreateCycle(ctx, trig.TableID, functionVersionID, graph.EdgeKind(""))
		if err != nil {
			return err
		}
		if cycle {
			return catalogerr.Invalid("trigger from table %s to function version %s would create a cycle", trig.TableID, functionVersionID)
		}
		if err := p.graph.UpsertEdge(ctx, trig.TableID, functionVersionID, graph.Triggers); err != nil {
			return err
		}
	}
	return nil
}

// Trigger runs the full section 4.3 algorithm for initiator
// functionVersionID and returns the new execution's id.
func (p *Planner) Trigger(ctx context.Context, functionVersionID, triggeredBy, executionName string) (executionID string, err error) {
	order, err := p.closure(ctx, functionVersionID)
	if err != nil {
		return "", err
	}

	err = p.cat.Atomic(ctx, func(tx catalog.Tx) error {
		exec := &model.Execution{
			ID: p.ids.Next("exec"), Name: executionName, TriggerFunctionVersionID: functionVersionID,
			TriggeredBy: triggeredBy,
		}
		if err := tx.InsertExecution(ctx, exec); err != nil {
			return err
		}
		executionID = exec.ID

		fvs := make(map[string]*model.FunctionVersion, len(order))
		for _, fvID := range order {
			fv, err := tx.GetFunctionVersion(ctx, fvID)
			if err != nil {
				return err
			}
			fvs[fvID] = fv
		}

		transactions := map[string]*model.Transaction{}
		getTransaction := func(groupKey string) (*model.Transaction, error) {
			if tr, ok := transactions[groupKey]; ok {
				return tr, nil
			}
			tr := &model.Transaction{ID: p.ids.Next("txn"), ExecutionID: exec.ID, TransactionKey: groupKey}
			if err := tx.InsertTransaction(ctx, tr); err != nil {
				return nil, err
			}
			transactions[groupKey] = tr
			return tr, nil
		}

		runs := make(map[string]*model.FunctionRun, len(order))
		outputsByTable := map[string]*model.TableDataVersion{} // table id -> this execution's freshly planned output

		for _, fvID := range order {
			fv := fvs[fvID]
			groupKey := fv.TransactionBy
			if groupKey == "" {
				groupKey = exec.ID
			}
			tr, err := getTransaction(groupKey)
			if err != nil {
				return err
			}
			tr.TransactionBy = fv.TransactionBy

			trigger := model.TriggerDependency
			if fvID == functionVersionID {
				trigger = model.TriggerManual
			}
			run := &model.FunctionRun{
				ID: p.ids.Next("run"), ExecutionID: exec.ID, TransactionID: tr.ID,
				FunctionVersionID: fvID, Trigger: trigger, Status: model.StatusScheduled,
			}
			if err := tx.InsertFunctionRun(ctx, run); err != nil {
				return err
			}
			runs[fvID] = run

			outputs, err := tx.ListTableVersionsByFunctionVersion(ctx, fvID)
			if err != nil {
				return err
			}
			for _, tv := range outputs {
				table, err := tx.GetTable(ctx, tv.TableID)
				if err != nil {
					return err
				}
				tdv := &model.TableDataVersion{
					ID: p.ids.Next("tdv"), TableID: table.ID, TableVersionID: tv.ID,
					ExecutionID: exec.ID, TransactionID: tr.ID, FunctionRunID: run.ID,
					TablePos: table.FunctionParamPos,
				}
				tdv.URI = allocateURI(fv.DataLocation, table.ID, tdv.ID)
				if err := tx.InsertTableDataVersion(ctx, tdv); err != nil {
					return err
				}
				outputsByTable[table.ID] = tdv
			}
		}

		for _, fvID := range order {
			run := runs[fvID]
			deps, err := tx.ListDependenciesByFunctionVersion(ctx, fvID)
			if err != nil {
				return err
			}
			var reqs []*model.FunctionRequirement
			for _, dep := range deps {
				selectors, err := tableversions.Parse(dep.TableVersions)
				if err != nil {
					return err
				}
				for versionPos, sel := range selectors {
					tdvID, err := p.resolveRequirement(ctx, tx, dep.TableID, sel, outputsByTable, run.ID)
					if err != nil {
						return err
					}
					req := &model.FunctionRequirement{
						ID: p.ids.Next("req"), FunctionRunID: run.ID, DependencyID: dep.ID,
						DepPos: dep.DepPos, VersionPos: versionPos, TableDataVersionID: tdvID,
					}
					reqs = append(reqs, req)
				}
			}
			sortRequirements(reqs)
			for _, req := range reqs {
				if err := tx.InsertFunctionRequirement(ctx, req); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err == nil {
		log.WithField("execution_id", executionID).WithField("runs", len(order)).Info("execution planned")
	}
	return executionID, err
}

// resolveRequirement resolves one version selector for a dependency on
// tableID: a forward reference into this same planning pass's freshly
// allocated output (HEAD pointing at a table this execution itself
// produces), an existing TableDataVersion from the catalog's timeline,
// or nil (a legitimate null input slot). A Committed selector (HEAD~k)
// only indexes versions whose producing run has itself reached
// Committed; an Any selector (HEAD^k, and HEAD itself) indexes the
// timeline regardless of commit status.
//
// runID excludes a run's own forward-reference entry in freshOutputs: a
// function that both produces and reads the same table (the state
// carryover table of section 4.4) must see the last committed value on
// its input side, never its own about-to-be-created, data-less output.
func (p *Planner) resolveRequirement(ctx context.Context, tx catalog.Tx, tableID string, sel tableversions.Selector, freshOutputs map[string]*model.TableDataVersion, runID string) (*string, error) {
	if sel.K == 0 {
		if tdv, ok := freshOutputs[tableID]; ok && tdv.FunctionRunID != runID {
			id := tdv.ID
			return &id, nil
		}
	}

	timeline, err := tx.ListTableDataVersionTimeline(ctx, tableID, true)
	if err != nil {
		return nil, err
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].ID > timeline[j].ID })

	if sel.Kind == tableversions.Committed {
		timeline, err = p.filterCommitted(ctx, tx, timeline)
		if err != nil {
			return nil, err
		}
	}

	if sel.K < 0 || sel.K >= len(timeline) {
		return nil, nil
	}
	id := timeline[sel.K].ID
	return &id, nil
}

// filterCommitted narrows timeline to the versions whose producing
// FunctionRun has reached StatusCommitted, preserving order.
func (p *Planner) filterCommitted(ctx context.Context, tx catalog.Tx, timeline []*model.TableDataVersion) ([]*model.TableDataVersion, error) {
	var out []*model.TableDataVersion
	for _, tdv := range timeline {
		run, err := tx.GetFunctionRun(ctx, tdv.FunctionRunID)
		if err != nil {
			return nil, err
		}
		if run.Status == model.StatusCommitted {
			out = append(out, tdv)
		}
	}
	return out, nil
}

// allocateURI derives the storage slot for one output, stable per
// (table_id, table_data_version_id) the way section 4.4 requires: the
// worker writes to exactly this path and nowhere else for this version.
func allocateURI(dataLocation, tableID, tableDataVersionID string) string {
	base := strings.TrimRight(dataLocation, "/")
	return fmt.Sprintf("%s/%s/%s", base, tableID, tableDataVersionID)
}

// sortRequirements orders requirements within a run: positive dep_pos
// ascending, then negative dep_pos ascending by absolute value, then
// resolved version position, matching the ordering the worker manifest
// (section 6.1) presents inputs in.
func sortRequirements(reqs []*model.FunctionRequirement) {
	sort.Slice(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		aNeg, bNeg := a.DepPos < 0, b.DepPos < 0
		if aNeg != bNeg {
			return !aNeg // positives first
		}
		if aNeg {
			if a.DepPos != b.DepPos {
				return -a.DepPos < -b.DepPos
			}
		} else if a.DepPos != b.DepPos {
			return a.DepPos < b.DepPos
		}
		return a.VersionPos < b.VersionPos
	})
}

// closure computes the topologically ordered set of function versions
// reachable from root by following trigger edges (table -> consumer),
// rejecting cycles.
func (p *Planner) closure(ctx context.Context, root string) ([]string, error) {
	visited := map[string]bool{root: true}
	queue := []string{root}
	edges := map[string][]string{} // producer fv -> consumer fv

	for len(queue) > 0 {
		fv := queue[0]
		queue = queue[1:]

		tables, err := p.graph.Dependents(ctx, fv, graph.Produces)
		if err != nil {
			return nil, err
		}
		for _, table := range tables {
			consumers, err := p.graph.Dependents(ctx, table, graph.Triggers)
			if err != nil {
				return nil, err
			}
			for _, c := range consumers {
				edges[fv] = append(edges[fv], c)
				if !visited[c] {
					visited[c] = true
					queue = append(queue, c)
				}
			}
		}
	}

	return topoSort(visited, edges)
}

// topoSort runs Kahn's algorithm over nodes, returning Invalid if a
// cycle remains after every zero-in-degree node is drained.
func topoSort(nodes map[string]bool, edges map[string][]string) ([]string, error) {
	indegree := map[string]int{}
	for n := range nodes {
		indegree[n] = 0
	}
	for _, targets := range edges {
		for _, t := range targets {
			indegree[t]++
		}
	}

	var ready []string
	for n := range nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var newlyReady []string
		for _, t := range edges[n] {
			indegree[t]--
			if indegree[t] == 0 {
				newlyReady = append(newlyReady, t)
			}
		}
		sort.Strings(newlyReady)
		ready = append(ready, newlyReady...)
	}

	if len(order) != len(nodes) {
		return nil, catalogerr.Invalid("trigger graph contains a cycle")
	}
	return order, nil
}
