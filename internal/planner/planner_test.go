package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalog/memory"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/planner/graph"
)

// seedFunction inserts a Table+TableVersion+FunctionVersion producing
// it, wiring the graph edge, and returns the function version id.
func seedFunction(t *testing.T, ctx context.Context, cat catalog.Catalog, p *Planner, ids *idgen.Generator, name, tableName string) (fvID, tableID string) {
	t.Helper()
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		fv := &model.FunctionVersion{ID: ids.Next("fv"), Name: name, Status: model.VersionActive}
		if err := tx.InsertFunctionVersion(ctx, fv); err != nil {
			return err
		}
		fvID = fv.ID

		table := &model.Table{ID: ids.Next("tbl"), Name: tableName, FunctionParamPos: 0}
		if err := tx.InsertTable(ctx, table); err != nil {
			return err
		}
		tableID = table.ID

		tv := &model.TableVersion{ID: ids.Next("tv"), TableID: table.ID, FunctionVersionID: fv.ID, Status: model.VersionActive}
		return tx.InsertTableVersion(ctx, tv)
	}))
	require.NoError(t, p.SyncFunctionVersion(ctx, directTx{cat}, fvID))
	return fvID, tableID
}

// directTx adapts a Catalog to a Tx for read-only sync calls outside an
// Atomic closure, since SyncFunctionVersion only reads.
type directTx struct{ catalog.Catalog }

func TestTriggerSingleFunctionProducesOneRunAndOutput(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	ids := idgen.New()
	p := New(cat, graph.NewMemory(), ids)

	fvID, tableID := seedFunction(t, ctx, cat, p, ids, "producer", "t1")

	execID, err := p.Trigger(ctx, fvID, "alice", "run-1")
	require.NoError(t, err)
	require.NotEmpty(t, execID)

	runs, err := cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.TriggerManual, runs[0].Trigger)
	assert.Equal(t, model.StatusScheduled, runs[0].Status)

	timeline, err := cat.ListTableDataVersionTimeline(ctx, tableID, false)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, execID, timeline[0].ExecutionID)
}

func TestTriggerFollowsTriggerChainInTopologicalOrder(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	ids := idgen.New()
	p := New(cat, graph.NewMemory(), ids)

	fvA, tableA := seedFunction(t, ctx, cat, p, ids, "producer", "t1")
	fvB, _ := seedFunction(t, ctx, cat, p, ids, "consumer", "t2")

	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.InsertTrigger(ctx, &model.Trigger{
			ID: ids.Next("trg"), TableID: tableA, ConsumerFunctionVersionID: fvB, Status: model.VersionActive,
		})
	}))
	require.NoError(t, p.SyncFunctionVersion(ctx, directTx{cat}, fvB))

	execID, err := p.Trigger(ctx, fvA, "alice", "chain")
	require.NoError(t, err)

	runs, err := cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var runA, runB *model.FunctionRun
	for _, r := range runs {
		switch r.FunctionVersionID {
		case fvA:
			runA = r
		case fvB:
			runB = r
		}
	}
	require.NotNil(t, runA)
	require.NotNil(t, runB)
	assert.Equal(t, model.TriggerManual, runA.Trigger)
	assert.Equal(t, model.TriggerDependency, runB.Trigger)
	assert.Less(t, runA.ID, runB.ID, "the triggering run must be allocated before its dependent")
}

func TestSyncFunctionVersionRejectsTriggerCycle(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	ids := idgen.New()
	p := New(cat, graph.NewMemory(), ids)

	fvA, tableA := seedFunction(t, ctx, cat, p, ids, "a", "t1")
	fvB, tableB := seedFunction(t, ctx, cat, p, ids, "b", "t2")
	_ = tableB

	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.InsertTrigger(ctx, &model.Trigger{
			ID: ids.Next("trg"), TableID: tableA, ConsumerFunctionVersionID: fvB, Status: model.VersionActive,
		})
	}))
	require.NoError(t, p.SyncFunctionVersion(ctx, directTx{cat}, fvB))

	// b's own table triggering a back into the closure containing a would
	// close a's -> b -> a cycle.
	tableBOutput, err := cat.GetActiveTableVersion(ctx, tableB)
	require.NoError(t, err)
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.InsertTrigger(ctx, &model.Trigger{
			ID: ids.Next("trg"), TableID: tableBOutput.TableID, ConsumerFunctionVersionID: fvA, Status: model.VersionActive,
		})
	}))

	err = p.SyncFunctionVersion(ctx, directTx{cat}, fvA)
	require.Error(t, err)
	assert.Equal(t, catalogerr.KindInvalid, catalogerr.KindOf(err))
}

func TestTriggerResolvesRequirementFromExistingTimeline(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	ids := idgen.New()
	p := New(cat, graph.NewMemory(), ids)

	fvA, tableA := seedFunction(t, ctx, cat, p, ids, "producer", "t1")
	_, err := p.Trigger(ctx, fvA, "alice", "seed-run")
	require.NoError(t, err)

	// The timeline only holds versions with data; record the seed
	// run's output as written.
	seeded, err := cat.ListTableDataVersionTimeline(ctx, tableA, false)
	require.NoError(t, err)
	require.Len(t, seeded, 1)
	require.NoError(t, cat.UpdateTableDataVersionHasData(ctx, seeded[0].ID, true))

	fvB, _ := seedFunction(t, ctx, cat, p, ids, "consumer", "t2")
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.InsertDependency(ctx, &model.Dependency{
			ID: ids.Next("dep"), FunctionVersionID: fvB, TableID: tableA, DepPos: 0,
			TableVersions: "HEAD", Status: model.VersionActive,
		})
	}))

	execID, err := p.Trigger(ctx, fvB, "alice", "consume-run")
	require.NoError(t, err)

	runs, err := cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	reqs, err := cat.ListFunctionRequirements(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.True(t, reqs[0].Satisfied())

	timeline, err := cat.ListTableDataVersionTimeline(ctx, tableA, false)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, timeline[0].ID, *reqs[0].TableDataVersionID)
}

func TestResolveRequirementCommittedSelectorRequiresCommittedProducer(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	ids := idgen.New()
	p := New(cat, graph.NewMemory(), ids)

	fvA, tableA := seedFunction(t, ctx, cat, p, ids, "producer", "t1")
	_, err := p.Trigger(ctx, fvA, "alice", "seed-run")
	require.NoError(t, err)

	// Mark the producer's run Done but not yet Committed.
	timeline, err := cat.ListTableDataVersionTimeline(ctx, tableA, false)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		run, err := tx.GetFunctionRun(ctx, timeline[0].FunctionRunID)
		if err != nil {
			return err
		}
		run.Status = model.StatusDone
		if err := tx.UpdateFunctionRun(ctx, run); err != nil {
			return err
		}
		return tx.UpdateTableDataVersionHasData(ctx, timeline[0].ID, true)
	}))

	fvB, _ := seedFunction(t, ctx, cat, p, ids, "consumer-committed", "t2")
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.InsertDependency(ctx, &model.Dependency{
			ID: ids.Next("dep"), FunctionVersionID: fvB, TableID: tableA, DepPos: 0,
			TableVersions: "HEAD~0", Status: model.VersionActive,
		})
	}))
	execB, err := p.Trigger(ctx, fvB, "alice", "consume-committed")
	require.NoError(t, err)
	runsB, err := cat.ListFunctionRunsByExecution(ctx, execB)
	require.NoError(t, err)
	require.Len(t, runsB, 1)
	reqsB, err := cat.ListFunctionRequirements(ctx, runsB[0].ID)
	require.NoError(t, err)
	require.Len(t, reqsB, 1)
	assert.False(t, reqsB[0].Satisfied(), "HEAD~0 must not resolve against a Done-but-not-Committed producer")

	fvC, _ := seedFunction(t, ctx, cat, p, ids, "consumer-any", "t3")
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.InsertDependency(ctx, &model.Dependency{
			ID: ids.Next("dep"), FunctionVersionID: fvC, TableID: tableA, DepPos: 0,
			TableVersions: "HEAD^0", Status: model.VersionActive,
		})
	}))
	execC, err := p.Trigger(ctx, fvC, "alice", "consume-any")
	require.NoError(t, err)
	runsC, err := cat.ListFunctionRunsByExecution(ctx, execC)
	require.NoError(t, err)
	require.Len(t, runsC, 1)
	reqsC, err := cat.ListFunctionRequirements(ctx, runsC[0].ID)
	require.NoError(t, err)
	require.Len(t, reqsC, 1)
	require.True(t, reqsC[0].Satisfied(), "HEAD^0 must resolve regardless of commit status")
	assert.Equal(t, timeline[0].ID, *reqsC[0].TableDataVersionID)
}

func TestResolveRequirementExcludesOwnFreshOutputForStateCarryover(t *testing.T) {
	ctx := context.Background()
	cat := memory.New()
	ids := idgen.New()
	p := New(cat, graph.NewMemory(), ids)

	stateTable := &model.Table{ID: ids.Next("tbl"), Name: "state", FunctionParamPos: -1, Private: true}
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		return tx.InsertTable(ctx, stateTable)
	}))

	priorRun := &model.FunctionRun{ID: ids.Next("run"), Status: model.StatusCommitted}
	priorTDV := &model.TableDataVersion{ID: ids.Next("tdv"), TableID: stateTable.ID, FunctionRunID: priorRun.ID}
	hasData := true
	priorTDV.HasData = &hasData
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		if err := tx.InsertFunctionRun(ctx, priorRun); err != nil {
			return err
		}
		return tx.InsertTableDataVersion(ctx, priorTDV)
	}))

	fvA := &model.FunctionVersion{ID: ids.Next("fv"), Name: "stateful", Status: model.VersionActive}
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		if err := tx.InsertFunctionVersion(ctx, fvA); err != nil {
			return err
		}
		tv := &model.TableVersion{ID: ids.Next("tv"), TableID: stateTable.ID, FunctionVersionID: fvA.ID, Status: model.VersionActive}
		if err := tx.InsertTableVersion(ctx, tv); err != nil {
			return err
		}
		return tx.InsertDependency(ctx, &model.Dependency{
			ID: ids.Next("dep"), FunctionVersionID: fvA.ID, TableID: stateTable.ID,
			DepPos: -1, TableVersions: "HEAD~0", Status: model.VersionActive,
		})
	}))
	require.NoError(t, p.SyncFunctionVersion(ctx, directTx{cat}, fvA.ID))

	execID, err := p.Trigger(ctx, fvA.ID, "alice", "stateful-run")
	require.NoError(t, err)

	runs, err := cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	reqs, err := cat.ListFunctionRequirements(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.True(t, reqs[0].Satisfied())
	assert.Equal(t, priorTDV.ID, *reqs[0].TableDataVersionID,
		"the state dependency must resolve to the prior committed version, never this run's own fresh output")

	tdvs, err := cat.ListTableDataVersionsByFunctionRun(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, tdvs, 1)
	assert.NotEqual(t, priorTDV.ID, tdvs[0].ID, "this run's own output must be a distinct, freshly allocated version")
}

func TestSortRequirementsOrdersPositiveThenNegativeByMagnitude(t *testing.T) {
	reqs := []*model.FunctionRequirement{
		{DepPos: -2, VersionPos: 0},
		{DepPos: 1, VersionPos: 0},
		{DepPos: -1, VersionPos: 0},
		{DepPos: 0, VersionPos: 0},
	}
	sortRequirements(reqs)

	var order []int
	for _, r := range reqs {
		order = append(order, r.DepPos)
	}
	assert.Equal(t, []int{0, 1, -1, -2}, order)
}
