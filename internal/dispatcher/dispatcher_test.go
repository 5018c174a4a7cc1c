package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalog/memory"
	"tabsdata.io/execcore/internal/dispatcher/callback"
	"tabsdata.io/execcore/internal/dispatcher/transport"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/manifest"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/planner"
	"tabsdata.io/execcore/internal/planner/graph"
	"tabsdata.io/execcore/internal/scheduler"
)

type directTx struct{ catalog.Catalog }

// seedFunction inserts a Table+TableVersion+Bundle+FunctionVersion
// producing the table and syncs the planner graph, mirroring the
// pattern established in planner_test.go/scheduler_test.go.
func seedFunction(t *testing.T, ctx context.Context, cat catalog.Catalog, p *planner.Planner, ids *idgen.Generator, name, tableName string) (fvID string) {
	t.Helper()
	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		bundle := &model.Bundle{ID: ids.Next("bdl"), URI: "s3://bundles/" + name + ".tar"}
		if err := tx.InsertBundle(ctx, bundle); err != nil {
			return err
		}
		fv := &model.FunctionVersion{ID: ids.Next("fv"), Name: name, Status: model.VersionActive, BundleID: bundle.ID}
		if err := tx.InsertFunctionVersion(ctx, fv); err != nil {
			return err
		}
		fvID = fv.ID

		table := &model.Table{ID: ids.Next("tbl"), Name: tableName, FunctionParamPos: 0}
		if err := tx.InsertTable(ctx, table); err != nil {
			return err
		}
		tv := &model.TableVersion{ID: ids.Next("tv"), TableID: table.ID, FunctionVersionID: fv.ID, Status: model.VersionActive}
		return tx.InsertTableVersion(ctx, tv)
	}))
	require.NoError(t, p.SyncFunctionVersion(ctx, directTx{cat}, fvID))
	return fvID
}

// harness wires a full plan -> schedule -> dispatch pipeline and
// returns a dispatchable run already locked by the Scheduler, ready
// for a worker callback.
func harness(t *testing.T) (cat catalog.Catalog, ids *idgen.Generator, d *Dispatcher, runID, transactionID string) {
	t.Helper()
	ctx := context.Background()
	cat = memory.New()
	ids = idgen.New()
	p := planner.New(cat, graph.NewMemory(), ids)
	s := scheduler.New(cat, ids, "https://core.example.com/v1/callback", nil)
	signer := callback.NewTokenSigner([]byte("test-secret"), time.Minute)
	d = New(cat, transport.NewMemory(), signer, ids, 2)

	fvID := seedFunction(t, ctx, cat, p, ids, "producer", "t1")
	execID, err := p.Trigger(ctx, fvID, "alice", "run-1")
	require.NoError(t, err)

	runs, err := cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	reqs, err := s.Tick(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	return cat, ids, d, runs[0].ID, runs[0].TransactionID
}

func TestPublishEmbedsACallbackTokenScopedToTheRun(t *testing.T) {
	cat := memory.New()
	ids := idgen.New()
	pub := transport.NewMemory()
	signer := callback.NewTokenSigner([]byte("s"), time.Minute)
	d := New(cat, pub, signer, ids, 2)

	req := &manifest.Request{
		Context: manifest.RequestContext{Info: manifest.Info{FunctionRunID: "run-1"}},
	}
	require.NoError(t, d.Publish(context.Background(), req))

	require.Len(t, pub.Published, 1)
	assert.Equal(t, "function.start", pub.Published[0].RoutingKey)

	decoded, err := manifest.DecodeRequest(pub.Published[0].Body)
	require.NoError(t, err)
	token := decoded.Callback.Headers["Authorization"]
	require.NotEmpty(t, token)
	require.NoError(t, signer.Verify(token[len("Bearer "):], "run-1"))
}

func TestHandleCallbackMarksRunDoneAndUnlocksWorkerMessage(t *testing.T) {
	ctx := context.Background()
	cat, _, d, runID, transactionID := harness(t)

	resp := &manifest.Response{Status: model.ResponseDone}
	require.NoError(t, d.HandleCallback(ctx, runID, resp))

	run, err := cat.GetFunctionRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run.StartedOn)
	require.NotNil(t, run.EndedOn)
	// With no dependencies in this transaction, the lone Done run
	// should immediately commit, landing on Committed rather than Done.
	assert.Equal(t, model.StatusCommitted, run.Status)

	wm, err := cat.GetWorkerMessageByRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageUnlocked, wm.MessageStatus)

	txn, err := cat.GetTransaction(ctx, transactionID)
	require.NoError(t, err)
	assert.NotNil(t, txn.CommitedOn)
}

func TestHandleCallbackRecordsReportedOutputs(t *testing.T) {
	ctx := context.Background()
	cat, _, d, runID, _ := harness(t)

	tdvs, err := cat.ListTableDataVersionsByFunctionRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, tdvs, 1)

	resp := &manifest.Response{
		Status: model.ResponseDone,
		Context: manifest.ResponseContext{Output: []manifest.OutputReport{
			{Kind: manifest.OutputData, Table: manifest.TableSlot{TableDataVersionID: tdvs[0].ID}},
		}},
	}
	require.NoError(t, d.HandleCallback(ctx, runID, resp))

	got, err := cat.GetTableDataVersion(ctx, tdvs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.HasData)
	assert.True(t, *got.HasData)
}

func TestHandleCallbackErrorRetriesUpToMaxThenFails(t *testing.T) {
	ctx := context.Background()
	cat, _, d, runID, _ := harness(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, d.HandleCallback(ctx, runID, &manifest.Response{Status: model.ResponseFailed, Error: "boom"}))
		run, err := cat.GetFunctionRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusReScheduled, run.Status, "retry %d should reschedule", i)

		require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
			run, err := tx.GetFunctionRun(ctx, runID)
			if err != nil {
				return err
			}
			run.Status = model.StatusRunning
			return tx.UpdateFunctionRun(ctx, run)
		}))
	}

	require.NoError(t, d.HandleCallback(ctx, runID, &manifest.Response{Status: model.ResponseFailed, Error: "boom"}))
	run, err := cat.GetFunctionRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, run.Status)
}

func TestHandleCallbackIsIdempotentForAMatchingRepeat(t *testing.T) {
	ctx := context.Background()
	cat, _, d, runID, _ := harness(t)

	require.NoError(t, d.HandleCallback(ctx, runID, &manifest.Response{Status: model.ResponseDone}))
	err := d.HandleCallback(ctx, runID, &manifest.Response{Status: model.ResponseDone})
	assert.NoError(t, err)

	run, err := cat.GetFunctionRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCommitted, run.Status)
}

func TestHandleCallbackConflictsOnDisagreeingRepeat(t *testing.T) {
	ctx := context.Background()
	cat, _, d, runID, _ := harness(t)

	require.NoError(t, d.HandleCallback(ctx, runID, &manifest.Response{Status: model.ResponseDone}))
	err := d.HandleCallback(ctx, runID, &manifest.Response{Status: model.ResponseFailed, Error: "actually failed"})
	require.Error(t, err)
}

func TestReapExpiredReschedulesTimedOutRun(t *testing.T) {
	ctx := context.Background()
	cat, _, d, runID, _ := harness(t)

	require.NoError(t, cat.Atomic(ctx, func(tx catalog.Tx) error {
		run, err := tx.GetFunctionRun(ctx, runID)
		if err != nil {
			return err
		}
		run.Status = model.StatusRunning
		return tx.UpdateFunctionRun(ctx, run)
	}))
	require.NoError(t, cat.UnlockWorkerMessage(ctx, runID))
	_, err := cat.LockWorkerMessage(ctx, runID, "scheduler", -1)
	require.NoError(t, err)

	n, err := d.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	run, err := cat.GetFunctionRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReScheduled, run.Status)
}
