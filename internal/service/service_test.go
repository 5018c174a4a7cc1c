package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalog/memory"
	"tabsdata.io/execcore/internal/dispatcher"
	"tabsdata.io/execcore/internal/dispatcher/callback"
	"tabsdata.io/execcore/internal/dispatcher/transport"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/manifest"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/planner"
	"tabsdata.io/execcore/internal/planner/graph"
	"tabsdata.io/execcore/internal/registry"
	"tabsdata.io/execcore/internal/scheduler"
)

const producerManifest = `
kind: function-manifest
name: producer
data_location: s3://bucket/producer
bundle:
  hash: abc123
  uri: s3://bundles/producer.tar
outputs:
  - table: t1
`

const consumerManifest = `
kind: function-manifest
name: consumer
data_location: s3://bucket/consumer
bundle:
  hash: def456
  uri: s3://bundles/consumer.tar
dependencies:
  - table: t1
    dep_pos: 0
    table_versions: HEAD
triggers:
  - table: t1
`

// newCore wires a full Core against the in-memory catalog, the way
// cmd/execored's main wires it against Postgres/Neo4j/Redis/AMQP.
func newCore(t *testing.T) *Core {
	t.Helper()
	cat := memory.New()
	ids := idgen.New()
	reg := registry.New(cat, ids)
	pl := planner.New(cat, graph.NewMemory(), ids)
	signer := callback.NewTokenSigner([]byte("test-secret"), time.Minute)
	disp := dispatcher.New(cat, transport.NewMemory(), signer, ids, 2)
	return New(cat, reg, pl, disp, ids)
}

func TestRegisterFunctionSyncsTheTriggerGraph(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)

	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)

	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(consumerManifest), "alice")
	require.NoError(t, err)

	execID, err := c.Trigger(ctx, colID, "producer", "alice", "nightly")
	require.NoError(t, err)

	runs, err := c.cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	// producer plus the dependency-triggered consumer.
	assert.Len(t, runs, 2)
}

func TestCreateCollectionRejectsADuplicateName(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)

	_, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, err = c.CreateCollection(ctx, "sales", "alice")
	require.Error(t, err)
}

func TestTriggerRejectsAnUnknownFunction(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)

	_, err = c.Trigger(ctx, colID, "does-not-exist", "alice", "run")
	require.Error(t, err)
}

func TestExecutionStatusIsScheduledWhileEveryRunIsScheduled(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)

	execID, err := c.Trigger(ctx, colID, "producer", "alice", "run")
	require.NoError(t, err)

	status, err := c.ExecutionStatus(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, status)
}

func TestCancelExecutionMovesEveryNonTerminalRunToCanceled(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)
	execID, err := c.Trigger(ctx, colID, "producer", "alice", "run")
	require.NoError(t, err)

	require.NoError(t, c.CancelExecution(ctx, execID))

	runs, err := c.cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	for _, r := range runs {
		assert.Equal(t, model.StatusCanceled, r.Status)
	}
}

func TestCancelExecutionUnlocksAnInFlightWorkerMessage(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)
	execID, err := c.Trigger(ctx, colID, "producer", "alice", "run")
	require.NoError(t, err)

	sched := scheduler.New(c.cat, c.ids, "https://core.example.com/v1/callback", nil)
	reqs, err := sched.Tick(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	require.NoError(t, c.CancelExecution(ctx, execID))

	runs, err := c.cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	wm, err := c.cat.GetWorkerMessageByRun(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageUnlocked, wm.MessageStatus)
}

func TestHoldThenResumeRunReturnsItToScheduled(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)
	execID, err := c.Trigger(ctx, colID, "producer", "alice", "run")
	require.NoError(t, err)
	runs, err := c.cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	runID := runs[0].ID

	require.NoError(t, c.HoldRun(ctx, runID))
	run, err := c.cat.GetFunctionRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnHold, run.Status)

	require.NoError(t, c.ResumeRun(ctx, runID))
	run, err = c.cat.GetFunctionRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, run.Status)
}

func TestResumeRunRejectsARunThatIsNotOnHold(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)
	execID, err := c.Trigger(ctx, colID, "producer", "alice", "run")
	require.NoError(t, err)
	runs, err := c.cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)

	err = c.ResumeRun(ctx, runs[0].ID)
	require.Error(t, err)
}

func TestWorkerCallbackDelegatesToTheDispatcher(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)
	execID, err := c.Trigger(ctx, colID, "producer", "alice", "run")
	require.NoError(t, err)

	sched := scheduler.New(c.cat, c.ids, "https://core.example.com/v1/callback", nil)
	reqs, err := sched.Tick(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	runs, err := c.cat.ListFunctionRunsByExecution(ctx, execID)
	require.NoError(t, err)
	require.NoError(t, c.WorkerCallback(ctx, runs[0].ID, &manifest.Response{Status: model.ResponseDone}))

	run, err := c.cat.GetFunctionRun(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCommitted, run.Status)
}

func TestListTablesReturnsThePageContract(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)
	colID, err := c.CreateCollection(ctx, "sales", "alice")
	require.NoError(t, err)
	_, _, err = c.RegisterFunction(ctx, colID, []byte(producerManifest), "alice")
	require.NoError(t, err)

	page, err := c.ListTables(ctx, catalog.Cursor{Len: 10}, nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
}
