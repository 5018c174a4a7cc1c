// Package dispatcher implements section 4.5: pairs a locked
// WorkerMessage with a worker over a transport, applies the worker's
// callback to catalog state, and enforces the retry/timeout/
// cancellation policy.
package dispatcher

import (
	"context"
	"time"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/commit"
	"tabsdata.io/execcore/internal/dispatcher/callback"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/manifest"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/obslog"
)

var log = obslog.Component("dispatcher")

// Publisher hands a manifest body to the worker pool under a routing
// key. Satisfied by transport.AMQP and transport.Memory without
// either importing this package — dispatcher only depends on the
// method set it actually calls.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// routingKey is the single topic every "ephemeral function" manifest
// is published under; the worker pool's consumer binds to it.
const routingKey = "function.start"

// Dispatcher pairs WorkerMessages with workers and applies callbacks.
type Dispatcher struct {
	cat        catalog.Catalog
	pub        Publisher
	signer     *callback.TokenSigner
	commit     *commit.Engine
	ids        *idgen.Generator
	maxRetries int
}

// New returns a Dispatcher. maxRetries bounds the Error→ReScheduled
// cycle of section 4.5 before a run is given up as Failed.
func New(cat catalog.Catalog, pub Publisher, signer *callback.TokenSigner, ids *idgen.Generator, maxRetries int) *Dispatcher {
	if ids == nil {
		ids = idgen.New()
	}
	return &Dispatcher{cat: cat, pub: pub, signer: signer, commit: commit.New(cat), ids: ids, maxRetries: maxRetries}
}

// Publish mints a callback token scoped to req's function_run_id,
// embeds it as a bearer Authorization header, and publishes the
// envelope. Called once per manifest returned by scheduler.Tick. Once
// the envelope is actually handed to the worker pool, the run is moved
// to Running so a caller polling list_function_runs mid-dispatch never
// observes a stale Scheduled/RunRequested status.
func (d *Dispatcher) Publish(ctx context.Context, req *manifest.Request) error {
	token, err := d.signer.Mint(req.Context.Info.FunctionRunID)
	if err != nil {
		return err
	}
	if req.Callback.Headers == nil {
		req.Callback.Headers = map[string]string{}
	}
	req.Callback.Headers["Authorization"] = "Bearer " + token

	body, err := manifest.EncodeRequest(req)
	if err != nil {
		return err
	}
	if err := d.pub.Publish(ctx, routingKey, body); err != nil {
		return err
	}
	return d.markRunning(ctx, req.Context.Info.FunctionRunID)
}

// markRunning advances functionRunID to Running after a successful
// publish. A run that no longer exists, or whose callback already raced
// ahead of this call, is left alone rather than treated as an error.
func (d *Dispatcher) markRunning(ctx context.Context, functionRunID string) error {
	err := d.cat.Atomic(ctx, func(tx catalog.Tx) error {
		run, err := tx.GetFunctionRun(ctx, functionRunID)
		if err != nil {
			return err
		}
		if !run.Status.CanTransitionTo(model.StatusRunning) {
			return nil
		}
		run.Status = model.StatusRunning
		return tx.UpdateFunctionRun(ctx, run)
	})
	if catalogerr.KindOf(err) == catalogerr.KindNotFound {
		return nil
	}
	return err
}

// HandleCallback applies resp to functionRunID's run: updates its
// status/timestamps, records each reported output's has_data and
// partitions, unlocks the WorkerMessage, and — once the run lands on
// Done — asks the Commit Engine to evaluate its transaction. Repeated
// callbacks for an already-finalized run are accepted idempotently
// unless resp disagrees with the recorded outcome, in which case it
// returns a Conflict (section 6.3, worker_callback idempotence).
func (d *Dispatcher) HandleCallback(ctx context.Context, functionRunID string, resp *manifest.Response) error {
	var transactionID string
	err := d.cat.Atomic(ctx, func(tx catalog.Tx) error {
		run, err := tx.GetFunctionRun(ctx, functionRunID)
		if err != nil {
			return err
		}

		if run.Status == model.StatusCanceled {
			// Section 4.5: an already-canceled run's eventual callback is
			// accepted idempotently; no state is rolled back from Canceled.
			return nil
		}
		if run.Status.IsTerminal() {
			if responseConflicts(run, resp) {
				return catalogerr.Conflict("callback for function_run_id %s disagrees with its recorded outcome", functionRunID)
			}
			return nil
		}

		now := time.Now()
		if run.StartedOn == nil {
			run.StartedOn = &now
		}
		run.EndedOn = &now

		switch resp.Status {
		case model.ResponseDone:
			run.Status = model.StatusDone
		case model.ResponseCanceled:
			run.Status = model.StatusCanceled
		case model.ResponseFailed:
			run.Error = resp.Error
			return d.applyRetryPolicy(ctx, tx, run)
		default:
			return catalogerr.Invalid("unrecognized response status %q", resp.Status)
		}
		if err := tx.UpdateFunctionRun(ctx, run); err != nil {
			return err
		}
		transactionID = run.TransactionID

		if err := d.recordOutputs(ctx, tx, resp); err != nil {
			return err
		}
		return tx.UnlockWorkerMessage(ctx, functionRunID)
	})
	if err != nil {
		return err
	}
	if transactionID != "" {
		if _, err := d.commit.TryCommit(ctx, transactionID); err != nil {
			return err
		}
	}
	return nil
}

// responseConflicts reports whether resp's terminal outcome disagrees
// with run's already-recorded terminal status.
func responseConflicts(run *model.FunctionRun, resp *manifest.Response) bool {
	switch run.Status {
	case model.StatusDone, model.StatusCommitted, model.StatusPublished:
		return resp.Status != model.ResponseDone
	case model.StatusFailed:
		return resp.Status != model.ResponseFailed
	default:
		return false
	}
}

// recordOutputs persists has_data and any partitions for each output
// resp reports, skipping slots the worker didn't resolve to a table
// data version (a legitimate null output has none to record).
func (d *Dispatcher) recordOutputs(ctx context.Context, tx catalog.Tx, resp *manifest.Response) error {
	for _, o := range resp.Context.Output {
		if o.Table.TableDataVersionID == "" {
			continue
		}
		hasData := o.Kind == manifest.OutputData || o.Kind == manifest.OutputPartitions
		if err := tx.UpdateTableDataVersionHasData(ctx, o.Table.TableDataVersionID, hasData); err != nil {
			return err
		}
		for key, uri := range o.Partitions {
			p := &model.TablePartition{ID: d.ids.Next("tp"), TableDataVersionID: o.Table.TableDataVersionID, PartitionKey: key, URI: uri}
			if err := tx.InsertTablePartition(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyRetryPolicy implements section 4.5's retry policy: Error →
// ReScheduled up to maxRetries, then → Failed. Unlocks the
// WorkerMessage either way so a ReScheduled run becomes dispatchable
// again on the next Scheduler tick.
func (d *Dispatcher) applyRetryPolicy(ctx context.Context, tx catalog.Tx, run *model.FunctionRun) error {
	run.RetryCount++
	if run.RetryCount > d.maxRetries {
		run.Status = model.StatusFailed
	} else {
		run.Status = model.StatusReScheduled
	}
	if err := tx.UpdateFunctionRun(ctx, run); err != nil {
		return err
	}
	return tx.UnlockWorkerMessage(ctx, run.ID)
}

// ReapExpired scans WorkerMessages whose lease has expired without a
// callback and applies the same retry policy as an explicit worker
// error (section 4.5: "timeouts on worker invocation ... surface as
// Error"). Returns how many runs it reaped.
func (d *Dispatcher) ReapExpired(ctx context.Context) (int, error) {
	expired, err := d.cat.ListExpiredLeases(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, wm := range expired {
		err := d.cat.Atomic(ctx, func(tx catalog.Tx) error {
			run, err := tx.GetFunctionRun(ctx, wm.FunctionRunID)
			if err != nil {
				return err
			}
			if run.Status != model.StatusRunRequested && run.Status != model.StatusRunning {
				// A real callback raced the reaper and already advanced
				// the run; nothing to reap.
				return nil
			}
			run.Error = "worker invocation timed out"
			return d.applyRetryPolicy(ctx, tx, run)
		})
		if err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		log.WithField("reaped", n).Warn("dispatcher reaped expired worker leases")
	}
	return n, nil
}
