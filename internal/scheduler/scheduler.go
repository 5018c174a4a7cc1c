// Package scheduler implements section 4.4: decide which Scheduled/
// ReScheduled runs are dispatchable, read the input requirements the
// Planner already resolved against the table timeline at plan time,
// and assemble the request manifest the Dispatcher hands to a worker.
package scheduler

import (
	"context"
	"sort"
	"time"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/catalogerr"
	"tabsdata.io/execcore/internal/idgen"
	"tabsdata.io/execcore/internal/manifest"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/obslog"
	"tabsdata.io/execcore/internal/scheduler/lock"
)

var log = obslog.Component("scheduler")

// claimTTL bounds how long a scale-out lock claim on a run survives a
// Scheduler instance that dies mid-dispatch.
const claimTTL = 30 * time.Second

// Scheduler turns dispatchable FunctionRuns into locked WorkerMessages
// plus the manifest a worker needs to execute them.
type Scheduler struct {
	cat             catalog.Catalog
	ids             *idgen.Generator
	callbackBaseURL string
	claims          lock.Lock
}

// New returns a Scheduler. callbackBaseURL is joined with a run's id to
// build the callback URL embedded in each manifest (e.g.
// "https://core.example.com/v1/callback"). claims is the scale-out
// contention-avoidance lock of section 5; a nil claims is valid for a
// single-instance Scheduler and falls back to an in-process lock.
func New(cat catalog.Catalog, ids *idgen.Generator, callbackBaseURL string, claims lock.Lock) *Scheduler {
	if ids == nil {
		ids = idgen.New()
	}
	if claims == nil {
		claims = lock.NewMemory()
	}
	return &Scheduler{cat: cat, ids: ids, callbackBaseURL: callbackBaseURL, claims: claims}
}

// Tick scans up to limit Scheduled/ReScheduled runs, builds a manifest
// for each one whose requirements already satisfy the dispatchability
// predicate, and locks their worker message so only this call may
// dispatch them. Runs with a failed upstream requirement are
// transitioned to Failed instead of returned.
func (s *Scheduler) Tick(ctx context.Context, limit int) ([]*manifest.Request, error) {
	candidates, err := s.cat.ListDispatchableFunctionRuns(ctx, limit)
	if err != nil {
		return nil, err
	}

	var out []*manifest.Request
	for _, run := range candidates {
		req, err := s.tryDispatch(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		if req != nil {
			out = append(out, req)
		}
	}
	if len(out) > 0 {
		log.WithField("dispatched", len(out)).Info("scheduler tick")
	}
	return out, nil
}

// tryDispatch re-checks run under one transaction, builds its manifest,
// and locks its worker message. Returns nil, nil if the run is not (or
// no longer) actually dispatchable.
func (s *Scheduler) tryDispatch(ctx context.Context, runID string) (*manifest.Request, error) {
	claimed, err := s.claims.Acquire(ctx, runID, claimTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Another Scheduler instance is already working this run; the
		// catalog row is the real arbiter, so skipping here only saves
		// a wasted transaction.
		return nil, nil
	}
	defer func() {
		if err := s.claims.Release(ctx, runID); err != nil {
			log.WithField("function_run_id", runID).WithField("error", err.Error()).Warn("failed to release scheduler claim")
		}
	}()

	var req *manifest.Request
	err = s.cat.Atomic(ctx, func(tx catalog.Tx) error {
		run, err := tx.GetFunctionRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status != model.StatusScheduled && run.Status != model.StatusReScheduled {
			return nil
		}

		reqs, err := tx.ListFunctionRequirements(ctx, run.ID)
		if err != nil {
			return err
		}

		ok, failed, err := checkRequirements(ctx, tx, reqs)
		if err != nil {
			return err
		}
		if failed {
			run.Status = model.StatusFailed
			return tx.UpdateFunctionRun(ctx, run)
		}
		if !ok {
			return nil
		}

		existing, err := tx.GetWorkerMessageByRun(ctx, run.ID)
		if err != nil && catalogerr.KindOf(err) != catalogerr.KindNotFound {
			return err
		}
		if existing != nil && existing.MessageStatus == model.MessageLocked {
			// Already locked by a prior tick; the Dispatcher hasn't
			// advanced the run's status yet. Nothing to do.
			return nil
		}
		if existing == nil {
			msg := &model.WorkerMessage{ID: s.ids.Next("wm"), FunctionRunID: run.ID, MessageStatus: model.MessageUnlocked}
			if err := tx.InsertWorkerMessage(ctx, msg); err != nil {
				return err
			}
		}
		if _, err := tx.LockWorkerMessage(ctx, run.ID, "scheduler", 300); err != nil {
			return err
		}

		built, err := s.buildManifest(ctx, tx, run, reqs)
		if err != nil {
			return err
		}

		if run.Status.CanTransitionTo(model.StatusRunRequested) {
			run.Status = model.StatusRunRequested
			if err := tx.UpdateFunctionRun(ctx, run); err != nil {
				return err
			}
		}

		req = built
		return nil
	})
	return req, err
}

// checkRequirements reports ok=true iff every requirement resolves to a
// legitimate null or a Done/Committed TableDataVersion; failed=true iff
// any requirement's producing run is Failed or Canceled (section 4.4
// "partial failure").
func checkRequirements(ctx context.Context, tx catalog.Tx, reqs []*model.FunctionRequirement) (ok bool, failed bool, err error) {
	for _, r := range reqs {
		if r.TableDataVersionID == nil {
			continue
		}
		tdv, err := tx.GetTableDataVersion(ctx, *r.TableDataVersionID)
		if err != nil {
			return false, false, err
		}
		producer, err := tx.GetFunctionRun(ctx, tdv.FunctionRunID)
		if err != nil {
			return false, false, err
		}
		switch producer.Status {
		case model.StatusDone, model.StatusCommitted:
			continue
		case model.StatusFailed, model.StatusCanceled:
			return false, true, nil
		default:
			return false, false, nil
		}
	}
	return true, false, nil
}

// buildManifest assembles the section 6.1 request envelope for run,
// splitting inputs/outputs into system and regular slots by sign of
// their declared position (negative = system, matching
// Table.SystemTable and the requirement ordering rule).
func (s *Scheduler) buildManifest(ctx context.Context, tx catalog.Tx, run *model.FunctionRun, reqs []*model.FunctionRequirement) (*manifest.Request, error) {
	fv, err := tx.GetFunctionVersion(ctx, run.FunctionVersionID)
	if err != nil {
		return nil, err
	}
	fn, err := tx.GetFunction(ctx, fv.FunctionID)
	if err != nil {
		return nil, err
	}
	collection, err := tx.GetCollection(ctx, fv.CollectionID)
	if err != nil {
		return nil, err
	}
	bundle, err := tx.GetBundle(ctx, fv.BundleID)
	if err != nil {
		return nil, err
	}
	transaction, err := tx.GetTransaction(ctx, run.TransactionID)
	if err != nil {
		return nil, err
	}
	execution, err := tx.GetExecution(ctx, transaction.ExecutionID)
	if err != nil {
		return nil, err
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].DepPos != reqs[j].DepPos {
			return reqs[i].DepPos < reqs[j].DepPos
		}
		return reqs[i].VersionPos < reqs[j].VersionPos
	})

	var input, systemInput []manifest.TableSlot
	inputIdx := 0
	for _, r := range reqs {
		slot, err := s.requirementSlot(ctx, tx, r, inputIdx)
		if err != nil {
			return nil, err
		}
		inputIdx++
		if r.DepPos < 0 {
			systemInput = append(systemInput, slot)
		} else {
			input = append(input, slot)
		}
	}

	outputs, err := s.outputSlots(ctx, tx, run.ID)
	if err != nil {
		return nil, err
	}
	var output, systemOutput []manifest.TableSlot
	for _, o := range outputs {
		if o.TablePos < 0 {
			systemOutput = append(systemOutput, o)
		} else {
			output = append(output, o)
		}
	}

	return &manifest.Request{
		Version: manifest.V2, Class: "ephemeral", Worker: "function", Action: "start",
		Callback: manifest.Callback{URL: s.callbackBaseURL + "/" + run.ID, Method: "POST"},
		Context: manifest.RequestContext{
			Info: manifest.Info{
				CollectionID: collection.ID, Collection: collection.Name,
				FunctionID: fn.ID, FunctionVersionID: fv.ID, Function: fn.Name,
				FunctionRunID: run.ID,
				FunctionBundle: manifest.BundleRef{URI: bundle.URI, EnvPrefix: bundle.EnvPrefix},
				TransactionID: transaction.ID, ExecutionID: execution.ID, ExecutionName: execution.Name,
				TriggeredOn: execution.TriggeredOn.UTC().UnixMilli(),
			},
			SystemInput:  systemInput,
			Input:        input,
			SystemOutput: systemOutput,
			Output:       output,
		},
	}, nil
}

// requirementSlot resolves one FunctionRequirement into a manifest
// TableSlot, with a nil Location when the requirement is a legitimate
// null input.
func (s *Scheduler) requirementSlot(ctx context.Context, tx catalog.Tx, r *model.FunctionRequirement, inputIdx int) (manifest.TableSlot, error) {
	dep, err := tx.GetDependency(ctx, r.DependencyID)
	if err != nil {
		return manifest.TableSlot{}, err
	}
	table, err := tx.GetTable(ctx, dep.TableID)
	if err != nil {
		return manifest.TableSlot{}, err
	}
	slot := manifest.TableSlot{
		Type: "Table", Name: table.Name, CollectionID: table.CollectionID,
		TableID: table.ID, TablePos: dep.DepPos, VersionPos: r.VersionPos, InputIdx: inputIdx,
	}
	if r.TableDataVersionID == nil {
		return slot, nil
	}
	tdv, err := tx.GetTableDataVersion(ctx, *r.TableDataVersionID)
	if err != nil {
		return manifest.TableSlot{}, err
	}
	slot.TableVersionID = tdv.TableVersionID
	slot.TableDataVersionID = tdv.ID
	slot.FunctionRunID = tdv.FunctionRunID
	slot.Location = &manifest.Location{URI: tdv.URI}
	return slot, nil
}

// outputSlots resolves a run's own produced TableDataVersions into
// manifest slots carrying their pre-allocated destination URIs
// (Planner allocates TableDataVersion.URI at plan time; the scheduler
// only reads it back).
func (s *Scheduler) outputSlots(ctx context.Context, tx catalog.Tx, functionRunID string) ([]manifest.TableSlot, error) {
	tdvs, err := tx.ListTableDataVersionsByFunctionRun(ctx, functionRunID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tdvs, func(i, j int) bool { return tdvs[i].TablePos < tdvs[j].TablePos })

	var out []manifest.TableSlot
	for i, tdv := range tdvs {
		table, err := tx.GetTable(ctx, tdv.TableID)
		if err != nil {
			return nil, err
		}
		out = append(out, manifest.TableSlot{
			Type: "Table", Name: table.Name, CollectionID: table.CollectionID,
			TableID: table.ID, TableVersionID: tdv.TableVersionID, TableDataVersionID: tdv.ID,
			FunctionRunID: tdv.FunctionRunID, Location: &manifest.Location{URI: tdv.URI},
			TablePos: tdv.TablePos, InputIdx: i,
		})
	}
	return out, nil
}
