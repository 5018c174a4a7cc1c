package commit

import (
	"context"

	"tabsdata.io/execcore/internal/catalog"
	"tabsdata.io/execcore/internal/model"
	"tabsdata.io/execcore/internal/obslog"
)

var log = obslog.Component("commit")

// Engine evaluates the commit decision for a transaction: when every
// run is Done and every requirement's producing run is already settled
// (Done or Committed), every run flips to Committed and the
// transaction's commited_on is stamped.
type Engine struct {
	cat catalog.Catalog
}

// New returns a commit Engine backed by cat.
func New(cat catalog.Catalog) *Engine {
	return &Engine{cat: cat}
}

// TryCommit evaluates transactionID's commit decision inside one
// Atomic closure, called by the Dispatcher immediately after a run in
// that transaction is marked Done (section 4.6, "finalisation is
// transactional at the function-run set").
func (e *Engine) TryCommit(ctx context.Context, transactionID string) (committed bool, err error) {
	err = e.cat.Atomic(ctx, func(tx catalog.Tx) error {
		runs, err := tx.ListFunctionRunsByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return nil
		}

		for _, r := range runs {
			if r.Status != model.StatusDone {
				return nil
			}
		}

		settled, err := requirementsSettled(ctx, tx, runs)
		if err != nil {
			return err
		}
		if !settled {
			return nil
		}

		for _, r := range runs {
			r.Status = model.StatusCommitted
			if err := tx.UpdateFunctionRun(ctx, r); err != nil {
				return err
			}
		}
		if err := tx.UpdateTransactionCommittedOn(ctx, transactionID); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err == nil && committed {
		log.WithField("transaction_id", transactionID).Info("transaction committed")
	}
	return committed, err
}

// requirementsSettled reports whether every FunctionRequirement of
// every run in runs that resolved to a concrete TableDataVersion
// points at a producer already Done or Committed — i.e. the input is
// finalized and will not change underneath the commit.
func requirementsSettled(ctx context.Context, tx catalog.Tx, runs []*model.FunctionRun) (bool, error) {
	for _, r := range runs {
		reqs, err := tx.ListFunctionRequirements(ctx, r.ID)
		if err != nil {
			return false, err
		}
		for _, req := range reqs {
			if req.TableDataVersionID == nil {
				continue
			}
			tdv, err := tx.GetTableDataVersion(ctx, *req.TableDataVersionID)
			if err != nil {
				return false, err
			}
			producer, err := tx.GetFunctionRun(ctx, tdv.FunctionRunID)
			if err != nil {
				return false, err
			}
			if producer.Status != model.StatusDone && producer.Status != model.StatusCommitted {
				return false, nil
			}
		}
	}
	return true, nil
}
