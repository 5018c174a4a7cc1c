// Package commit implements section 4.6: status rollups for
// transactions/executions and the commit decision that finalizes a
// transaction's runs.
package commit

import "tabsdata.io/execcore/internal/model"

// has reports whether any status in statuses equals any of targets.
func has(statuses []model.RunStatus, targets ...model.RunStatus) bool {
	want := make(map[model.RunStatus]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	for _, s := range statuses {
		if want[s] {
			return true
		}
	}
	return false
}

// all reports whether every status in statuses equals target.
func all(statuses []model.RunStatus, target model.RunStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != target {
			return false
		}
	}
	return true
}

// allIn reports whether every status in statuses is a member of the set.
func allIn(statuses []model.RunStatus, set ...model.RunStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	allowed := make(map[model.RunStatus]bool, len(set))
	for _, t := range set {
		allowed[t] = true
	}
	for _, s := range statuses {
		if !allowed[s] {
			return false
		}
	}
	return true
}

// TransactionStatus rolls up the statuses of every FunctionRun in a
// transaction into one section-4.6 transaction status.
func TransactionStatus(runStatuses []model.RunStatus) model.RunStatus {
	switch {
	case all(runStatuses, model.StatusScheduled):
		return model.StatusScheduled
	case all(runStatuses, model.StatusCanceled):
		return model.StatusCanceled
	case all(runStatuses, model.StatusCommitted):
		return model.StatusCommitted
	case all(runStatuses, model.StatusPublished):
		return model.StatusPublished
	case allIn(runStatuses, model.StatusDone, model.StatusFailed, model.StatusOnHold) &&
		has(runStatuses, model.StatusFailed, model.StatusOnHold):
		return statusLocked
	case has(runStatuses, model.StatusScheduled, model.StatusRunRequested, model.StatusReScheduled,
		model.StatusRunning, model.StatusDone, model.StatusError):
		return model.StatusRunning
	default:
		return model.StatusUnexpected
	}
}

// statusLocked is the transaction/execution-only "L" status of section
// 4.6: every run finalized (D/F/H) but at least one needs external
// resolution. It has no FunctionRun-status counterpart, so it is not a
// model.RunStatus constant; it is surfaced only from these rollups.
const statusLocked model.RunStatus = "L"

// ExecutionStatus rolls up the statuses of every FunctionRun in an
// execution (across all of its transactions) per section 4.6's
// execution variant: terminal once every run is {C,X,Y}, otherwise the
// same S/L/R rule as TransactionStatus.
func ExecutionStatus(runStatuses []model.RunStatus) model.RunStatus {
	switch {
	case all(runStatuses, model.StatusScheduled):
		return model.StatusScheduled
	case allIn(runStatuses, model.StatusCanceled, model.StatusCommitted, model.StatusPublished):
		return model.StatusFailed // "F" here means finalized, not failed; see spec.md section 4.6
	default:
		return TransactionStatus(runStatuses)
	}
}
