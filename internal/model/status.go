package model

// FunctionVersionStatus and TableVersionStatus share the same
// three-value lifecycle: a version is Active (current), Frozen
// (superseded but retained for history/resurrection), or Deleted.
type VersionStatus string

const (
	VersionActive  VersionStatus = "Active"
	VersionFrozen  VersionStatus = "Frozen"
	VersionDeleted VersionStatus = "Deleted"
)

// Valid reports whether s is one of the known version statuses.
func (s VersionStatus) Valid() bool {
	switch s {
	case VersionActive, VersionFrozen, VersionDeleted:
		return true
	default:
		return false
	}
}

// RunStatus is the persisted, single-letter-coded status of a
// FunctionRun, transaction, or execution (section 4.6).
type RunStatus string

const (
	StatusScheduled    RunStatus = "S"  // Scheduled
	StatusRunRequested RunStatus = "RR" // RunRequested
	StatusReScheduled  RunStatus = "RS" // ReScheduled
	StatusRunning      RunStatus = "R"  // Running
	StatusDone         RunStatus = "D"  // Done
	StatusError        RunStatus = "E"  // Error (transient, retryable)
	StatusFailed       RunStatus = "F"  // Failed (terminal)
	StatusOnHold       RunStatus = "H"  // OnHold
	StatusCanceled     RunStatus = "C"  // Canceled
	StatusCommitted    RunStatus = "X"  // Committed
	StatusPublished    RunStatus = "Y"  // Published?
	StatusUnexpected   RunStatus = "U"  // unknown/unrecognized code
)

// knownRunStatuses lists every status code the Core currently
// understands; anything else must roll up to StatusUnexpected per the
// status-enum-evolution note (new codes are added here, never removed).
var knownRunStatuses = map[RunStatus]bool{
	StatusScheduled:    true,
	StatusRunRequested: true,
	StatusReScheduled:  true,
	StatusRunning:      true,
	StatusDone:         true,
	StatusError:        true,
	StatusFailed:       true,
	StatusOnHold:       true,
	StatusCanceled:     true,
	StatusCommitted:    true,
	StatusPublished:    true,
}

// Valid reports whether s is a known, non-unexpected status. Readers
// must reject StatusUnexpected rather than display it.
func (s RunStatus) Valid() bool { return knownRunStatuses[s] }

// IsTerminal reports whether s is a terminal run status: no further
// transition is expected without external intervention.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCanceled, StatusCommitted, StatusPublished:
		return true
	default:
		return false
	}
}

// validRunTransitions mirrors the teacher's coordinator.ValidTransitions
// shape, generalized from single-workflow phases to the run-status
// alphabet of section 4.6.
var validRunTransitions = map[RunStatus][]RunStatus{
	StatusScheduled:    {StatusRunRequested, StatusRunning, StatusCanceled, StatusOnHold},
	StatusRunRequested: {StatusRunning, StatusError, StatusFailed, StatusCanceled},
	StatusReScheduled:  {StatusRunRequested, StatusRunning, StatusCanceled, StatusOnHold},
	StatusRunning:      {StatusDone, StatusError, StatusFailed, StatusCanceled},
	StatusError:        {StatusReScheduled, StatusFailed},
	StatusOnHold:       {StatusScheduled, StatusCanceled},
	StatusDone:         {StatusCommitted, StatusCanceled},
	StatusCommitted:    {StatusPublished},
	// Failed, Canceled, Published are terminal: no outgoing transitions.
}

// CanTransitionTo reports whether moving from s to target is a valid
// run-status transition.
func (s RunStatus) CanTransitionTo(target RunStatus) bool {
	for _, t := range validRunTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// WorkerMessageStatus controls at-most-one delivery of a WorkerMessage.
type WorkerMessageStatus string

const (
	MessageLocked   WorkerMessageStatus = "Locked"
	MessageUnlocked WorkerMessageStatus = "Unlocked"
)

// TriggerKind distinguishes a user-initiated run from one scheduled
// because an upstream dependency produced new data.
type TriggerKind string

const (
	TriggerManual     TriggerKind = "Manual"
	TriggerDependency TriggerKind = "Dependency"
)

// ResponseStatus is the terminal status a worker reports in a response
// envelope (section 6.1).
type ResponseStatus string

const (
	ResponseDone     ResponseStatus = "Done"
	ResponseFailed   ResponseStatus = "Failed"
	ResponseCanceled ResponseStatus = "Canceled"
)
