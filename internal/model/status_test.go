package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusValid(t *testing.T) {
	assert.True(t, StatusDone.Valid())
	assert.False(t, StatusUnexpected.Valid())
	assert.False(t, RunStatus("bogus").Valid())
}

func TestRunStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.True(t, StatusCommitted.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusScheduled.IsTerminal())
}

func TestRunStatusCanTransitionTo(t *testing.T) {
	assert.True(t, StatusScheduled.CanTransitionTo(StatusRunning))
	assert.True(t, StatusRunning.CanTransitionTo(StatusDone))
	assert.True(t, StatusError.CanTransitionTo(StatusReScheduled))
	assert.False(t, StatusDone.CanTransitionTo(StatusRunning))
	assert.False(t, StatusFailed.CanTransitionTo(StatusDone))
}

func TestVersionStatusValid(t *testing.T) {
	assert.True(t, VersionActive.Valid())
	assert.False(t, VersionStatus("Archived").Valid())
}

func TestTableSystemTable(t *testing.T) {
	sys := &Table{FunctionParamPos: -1}
	user := &Table{FunctionParamPos: 0}
	assert.True(t, sys.SystemTable())
	assert.False(t, user.SystemTable())
}
