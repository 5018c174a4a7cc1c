package catalogerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfTypedError(t *testing.T) {
	err := NotFound("function %s", "pub")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindConflict))
}

func TestKindOfUntypedErrorDefaultsToFatal(t *testing.T) {
	assert.Equal(t, KindFatal, KindOf(errors.New("boom")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindTransient, cause, "catalog write failed")
	require.Equal(t, KindTransient, KindOf(err))
	assert.True(t, errors.Is(err, cause))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(KindTransient, cause, "dispatch")
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "dispatch")
}
