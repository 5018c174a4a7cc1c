package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishRecordsMessagesInOrder(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Publish(context.Background(), "function.start", []byte("first")))
	require.NoError(t, m.Publish(context.Background(), "function.start", []byte("second")))

	require.Len(t, m.Published, 2)
	assert.Equal(t, []byte("first"), m.Published[0].Body)
	assert.Equal(t, []byte("second"), m.Last().Body)
}

func TestMemoryLastOnEmptyReturnsZeroValue(t *testing.T) {
	m := NewMemory()
	assert.Equal(t, Message{}, m.Last())
}
