package bundlestore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabsdata.io/execcore/internal/catalogerr"
)

func TestS3StorePutThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newWithClient(newMockS3Client(), "bundles", "v1")

	uri, err := store.Put(ctx, "fn/abc123.tar", strings.NewReader("bundle bytes"))
	require.NoError(t, err)
	assert.Equal(t, "s3://bundles/v1/fn/abc123.tar", uri)

	r, err := store.Get(ctx, uri)
	require.NoError(t, err)
	defer r.Close()

	exists, err := store.Exists(ctx, uri)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestS3StorePutIsIdempotentForIdenticalContent(t *testing.T) {
	ctx := context.Background()
	store := newWithClient(newMockS3Client(), "bundles", "")

	uri1, err := store.Put(ctx, "fn/abc123.tar", strings.NewReader("bundle bytes"))
	require.NoError(t, err)
	uri2, err := store.Put(ctx, "fn/abc123.tar", strings.NewReader("bundle bytes"))
	require.NoError(t, err)
	assert.Equal(t, uri1, uri2)
}

func TestS3StorePutRejectsConflictingContentAtSameKey(t *testing.T) {
	ctx := context.Background()
	store := newWithClient(newMockS3Client(), "bundles", "")

	_, err := store.Put(ctx, "fn/abc123.tar", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "fn/abc123.tar", strings.NewReader("v2"))
	require.Error(t, err)
	assert.Equal(t, catalogerr.KindConflict, catalogerr.KindOf(err))
}

func TestS3StoreGetOnAnUnknownURIReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newWithClient(newMockS3Client(), "bundles", "")

	_, err := store.Get(ctx, "s3://bundles/missing.tar")
	assert.Equal(t, catalogerr.KindNotFound, catalogerr.KindOf(err))
}

func TestS3StoreGetRejectsAForeignURI(t *testing.T) {
	ctx := context.Background()
	store := newWithClient(newMockS3Client(), "bundles", "")

	_, err := store.Get(ctx, "s3://other-bucket/key.tar")
	assert.Equal(t, catalogerr.KindInvalid, catalogerr.KindOf(err))
}

func TestMemoryPutThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	uri, err := m.Put(ctx, "fn/abc123.tar", strings.NewReader("bundle bytes"))
	require.NoError(t, err)

	r, err := m.Get(ctx, uri)
	require.NoError(t, err)
	defer r.Close()

	exists, err := m.Exists(ctx, uri)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryPutRejectsConflictingContentAtSameKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Put(ctx, "fn/abc123.tar", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = m.Put(ctx, "fn/abc123.tar", strings.NewReader("v2"))
	assert.Equal(t, catalogerr.KindConflict, catalogerr.KindOf(err))
}

func TestMemoryExistsIsFalseForAnUnknownKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	exists, err := m.Exists(ctx, "mem://does-not-exist")
	require.NoError(t, err)
	assert.False(t, exists)
}

var _ Store = (*S3Store)(nil)
var _ Store = (*Memory)(nil)
