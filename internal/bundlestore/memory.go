package bundlestore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"

	"tabsdata.io/execcore/internal/catalogerr"
)

// Memory is an in-process Store double, the same role catalog/memory,
// transport.Memory, lock.Memory, and graph.Memory play for their
// respective interfaces: no network calls, just a map, for tests and
// single-process deployments.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{objects: make(map[string][]byte)} }

// Put stores content under "mem://key", matching S3Store's
// content-addressed-conflict semantics: a second Put of different
// bytes under the same key is a Conflict.
func (m *Memory) Put(ctx context.Context, key string, content io.Reader) (string, error) {
	buf, err := io.ReadAll(content)
	if err != nil {
		return "", catalogerr.Invalid("bundlestore: failed to read content: %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[key]; ok {
		if hashOf(existing) != hashOf(buf) {
			return "", catalogerr.Conflict("bundlestore: object %s already exists with different content", key)
		}
		return "mem://" + key, nil
	}
	m.objects[key] = buf
	return "mem://" + key, nil
}

// Get opens the object at uri for reading.
func (m *Memory) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	key, err := memKey(uri)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.objects[key]
	if !ok {
		return nil, catalogerr.NotFound("bundlestore: object %s not found", uri)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// Exists reports whether uri resolves to a stored object.
func (m *Memory) Exists(ctx context.Context, uri string) (bool, error) {
	key, err := memKey(uri)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func memKey(uri string) (string, error) {
	const prefix = "mem://"
	if len(uri) < len(prefix) || uri[:len(prefix)] != prefix {
		return "", catalogerr.Invalid("bundlestore: uri %q is not a key this store issued", uri)
	}
	return uri[len(prefix):], nil
}

func hashOf(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
