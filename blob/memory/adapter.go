// Package memory implements the blob.Storage interface in process memory.
// It exists for tests and single-node development setups; the URLs it mints
// are opaque placeholders, not fetchable endpoints.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/ebogdum/sharefs/blob"
)

// MemoryAdapter implements the blob.Storage interface backed by a map
type MemoryAdapter struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryAdapter creates a new in-memory blob storage adapter
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		objects: make(map[string][]byte),
	}
}

// Put stores an object under the given reference
func (a *MemoryAdapter) Put(ctx context.Context, ref string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read object data: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[ref] = data
	return nil
}

// Get opens an object for reading
func (a *MemoryAdapter) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	data, ok := a.objects[ref]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (a *MemoryAdapter) Delete(ctx context.Context, ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, ref)
	return nil
}

// PresignGet returns a placeholder URL carrying the reference and expiry.
func (a *MemoryAdapter) PresignGet(ctx context.Context, ref, filename string, ttl time.Duration) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.objects[ref]; !ok {
		return "", blob.ErrNotFound
	}

	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory:///%s?expires=%d&filename=%s",
		url.PathEscape(ref), expires, url.QueryEscape(filename)), nil
}

// Close closes the adapter
func (a *MemoryAdapter) Close() error {
	return nil
}

// Len returns the number of stored objects. Test use only.
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objects)
}
