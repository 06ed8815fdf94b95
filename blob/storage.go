// Package blob defines the storage interface for file bytes. The metadata
// core treats the blob store as an external collaborator: it stores and
// deletes objects by opaque reference and mints presigned read URLs, nothing
// more.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the referenced object does not exist.
var ErrNotFound = errors.New("blob not found")

// Storage defines the interface for blob storage backends
type Storage interface {
	// Put stores an object under the given reference
	Put(ctx context.Context, ref string, reader io.Reader, size int64, contentType string) error

	// Get opens an object for reading
	Get(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, ref string) error

	// PresignGet mints a time-limited, unauthenticated read URL for the
	// object. The signing is local; no round trip to the backend.
	PresignGet(ctx context.Context, ref, filename string, ttl time.Duration) (string, error)

	// Close closes any resources used by the storage backend
	Close() error
}
