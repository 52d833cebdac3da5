// Package storage defines the blob store used to archive article records.
// Implementations live in the gcs, local and memory subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore persists one object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
