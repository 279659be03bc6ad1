// Package storage implements the pluggable storage adapter interface
// (spec §4.2) and its concrete backends: local filesystem, S3-compatible
// object storage, FTP/FTPS, WebDAV, SFTP, and Google Drive.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a single stored object, returned by List.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// Adapter is implemented by every storage backend. Backends are stateless
// beyond their own connection/session — credentials and adapter-specific
// config are passed in at construction time from the Destination row.
type Adapter interface {
	// Upload streams r to key, returning the number of bytes written.
	Upload(ctx context.Context, key string, r io.Reader) (int64, error)

	// Download returns a reader for the object at key. The caller must
	// Close it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Deleting a non-existent key is not
	// an error — callers treat absence as the desired end state.
	Delete(ctx context.Context, key string) error

	// List returns every object whose key has the given prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Test verifies the adapter can reach and authenticate against the
	// backend without performing any data transfer.
	Test(ctx context.Context) error
}
