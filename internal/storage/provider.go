// Package storage defines the archive used to hand exports from the download step to the send step.
// This abstraction keeps the batch commands independent of where files live
// (the working directory on a CI runner, a GCS bucket, or memory in tests).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when the path does not exist.
var ErrNotFound = errors.New("object not found")

// ContentTypeCSV is the content type recorded for exported sheets.
const ContentTypeCSV = "text/csv; charset=utf-8"

// ContentTypeJSON is the content type recorded for manifests.
const ContentTypeJSON = "application/json"

// BlobStore reads and writes archived files by relative path.
type BlobStore interface {
	// PutObject stores data under path and returns a URI describing where it landed.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the bytes stored under path, or an error wrapping ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
