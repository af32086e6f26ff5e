package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound signals that the referenced blob does not exist on the backend.
var ErrNotFound = errors.New("storage: object not found")

// SaveInput describes a blob to persist.
type SaveInput struct {
	Key         string
	Reader      io.Reader
	Size        int64
	ContentType string
}

// BlobStore abstracts where uploaded document files live. Implementations
// must be safe for concurrent use.
type BlobStore interface {
	// Save writes the blob and returns the reference to store on the Document row.
	Save(ctx context.Context, input SaveInput) (string, error)

	// Open returns a reader for the referenced blob, or ErrNotFound.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete removes the referenced blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref string) error
}
