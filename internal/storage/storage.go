package storage

import "context"

// ObjectStore downloads documents by storage path.
// Download fails with common.ErrNotFound when the object does not exist and
// with common.ErrTransient for anything that may succeed on a later attempt.
type ObjectStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
}
