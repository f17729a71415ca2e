// Package blob abstracts binary object storage used for session-scoped file
// uploads. Keys are slash-separated paths; DeleteFolder removes everything
// under a prefix, which is what the session cascade delete relies on.
package blob

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by Download when no object exists for the key.
var ErrBlobNotFound = errors.New("blob not found")

type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeleteFolder(ctx context.Context, prefix string) error
}
