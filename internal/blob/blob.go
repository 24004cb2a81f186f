// Package blob abstracts the object store holding source videos and
// extracted frame images. Objects are addressed by bucket-scoped keys.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("blob not found")

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the externally visible location of an object.
	URL(key string) string
}
