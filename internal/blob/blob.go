// Package blob abstracts the vault's object storage: a flat key/value store
// of `/`-delimited paths with no transactional guarantees across keys.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("blob: not found")

// Object describes a stored object without its content.
type Object struct {
	Key      string    `json:"key"`
	Uploaded time.Time `json:"uploaded"`
}

// Store is the storage capability consumed by the rest of the service.
type Store interface {
	// Get returns the object's content, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or replaces the object under key.
	Put(ctx context.Context, key string, content []byte, contentType string) error
	// List returns up to limit objects whose key starts with prefix.
	List(ctx context.Context, prefix string, limit int) ([]Object, error)
}
