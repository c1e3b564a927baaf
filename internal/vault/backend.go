package vault

import "context"

// Backend holds version content by opaque key. Implementations must be
// safe for concurrent use.
type Backend interface {
	// Put stores content under key, replacing anything already there.
	Put(ctx context.Context, key string, content []byte) error
	// Get returns ErrNotFound when key was never written or has been deleted.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
	// Name identifies the backend in logs
	Name() string
}
