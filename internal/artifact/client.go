package artifact

import (
	"context"
	"errors"
)

// ErrNotFound reports a get or existence miss for a key.
var ErrNotFound = errors.New("artifact not found")

// Client is the typed contract over the external object store. Transfers are
// whole-object and size-verified; callers address objects by the key helpers
// in this package.
type Client interface {
	// Fetch streams the object at key into the local dest path and returns
	// the byte count written. A missing object returns ErrNotFound; a
	// transfer whose written size disagrees with the stored size is an error.
	Fetch(ctx context.Context, key, dest string) (int64, error)

	// Store streams the local src file to the object at key and returns the
	// byte count written. Existing objects are overwritten.
	Store(ctx context.Context, key, src string) (int64, error)

	// StoreBytes writes an in-memory payload to the object at key.
	StoreBytes(ctx context.Context, key string, data []byte) error

	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)
}
