// Package kvstore is the opaque key/value persistence boundary behind the
// cache layer. Implementations must distinguish "key not found" (ErrNotFound)
// from I/O failure; the cache layer treats only the former as a clean miss.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound marks a clean miss: the key has never been written or was
// removed.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a string-keyed value store. Values are either plain strings or
// JSON documents; SetJSON/GetJSON own the (de)serialization so callers never
// handle raw bytes.
type Store interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}
