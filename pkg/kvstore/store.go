package kvstore

import "context"

// Store is the engine's only I/O dependency: durable key/value storage.
// Implementations translate their backend failures into ErrStorageUnavailable
// so callers never see raw driver errors.
type Store interface {
	// Get retrieves the value for a key.
	// Returns ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set creates or replaces the value for a key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
