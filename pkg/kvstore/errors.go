package kvstore

import "errors"

var (
	// ErrKeyNotFound indicates the key has no stored value.
	ErrKeyNotFound = errors.New("kvstore: key not found")

	// ErrStorageUnavailable indicates the backing storage failed the operation.
	ErrStorageUnavailable = errors.New("kvstore: storage unavailable")

	// ErrFailedToParseRedisConnString indicates the redis connection URL is invalid.
	ErrFailedToParseRedisConnString = errors.New("kvstore: failed to parse redis connection string")

	// ErrRedisNotReady indicates redis did not become ready within the retry window.
	ErrRedisNotReady = errors.New("kvstore: redis did not become ready within the given time period")
)
