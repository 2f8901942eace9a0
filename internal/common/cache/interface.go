package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface the judge stores its state in.
type Cache interface {
	BasicOps
	HashOps
	ListOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key; a missing key yields ""
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; ttl 0 means no expiration
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Incr increments the integer value of a key by 1
	Incr(ctx context.Context, key string) (int64, error)
}

// HashOps defines hash (map) operations
type HashOps interface {
	// HSet sets field in the hash stored at key to value
	HSet(ctx context.Context, key, field string, value interface{}) error

	// HExists reports whether field exists in the hash
	HExists(ctx context.Context, key, field string) (bool, error)
}

// ListOps defines list operations
type ListOps interface {
	// LPush prepends one or more values to a list
	LPush(ctx context.Context, key string, values ...interface{}) error

	// LRange returns elements from a list by index range
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LTrim trims a list to the specified range
	LTrim(ctx context.Context, key string, start, stop int64) error
}
