// Package kv is the persistent local key-value store backing backup settings,
// the offline change queue and cached records.
package kv

import "context"

// Repository stores opaque byte values under string keys.
//
// Get returns (nil, nil) when the key is absent. Set overwrites.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
