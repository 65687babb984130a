// Package objectstore is the remote object storage used for off-device
// backup copies.
package objectstore

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is a flat key/blob store.
type Store interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	// GetObjectURL returns a time-limited download URL for key.
	GetObjectURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
}
