// Package credstore provides the secure credential store that holds the
// master encryption key. Values never reach disk in plaintext.
package credstore

import "context"

// Store is a small secret store addressed by logical name.
type Store interface {
	// Get returns the value stored under name. ok is false when nothing is
	// stored; err is reserved for store failures.
	Get(ctx context.Context, name string) (value string, ok bool, err error)
	Set(ctx context.Context, name string, value string) error
	// Delete removes name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error
}
