// Package storage is the durable key-value layer behind the console's local
// session. Writes of several keys succeed or fail together.
package storage

import "errors"

var ErrNotFound = errors.New("key not found")

// KV is a small key-value store that survives process restarts.
type KV interface {
	// Get returns ErrNotFound when the key is absent.
	Get(key string) ([]byte, error)
	// Put writes every entry in one transaction.
	Put(entries map[string][]byte) error
	// Delete removes the keys in one transaction. Missing keys are ignored.
	Delete(keys ...string) error
	Close() error
}
