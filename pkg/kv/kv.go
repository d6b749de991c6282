// Package kv is the durable session storage for the terminal: a flat
// string-keyed store holding the resolved profile, the invoice sequence
// counter, the local draft queue, and shift flags. It must survive process
// restarts; it is never replicated.
package kv

import "context"

// Store is the pluggable session storage contract.
type Store interface {
	// Get returns the value for key. Missing keys fail with NOT_FOUND.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
