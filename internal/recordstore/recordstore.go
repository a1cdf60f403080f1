// Package recordstore abstracts the document database holding verification
// records and owner profile documents.
package recordstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Update when the keyed document does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the contract consumed by the submission coordinator.
type Store interface {
	// Write upserts the full document at key, overwriting any existing one.
	Write(ctx context.Context, collection, key string, doc any) error
	// Update merges the given fields into an existing document. It fails
	// with ErrNotFound when the key is absent.
	Update(ctx context.Context, collection, key string, fields map[string]any) error
}
