// Package blobstore abstracts durable storage for uploaded document images.
// Paths are caller-chosen and must be unique per call; the submission
// coordinator mints a fresh path on every attempt so retries never overwrite.
package blobstore

import "context"

// Store is the contract consumed by the submission coordinator.
type Store interface {
	// Put writes the object and returns its storage location.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// Resolve turns a location returned by Put into a fetchable URL.
	Resolve(ctx context.Context, location string) (string, error)
}
