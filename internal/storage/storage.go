// Package storage abstracts the object store that holds raw call
// recordings and synthesized replies.
package storage

import (
	"context"
	"time"
)

// Storage uploads blobs and mints time-limited download links.
type Storage interface {
	// Upload writes data under key and returns the object URI.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// SignedURL returns a GET link for key that expires after ttl.
	SignedURL(key string, ttl time.Duration) (string, error)
}
