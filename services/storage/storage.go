// Package storage resolves document source handles to their bytes
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no object exists for a key
var ErrNotFound = errors.New("object not found")

// BlobStore fetches and stores uploaded document content by key
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
