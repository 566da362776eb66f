// Package store persists whole JSON documents under string keys.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Load when no document exists for the key.
	ErrNotFound = errors.New("document not found")
	// ErrPersistence wraps every failure to write a document.
	ErrPersistence = errors.New("persistence failure")
)

// Store loads and saves documents. Save always rewrites the full document.
type Store interface {
	Load(ctx context.Context, key string, v any) error
	Save(ctx context.Context, key string, v any) error
}
