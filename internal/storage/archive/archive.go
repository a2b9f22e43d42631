// Package archive writes equity curves to cold storage, either a local
// directory or an S3-compatible bucket, as plain CSV so other tools can
// consume them.
package archive

import "context"

// Archive is a flat key/value blob store for run artifacts.
type Archive interface {
	// Put stores data under key, overwriting any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
