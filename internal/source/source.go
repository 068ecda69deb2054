// Package source retrieves raw documents by name from a bucket, a web
// server or a local directory.
package source

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a named document does not exist.
var ErrNotFound = errors.New("document not found")

// Fetcher retrieves a raw document by name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Lister enumerates document names under a prefix, in order.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}
