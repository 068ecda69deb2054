package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ClientOptions turns a credentials setting into client options: inline
// JSON when it starts with "{", a file path otherwise. Empty means
// application default credentials.
func ClientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		return append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	return append(opts, option.WithCredentialsFile(creds))
}

// GCS reads objects from one bucket. Document names are object names
// relative to prefix.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	owned  bool
}

// NewGCS opens a storage client for bucket.
func NewGCS(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	g := NewGCSWithClient(client, bucket, prefix)
	g.owned = true
	return g, nil
}

// NewGCSWithClient wraps an existing client. Close leaves it open.
func NewGCSWithClient(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{client: client, bucket: bucket, prefix: prefix}
}

// Bucket returns the bucket name.
func (g *GCS) Bucket() string {
	return g.bucket
}

// Fetch downloads one object.
func (g *GCS) Fetch(ctx context.Context, name string) ([]byte, error) {
	obj := g.prefix + name
	r, err := g.client.Bucket(g.bucket).Object(obj).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, g.bucket, obj)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", g.bucket, obj, err)
	}
	return b, nil
}

// List returns object names under prefix, relative to the fetcher's own
// prefix. Folder placeholders are omitted.
func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.prefix + prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", g.bucket, g.prefix+prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, strings.TrimPrefix(attrs.Name, g.prefix))
	}
	return out, nil
}

// Close releases the client if NewGCS created it.
func (g *GCS) Close() error {
	if !g.owned {
		return nil
	}
	return g.client.Close()
}
