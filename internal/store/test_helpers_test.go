package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh database in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// decodeBody returns a stored document as a generic map.
func decodeBody(t *testing.T, s *Store, collection, key string) map[string]any {
	t.Helper()
	doc, ok, err := s.Get(context.Background(), collection, key)
	require.NoError(t, err)
	require.True(t, ok, "document %s/%s not found", collection, key)

	var body map[string]any
	require.NoError(t, doc.Decode(&body))
	return body
}
