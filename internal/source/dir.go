package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir reads documents from a local directory. Names are slash-separated
// paths relative to the root. With an empty root, names are used as given.
type Dir struct {
	root string
}

// NewDir creates a Dir fetcher rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Fetch reads one document.
func (d *Dir) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return b, err
}

// List returns the names of the regular files under root whose name starts
// with prefix.
func (d *Dir) List(ctx context.Context, prefix string) ([]string, error) {
	root := d.root
	if root == "" {
		root = "."
	}
	var out []string
	err := filepath.WalkDir(root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

func (d *Dir) path(name string) (string, error) {
	if d.root == "" {
		return name, nil
	}
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("document name %q escapes %s", name, d.root)
	}
	return filepath.Join(d.root, rel), nil
}
