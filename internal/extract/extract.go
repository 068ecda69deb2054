// Package extract turns raw procurement documents into snapshots.
//
// Each document variant ("FORM100", "FORM500", ...) has its own Extractor,
// looked up in a Registry by the variant tag found in the document name.
// Absent markup is absence of data: only a document without a process id,
// or one that cannot be parsed at all, fails.
package extract

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/procura/internal/record"
)

var (
	// ErrNoProcessID is returned when a document does not identify its
	// process.
	ErrNoProcessID = record.ErrNoProcessID

	// ErrUnknownVariant is returned for document names no extractor serves.
	ErrUnknownVariant = errors.New("unknown document variant")

	// ErrMalformed wraps documents that could not be parsed.
	ErrMalformed = errors.New("malformed document")
)

// Document is one raw document as fetched from its source.
type Document struct {
	Name string
	Body []byte
}

// Extractor converts one document variant into a snapshot.
type Extractor interface {
	Extract(doc Document) (record.Snapshot, error)
}

var variantInName = regexp.MustCompile(`(?i)FORM\d+`)

// VariantOf returns the variant tag in a document name, upper-cased. Only the
// last path element is searched.
func VariantOf(name string) (string, bool) {
	m := variantInName.FindString(path.Base(name))
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}

// Registry maps variant tags to extractors.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// NewLayoutRegistry validates the layouts and registers an HTML extractor
// for each. A later layout for the same variant replaces an earlier one.
func NewLayoutRegistry(layouts []Layout) (*Registry, error) {
	r := NewRegistry()
	for _, l := range layouts {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		r.Register(l.Variant, NewHTMLExtractor(l))
	}
	return r, nil
}

// Register installs e for variant.
func (r *Registry) Register(variant string, e Extractor) {
	r.extractors[strings.ToUpper(variant)] = e
}

// Lookup returns the extractor serving a document name and its variant tag.
func (r *Registry) Lookup(name string) (Extractor, string, error) {
	variant, ok := VariantOf(name)
	if !ok {
		return nil, "", fmt.Errorf("%w: no FORM tag in %q", ErrUnknownVariant, name)
	}
	e, ok := r.extractors[variant]
	if !ok {
		return nil, variant, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
	return e, variant, nil
}

// Variants returns the registered variant tags in order.
func (r *Registry) Variants() []string {
	out := make([]string, 0, len(r.extractors))
	for v := range r.extractors {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
