// Package ident derives stable record identifiers from display text.
//
// Identifiers must not depend on markup, accents or letter case in the source
// document, and collisions within one batch are resolved deterministically by
// suffixing. The allocator is an explicit value so callers can see exactly
// which identifiers a batch reserved.
package ident

import (
	"strconv"
	"strings"

	"github.com/roach88/procura/internal/normalize"
)

// MaxSlugLength bounds the base slug (collision suffixes come after it).
const MaxSlugLength = 60

// EmptySlug is returned when the text contains nothing usable.
const EmptySlug = "item"

// Slug derives an ASCII identifier from text: markup stripped, diacritics
// folded, lowercased, every run of non-alphanumerics collapsed to a single
// underscore, trimmed of underscores and truncated to MaxSlugLength.
func Slug(text string) string {
	folded := strings.ToLower(normalize.Fold(normalize.StripMarkup(text)))

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_' || r == '-' || isSpace(r):
			pendingSep = true
		}
		// Anything else (punctuation, symbols, non-ASCII letters) is dropped
		// without acting as a separator: "HP-250/G8" keeps "250g8" together.
	}

	s := b.String()
	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "_")
	}
	if s == "" {
		return EmptySlug
	}
	return s
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f', 0x85, 0xA0:
		return true
	}
	return false
}

// SlugAllocator hands out slugs that are unique within one batch. Slugs that
// already exist in storage are reserved up front so new lines never collide
// with them.
//
// A SlugAllocator is not safe for concurrent use; a batch owns its allocator.
type SlugAllocator struct {
	used map[string]struct{}
}

// NewSlugAllocator returns an allocator with the given slugs already taken.
func NewSlugAllocator(reserved ...string) *SlugAllocator {
	a := &SlugAllocator{used: make(map[string]struct{}, len(reserved))}
	for _, s := range reserved {
		a.Reserve(s)
	}
	return a
}

// Reserve marks slug as taken.
func (a *SlugAllocator) Reserve(slug string) {
	a.used[slug] = struct{}{}
}

// Taken reports whether slug is already allocated or reserved.
func (a *SlugAllocator) Taken(slug string) bool {
	_, ok := a.used[slug]
	return ok
}

// Allocate returns Slug(text), or the first of slug_1, slug_2, ... that is
// not yet taken, and marks the result as taken.
func (a *SlugAllocator) Allocate(text string) string {
	base := Slug(text)
	s := base
	for n := 1; a.Taken(s); n++ {
		s = base + "_" + strconv.Itoa(n)
	}
	a.Reserve(s)
	return s
}

// Len returns the number of slugs taken.
func (a *SlugAllocator) Len() int {
	return len(a.used)
}
