package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/procura/internal/ident"
	"github.com/roach88/procura/internal/normalize"
	"github.com/roach88/procura/internal/record"
)

// candidate is a stored (or just created) item of the process being
// reconciled.
type candidate struct {
	item    record.Item
	touched bool
}

// matcher indexes a process' items by normalized description. Items sharing
// a description are kept in key order and handed out one per line, so a
// snapshot listing the same description twice lands on two distinct items.
type matcher struct {
	processID string
	byKey     map[string][]*candidate
	all       []*candidate
	alloc     *ident.SlugAllocator

	lineCounts map[string]int
	noted      map[string]bool
}

// loadMatcher reads every item of the process. The slug allocator is seeded
// with their slugs so new items never collide with stored ones.
func loadMatcher(ctx context.Context, docs Documents, processID string) (*matcher, error) {
	stored, err := docs.QueryByField(ctx, record.Items, "process_id", processID)
	if err != nil {
		return nil, fmt.Errorf("load items of %s: %w", processID, err)
	}

	m := &matcher{
		processID:  processID,
		byKey:      make(map[string][]*candidate, len(stored)),
		alloc:      ident.NewSlugAllocator(),
		lineCounts: map[string]int{},
		noted:      map[string]bool{},
	}
	for _, doc := range stored {
		var it record.Item
		if err := doc.Decode(&it); err != nil {
			return nil, err
		}
		m.alloc.Reserve(it.Slug)
		m.add(&candidate{item: it})
	}
	return m, nil
}

func (m *matcher) add(c *candidate) {
	key := normalize.MatchKey(c.item.Description)
	m.byKey[key] = append(m.byKey[key], c)
	m.all = append(m.all, c)
}

// countLines records how many lines of the snapshot share each normalized
// description; ambiguity is only reported when that count differs from the
// number of stored candidates.
func (m *matcher) countLines(lines []record.ItemUpdate) {
	for _, l := range lines {
		if key := normalize.MatchKey(l.Description()); key != "" {
			m.lineCounts[key]++
		}
	}
}

// claim returns the first untouched candidate for key and marks it touched,
// or nil when every candidate is already taken. An ambiguous key is reported
// once per pass.
func (m *matcher) claim(ctx context.Context, key string, rep *Report) *candidate {
	cands := m.byKey[key]
	if rep != nil && len(cands) > 1 && m.lineCounts[key] != len(cands) && !m.noted[key] {
		m.noted[key] = true
		keys := make([]string, len(cands))
		for i, c := range cands {
			keys[i] = c.item.Key()
		}
		rep.note(ctx, Diagnostic{
			Kind:        DiagAmbiguous,
			Description: key,
			Candidates:  keys,
			Message:     fmt.Sprintf("%d items share a description listed %d times", len(cands), m.lineCounts[key]),
		})
	}
	for _, c := range cands {
		if !c.touched {
			c.touched = true
			return c
		}
	}
	return nil
}
