package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/procura/internal/record"
)

// resolveEntity sticky-merges the observed entity and returns the union of
// stored and observed attributes. Enrichment the snapshot does not carry
// (typically the department) comes back from the stored record, so callers
// can denormalize it. A missing entity is simply created.
func resolveEntity(ctx context.Context, docs Documents, observed record.Entity) (record.Entity, error) {
	var stored record.Entity
	doc, ok, err := docs.Get(ctx, record.Entities, observed.Code)
	if err != nil {
		return record.Entity{}, fmt.Errorf("resolve entity %s: %w", observed.Code, err)
	}
	if ok {
		if err := doc.Decode(&stored); err != nil {
			return record.Entity{}, fmt.Errorf("resolve entity %s: %w", observed.Code, err)
		}
	}

	if err := docs.SetMerge(ctx, record.Entities, observed.Code, observed.Fields()); err != nil {
		return record.Entity{}, fmt.Errorf("resolve entity %s: %w", observed.Code, err)
	}

	return mergeEntity(stored, observed), nil
}

// mergeEntity overlays the present attributes of observed on stored.
func mergeEntity(stored, observed record.Entity) record.Entity {
	out := stored
	out.Code = observed.Code
	overlay(&out.Name, observed.Name)
	overlay(&out.Fax, observed.Fax)
	overlay(&out.Phone, observed.Phone)
	overlay(&out.Department, observed.Department)
	overlay(&out.Address, observed.Address)
	overlay(&out.Authority, observed.Authority)
	overlay(&out.AuthorityTitle, observed.AuthorityTitle)
	overlay(&out.Type, observed.Type)
	return out
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
