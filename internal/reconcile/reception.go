package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/procura/internal/normalize"
	"github.com/roach88/procura/internal/record"
)

// applyVoids deserts the items named by the snapshot's explicit void table,
// with the stated cause.
func (p *pass) applyVoids(ctx context.Context) error {
	for _, v := range p.snap.Voids {
		key := normalize.MatchKey(v.Text)
		if key == "" {
			p.report.note(ctx, Diagnostic{
				Kind:    DiagEmptyDescription,
				Message: "void entry without description skipped",
			})
			continue
		}

		c := p.matcher.claim(ctx, key, nil)
		if c == nil {
			p.report.note(ctx, Diagnostic{
				Kind:        DiagUnmatchedVoid,
				Description: normalize.Clean(normalize.StripMarkup(v.Text)),
				Message:     "void entry matches no item; ignored",
			})
			continue
		}

		fields := record.Fields{}.
			Set("status", string(record.ItemDeserted)).
			Str("desertion_cause", v.Cause)
		if err := p.desert(ctx, c, fields); err != nil {
			return err
		}
	}
	return nil
}

// desertUntouched deserts every item the snapshot did not mention, unless a
// previous snapshot confirmed it (received or delivered) or it is already
// deserted, in which case its recorded cause stays.
func (p *pass) desertUntouched(ctx context.Context, cause string) error {
	for _, c := range p.matcher.all {
		if c.touched || c.item.Status.Confirmed() || c.item.Status == record.ItemDeserted {
			continue
		}
		c.touched = true
		fields := record.Fields{}.
			Set("status", string(record.ItemDeserted)).
			Str("desertion_cause", cause)
		if err := p.desert(ctx, c, fields); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) desert(ctx context.Context, c *candidate, fields record.Fields) error {
	key := c.item.Key()
	if _, err := p.docs.UpdateIfExists(ctx, record.Items, key, fields); err != nil {
		return fmt.Errorf("desert item %s: %w", key, err)
	}
	c.item.Status = record.ItemDeserted
	p.report.Deserted = append(p.report.Deserted, key)
	return nil
}
