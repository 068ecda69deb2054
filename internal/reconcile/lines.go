package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/procura/internal/ident"
	"github.com/roach88/procura/internal/normalize"
	"github.com/roach88/procura/internal/record"
)

// pass is the state of one Apply call after the process has been upserted.
type pass struct {
	docs    Documents
	snap    record.Snapshot
	process record.Process
	matcher *matcher
	report  *Report
}

func (p *pass) applyLines(ctx context.Context) error {
	p.matcher.countLines(p.snap.Lines)

	for _, line := range p.snap.Lines {
		key := normalize.MatchKey(line.Description())
		if key == "" {
			p.report.note(ctx, Diagnostic{
				Kind:    DiagEmptyDescription,
				Message: "line without description skipped",
			})
			continue
		}

		if c := p.matcher.claim(ctx, key, p.report); c != nil {
			if err := p.update(ctx, c, line); err != nil {
				return err
			}
			continue
		}

		switch line.(type) {
		case record.PublishedLine, record.ReceivedLine:
			if err := p.create(ctx, line); err != nil {
				return err
			}
		default:
			p.report.note(ctx, Diagnostic{
				Kind:        DiagUnmatched,
				Description: normalize.Clean(normalize.StripMarkup(line.Description())),
				Message:     "line matches no published item; ignored",
			})
		}
	}
	return nil
}

// update merges a line into the item it matched.
func (p *pass) update(ctx context.Context, c *candidate, line record.ItemUpdate) error {
	fields, err := p.lineFields(ctx, line, c.item.Status, false)
	if err != nil {
		return err
	}
	key := c.item.Key()
	if _, err := p.docs.UpdateIfExists(ctx, record.Items, key, fields); err != nil {
		return fmt.Errorf("update item %s: %w", key, err)
	}
	if s, ok := fields["status"].(string); ok {
		c.item.Status = record.ItemStatus(s)
	}
	p.report.Updated = append(p.report.Updated, key)
	return nil
}

// create stores a new item for a line that matched nothing. Its slug is
// allocated from the line's description and never changes afterwards.
func (p *pass) create(ctx context.Context, line record.ItemUpdate) error {
	fields, err := p.lineFields(ctx, line, "", true)
	if err != nil {
		return err
	}

	it := record.Item{
		ProcessID:   p.snap.ProcessID,
		Slug:        p.matcher.alloc.Allocate(line.Description()),
		Description: line.Description(),
	}
	if s, ok := fields["status"].(string); ok {
		it.Status = record.ItemStatus(s)
	}
	fields.Set("process_id", it.ProcessID).
		Set("slug", it.Slug).
		Str("description", it.Description)

	key := it.Key()
	if err := p.docs.SetMerge(ctx, record.Items, key, fields); err != nil {
		return fmt.Errorf("create item %s: %w", key, err)
	}
	p.matcher.add(&candidate{item: it, touched: true})
	p.report.Created = append(p.report.Created, key)
	return nil
}

// lineFields builds the item payload for a line. current is the stored item
// status ("" for a new item).
func (p *pass) lineFields(ctx context.Context, line record.ItemUpdate, current record.ItemStatus, creating bool) (record.Fields, error) {
	f := record.Fields{}

	switch l := line.(type) {
	case record.PublishedLine:
		f.Str("description", l.Text).
			Str("catalog_code", l.CatalogCode).
			Str("unit", l.Unit).
			Num("requested_qty", l.RequestedQty).
			Num("ref_unit_price", l.RefUnitPrice).
			Num("ref_total_price", l.RefTotalPrice)
		f.Merge(p.denormalized())
		if creating {
			f.Set("status", string(record.ItemPublished))
		}

	case record.AwardedLine:
		qty := l.AwardedQty
		if qty == nil {
			qty = l.RequestedQty
		}
		f.Num("requested_qty", l.RequestedQty).
			Num("awarded_qty", l.AwardedQty).
			Num("awarded_total_price", l.AwardedTotalPrice).
			Num("awarded_unit_price", firstOf(l.AwardedUnitPrice, unitPrice(l.AwardedTotalPrice, qty))).
			Str("state_text", l.State)
		// Prices and quantities still merge into a settled item; its status does not.
		if !current.Confirmed() && current != record.ItemDeserted {
			status := awardStatus(l.State)
			f.Set("status", string(status))
			if status == record.ItemDeserted {
				f.Str("desertion_cause", l.State)
			}
		}
		if err := p.bidder(ctx, f, l.BidderName); err != nil {
			return nil, err
		}
		f.Str("bidder_tax_id", l.BidderTaxID)

	case record.ReceivedLine:
		status := receptionStatus(l.State)
		f.Str("contract_number", l.ContractNumber).
			Time("contract_date", l.ContractDate).
			Num("requested_qty", l.RequestedQty).
			Num("received_qty", l.ReceivedQty).
			Time("reception_due", l.ReceptionDue).
			Time("provisional_reception_at", l.ProvisionalAt).
			Time("final_reception_at", l.FinalReceiptAt).
			Num("awarded_total_price", l.ExecutedTotal).
			Num("awarded_unit_price", unitPrice(l.ExecutedTotal, l.RequestedQty)).
			Str("state_text", l.State).
			Set("status", string(status))
		if status == record.ItemDeserted {
			f.Str("desertion_cause", l.State)
		}
		if creating {
			f.Merge(p.denormalized())
		}
		if err := p.bidder(ctx, f, l.BidderName); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// denormalized returns the entity and process attributes copied onto items.
func (p *pass) denormalized() record.Fields {
	return record.Fields{}.
		Str("entity_code", p.process.EntityCode).
		Str("entity_name", p.process.EntityName).
		Str("entity_department", p.process.EntityDepartment).
		Str("modality", p.process.Modality).
		Str("call_type", p.process.CallType).
		Str("procurement_type", p.process.ProcurementType).
		Time("published_at", p.process.PublishedAt).
		Time("submission_at", p.process.SubmissionAt)
}

// bidder creates the bidder if it is new and references it from f.
func (p *pass) bidder(ctx context.Context, f record.Fields, name string) error {
	name = normalize.Clean(name)
	if name == "" {
		return nil
	}
	id := ident.Slug(name)
	if _, err := p.docs.CreateIfAbsent(ctx, record.Bidders, id, record.Fields{"name": name}); err != nil {
		return fmt.Errorf("create bidder %s: %w", id, err)
	}
	f.Set("bidder_id", id).Set("bidder_name", name)
	return nil
}

// awardStatus maps an award line's state text to an item status.
func awardStatus(state string) record.ItemStatus {
	if strings.Contains(normalize.MatchKey(state), "desiert") {
		return record.ItemDeserted
	}
	return record.ItemAwarded
}

// receptionStatus maps a reception line's state text to an item status. A
// line without a recognizable state counts as received.
func receptionStatus(state string) record.ItemStatus {
	key := normalize.MatchKey(state)
	switch {
	case strings.Contains(key, "desiert"):
		return record.ItemDeserted
	case strings.Contains(key, "definitiv"):
		return record.ItemDelivered
	default:
		return record.ItemReceived
	}
}

// unitPrice derives a unit price as total / qty. Nil when either is missing
// or qty is zero.
func unitPrice(total, qty *float64) *float64 {
	if total == nil || qty == nil || *qty == 0 {
		return nil
	}
	u, _ := decimal.NewFromFloat(*total).Div(decimal.NewFromFloat(*qty)).Round(6).Float64()
	return &u
}

func firstOf(vs ...*float64) *float64 {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
