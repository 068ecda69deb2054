package extract

import (
	"time"

	"github.com/roach88/procura/internal/normalize"
	"github.com/roach88/procura/internal/record"
)

// processFrom converts extracted process text into typed attributes.
// Unparsable values are dropped.
func processFrom(m raw) record.Process {
	return record.Process{
		Purpose:         str(m, "purpose"),
		Modality:        str(m, "modality"),
		CallType:        str(m, "call_type"),
		AwardMethod:     str(m, "award_method"),
		Regulation:      str(m, "regulation"),
		ProcurementType: str(m, "procurement_type"),
		SelectionMethod: str(m, "selection_method"),
		Guarantees:      str(m, "guarantees"),
		Currency:        str(m, "currency"),
		TenderDocsBy:    str(m, "tender_docs_by"),
		Auction:         boolean(m, "auction"),
		Concession:      boolean(m, "concession"),
		Recurring:       boolean(m, "recurring"),
		TotalValue:      num(m, "total_value"),
		PublishedAt:     date(m, "published_at"),
		SubmissionAt:    date(m, "submission_at"),
		AwardAt:         date(m, "award_at"),
		FormalizationAt: date(m, "formalization_at"),
		DeliveryAt:      date(m, "delivery_at"),
	}
}

// lineFor builds the stage's line type from extracted cells. The
// description keeps whatever markup the layout preserved.
func lineFor(stage record.Stage, m raw) record.ItemUpdate {
	switch stage {
	case record.StageAward, record.StageFormalization:
		return record.AwardedLine{
			Text:              m["description"],
			State:             str(m, "state"),
			RequestedQty:      num(m, "requested_qty"),
			AwardedQty:        num(m, "awarded_qty"),
			AwardedUnitPrice:  num(m, "awarded_unit_price"),
			AwardedTotalPrice: num(m, "awarded_total_price"),
			BidderName:        str(m, "bidder_name"),
			BidderTaxID:       str(m, "bidder_tax_id"),
		}
	case record.StageReception:
		return record.ReceivedLine{
			Text:           m["description"],
			State:          str(m, "state"),
			ContractNumber: str(m, "contract_number"),
			ContractDate:   date(m, "contract_date"),
			BidderName:     str(m, "bidder_name"),
			RequestedQty:   num(m, "requested_qty"),
			ReceivedQty:    num(m, "received_qty"),
			ReceptionDue:   date(m, "reception_due"),
			ProvisionalAt:  date(m, "provisional_reception_at"),
			FinalReceiptAt: date(m, "final_reception_at"),
			ExecutedTotal:  num(m, "executed_total"),
		}
	default:
		return record.PublishedLine{
			Text:          m["description"],
			CatalogCode:   str(m, "catalog_code"),
			Unit:          str(m, "unit"),
			RequestedQty:  num(m, "requested_qty"),
			RefUnitPrice:  num(m, "ref_unit_price"),
			RefTotalPrice: num(m, "ref_total_price"),
		}
	}
}

func str(m raw, k string) string {
	return normalize.Clean(m[k])
}

func num(m raw, k string) *float64 {
	if v, ok := normalize.ParseNumber(m[k]); ok {
		return &v
	}
	return nil
}

func boolean(m raw, k string) *bool {
	if v, ok := normalize.ParseBool(m[k]); ok {
		return &v
	}
	return nil
}

func date(m raw, k string) *time.Time {
	if v, ok := normalize.ParseDate(m[k]); ok {
		return &v
	}
	return nil
}
