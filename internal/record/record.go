// Package record defines the persisted shapes of the procurement records
// (entities, processes, items, bidders), their lifecycle statuses, and the
// stage-specific snapshot types produced by extractors.
//
// Records are stored as JSON documents keyed by their natural key. Optional
// attributes are pointers or empty strings so that "absent" is always
// distinguishable from a real zero value; see Fields for the sticky payloads
// written to the store.
package record

import (
	"time"
)

// Collection names in the document store.
const (
	Entities  = "entities"
	Processes = "processes"
	Items     = "items"
	Bidders   = "bidders"
)

// ProcessStatus is the lifecycle status of a process. Statuses are ordered;
// see Rank.
type ProcessStatus string

const (
	ProcessPublished  ProcessStatus = "Published"
	ProcessAwarded    ProcessStatus = "Awarded"
	ProcessContracted ProcessStatus = "Contracted"
	ProcessReceived   ProcessStatus = "Received"
)

// Rank orders process statuses. Unknown or empty statuses rank 0, below
// ProcessPublished.
func (s ProcessStatus) Rank() int {
	switch s {
	case ProcessPublished:
		return 1
	case ProcessAwarded:
		return 2
	case ProcessContracted:
		return 3
	case ProcessReceived:
		return 4
	default:
		return 0
	}
}

// ItemStatus is the lifecycle status of a line item.
type ItemStatus string

const (
	ItemPublished ItemStatus = "Published"
	ItemAwarded   ItemStatus = "Awarded"
	ItemReceived  ItemStatus = "Received"
	ItemDelivered ItemStatus = "Delivered"
	ItemDeserted  ItemStatus = "Deserted"
)

// Confirmed reports whether the status is a terminal positive outcome that a
// later, less specific snapshot must not downgrade.
func (s ItemStatus) Confirmed() bool {
	return s == ItemReceived || s == ItemDelivered
}

// Entity is a contracting authority, keyed by its code.
type Entity struct {
	Code           string `json:"code"`
	Name           string `json:"name,omitempty"`
	Fax            string `json:"fax,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Department     string `json:"department,omitempty"`
	Address        string `json:"address,omitempty"`
	Authority      string `json:"authority,omitempty"`
	AuthorityTitle string `json:"authority_title,omitempty"`
	Type           string `json:"type,omitempty"`
}

// Fields returns the sticky payload for the entity: only attributes that are
// present are included.
func (e Entity) Fields() Fields {
	return Fields{}.
		Str("code", e.Code).
		Str("name", e.Name).
		Str("fax", e.Fax).
		Str("phone", e.Phone).
		Str("department", e.Department).
		Str("address", e.Address).
		Str("authority", e.Authority).
		Str("authority_title", e.AuthorityTitle).
		Str("type", e.Type)
}

// Process is one procurement case, keyed by the code the source system
// assigned to it.
type Process struct {
	ID string `json:"id"`

	EntityCode       string `json:"entity_code,omitempty"`
	EntityName       string `json:"entity_name,omitempty"`
	EntityDepartment string `json:"entity_department,omitempty"`

	Purpose         string `json:"purpose,omitempty"`
	Modality        string `json:"modality,omitempty"`
	CallType        string `json:"call_type,omitempty"`
	AwardMethod     string `json:"award_method,omitempty"`
	Regulation      string `json:"regulation,omitempty"`
	ProcurementType string `json:"procurement_type,omitempty"`
	SelectionMethod string `json:"selection_method,omitempty"`
	Guarantees      string `json:"guarantees,omitempty"`
	Currency        string `json:"currency,omitempty"`
	TenderDocsBy    string `json:"tender_docs_by,omitempty"`

	Auction    *bool    `json:"auction,omitempty"`
	Concession *bool    `json:"concession,omitempty"`
	Recurring  *bool    `json:"recurring,omitempty"`
	TotalValue *float64 `json:"total_value,omitempty"`

	PublishedAt     *time.Time `json:"published_at,omitempty"`
	SubmissionAt    *time.Time `json:"submission_at,omitempty"`
	AwardAt         *time.Time `json:"award_at,omitempty"`
	FormalizationAt *time.Time `json:"formalization_at,omitempty"`
	DeliveryAt      *time.Time `json:"delivery_at,omitempty"`

	Status     ProcessStatus `json:"status,omitempty"`
	StagesSeen []string      `json:"stages_seen,omitempty"`
}

// Fields returns the sticky payload of the descriptive attributes. ID,
// Status and StagesSeen are owned by the reconciliation engine and are never
// part of it.
func (p Process) Fields() Fields {
	return Fields{}.
		Str("entity_code", p.EntityCode).
		Str("entity_name", p.EntityName).
		Str("entity_department", p.EntityDepartment).
		Str("purpose", p.Purpose).
		Str("modality", p.Modality).
		Str("call_type", p.CallType).
		Str("award_method", p.AwardMethod).
		Str("regulation", p.Regulation).
		Str("procurement_type", p.ProcurementType).
		Str("selection_method", p.SelectionMethod).
		Str("guarantees", p.Guarantees).
		Str("currency", p.Currency).
		Str("tender_docs_by", p.TenderDocsBy).
		Bool("auction", p.Auction).
		Bool("concession", p.Concession).
		Bool("recurring", p.Recurring).
		Num("total_value", p.TotalValue).
		Time("published_at", p.PublishedAt).
		Time("submission_at", p.SubmissionAt).
		Time("award_at", p.AwardAt).
		Time("formalization_at", p.FormalizationAt).
		Time("delivery_at", p.DeliveryAt)
}

// HasStage reports whether tag was already recorded in StagesSeen.
func (p Process) HasStage(tag string) bool {
	for _, s := range p.StagesSeen {
		if s == tag {
			return true
		}
	}
	return false
}

// Item is one line within a process, keyed by ItemKey(ProcessID, Slug).
type Item struct {
	ProcessID   string `json:"process_id"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	CatalogCode string `json:"catalog_code,omitempty"`
	Unit        string `json:"unit,omitempty"`

	RequestedQty *float64 `json:"requested_qty,omitempty"`
	AwardedQty   *float64 `json:"awarded_qty,omitempty"`
	ReceivedQty  *float64 `json:"received_qty,omitempty"`

	RefUnitPrice      *float64 `json:"ref_unit_price,omitempty"`
	RefTotalPrice     *float64 `json:"ref_total_price,omitempty"`
	AwardedUnitPrice  *float64 `json:"awarded_unit_price,omitempty"`
	AwardedTotalPrice *float64 `json:"awarded_total_price,omitempty"`

	Status         ItemStatus `json:"status,omitempty"`
	StateText      string     `json:"state_text,omitempty"`
	DesertionCause string     `json:"desertion_cause,omitempty"`

	ContractNumber string     `json:"contract_number,omitempty"`
	ContractDate   *time.Time `json:"contract_date,omitempty"`
	ReceptionDue   *time.Time `json:"reception_due,omitempty"`
	ProvisionalAt  *time.Time `json:"provisional_reception_at,omitempty"`
	FinalReceiptAt *time.Time `json:"final_reception_at,omitempty"`

	EntityCode       string `json:"entity_code,omitempty"`
	EntityName       string `json:"entity_name,omitempty"`
	EntityDepartment string `json:"entity_department,omitempty"`

	Modality        string     `json:"modality,omitempty"`
	CallType        string     `json:"call_type,omitempty"`
	ProcurementType string     `json:"procurement_type,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	SubmissionAt    *time.Time `json:"submission_at,omitempty"`

	BidderID    string `json:"bidder_id,omitempty"`
	BidderName  string `json:"bidder_name,omitempty"`
	BidderTaxID string `json:"bidder_tax_id,omitempty"`
}

// Key returns the item's document key.
func (it Item) Key() string {
	return ItemKey(it.ProcessID, it.Slug)
}

// ItemKey is the document key of the item with the given slug in a process.
func ItemKey(processID, slug string) string {
	return processID + "_" + slug
}

// Bidder is a company that was awarded or contracted a line. Keyed by the
// slug of its name; created once and never modified.
type Bidder struct {
	Name string `json:"name"`
}
