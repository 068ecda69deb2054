package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/procura/internal/ingest"
	"github.com/roach88/procura/internal/record"
)

// Scenario is an ordered list of documents and the state they must leave
// behind.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ImplicitCause overrides the desertion cause of items a reception did
	// not list.
	ImplicitCause string `yaml:"implicit_cause,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step ingests one document.
type Step struct {
	// Document is the ingestion name. Its FORM tag selects the variant.
	Document string `yaml:"document"`

	// Snapshot is what extraction yields for the document. Nil makes
	// extraction fail.
	Snapshot *SnapshotSpec `yaml:"snapshot,omitempty"`

	// Expect checks the step's outcome. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// SnapshotSpec is the YAML form of a record.Snapshot.
type SnapshotSpec struct {
	ProcessID string         `yaml:"process_id"`
	Stage     string         `yaml:"stage"`
	Entity    *EntitySpec    `yaml:"entity,omitempty"`
	Process   map[string]any `yaml:"process,omitempty"`
	Lines     []LineSpec     `yaml:"lines,omitempty"`
	Voids     []VoidSpec     `yaml:"voids,omitempty"`
}

// EntitySpec is the contracting authority named by a snapshot.
type EntitySpec struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name,omitempty"`
	Department string `yaml:"department,omitempty"`
	Address    string `yaml:"address,omitempty"`
	Phone      string `yaml:"phone,omitempty"`
}

// LineSpec is one line of a snapshot. Which fields apply depends on the
// stage: publication lines become requested lines, award and formalization
// lines awarded lines, reception lines received lines.
type LineSpec struct {
	Text           string `yaml:"text"`
	CatalogCode    string `yaml:"catalog_code,omitempty"`
	Unit           string `yaml:"unit,omitempty"`
	State          string `yaml:"state,omitempty"`
	Bidder         string `yaml:"bidder,omitempty"`
	BidderTaxID    string `yaml:"bidder_tax_id,omitempty"`
	ContractNumber string `yaml:"contract_number,omitempty"`

	RequestedQty      *float64 `yaml:"requested_qty,omitempty"`
	AwardedQty        *float64 `yaml:"awarded_qty,omitempty"`
	ReceivedQty       *float64 `yaml:"received_qty,omitempty"`
	RefUnitPrice      *float64 `yaml:"ref_unit_price,omitempty"`
	RefTotalPrice     *float64 `yaml:"ref_total_price,omitempty"`
	AwardedUnitPrice  *float64 `yaml:"awarded_unit_price,omitempty"`
	AwardedTotalPrice *float64 `yaml:"awarded_total_price,omitempty"`
	ExecutedTotal     *float64 `yaml:"executed_total,omitempty"`

	ContractDate   *time.Time `yaml:"contract_date,omitempty"`
	ReceptionDue   *time.Time `yaml:"reception_due,omitempty"`
	ProvisionalAt  *time.Time `yaml:"provisional_at,omitempty"`
	FinalReceiptAt *time.Time `yaml:"final_receipt_at,omitempty"`
}

// VoidSpec is an entry of a reception's declared-void table.
type VoidSpec struct {
	Text  string `yaml:"text"`
	Cause string `yaml:"cause,omitempty"`
}

// ExpectClause checks a step's outcome. Unset counts are not checked.
type ExpectClause struct {
	// Status is the ingestion status: success, skipped or failed.
	Status string `yaml:"status"`

	// Reason is the skip reason, Kind the failure kind.
	Reason string `yaml:"reason,omitempty"`
	Kind   string `yaml:"kind,omitempty"`

	ProcessStatus string `yaml:"process_status,omitempty"`
	Created       *int   `yaml:"created,omitempty"`
	Updated       *int   `yaml:"updated,omitempty"`
	Deserted      *int   `yaml:"deserted,omitempty"`

	// Diagnostics lists the expected diagnostic kinds in order. An empty
	// list is not checked; use [] with no_diagnostics to require none.
	Diagnostics   []string `yaml:"diagnostics,omitempty"`
	NoDiagnostics bool     `yaml:"no_diagnostics,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Process string `yaml:"process,omitempty"`
	Item    string `yaml:"item,omitempty"`
	Entity  string `yaml:"entity,omitempty"`

	// Count is the expected number of items (item_count).
	Count *int `yaml:"count,omitempty"`

	// Expect contains expected field values. Subset match: only the listed
	// fields are checked, and a null value requires the field to be unset.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertProcessState = "process_state"
	AssertItemState    = "item_state"
	AssertItemCount    = "item_count"
	AssertEntityState  = "entity_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Document == "" {
			return fmt.Errorf("steps[%d]: document is required", i)
		}
		if step.Snapshot != nil {
			if _, err := record.ParseStage(step.Snapshot.Stage); err != nil {
				return fmt.Errorf("steps[%d].snapshot: %w", i, err)
			}
		}
		if e := step.Expect; e != nil {
			switch ingest.Status(e.Status) {
			case ingest.StatusSuccess, ingest.StatusSkipped, ingest.StatusFailed:
			default:
				return fmt.Errorf("steps[%d].expect: unknown status %q", i, e.Status)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertProcessState:
		if a.Process == "" {
			return fmt.Errorf("assertions[%d]: process is required for process_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for process_state", index)
		}
	case AssertItemState:
		if a.Process == "" || a.Item == "" {
			return fmt.Errorf("assertions[%d]: process and item are required for item_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for item_state", index)
		}
	case AssertItemCount:
		if a.Process == "" {
			return fmt.Errorf("assertions[%d]: process is required for item_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for item_count", index)
		}
	case AssertEntityState:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for entity_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entity_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// build converts the YAML snapshot into a record.Snapshot tagged with stageTag.
func (s *SnapshotSpec) build(stageTag string) (record.Snapshot, error) {
	stage, err := record.ParseStage(s.Stage)
	if err != nil {
		return record.Snapshot{}, err
	}
	snap := record.Snapshot{
		ProcessID: s.ProcessID,
		StageTag:  stageTag,
		Stage:     stage,
	}
	if e := s.Entity; e != nil {
		snap.Entity = record.Entity{
			Code:       e.Code,
			Name:       e.Name,
			Department: e.Department,
			Address:    e.Address,
			Phone:      e.Phone,
		}
	}
	if len(s.Process) > 0 {
		// The process attributes use the record's JSON names.
		b, err := json.Marshal(s.Process)
		if err != nil {
			return record.Snapshot{}, fmt.Errorf("process attributes: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap.Process); err != nil {
			return record.Snapshot{}, fmt.Errorf("process attributes: %w", err)
		}
	}
	for i, l := range s.Lines {
		line, err := l.build(stage)
		if err != nil {
			return record.Snapshot{}, fmt.Errorf("lines[%d]: %w", i, err)
		}
		snap.Lines = append(snap.Lines, line)
	}
	for _, v := range s.Voids {
		snap.Voids = append(snap.Voids, record.VoidLine{Text: v.Text, Cause: v.Cause})
	}
	return snap, nil
}

func (l LineSpec) build(stage record.Stage) (record.ItemUpdate, error) {
	switch stage {
	case record.StagePublication:
		return record.PublishedLine{
			Text:          l.Text,
			CatalogCode:   l.CatalogCode,
			Unit:          l.Unit,
			RequestedQty:  l.RequestedQty,
			RefUnitPrice:  l.RefUnitPrice,
			RefTotalPrice: l.RefTotalPrice,
		}, nil
	case record.StageAward, record.StageFormalization:
		return record.AwardedLine{
			Text:              l.Text,
			State:             l.State,
			RequestedQty:      l.RequestedQty,
			AwardedQty:        l.AwardedQty,
			AwardedUnitPrice:  l.AwardedUnitPrice,
			AwardedTotalPrice: l.AwardedTotalPrice,
			BidderName:        l.Bidder,
			BidderTaxID:       l.BidderTaxID,
		}, nil
	case record.StageReception:
		return record.ReceivedLine{
			Text:           l.Text,
			State:          l.State,
			ContractNumber: l.ContractNumber,
			ContractDate:   l.ContractDate,
			BidderName:     l.Bidder,
			RequestedQty:   l.RequestedQty,
			ReceivedQty:    l.ReceivedQty,
			ReceptionDue:   l.ReceptionDue,
			ProvisionalAt:  l.ProvisionalAt,
			FinalReceiptAt: l.FinalReceiptAt,
			ExecutedTotal:  l.ExecutedTotal,
		}, nil
	default:
		return nil, fmt.Errorf("%s snapshots carry no lines", stage)
	}
}
