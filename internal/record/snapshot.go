package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage is the lifecycle class of a snapshot. Several document variants can
// share one class; the variant itself travels as Snapshot.StageTag.
type Stage string

const (
	StagePublication   Stage = "publication"
	StageClarification Stage = "clarification"
	StageAward         Stage = "award"
	StageFormalization Stage = "formalization"
	StageReception     Stage = "reception"
)

// Stages lists every stage class in lifecycle order.
var Stages = []Stage{
	StagePublication,
	StageClarification,
	StageAward,
	StageFormalization,
	StageReception,
}

// ParseStage converts a stage class name, case-insensitively.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known stage class.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// ItemUpdate is one line of a snapshot. The concrete type says which stage
// produced it and therefore which attributes it can carry.
type ItemUpdate interface {
	// Description is the line's description text, markup preserved.
	Description() string
	isItemUpdate()
}

// PublishedLine is a requested line as listed in a publication snapshot.
type PublishedLine struct {
	Text          string
	CatalogCode   string
	Unit          string
	RequestedQty  *float64
	RefUnitPrice  *float64
	RefTotalPrice *float64
}

func (l PublishedLine) Description() string { return l.Text }

func (PublishedLine) isItemUpdate() {}

// AwardedLine is a line of an award or formalization snapshot.
type AwardedLine struct {
	Text              string
	State             string
	RequestedQty      *float64
	AwardedQty        *float64
	AwardedUnitPrice  *float64
	AwardedTotalPrice *float64
	BidderName        string
	BidderTaxID       string
}

func (l AwardedLine) Description() string { return l.Text }

func (AwardedLine) isItemUpdate() {}

// ReceivedLine is a line of a reception snapshot.
type ReceivedLine struct {
	Text           string
	State          string
	ContractNumber string
	ContractDate   *time.Time
	BidderName     string
	RequestedQty   *float64
	ReceivedQty    *float64
	ReceptionDue   *time.Time
	ProvisionalAt  *time.Time
	FinalReceiptAt *time.Time
	ExecutedTotal  *float64
}

func (l ReceivedLine) Description() string { return l.Text }

func (ReceivedLine) isItemUpdate() {}

// VoidLine is an entry of a reception snapshot's explicit "declared void"
// table.
type VoidLine struct {
	Text  string
	Cause string
}

// Snapshot is the normalized content of one ingested document: one lifecycle
// milestone of one process.
type Snapshot struct {
	ProcessID string
	StageTag  string
	Stage     Stage

	// Entity carries the contracting authority as observed; a blank Code
	// means the document did not identify one.
	Entity Entity

	// Process carries the observed descriptive attributes. ID, Status and
	// StagesSeen are ignored.
	Process Process

	Lines []ItemUpdate
	Voids []VoidLine
}

// ErrNoProcessID is returned when a snapshot does not identify its process.
var ErrNoProcessID = errors.New("snapshot has no process id")

// Validate checks that the snapshot is identifiable and that every line type
// belongs to the snapshot's stage class.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.ProcessID) == "" {
		return ErrNoProcessID
	}
	if !s.Stage.Valid() {
		return fmt.Errorf("snapshot %s: unknown stage %q", s.ProcessID, s.Stage)
	}
	if s.StageTag == "" {
		return fmt.Errorf("snapshot %s: empty stage tag", s.ProcessID)
	}
	for i, l := range s.Lines {
		if !lineAllowed(s.Stage, l) {
			return fmt.Errorf("snapshot %s: line %d: %T not allowed in %s stage", s.ProcessID, i, l, s.Stage)
		}
	}
	if len(s.Voids) > 0 && s.Stage != StageReception {
		return fmt.Errorf("snapshot %s: void table only allowed in %s stage", s.ProcessID, StageReception)
	}
	return nil
}

func lineAllowed(stage Stage, l ItemUpdate) bool {
	switch l.(type) {
	case PublishedLine:
		return stage == StagePublication
	case AwardedLine:
		return stage == StageAward || stage == StageFormalization
	case ReceivedLine:
		return stage == StageReception
	default:
		return false
	}
}
