package extract

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/roach88/procura/internal/record"
)

// Default cell classes of labelled fields in the published forms.
const (
	DefaultLabelClass = "FormularioEtiqueta"
	DefaultValueClass = "FormularioDato"
	DefaultTitleClass = "FormularioSubtitulo"
)

// Layout describes where one document variant keeps its data. Every text in a
// layout is matched against document text after normalize.MatchKey, so case,
// accents, markup and spacing never matter.
type Layout struct {
	// Variant is the tag the layout serves, e.g. "FORM100".
	Variant string
	Stage   record.Stage

	ProcessID Locator
	Entity    *EntitySection

	// LabelClass and ValueClass select the cells of labelled fields. Empty
	// values fall back to the Default* constants.
	LabelClass string
	ValueClass string
	Labels     []LabelField

	Schedule *ScheduleSection
	Items    *TableSection
	Voids    *TableSection
}

// Locator finds a single value. Class selects the first cell with that
// class; otherwise Label selects the cell following the first cell that
// contains the label.
type Locator struct {
	Class string
	Label string
}

// EntitySection is the table identifying the contracting entity. Its last
// row holds the values; Columns names the entity field of each cell. An
// empty name skips the cell, and a field named twice is joined with " - ".
type EntitySection struct {
	Title   string
	Columns []string
}

// LabelField maps a label to a process field. Below means the value is the
// first cell of the row after the label's row instead of the value cell next
// to it; Below labels must match the whole cell text.
type LabelField struct {
	Label string
	Field string
	Below bool
}

// ScheduleSection is the activity schedule: a subtitle followed by a nested
// table of activity/date rows.
type ScheduleSection struct {
	Title string
	Rows  []LabelField
}

// TableSection is a table of lines.
type TableSection struct {
	// Anchor is text inside the table. The header row sits HeaderOffset rows
	// after the row holding the anchor.
	Anchor       string
	HeaderOffset int

	Columns []Column

	// KeepMarkup lists fields whose cells keep their inner markup.
	KeepMarkup []string

	// NumericFirst skips rows whose first cell is not a plain number.
	NumericFirst bool

	// TotalField, when set, receives the table's last cell as a process
	// field.
	TotalField string
}

// Column maps a header text to a line field.
type Column struct {
	Header string
	Field  string
}

// Field kinds.
const (
	KindString = "string"
	KindNumber = "number"
	KindBool   = "bool"
	KindDate   = "date"
)

// EntityFields lists the attributes an entity section can fill.
var EntityFields = map[string]string{
	"code":            KindString,
	"name":            KindString,
	"fax":             KindString,
	"phone":           KindString,
	"department":      KindString,
	"address":         KindString,
	"authority":       KindString,
	"authority_title": KindString,
	"type":            KindString,
}

// ProcessFields lists the attributes labels, schedules and table totals can
// fill.
var ProcessFields = map[string]string{
	"purpose":          KindString,
	"modality":         KindString,
	"call_type":        KindString,
	"award_method":     KindString,
	"regulation":       KindString,
	"procurement_type": KindString,
	"selection_method": KindString,
	"guarantees":       KindString,
	"currency":         KindString,
	"tender_docs_by":   KindString,
	"auction":          KindBool,
	"concession":       KindBool,
	"recurring":        KindBool,
	"total_value":      KindNumber,
	"published_at":     KindDate,
	"submission_at":    KindDate,
	"award_at":         KindDate,
	"formalization_at": KindDate,
	"delivery_at":      KindDate,
}

var publishedFields = map[string]string{
	"description":     KindString,
	"catalog_code":    KindString,
	"unit":            KindString,
	"requested_qty":   KindNumber,
	"ref_unit_price":  KindNumber,
	"ref_total_price": KindNumber,
}

var awardedFields = map[string]string{
	"description":         KindString,
	"state":               KindString,
	"requested_qty":       KindNumber,
	"awarded_qty":         KindNumber,
	"awarded_unit_price":  KindNumber,
	"awarded_total_price": KindNumber,
	"bidder_name":         KindString,
	"bidder_tax_id":       KindString,
}

var receivedFields = map[string]string{
	"description":              KindString,
	"state":                    KindString,
	"contract_number":          KindString,
	"contract_date":            KindDate,
	"bidder_name":              KindString,
	"requested_qty":            KindNumber,
	"received_qty":             KindNumber,
	"reception_due":            KindDate,
	"provisional_reception_at": KindDate,
	"final_reception_at":       KindDate,
	"executed_total":           KindNumber,
}

// VoidFields lists the columns of a void table.
var VoidFields = map[string]string{
	"description": KindString,
	"cause":       KindString,
}

// LineFields returns the line fields a table can fill in a snapshot of the
// given stage. Stages without lines return nil.
func LineFields(stage record.Stage) map[string]string {
	switch stage {
	case record.StagePublication:
		return publishedFields
	case record.StageAward, record.StageFormalization:
		return awardedFields
	case record.StageReception:
		return receivedFields
	default:
		return nil
	}
}

// FieldNames returns the sorted names of a field set, for error messages.
func FieldNames(set map[string]string) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var variantPattern = regexp.MustCompile(`^FORM\d+$`)

// Validate checks a layout for structural mistakes. Layout compilation
// reports the same problems with source positions; this is the check for
// layouts built in code.
func (l Layout) Validate() error {
	if !variantPattern.MatchString(l.Variant) {
		return fmt.Errorf("layout %q: variant must look like FORM<digits>", l.Variant)
	}
	if !l.Stage.Valid() {
		return fmt.Errorf("layout %s: unknown stage %q", l.Variant, l.Stage)
	}
	if l.ProcessID.Class == "" && l.ProcessID.Label == "" {
		return fmt.Errorf("layout %s: process id locator needs a class or a label", l.Variant)
	}
	if l.Entity != nil {
		for _, f := range l.Entity.Columns {
			if f != "" && EntityFields[f] == "" {
				return fmt.Errorf("layout %s: unknown entity field %q", l.Variant, f)
			}
		}
	}
	for _, lf := range l.Labels {
		if ProcessFields[lf.Field] == "" {
			return fmt.Errorf("layout %s: unknown process field %q", l.Variant, lf.Field)
		}
	}
	if l.Schedule != nil {
		for _, lf := range l.Schedule.Rows {
			if ProcessFields[lf.Field] == "" {
				return fmt.Errorf("layout %s: unknown process field %q", l.Variant, lf.Field)
			}
		}
	}
	if l.Items != nil {
		allowed := LineFields(l.Stage)
		if allowed == nil {
			return fmt.Errorf("layout %s: %s snapshots carry no lines", l.Variant, l.Stage)
		}
		if err := l.Items.validate(l.Variant, allowed); err != nil {
			return err
		}
	}
	if l.Voids != nil {
		if l.Stage != record.StageReception {
			return fmt.Errorf("layout %s: void table only allowed in %s layouts", l.Variant, record.StageReception)
		}
		if err := l.Voids.validate(l.Variant, VoidFields); err != nil {
			return err
		}
	}
	return nil
}

func (t *TableSection) validate(variant string, allowed map[string]string) error {
	if t.Anchor == "" {
		return fmt.Errorf("layout %s: table needs an anchor", variant)
	}
	if t.HeaderOffset < 0 {
		return fmt.Errorf("layout %s: negative header offset", variant)
	}
	hasDescription := false
	for _, c := range t.Columns {
		if allowed[c.Field] == "" {
			return fmt.Errorf("layout %s: unknown line field %q", variant, c.Field)
		}
		if c.Field == "description" {
			hasDescription = true
		}
	}
	if !hasDescription {
		return fmt.Errorf("layout %s: table has no description column", variant)
	}
	if t.TotalField != "" && ProcessFields[t.TotalField] != KindNumber {
		return fmt.Errorf("layout %s: total field %q is not a numeric process field", variant, t.TotalField)
	}
	return nil
}
