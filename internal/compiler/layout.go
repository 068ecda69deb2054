package compiler

import (
	"fmt"
	"regexp"

	"cuelang.org/go/cue"

	"github.com/roach88/procura/internal/extract"
	"github.com/roach88/procura/internal/record"
)

var variantLabel = regexp.MustCompile(`^FORM\d+$`)

// CompileLayout parses a CUE value into an extract.Layout. The variant tag
// is the value's struct label, so the value should be the layout itself:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`layout: FORM100: { stage: "publication", ... }`)
//	l, err := CompileLayout(v.LookupPath(cue.ParsePath("layout.FORM100")))
func CompileLayout(v cue.Value) (extract.Layout, error) {
	if err := v.Err(); err != nil {
		return extract.Layout{}, formatCUEError(err)
	}

	var l extract.Layout
	if sels := v.Path().Selectors(); len(sels) > 0 {
		l.Variant = sels[len(sels)-1].String()
	}
	if !variantLabel.MatchString(l.Variant) {
		return extract.Layout{}, &CompileError{
			Field:   "layout",
			Message: fmt.Sprintf("variant %q must look like FORM<digits>", l.Variant),
			Pos:     v.Pos(),
		}
	}

	checked := layoutSchema(v.Context()).Unify(v)
	if err := checked.Validate(cue.Concrete(true)); err != nil {
		return extract.Layout{}, formatCUEError(err)
	}
	var def layoutDef
	if err := checked.Decode(&def); err != nil {
		return extract.Layout{}, formatCUEError(err)
	}

	l.Stage = record.Stage(def.Stage)
	l.LabelClass = def.LabelClass
	l.ValueClass = def.ValueClass

	if def.ProcessID.Class == "" && def.ProcessID.Label == "" {
		return extract.Layout{}, &CompileError{
			Field:   "process_id",
			Message: "a class or a label is required",
			Pos:     v.LookupPath(cue.ParsePath("process_id")).Pos(),
		}
	}
	l.ProcessID = extract.Locator{Class: def.ProcessID.Class, Label: def.ProcessID.Label}

	if def.Entity != nil {
		for i, f := range def.Entity.Columns {
			if f != "" && extract.EntityFields[f] == "" {
				return extract.Layout{}, fieldError(v, "entity field", f, extract.EntityFields,
					cue.Str("entity"), cue.Str("columns"), cue.Index(i))
			}
		}
		l.Entity = &extract.EntitySection{Title: def.Entity.Title, Columns: def.Entity.Columns}
	}

	labels, err := compileLabels(v, def.Labels, cue.Str("labels"))
	if err != nil {
		return extract.Layout{}, err
	}
	l.Labels = labels

	if def.Schedule != nil {
		rows, err := compileLabels(v, def.Schedule.Rows, cue.Str("schedule"), cue.Str("rows"))
		if err != nil {
			return extract.Layout{}, err
		}
		l.Schedule = &extract.ScheduleSection{Title: def.Schedule.Title, Rows: rows}
	}

	if def.Items != nil {
		allowed := extract.LineFields(l.Stage)
		if allowed == nil {
			return extract.Layout{}, &CompileError{
				Field:   "items",
				Message: fmt.Sprintf("%s layouts carry no lines", l.Stage),
				Pos:     v.LookupPath(cue.ParsePath("items")).Pos(),
			}
		}
		l.Items, err = compileTable(v, def.Items, allowed, "items")
		if err != nil {
			return extract.Layout{}, err
		}
	}
	if def.Voids != nil {
		if l.Stage != record.StageReception {
			return extract.Layout{}, &CompileError{
				Field:   "voids",
				Message: "void tables are only allowed in reception layouts",
				Pos:     v.LookupPath(cue.ParsePath("voids")).Pos(),
			}
		}
		l.Voids, err = compileTable(v, def.Voids, extract.VoidFields, "voids")
		if err != nil {
			return extract.Layout{}, err
		}
	}

	// Anything the positioned checks above let through.
	if err := l.Validate(); err != nil {
		return extract.Layout{}, &CompileError{Field: "layout", Message: err.Error(), Pos: v.Pos()}
	}
	return l, nil
}

func compileLabels(v cue.Value, defs []labelDef, at ...cue.Selector) ([]extract.LabelField, error) {
	var out []extract.LabelField
	for i, d := range defs {
		if extract.ProcessFields[d.Field] == "" {
			return nil, fieldError(v, "process field", d.Field, extract.ProcessFields,
				append(at, cue.Index(i), cue.Str("field"))...)
		}
		out = append(out, extract.LabelField{Label: d.Label, Field: d.Field, Below: d.Below})
	}
	return out, nil
}

func compileTable(v cue.Value, d *tableDef, allowed map[string]string, name string) (*extract.TableSection, error) {
	t := &extract.TableSection{
		Anchor:       d.Anchor,
		HeaderOffset: d.HeaderOffset,
		KeepMarkup:   d.KeepMarkup,
		NumericFirst: d.NumericFirst,
		TotalField:   d.TotalField,
	}

	hasDescription := false
	for i, c := range d.Columns {
		if allowed[c.Field] == "" {
			return nil, fieldError(v, "line field", c.Field, allowed,
				cue.Str(name), cue.Str("columns"), cue.Index(i), cue.Str("field"))
		}
		hasDescription = hasDescription || c.Field == "description"
		t.Columns = append(t.Columns, extract.Column{Header: c.Header, Field: c.Field})
	}
	if !hasDescription {
		return nil, &CompileError{
			Field:   name + ".columns",
			Message: "a description column is required",
			Pos:     v.LookupPath(cue.MakePath(cue.Str(name), cue.Str("columns"))).Pos(),
		}
	}

	for i, f := range d.KeepMarkup {
		if allowed[f] == "" {
			return nil, fieldError(v, "line field", f, allowed,
				cue.Str(name), cue.Str("keep_markup"), cue.Index(i))
		}
	}
	if d.TotalField != "" && extract.ProcessFields[d.TotalField] != extract.KindNumber {
		return nil, &CompileError{
			Field:   name + ".total_field",
			Message: fmt.Sprintf("%q is not a numeric process field", d.TotalField),
			Pos:     v.LookupPath(cue.MakePath(cue.Str(name), cue.Str("total_field"))).Pos(),
		}
	}
	return t, nil
}

func fieldError(v cue.Value, kind, name string, allowed map[string]string, at ...cue.Selector) error {
	path := cue.MakePath(at...)
	return &CompileError{
		Field:   path.String(),
		Message: fmt.Sprintf("unknown %s %q (known: %v)", kind, name, extract.FieldNames(allowed)),
		Pos:     v.LookupPath(path).Pos(),
	}
}
