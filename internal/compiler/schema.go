package compiler

import (
	"cuelang.org/go/cue"
)

// schemaSource closes every layout over the shape the extractor understands.
// Field names are checked separately, against the stage of the layout.
const schemaSource = `
#Locator: {
	class?: string
	label?: string
}

#Label: {
	label:  string & != ""
	field:  string
	below?: bool
}

#Column: {
	header: string & != ""
	field:  string
}

#Table: {
	anchor:         string & != ""
	header_offset?: int & >=0
	columns: [...#Column]
	keep_markup?: [...string]
	numeric_first?: bool
	total_field?:   string
}

#Layout: {
	stage:      "publication" | "clarification" | "award" | "formalization" | "reception"
	process_id: #Locator
	entity?: {
		title: string & != ""
		columns: [...string]
	}
	label_class?: string
	value_class?: string
	labels?: [...#Label]
	schedule?: {
		title: string & != ""
		rows: [...#Label]
	}
	items?: #Table
	voids?: #Table
}
`

// layoutSchema returns the #Layout definition compiled in ctx. Values can
// only be unified within one context, so every load compiles its own.
func layoutSchema(ctx *cue.Context) cue.Value {
	return ctx.CompileString(schemaSource, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Layout"))
}

// layoutDef is the decoded form of a layout that passed the schema.
type layoutDef struct {
	Stage     string `json:"stage"`
	ProcessID struct {
		Class string `json:"class"`
		Label string `json:"label"`
	} `json:"process_id"`
	Entity *struct {
		Title   string   `json:"title"`
		Columns []string `json:"columns"`
	} `json:"entity"`
	LabelClass string     `json:"label_class"`
	ValueClass string     `json:"value_class"`
	Labels     []labelDef `json:"labels"`
	Schedule   *struct {
		Title string     `json:"title"`
		Rows  []labelDef `json:"rows"`
	} `json:"schedule"`
	Items *tableDef `json:"items"`
	Voids *tableDef `json:"voids"`
}

type labelDef struct {
	Label string `json:"label"`
	Field string `json:"field"`
	Below bool   `json:"below"`
}

type tableDef struct {
	Anchor       string `json:"anchor"`
	HeaderOffset int    `json:"header_offset"`
	Columns      []struct {
		Header string `json:"header"`
		Field  string `json:"field"`
	} `json:"columns"`
	KeepMarkup   []string `json:"keep_markup"`
	NumericFirst bool     `json:"numeric_first"`
	TotalField   string   `json:"total_field"`
}
