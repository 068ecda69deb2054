package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/roach88/procura/internal/normalize"
	"github.com/roach88/procura/internal/record"
)

// HTMLExtractor extracts a snapshot from an HTML form described by a Layout.
type HTMLExtractor struct {
	layout Layout
}

// NewHTMLExtractor returns an extractor for layout. The layout is assumed
// valid; see Layout.Validate.
func NewHTMLExtractor(layout Layout) *HTMLExtractor {
	if layout.LabelClass == "" {
		layout.LabelClass = DefaultLabelClass
	}
	if layout.ValueClass == "" {
		layout.ValueClass = DefaultValueClass
	}
	return &HTMLExtractor{layout: layout}
}

// Layout returns the layout the extractor was built from.
func (x *HTMLExtractor) Layout() Layout {
	return x.layout
}

// Extract parses doc. The document's declared or sniffed character set is
// honored; the forms are commonly served as ISO-8859-1.
func (x *HTMLExtractor) Extract(doc Document) (record.Snapshot, error) {
	r, err := charset.NewReader(bytes.NewReader(doc.Body), "text/html")
	if err != nil {
		return record.Snapshot{}, fmt.Errorf("%w: %s: %v", ErrMalformed, doc.Name, err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return record.Snapshot{}, fmt.Errorf("%w: %s: %v", ErrMalformed, doc.Name, err)
	}

	l := x.layout
	snap := record.Snapshot{
		ProcessID: x.processID(root),
		StageTag:  l.Variant,
		Stage:     l.Stage,
	}
	if snap.ProcessID == "" {
		return record.Snapshot{}, fmt.Errorf("%s: %w", doc.Name, ErrNoProcessID)
	}

	if l.Entity != nil {
		snap.Entity = x.entity(root)
	}

	proc := raw{}
	x.labels(root, proc)
	if l.Schedule != nil {
		x.schedule(root, proc)
	}

	if l.Items != nil {
		lines, total := x.table(root, l.Items)
		if total != "" {
			proc[l.Items.TotalField] = total
		}
		for _, fields := range lines {
			snap.Lines = append(snap.Lines, lineFor(l.Stage, fields))
		}
	}
	if l.Voids != nil {
		voids, _ := x.table(root, l.Voids)
		for _, fields := range voids {
			snap.Voids = append(snap.Voids, record.VoidLine{
				Text:  fields["description"],
				Cause: normalize.Clean(fields["cause"]),
			})
		}
	}

	snap.Process = processFrom(proc)
	return snap, nil
}

// raw holds extracted text by field name.
type raw map[string]string

func (x *HTMLExtractor) processID(root *html.Node) string {
	loc := x.layout.ProcessID
	if loc.Class != "" {
		td := find(root, func(n *html.Node) bool { return isCell(n) && hasClass(n, loc.Class) })
		if td != nil {
			if id := textOf(td); id != "" {
				return id
			}
		}
	}
	if loc.Label != "" {
		label := findCell(root, containing(loc.Label), nil)
		if label == nil {
			return ""
		}
		if v := nextSibling(label, isCell); v != nil {
			return textOf(v)
		}
	}
	return ""
}

func (x *HTMLExtractor) entity(root *html.Node) record.Entity {
	sec := x.layout.Entity
	title := findCell(root, containing(sec.Title), nil)
	if title == nil {
		return record.Entity{}
	}
	table := enclosingTable(title)
	if table == nil {
		return record.Entity{}
	}
	rs := rows(table)
	if len(rs) == 0 {
		return record.Entity{}
	}

	vals := raw{}
	for i, c := range cells(rs[len(rs)-1]) {
		if i >= len(sec.Columns) || sec.Columns[i] == "" {
			continue
		}
		f := sec.Columns[i]
		v := textOf(c)
		if prev := vals[f]; prev != "" && v != "" {
			v = prev + " - " + v
		} else if v == "" {
			v = prev
		}
		vals[f] = v
	}

	return record.Entity{
		Code:           vals["code"],
		Name:           vals["name"],
		Fax:            vals["fax"],
		Phone:          vals["phone"],
		Department:     vals["department"],
		Address:        vals["address"],
		Authority:      vals["authority"],
		AuthorityTitle: vals["authority_title"],
		Type:           vals["type"],
	}
}

func (x *HTMLExtractor) labels(root *html.Node, out raw) {
	l := x.layout
	for _, lf := range l.Labels {
		if lf.Below {
			cell := findCell(root, equalTo(lf.Label), nil)
			if cell == nil {
				continue
			}
			tr := enclosingRow(cell)
			if tr == nil {
				continue
			}
			next := nextSibling(tr, func(n *html.Node) bool { return n.Type == html.ElementNode })
			if next == nil {
				continue
			}
			if cs := cells(next); len(cs) > 0 {
				setRaw(out, lf.Field, textOf(cs[0]))
			}
			continue
		}

		label := findCell(root, containing(lf.Label), func(n *html.Node) bool {
			return hasClass(n, l.LabelClass)
		})
		if label == nil {
			continue
		}
		value := nextSibling(label, func(n *html.Node) bool {
			return isCell(n) && hasClass(n, l.ValueClass)
		})
		if value != nil {
			setRaw(out, lf.Field, textOf(value))
		}
	}
}

// schedule reads activity dates. When the schedule table has a "Fecha"
// header column the date is taken from it; otherwise from the cell after the
// activity label.
func (x *HTMLExtractor) schedule(root *html.Node, out raw) {
	sec := x.layout.Schedule
	title := findCell(root, containing(sec.Title), func(n *html.Node) bool {
		return hasClass(n, DefaultTitleClass) || !hasAnyClass(n)
	})
	if title == nil {
		return
	}
	tr := enclosingRow(title)
	if tr == nil {
		return
	}
	next := nextSibling(tr, func(n *html.Node) bool { return n.Type == html.ElementNode })
	if next == nil {
		return
	}
	table := find(next, func(n *html.Node) bool { return n != next && isElem(n, atom.Table) })
	if table == nil {
		return
	}

	dateCol := -1
	if rs := rows(table); len(rs) > 0 {
		for i, c := range cells(rs[0]) {
			if strings.Contains(normalize.MatchKey(textOf(c)), "fecha") {
				dateCol = i
				break
			}
		}
	}

	for _, lf := range sec.Rows {
		cell := findCell(table, containing(lf.Label), nil)
		if cell == nil {
			continue
		}
		var value *html.Node
		if dateCol >= 0 {
			if cs := cells(enclosingRow(cell)); dateCol < len(cs) && cs[dateCol] != cell {
				value = cs[dateCol]
			}
		}
		if value == nil {
			value = nextSibling(cell, isCell)
		}
		if value != nil {
			setRaw(out, lf.Field, textOf(value))
		}
	}
}

// table extracts the data rows of a table section, and its total cell when
// the section asks for one. Data rows have as many cells as the header.
func (x *HTMLExtractor) table(root *html.Node, sec *TableSection) ([]raw, string) {
	anchor := findCell(root, containing(sec.Anchor), nil)
	if anchor == nil {
		return nil, ""
	}
	anchorRow := enclosingRow(anchor)
	table := enclosingTable(anchor)
	if anchorRow == nil || table == nil {
		return nil, ""
	}

	rs := rows(table)
	start := -1
	for i, r := range rs {
		if r == anchorRow {
			start = i
			break
		}
	}
	if start < 0 || start+sec.HeaderOffset >= len(rs) {
		return nil, ""
	}
	header := cells(rs[start+sec.HeaderOffset])

	fieldAt := make([]string, len(header))
	for i, h := range header {
		key := normalize.MatchKey(textOf(h))
		for _, c := range sec.Columns {
			if normalize.MatchKey(c.Header) == key {
				fieldAt[i] = c.Field
				break
			}
		}
	}
	keep := map[string]bool{}
	for _, f := range sec.KeepMarkup {
		keep[f] = true
	}

	var out []raw
	body := rs[start+sec.HeaderOffset+1:]
	for _, r := range body {
		cs := cells(r)
		if len(cs) < 2 || len(cs) != len(header) {
			continue
		}
		if sec.NumericFirst && !isDigits(textOf(cs[0])) {
			continue
		}
		fields := raw{}
		for i, c := range cs {
			f := fieldAt[i]
			if f == "" {
				continue
			}
			if keep[f] {
				setRaw(fields, f, innerHTML(c))
			} else {
				setRaw(fields, f, textOf(c))
			}
		}
		if len(fields) > 0 {
			out = append(out, fields)
		}
	}

	// The total is the last cell of a trailing row that is not a data row.
	var total string
	if sec.TotalField != "" && len(body) > 0 {
		if cs := cells(body[len(body)-1]); len(cs) > 0 && len(cs) != len(header) {
			total = textOf(cs[len(cs)-1])
		}
	}
	return out, total
}

func setRaw(m raw, field, v string) {
	if strings.TrimSpace(v) != "" {
		m[field] = v
	}
}

func hasAnyClass(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && strings.TrimSpace(a.Val) != "" {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
