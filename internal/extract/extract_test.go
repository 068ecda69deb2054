package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procura/internal/record"
)

func publicationLayout() Layout {
	return Layout{
		Variant:   "FORM100",
		Stage:     record.StagePublication,
		ProcessID: Locator{Class: "FormularioCUCE"},
		Entity: &EntitySection{
			Title:   "1. IDENTIFICACIÓN DE LA ENTIDAD",
			Columns: []string{"code", "name", "fax", "phone"},
		},
		Labels: []LabelField{
			{Label: "Objeto de la Contratación", Field: "purpose"},
			{Label: "Fecha de publicación", Field: "published_at"},
			{Label: "Subasta", Field: "auction"},
			{Label: "Moneda considerada para el proceso", Field: "currency"},
			{Label: "Modalidad", Field: "modality", Below: true},
		},
		Schedule: &ScheduleSection{
			Title: "CRONOGRAMA DE",
			Rows: []LabelField{
				{Label: "Presentación", Field: "submission_at"},
				{Label: "Adjudicación", Field: "award_at"},
				{Label: "Entrega", Field: "delivery_at"},
			},
		},
		Items: &TableSection{
			Anchor: "Código del Catálogo",
			Columns: []Column{
				{Header: "Código del Catálogo", Field: "catalog_code"},
				{Header: "Descripción del bien o servicio", Field: "description"},
				{Header: "Unidad de Medida", Field: "unit"},
				{Header: "Cantidad", Field: "requested_qty"},
				{Header: "Precio referencial unitario", Field: "ref_unit_price"},
				{Header: "Precio referencial total", Field: "ref_total_price"},
			},
			KeepMarkup: []string{"description"},
			TotalField: "total_value",
		},
	}
}

func receptionLayout() Layout {
	return Layout{
		Variant:   "FORM500",
		Stage:     record.StageReception,
		ProcessID: Locator{Label: "CUCE"},
		Items: &TableSection{
			Anchor:       "RECEPCIÓN DE BIENES",
			HeaderOffset: 1,
			Columns: []Column{
				{Header: "Nro. de contrato", Field: "contract_number"},
				{Header: "Nombre o razón social de la empresa contratada", Field: "bidder_name"},
				{Header: "Descripción del bien, obra o servicio objeto del contrato", Field: "description"},
				{Header: "Estado de la recepción", Field: "state"},
				{Header: "Cantidad solicitada", Field: "requested_qty"},
				{Header: "Monto real ejecutado", Field: "executed_total"},
			},
		},
		Voids: &TableSection{
			Anchor:       "ÍTEMS DESIERTOS",
			HeaderOffset: 1,
			Columns: []Column{
				{Header: "Descripción", Field: "description"},
				{Header: "Causal", Field: "cause"},
			},
		},
	}
}

func readFixture(t *testing.T, name string) Document {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return Document{Name: name, Body: body}
}

func TestHTMLExtractor_Publication(t *testing.T) {
	snap, err := NewHTMLExtractor(publicationLayout()).Extract(readFixture(t, "FORM100_25-0001.html"))
	require.NoError(t, err)

	assert.Equal(t, "25-0001-00-1234567-1-1", snap.ProcessID)
	assert.Equal(t, "FORM100", snap.StageTag)
	assert.Equal(t, record.StagePublication, snap.Stage)
	require.NoError(t, snap.Validate())

	assert.Equal(t, record.Entity{
		Code:  "0001",
		Name:  "Ministerio de Salud",
		Fax:   "2-222222",
		Phone: "2-333333",
	}, snap.Entity)

	p := snap.Process
	assert.Equal(t, "Compra de equipos de computación", p.Purpose)
	assert.Equal(t, "ANPE", p.Modality)
	assert.Equal(t, "BOLIVIANOS", p.Currency)
	require.NotNil(t, p.Auction)
	assert.False(t, *p.Auction)
	require.NotNil(t, p.TotalValue)
	assert.Equal(t, 11505.0, *p.TotalValue)
	require.NotNil(t, p.PublishedAt)
	assert.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), *p.PublishedAt)
	require.NotNil(t, p.SubmissionAt)
	assert.Equal(t, time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC), *p.SubmissionAt)
	require.NotNil(t, p.AwardAt)
	assert.Nil(t, p.DeliveryAt)

	require.Len(t, snap.Lines, 2)
	first, ok := snap.Lines[0].(record.PublishedLine)
	require.True(t, ok)
	assert.Equal(t, "<b>Laptop</b> HP 250 G8", first.Text)
	assert.Equal(t, "43211503", first.CatalogCode)
	assert.Equal(t, "PIEZA", first.Unit)
	assert.Equal(t, 2.0, *first.RequestedQty)
	assert.Equal(t, 5000.0, *first.RefUnitPrice)
	assert.Equal(t, 10000.0, *first.RefTotalPrice)

	second := snap.Lines[1].(record.PublishedLine)
	assert.Equal(t, 150.5, *second.RefUnitPrice)
}

func TestHTMLExtractor_Reception(t *testing.T) {
	snap, err := NewHTMLExtractor(receptionLayout()).Extract(readFixture(t, "FORM500_25-0001.html"))
	require.NoError(t, err)
	require.NoError(t, snap.Validate())

	assert.Equal(t, "25-0001-00-1234567-1-1", snap.ProcessID)
	assert.Empty(t, snap.Entity.Code)

	require.Len(t, snap.Lines, 2)
	l := snap.Lines[0].(record.ReceivedLine)
	assert.Equal(t, "Laptop HP 250 G8", l.Text)
	assert.Equal(t, "C-01", l.ContractNumber)
	assert.Equal(t, "ACME SRL", l.BidderName)
	assert.Equal(t, "Recepción Definitiva", l.State)
	assert.Equal(t, 9800.0, *l.ExecutedTotal)

	assert.Equal(t, []record.VoidLine{{Text: "Mouse óptico", Cause: "Sin propuestas"}}, snap.Voids)
}

func TestHTMLExtractor_MissingProcessID(t *testing.T) {
	doc := Document{Name: "FORM100_x.html", Body: []byte("<html><body><p>nothing here</p></body></html>")}

	_, err := NewHTMLExtractor(publicationLayout()).Extract(doc)

	assert.True(t, errors.Is(err, ErrNoProcessID))
}

func TestHTMLExtractor_AbsentSectionsAreNotErrors(t *testing.T) {
	doc := Document{
		Name: "FORM100_x.html",
		Body: []byte(`<table><tr><td class="FormularioCUCE">25-9</td></tr></table>`),
	}

	snap, err := NewHTMLExtractor(publicationLayout()).Extract(doc)

	require.NoError(t, err)
	assert.Equal(t, "25-9", snap.ProcessID)
	assert.Empty(t, snap.Lines)
	assert.Equal(t, record.Process{}, snap.Process)
}

func TestHTMLExtractor_Latin1(t *testing.T) {
	// "Descripción" and "Código" encoded as ISO-8859-1.
	body := []byte("<html><head><meta charset=\"iso-8859-1\"></head><body><table>" +
		"<tr><td class=\"FormularioCUCE\">25-1</td></tr></table><table>" +
		"<tr><td>C\xf3digo del Cat\xe1logo</td><td>Descripci\xf3n del bien o servicio</td></tr>" +
		"<tr><td>1</td><td>Cami\xf3n</td></tr></table></body></html>")

	snap, err := NewHTMLExtractor(publicationLayout()).Extract(Document{Name: "FORM100.html", Body: body})

	require.NoError(t, err)
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "Camión", snap.Lines[0].Description())
}

func TestHTMLExtractor_EntityJoinedColumns(t *testing.T) {
	l := publicationLayout()
	l.Entity = &EntitySection{Title: "ENTIDAD", Columns: []string{"code", "", "code", "name"}}
	doc := Document{Name: "FORM400.html", Body: []byte(`<table>
		<tr><td class="FormularioCUCE">25-4</td></tr></table>
		<table><tr><td><font>ENTIDAD</font></td></tr>
		<tr><td>0123</td><td>x</td><td>01</td><td>Gobierno Municipal</td></tr></table>`)}

	snap, err := NewHTMLExtractor(l).Extract(doc)

	require.NoError(t, err)
	assert.Equal(t, "0123 - 01", snap.Entity.Code)
	assert.Equal(t, "Gobierno Municipal", snap.Entity.Name)
}

func TestVariantOf(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"FORM100_25-0001.html", "FORM100", true},
		{"2025/03/form500-abc.HTML", "FORM500", true},
		{"folder/FORM170", "FORM170", true},
		{"notes.html", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := VariantOf(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewLayoutRegistry([]Layout{receptionLayout(), publicationLayout()})
	require.NoError(t, err)

	assert.Equal(t, []string{"FORM100", "FORM500"}, r.Variants())

	e, variant, err := r.Lookup("bucket/form100_abc.html")
	require.NoError(t, err)
	assert.Equal(t, "FORM100", variant)
	assert.IsType(t, &HTMLExtractor{}, e)

	_, variant, err = r.Lookup("FORM999.html")
	assert.ErrorIs(t, err, ErrUnknownVariant)
	assert.Equal(t, "FORM999", variant)

	_, _, err = r.Lookup("readme.txt")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Layout)
		wantErr string
	}{
		{"valid", func(*Layout) {}, ""},
		{"bad variant", func(l *Layout) { l.Variant = "F100" }, "variant must look like"},
		{"bad stage", func(l *Layout) { l.Stage = "draft" }, "unknown stage"},
		{"no locator", func(l *Layout) { l.ProcessID = Locator{} }, "process id locator"},
		{"bad entity field", func(l *Layout) { l.Entity.Columns = []string{"zip"} }, "unknown entity field"},
		{"bad label field", func(l *Layout) { l.Labels[0].Field = "budget" }, "unknown process field"},
		{"line field of other stage", func(l *Layout) { l.Items.Columns[0].Field = "awarded_qty" }, "unknown line field"},
		{"no description", func(l *Layout) { l.Items.Columns = l.Items.Columns[:1] }, "no description column"},
		{"text total", func(l *Layout) { l.Items.TotalField = "purpose" }, "not a numeric process field"},
		{"voids outside reception", func(l *Layout) { l.Voids = receptionLayout().Voids }, "void table only allowed"},
		{"lines in clarification", func(l *Layout) { l.Stage = record.StageClarification }, "carry no lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := publicationLayout()
			tt.mutate(&l)
			err := l.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
