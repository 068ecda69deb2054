package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/procura/internal/ingest"
	"github.com/roach88/procura/internal/reconcile"
	"github.com/roach88/procura/internal/record"
)

// Render is the text form of a result compared against golden files: every
// step's outcome followed by the final state of its processes.
func Render(name string, r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	b.WriteString("\nsteps:\n")
	for i, s := range r.Steps {
		fmt.Fprintf(&b, "  %d. %s: %s", i+1, s.Document, s.Status)
		switch {
		case s.Reason != "":
			fmt.Fprintf(&b, " (%s)", s.Reason)
		case s.Kind != "":
			fmt.Fprintf(&b, " (%s)", s.Kind)
		}
		b.WriteByte('\n')
		if s.ProcessID == "" || s.Status != ingest.StatusSuccess {
			continue
		}
		fmt.Fprintf(&b, "     %s %s -> %s: created=%d updated=%d deserted=%d\n",
			s.ProcessID, s.StageTag, orNone(string(s.ProcessStatus)),
			len(s.Created), len(s.Updated), len(s.Deserted))
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&b, "     ! %s", d.Kind)
			if d.Description != "" {
				fmt.Fprintf(&b, " %q", d.Description)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nfinal:\n")
	if len(r.Processes) == 0 {
		b.WriteString("  (no processes)\n")
	}
	for _, v := range r.Processes {
		renderProcess(&b, v)
	}
	return b.String()
}

func renderProcess(b *strings.Builder, v reconcile.ProcessView) {
	p := v.Process
	fmt.Fprintf(b, "  process %s [%s] stages=%s\n", p.ID, orNone(string(p.Status)), strings.Join(p.StagesSeen, ","))
	for _, it := range v.Items {
		renderItem(b, it)
	}
}

func renderItem(b *strings.Builder, it record.Item) {
	fmt.Fprintf(b, "    %s [%s] req=%s awd=%s rcv=%s",
		it.Slug, orNone(string(it.Status)), num(it.RequestedQty), num(it.AwardedQty), num(it.ReceivedQty))
	if it.DesertionCause != "" {
		fmt.Fprintf(b, " cause=%q", it.DesertionCause)
	}
	b.WriteByte('\n')
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// RunWithGolden executes a scenario, fails the test for every unmet expect
// clause or assertion, and compares the rendering against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(Render(name, result)))
}
