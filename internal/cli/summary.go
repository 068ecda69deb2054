package cli

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/procura/internal/ingest"
)

// DocumentResult is one document's outcome as reported by the CLI.
type DocumentResult struct {
	Document  string `json:"document"`
	Status    string `json:"status"`
	ProcessID string `json:"process_id,omitempty"`
	StageTag  string `json:"stage_tag,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`

	Created     int `json:"created,omitempty"`
	Updated     int `json:"updated,omitempty"`
	Deserted    int `json:"deserted,omitempty"`
	Diagnostics int `json:"diagnostics,omitempty"`
}

// RunResult summarizes an ingest or backfill run.
type RunResult struct {
	RunID     string           `json:"run_id"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Documents []DocumentResult `json:"documents"`
}

// Text renders the result for terminals.
func (r RunResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d document(s), %d succeeded, %d skipped, %d failed\n",
		r.RunID, r.Total, r.Succeeded, r.Skipped, r.Failed)
	for _, d := range r.Documents {
		switch ingest.Status(d.Status) {
		case ingest.StatusSuccess:
			fmt.Fprintf(&b, "  ok      %s (%s %s: +%d ~%d -%d",
				d.Document, d.ProcessID, d.StageTag, d.Created, d.Updated, d.Deserted)
			if d.Diagnostics > 0 {
				fmt.Fprintf(&b, ", %d warning(s)", d.Diagnostics)
			}
			b.WriteString(")\n")
		case ingest.StatusSkipped:
			fmt.Fprintf(&b, "  skipped %s (%s)\n", d.Document, d.Reason)
		default:
			fmt.Fprintf(&b, "  failed  %s: %s\n", d.Document, d.Error)
		}
	}
	return b.String()
}

// collector gathers outcomes from concurrent workers.
type collector struct {
	mu   sync.Mutex
	docs []DocumentResult
}

func (c *collector) add(out ingest.Outcome) {
	d := DocumentResult{
		Document:  out.Document,
		Status:    string(out.Status),
		ProcessID: out.ProcessID,
		StageTag:  out.StageTag,
		Reason:    out.Reason,
	}
	if out.Err != nil {
		d.Error = out.Err.Error()
	}
	if rep := out.Report; rep != nil {
		d.Created = len(rep.Created)
		d.Updated = len(rep.Updated)
		d.Deserted = len(rep.Deserted)
		d.Diagnostics = len(rep.Diagnostics)
	}
	c.mu.Lock()
	c.docs = append(c.docs, d)
	c.mu.Unlock()
}

func (c *collector) result(sum ingest.Summary) RunResult {
	c.mu.Lock()
	docs := append([]DocumentResult(nil), c.docs...)
	c.mu.Unlock()
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Document < docs[j].Document })
	return RunResult{
		RunID:     sum.RunID,
		Total:     sum.Total,
		Succeeded: sum.Succeeded,
		Skipped:   sum.Skipped,
		Failed:    sum.Failed,
		Documents: docs,
	}
}

// runBatch executes run and reports the result. Failed documents
// make the command exit with ExitFailure.
func runBatch(f *OutputFormatter, c *collector, run func() (ingest.Summary, error)) error {
	sum, err := run()
	res := c.result(sum)
	if outErr := f.SuccessRun(res.RunID, res); outErr != nil {
		return outErr
	}
	if err != nil {
		return WrapExitError(ExitFailure, "run interrupted", err)
	}
	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d document(s) failed", res.Failed))
	}
	return nil
}
