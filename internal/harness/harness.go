package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/procura/internal/extract"
	"github.com/roach88/procura/internal/ingest"
	"github.com/roach88/procura/internal/logging"
	"github.com/roach88/procura/internal/reconcile"
	"github.com/roach88/procura/internal/record"
	"github.com/roach88/procura/internal/store"
	"github.com/roach88/procura/internal/testutil"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool

	// Steps holds one entry per scenario step, in order.
	Steps []StepResult

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string

	// Processes is the final state of every process the steps named, in
	// the order they were first named. Processes that were never created
	// are omitted.
	Processes []reconcile.ProcessView
}

// StepResult is what one step did.
type StepResult struct {
	Document      string
	Status        ingest.Status
	Reason        string
	Kind          ingest.Kind
	ProcessID     string
	StageTag      string
	ProcessStatus record.ProcessStatus
	Created       []string
	Updated       []string
	Deserted      []string
	Diagnostics   []reconcile.Diagnostic
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// scenarioExtractor returns the snapshot a step declared. Documents are keyed
// by body, which is the step's encoded snapshot.
type scenarioExtractor struct {
	snaps map[string]record.Snapshot
}

func (x *scenarioExtractor) Extract(doc extract.Document) (record.Snapshot, error) {
	snap, ok := x.snaps[string(doc.Body)]
	if !ok {
		return record.Snapshot{}, fmt.Errorf("no snapshot declared for %s", doc.Name)
	}
	return snap, nil
}

// Harness executes scenarios. Each Run uses its own database.
type Harness struct {
	store *store.Store
	coord *ingest.Coordinator
	x     *scenarioExtractor
	reg   *extract.Registry
}

// Run executes a scenario in a fresh database and evaluates its expect
// clauses and assertions.
//
// Execution flow:
// 1. Create a fresh database in a temporary directory
// 2. Register the scenario's snapshots as extractors for their FORM tags
// 3. Ingest every step in order, recording failures like a batch would
// 4. Evaluate assertions against the stored records
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "procura-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	var engineOpts []reconcile.Option
	if scenario.ImplicitCause != "" {
		engineOpts = append(engineOpts, reconcile.WithImplicitCause(scenario.ImplicitCause))
	}

	x := &scenarioExtractor{snaps: map[string]record.Snapshot{}}
	reg := extract.NewRegistry()
	h := &Harness{
		store: st,
		x:     x,
		reg:   reg,
		coord: ingest.NewCoordinator(st, reg,
			ingest.WithEngine(reconcile.New(engineOpts...)),
			ingest.WithIDGenerator(ingest.NewSequenceGenerator("ledger")),
			ingest.WithClock(testutil.NewStepClock(time.Time{}, time.Second).Now),
		),
	}

	ctx = logging.WithRunID(ctx, scenario.Name)
	result := &Result{Pass: true}
	var seen []string
	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Document, err)
		}
		result.Steps = append(result.Steps, sr)
		if step.Expect != nil {
			for _, msg := range checkExpect(sr, step.Expect) {
				result.addError("step %d (%s): %s", i+1, step.Document, msg)
			}
		}
		if step.Snapshot != nil && step.Snapshot.ProcessID != "" && !slices.Contains(seen, step.Snapshot.ProcessID) {
			seen = append(seen, step.Snapshot.ProcessID)
		}
	}

	for _, id := range seen {
		view, ok, err := reconcile.View(ctx, st, id)
		if err != nil {
			return nil, fmt.Errorf("load process %s: %w", id, err)
		}
		if ok {
			result.Processes = append(result.Processes, view)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, scenario.Assertions) {
		result.addError("%s", msg)
	}
	return result, nil
}

// executeStep ingests one document the way the batch driver does: a failed
// outcome is recorded in the ledger and the failure log.
func (h *Harness) executeStep(ctx context.Context, step Step) (StepResult, error) {
	var body []byte
	if step.Snapshot != nil {
		var err error
		body, err = yaml.Marshal(step.Snapshot)
		if err != nil {
			return StepResult{}, err
		}
		if variant, ok := extract.VariantOf(step.Document); ok {
			snap, err := step.Snapshot.build(variant)
			if err != nil {
				return StepResult{}, err
			}
			h.x.snaps[string(body)] = snap
		}
	}
	if variant, ok := extract.VariantOf(step.Document); ok {
		h.reg.Register(variant, h.x)
	}

	out := h.coord.Ingest(ctx, body, step.Document)
	if out.Failed() {
		if err := h.coord.RecordFailure(ctx, out); err != nil {
			return StepResult{}, err
		}
	}

	sr := StepResult{
		Document:  out.Document,
		Status:    out.Status,
		Reason:    out.Reason,
		Kind:      ingest.KindOf(out.Err),
		ProcessID: out.ProcessID,
		StageTag:  out.StageTag,
	}
	if rep := out.Report; rep != nil {
		sr.ProcessStatus = rep.ProcessStatus
		sr.Created = rep.Created
		sr.Updated = rep.Updated
		sr.Deserted = rep.Deserted
		sr.Diagnostics = rep.Diagnostics
	}
	if out.Failed() && sr.Kind == "" {
		return sr, errors.Join(errors.New("failure without kind"), out.Err)
	}
	return sr, nil
}

// checkExpect compares a step result with its expect clause.
func checkExpect(sr StepResult, e *ExpectClause) []string {
	var errs []string
	if string(sr.Status) != e.Status {
		errs = append(errs, fmt.Sprintf("status: expected %s, got %s", e.Status, sr.Status))
	}
	if e.Reason != "" && sr.Reason != e.Reason {
		errs = append(errs, fmt.Sprintf("reason: expected %q, got %q", e.Reason, sr.Reason))
	}
	if e.Kind != "" && string(sr.Kind) != e.Kind {
		errs = append(errs, fmt.Sprintf("kind: expected %s, got %s", e.Kind, sr.Kind))
	}
	if e.ProcessStatus != "" && string(sr.ProcessStatus) != e.ProcessStatus {
		errs = append(errs, fmt.Sprintf("process_status: expected %s, got %s", e.ProcessStatus, sr.ProcessStatus))
	}
	counts := []struct {
		name string
		want *int
		got  []string
	}{
		{"created", e.Created, sr.Created},
		{"updated", e.Updated, sr.Updated},
		{"deserted", e.Deserted, sr.Deserted},
	}
	for _, c := range counts {
		if c.want != nil && *c.want != len(c.got) {
			errs = append(errs, fmt.Sprintf("%s: expected %d, got %d %v", c.name, *c.want, len(c.got), c.got))
		}
	}

	kinds := make([]string, len(sr.Diagnostics))
	for i, d := range sr.Diagnostics {
		kinds[i] = string(d.Kind)
	}
	switch {
	case e.NoDiagnostics && len(kinds) > 0:
		errs = append(errs, fmt.Sprintf("diagnostics: expected none, got %v", kinds))
	case len(e.Diagnostics) > 0 && !slices.Equal(e.Diagnostics, kinds):
		errs = append(errs, fmt.Sprintf("diagnostics: expected %v, got %v", e.Diagnostics, kinds))
	}
	return errs
}
