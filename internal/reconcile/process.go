package reconcile

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/procura/internal/record"
)

// stagesField is the set-union attribute of processes.
const stagesField = "stages_seen"

// nextStatus returns the status a snapshot of the given stage moves a
// process to, and whether that is a change. Status never moves backwards
// except through reception, which is authoritative.
func nextStatus(current record.ProcessStatus, stage record.Stage) (record.ProcessStatus, bool) {
	switch stage {
	case record.StagePublication:
		if current.Rank() == 0 {
			return record.ProcessPublished, true
		}
	case record.StageAward:
		if current == record.ProcessPublished {
			return record.ProcessAwarded, true
		}
	case record.StageFormalization:
		if current.Rank() < record.ProcessContracted.Rank() {
			return record.ProcessContracted, true
		}
	case record.StageReception:
		if current != record.ProcessReceived {
			return record.ProcessReceived, true
		}
	}
	return current, false
}

// upsertProcess merges the snapshot's process attributes, advances the
// status and records the stage tag. Only publication-class snapshots create
// the process; for any other stage a missing process is reported through the
// boolean and nothing is written.
func upsertProcess(ctx context.Context, docs Documents, snap record.Snapshot, entity record.Entity) (record.Process, bool, error) {
	id := snap.ProcessID
	current, exists, err := loadProcess(ctx, docs, id)
	if err != nil {
		return record.Process{}, false, err
	}
	if !exists && snap.Stage != record.StagePublication {
		return record.Process{}, false, nil
	}

	fields := snap.Process.Fields()
	if entity.Code != "" {
		fields.Str("entity_code", entity.Code).
			Str("entity_name", entity.Name).
			Str("entity_department", entity.Department)
	}
	if snap.Stage == record.StagePublication && snap.Process.TotalValue == nil {
		if total, ok := referenceTotal(snap.Lines); ok {
			fields.Set("total_value", total)
		}
	}
	if next, changed := nextStatus(current.Status, snap.Stage); changed {
		fields.Set("status", string(next))
	}

	if exists {
		if !fields.Empty() {
			if _, err := docs.UpdateIfExists(ctx, record.Processes, id, fields); err != nil {
				return record.Process{}, false, fmt.Errorf("update process %s: %w", id, err)
			}
		}
	} else {
		fields.Set("id", id)
		if err := docs.SetMerge(ctx, record.Processes, id, fields); err != nil {
			return record.Process{}, false, fmt.Errorf("create process %s: %w", id, err)
		}
	}

	if _, err := docs.ArrayUnion(ctx, record.Processes, id, stagesField, snap.StageTag); err != nil {
		return record.Process{}, false, fmt.Errorf("tag process %s: %w", id, err)
	}

	proc, _, err := loadProcess(ctx, docs, id)
	if err != nil {
		return record.Process{}, false, err
	}
	return proc, true, nil
}

func loadProcess(ctx context.Context, docs Documents, id string) (record.Process, bool, error) {
	doc, ok, err := docs.Get(ctx, record.Processes, id)
	if err != nil {
		return record.Process{}, false, fmt.Errorf("load process %s: %w", id, err)
	}
	if !ok {
		return record.Process{}, false, nil
	}
	var p record.Process
	if err := doc.Decode(&p); err != nil {
		return record.Process{}, false, err
	}
	return p, true, nil
}

// referenceTotal sums the reference totals of the published lines. The
// boolean is false when no line carries one.
func referenceTotal(lines []record.ItemUpdate) (float64, bool) {
	sum := decimal.Zero
	found := false
	for _, l := range lines {
		pl, ok := l.(record.PublishedLine)
		if !ok || pl.RefTotalPrice == nil {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(*pl.RefTotalPrice))
		found = true
	}
	if !found {
		return 0, false
	}
	f, _ := sum.Float64()
	return f, true
}
