package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/procura/internal/record"
)

// ProcessView is a process with its items, as served to readers.
type ProcessView struct {
	Process record.Process `json:"process"`
	Items   []record.Item  `json:"items"`
}

// View loads a process and its items in key order. The boolean is false
// when the process does not exist.
func View(ctx context.Context, docs Documents, processID string) (ProcessView, bool, error) {
	proc, ok, err := loadProcess(ctx, docs, processID)
	if err != nil || !ok {
		return ProcessView{}, ok, err
	}
	found, err := docs.QueryByField(ctx, record.Items, "process_id", processID)
	if err != nil {
		return ProcessView{}, false, err
	}
	v := ProcessView{Process: proc, Items: make([]record.Item, 0, len(found))}
	for _, d := range found {
		var it record.Item
		if err := d.Decode(&it); err != nil {
			return ProcessView{}, false, fmt.Errorf("decode item %s: %w", d.Key, err)
		}
		v.Items = append(v.Items, it)
	}
	return v, true, nil
}
