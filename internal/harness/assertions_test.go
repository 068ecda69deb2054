package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procura/internal/record"
	"github.com/roach88/procura/internal/store"
)

func TestValuesEqual(t *testing.T) {
	when := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"int vs float", 10, 10.0, true},
		{"float mismatch", 10.5, 10.0, false},
		{"number vs string", 10, "10", false},
		{"strings", "Published", "Published", true},
		{"string mismatch", "Published", "Awarded", false},
		{"time vs rfc3339", when, "2025-03-01T12:00:00Z", true},
		{"offset instants", "2025-03-01T09:00:00-03:00", "2025-03-01T12:00:00Z", true},
		{"date only", "2025-03-01", "2025-03-01T00:00:00Z", true},
		{"lists", []any{"a", 1}, []any{"a", 1.0}, true},
		{"list length", []any{"a"}, []any{"a", "b"}, false},
		{"maps", map[string]any{"a": "b"}, map[string]any{"a": "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.expected, tt.actual))
		})
	}
}

func newAssertionStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "assert.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.SetMerge(ctx, record.Processes, "P1", map[string]any{
		"id":     "P1",
		"status": string(record.ProcessPublished),
	}))
	require.NoError(t, st.SetMerge(ctx, record.Items, record.ItemKey("P1", "chair"), map[string]any{
		"process_id":    "P1",
		"slug":          "chair",
		"description":   "Chair",
		"status":        string(record.ItemPublished),
		"requested_qty": 5.0,
	}))
	return st
}

func TestEvaluateAssertions(t *testing.T) {
	st := newAssertionStore(t)
	one, two := 1, 2

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "process state holds",
			assertion: Assertion{Type: AssertProcessState, Process: "P1", Expect: map[string]any{"status": "Published"}},
		},
		{
			name:      "item state holds",
			assertion: Assertion{Type: AssertItemState, Process: "P1", Item: "chair", Expect: map[string]any{"requested_qty": 5, "desertion_cause": nil}},
		},
		{
			name:      "item count holds",
			assertion: Assertion{Type: AssertItemCount, Process: "P1", Count: &one},
		},
		{
			name:      "wrong field value",
			assertion: Assertion{Type: AssertItemState, Process: "P1", Item: "chair", Expect: map[string]any{"status": "Delivered"}},
			wantErr:   `field "status" = Delivered`,
		},
		{
			name:      "field expected unset",
			assertion: Assertion{Type: AssertItemState, Process: "P1", Item: "chair", Expect: map[string]any{"description": nil}},
			wantErr:   `field "description" unset`,
		},
		{
			name:      "field not set",
			assertion: Assertion{Type: AssertItemState, Process: "P1", Item: "chair", Expect: map[string]any{"awarded_qty": 5}},
			wantErr:   `field "awarded_qty" not set`,
		},
		{
			name:      "missing record",
			assertion: Assertion{Type: AssertProcessState, Process: "P2", Expect: map[string]any{"status": "Published"}},
			wantErr:   "not found",
		},
		{
			name:      "wrong count",
			assertion: Assertion{Type: AssertItemCount, Process: "P1", Count: &two},
			wantErr:   "1 item(s): [P1_chair]",
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "trace_order"},
			wantErr:   `unknown assertion type "trace_order"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(context.Background(), st, []Assertion{tt.assertion})
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}
