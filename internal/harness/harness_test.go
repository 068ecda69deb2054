package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios against its
// golden file.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

const minimalScenario = `
name: minimal
description: "one publication"
steps:
  - document: FORM100_P1.html
    snapshot:
      process_id: P1
      stage: publication
      lines:
        - { text: "Cable UTP", requested_qty: 100 }
    expect:
      status: success
      created: 1
assertions:
  - type: item_count
    process: P1
    count: 1
`

func TestRun_Minimal(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "P1", result.Steps[0].ProcessID)
	assert.Equal(t, "FORM100", result.Steps[0].StageTag)
	assert.Equal(t, []string{"P1_cable_utp"}, result.Steps[0].Created)
	require.Len(t, result.Processes, 1)
	assert.Equal(t, "P1", result.Processes[0].Process.ID)
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	two := 2
	scenario.Steps[0].Expect.Created = &two
	scenario.Steps[0].Expect.ProcessStatus = "Awarded"
	scenario.Assertions[0].Count = &two

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "process_status: expected Awarded, got Published")
	assert.Contains(t, result.Errors[1], "created: expected 2, got 1")
	assert.Contains(t, result.Errors[2], "Expected: 2 item(s)")
}

func TestRun_EachRunIsIsolated(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, Render("minimal", first), Render("minimal", second))
	assert.True(t, second.Pass, "errors: %v", second.Errors)
}

func TestCheckExpect(t *testing.T) {
	zero := 0
	tests := []struct {
		name   string
		step   StepResult
		expect ExpectClause
		want   []string
	}{
		{
			name:   "match",
			step:   StepResult{Status: "success", ProcessStatus: "Published"},
			expect: ExpectClause{Status: "success", ProcessStatus: "Published", Created: &zero, NoDiagnostics: true},
		},
		{
			name:   "wrong status",
			step:   StepResult{Status: "failed", Kind: "FETCH_FAILURE"},
			expect: ExpectClause{Status: "success"},
			want:   []string{"status: expected success, got failed"},
		},
		{
			name:   "wrong kind",
			step:   StepResult{Status: "failed", Kind: "FETCH_FAILURE"},
			expect: ExpectClause{Status: "failed", Kind: "IDENTITY_MISSING"},
			want:   []string{"kind: expected IDENTITY_MISSING, got FETCH_FAILURE"},
		},
		{
			name:   "wrong reason",
			step:   StepResult{Status: "skipped", Reason: "unknown variant"},
			expect: ExpectClause{Status: "skipped", Reason: "unchanged since last success"},
			want:   []string{`reason: expected "unchanged since last success", got "unknown variant"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkExpect(tt.step, &tt.expect)
			assert.Equal(t, tt.want, got)
		})
	}
}
