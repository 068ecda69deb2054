package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// FailuresOptions holds flags for the failures command.
type FailuresOptions struct {
	*RootOptions
	RunID string
}

// FailureEntry is one failed document in command output.
type FailureEntry struct {
	RunID      string    `json:"run_id"`
	Document   string    `json:"document"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FailureList is the failures command result.
type FailureList []FailureEntry

func (l FailureList) Text() string {
	if len(l) == 0 {
		return "No failures recorded.\n"
	}
	var b strings.Builder
	for _, f := range l {
		fmt.Fprintf(&b, "%s - %s [%s] %s\n", f.Document, f.Kind, f.RunID, f.Message)
	}
	return b.String()
}

// NewFailuresCommand creates the failures command.
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FailuresOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List documents that failed to ingest",
		Long: `List the failure log: documents whose ingestion failed after all retries.

Example:
  procura failures
  procura failures --run 01933e5a-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFailures(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "only failures of this run")

	return cmd
}

func runFailures(opts *FailuresOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.Failures(cmd.Context(), opts.RunID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "failed to read failures", err)
	}
	list := make(FailureList, 0, len(rows))
	for _, f := range rows {
		list = append(list, FailureEntry{
			RunID:      f.RunID,
			Document:   f.Document,
			Kind:       f.Kind,
			Message:    f.Message,
			RecordedAt: f.RecordedAt,
		})
	}
	return formatter.SuccessRun(opts.RunID, list)
}
