package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/procura/internal/reconcile"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <process-id>",
		Short: "Show the reconciled record of a process",
		Long: `Print a process and its items as currently stored.

Example:
  procura show 25-0001-00042
  procura show --format json 25-0001-00042`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, processID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	view, ok, err := reconcile.View(cmd.Context(), st, processID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "failed to load process", err)
	}
	if !ok {
		return formatter.fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("process %q not found", processID), nil)
	}
	return formatter.Success(processText(view))
}

// processText renders a ProcessView for terminals.
type processText reconcile.ProcessView

func (p processText) Text() string {
	var b strings.Builder
	proc := p.Process
	fmt.Fprintf(&b, "Process %s [%s]\n", proc.ID, orDash(string(proc.Status)))
	if proc.EntityName != "" {
		fmt.Fprintf(&b, "  Entity:   %s (%s)\n", proc.EntityName, orDash(proc.EntityCode))
	}
	if proc.Purpose != "" {
		fmt.Fprintf(&b, "  Purpose:  %s\n", proc.Purpose)
	}
	if proc.Modality != "" {
		fmt.Fprintf(&b, "  Modality: %s\n", proc.Modality)
	}
	if len(proc.StagesSeen) > 0 {
		fmt.Fprintf(&b, "  Stages:   %s\n", strings.Join(proc.StagesSeen, ", "))
	}
	fmt.Fprintf(&b, "  Items:    %d\n", len(p.Items))
	for _, it := range p.Items {
		fmt.Fprintf(&b, "    %-40s %-12s req=%s awd=%s rcv=%s\n",
			truncate(it.Slug, 40), orDash(string(it.Status)),
			qty(it.RequestedQty), qty(it.AwardedQty), qty(it.ReceivedQty))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func qty(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
