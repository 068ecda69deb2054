package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/procura/internal/ingest"
)

// BackfillOptions holds flags for the backfill command.
type BackfillOptions struct {
	*RootOptions
	List          string
	Prefix        string
	Workers       int
	FailureLog    string
	SkipUnchanged bool

	// IDs allows overriding the run and ledger id generator (for testing).
	IDs ingest.IDGenerator
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest many documents from the configured source",
		Long: `Fetch and ingest documents from the configured source (directory, web
server or bucket) in parallel.

Document names come from a list file with one name per line (--list, "-" for
stdin), or from listing the source under a prefix (--prefix). Failed
documents are recorded in the failure log and can be retried with another
backfill.

Example:
  procura backfill --list guides/400_1.txt --workers 20 --failure-log errors.txt
  procura backfill --prefix forms/25- --skip-unchanged`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.List, "list", "l", "", `file with one document name per line ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "list the source under this prefix instead of reading a list")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "documents ingested in parallel (overrides config)")
	cmd.Flags().StringVar(&opts.FailureLog, "failure-log", "", "append failed document names to this file (overrides config)")
	cmd.Flags().BoolVar(&opts.SkipUnchanged, "skip-unchanged", false, "skip documents already ingested with the same content")
	cmd.MarkFlagsMutuallyExclusive("list", "prefix")

	return cmd
}

func runBackfill(opts *BackfillOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if opts.Workers > 0 {
		cfg.Ingest.Workers = opts.Workers
	}
	if opts.FailureLog != "" {
		cfg.Ingest.FailureLog = opts.FailureLog
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg,
		withSkipUnchanged(opts.SkipUnchanged || cfg.Ingest.SkipUnchanged),
		withIDs(opts.IDs),
	)
	if err != nil {
		return err
	}
	defer a.Close()

	fetcher, lister, err := a.fetcher(ctx)
	if err != nil {
		return err
	}

	var names []string
	switch {
	case opts.List != "":
		names, err = readList(opts.List, cmd.InOrStdin())
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeSource, "failed to read document list", err)
		}
	case lister != nil:
		names, err = lister.List(ctx, opts.Prefix)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeSource, "failed to list documents", err)
		}
	default:
		return formatter.fail(ExitCommandError, ErrCodeSource,
			fmt.Sprintf("source %q cannot be listed; use --list", cfg.Source.Kind), nil)
	}
	formatter.VerboseLog("Backfilling %d document name(s)", len(names))

	c := &collector{}
	b, err := a.batch(fetcher, ingest.WithOutcomeHook(c.add))
	if err != nil {
		return err
	}
	return runBatch(formatter, c, func() (ingest.Summary, error) {
		return b.Run(ctx, names)
	})
}

// readList reads one name per line from path, or from stdin when path is
// "-". Blank lines are dropped.
func readList(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}
