package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/procura/internal/ingest"
	"github.com/roach88/procura/internal/source"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	SkipUnchanged bool
	Workers       int

	// IDs allows overriding the run and ledger id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs ingest.IDGenerator
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest local documents",
		Long: `Extract and reconcile documents read from local files.

The variant of each document (FORM100, FORM500, ...) is taken from its file
name. Publications should be ingested before the awards and receptions of the
same process; a later stage for an unknown process is reported and skipped.

Example:
  procura ingest --db ./procura.db forms/FORM100_25-0001.html forms/FORM500_25-0001.html`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipUnchanged, "skip-unchanged", false, "skip documents already ingested with the same content")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "documents ingested in parallel (overrides config)")

	return cmd
}

func runIngest(opts *IngestOptions, files []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if opts.Workers > 0 {
		cfg.Ingest.Workers = opts.Workers
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

	c := &collector{}
	b, err := a.batch(source.NewDir(""), ingest.WithOutcomeHook(c.add))
	if err != nil {
		return err
	}
	return runBatch(newFormatter(opts.RootOptions, cmd), c, func() (ingest.Summary, error) {
		return b.Run(ctx, files)
	})
}
