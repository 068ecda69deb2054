package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/procura/internal/ingest"
	"github.com/roach88/procura/internal/source"
	"github.com/roach88/procura/internal/trigger"
)

// SubscribeOptions holds flags for the subscribe command.
type SubscribeOptions struct {
	*RootOptions
	Subscription string
	Project      string
}

// NewSubscribeCommand creates the subscribe command.
func NewSubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Ingest documents as they land in the bucket",
		Long: `Pull object notifications from a Pub/Sub subscription and ingest every
finalized object of the configured bucket.

Failures that may succeed later (a busy store or lock) are redelivered; all
others are recorded in the failure log and acknowledged. Stops on SIGINT or
SIGTERM.

Example:
  PUBSUB_PROJECT_ID=my-project procura subscribe --subscription forms-finalized`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Subscription, "subscription", "", "Pub/Sub subscription (overrides config)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "Google Cloud project (overrides config)")

	return cmd
}

func runSubscribe(opts *SubscribeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if opts.Subscription != "" {
		cfg.PubSub.Subscription = opts.Subscription
	}
	if opts.Project != "" {
		cfg.PubSub.Project = opts.Project
	}
	if cfg.Source.Bucket == "" {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "a source bucket is required to subscribe", nil)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Notifications carry full object names, so the bucket is read without
	// the configured prefix.
	creds := source.ClientOptions(cfg.Source.Credentials)
	bucket, err := source.NewGCS(ctx, cfg.Source.Bucket, "", creds...)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeSource, "failed to open bucket", err)
	}
	a.closers = append(a.closers, bucket)

	b, err := a.batch(bucket)
	if err != nil {
		return err
	}

	client, err := trigger.NewClient(ctx, cfg.PubSub.Project, creds...)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to create pubsub client", err)
	}
	a.closers = append(a.closers, client)

	sub, err := trigger.NewSubscriber(client, cfg.PubSub.Subscription,
		trigger.NewHandler(b, cfg.Source.Bucket), cfg.PubSub.MaxOutstanding)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "invalid subscription", err)
	}
	if err := sub.Run(ctx); err != nil {
		return formatter.fail(ExitFailure, ErrCodeIngest, "subscriber stopped", err)
	}
	return formatter.Success("subscriber stopped")
}

var _ trigger.Processor = (*ingest.Batch)(nil)
