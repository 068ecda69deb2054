package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/procura/internal/source"
	"github.com/roach88/procura/internal/trigger"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int
	Push bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and the Pub/Sub push endpoint",
		Long: `Start an HTTP server with:

  GET  /healthz          database health
  GET  /processes/:id    a process and its items
  POST /pubsub/push      object notifications (with --push)

The push endpoint ingests finalized objects of the configured bucket.
Stops gracefully on SIGINT or SIGTERM.

Example:
  procura serve --port 8080 --push`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&opts.Push, "push", false, "enable the Pub/Sub push endpoint")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var handler *trigger.Handler
	if opts.Push {
		if cfg.Source.Bucket == "" {
			return formatter.fail(ExitCommandError, ErrCodeConfig, "--push requires a source bucket", nil)
		}
		bucket, err := source.NewGCS(ctx, cfg.Source.Bucket, "", source.ClientOptions(cfg.Source.Credentials)...)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeSource, "failed to open bucket", err)
		}
		a.closers = append(a.closers, bucket)
		b, err := a.batch(bucket)
		if err != nil {
			return err
		}
		handler = trigger.NewHandler(b, cfg.Source.Bucket)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	if err := trigger.NewServer(handler, a.store).Run(ctx, addr); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "server failed", err)
	}
	return formatter.Success("server stopped")
}
