package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/procura/internal/compiler"
	"github.com/roach88/procura/internal/config"
	"github.com/roach88/procura/internal/extract"
	"github.com/roach88/procura/internal/ingest"
	"github.com/roach88/procura/internal/lock"
	"github.com/roach88/procura/internal/reconcile"
	"github.com/roach88/procura/internal/source"
	"github.com/roach88/procura/internal/store"
)

// app is the wired ingestion stack shared by the commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	coord   *ingest.Coordinator
	closers []io.Closer
}

// appOption adjusts coordinator options before the app is built.
type appOption func(*[]ingest.Option)

func withSkipUnchanged(skip bool) appOption {
	return func(opts *[]ingest.Option) {
		*opts = append(*opts, ingest.WithSkipUnchanged(skip))
	}
}

func withIDs(g ingest.IDGenerator) appOption {
	return func(opts *[]ingest.Option) {
		if g != nil {
			*opts = append(*opts, ingest.WithIDGenerator(g))
		}
	}
}

// openStore opens the configured database.
func openStore(cfg *config.Config) (*store.Store, error) {
	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadRegistry compiles the built-in layouts plus the configured overrides.
func loadRegistry(cfg *config.Config) (*extract.Registry, error) {
	layouts, err := compiler.Load(cfg.Layouts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load layouts", err)
	}
	reg, err := extract.NewLayoutRegistry(layouts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid layouts", err)
	}
	slog.Debug("layouts loaded", "variants", reg.Variants())
	return reg, nil
}

// newLocker returns the configured per-process lock.
func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, io.Closer, error) {
	if cfg.Lock.Backend != config.LockRedis {
		return lock.NewLocal(), nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
	}
	var opts []lock.RedisOption
	if cfg.Lock.TTL > 0 {
		opts = append(opts, lock.WithTTL(cfg.Lock.TTL))
	}
	slog.Debug("using redis lock", "addr", cfg.Lock.RedisAddr)
	return lock.NewRedis(rdb, opts...), rdb, nil
}

func openApp(ctx context.Context, cfg *config.Config, extra ...appOption) (*app, error) {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st, closers: []io.Closer{st}}

	locker, closer, err := newLocker(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	var engineOpts []reconcile.Option
	if cfg.Reconcile.ImplicitCause != "" {
		engineOpts = append(engineOpts, reconcile.WithImplicitCause(cfg.Reconcile.ImplicitCause))
	}
	opts := []ingest.Option{
		ingest.WithEngine(reconcile.New(engineOpts...)),
		ingest.WithLocker(locker),
		ingest.WithSkipUnchanged(cfg.Ingest.SkipUnchanged),
	}
	for _, o := range extra {
		o(&opts)
	}
	a.coord = ingest.NewCoordinator(st, reg, opts...)
	return a, nil
}

// fetcher builds the configured document source. A non-empty dir forces a
// local directory source.
func (a *app) fetcher(ctx context.Context) (ingest.Fetcher, source.Lister, error) {
	src := a.cfg.Source
	switch src.Kind {
	case config.SourceHTTP:
		h, err := source.NewHTTP(src.BaseURL, nil)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "invalid http source", err)
		}
		return h, nil, nil
	case config.SourceGCS:
		g, err := source.NewGCS(ctx, src.Bucket, src.Prefix, source.ClientOptions(src.Credentials)...)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open bucket", err)
		}
		a.closers = append(a.closers, g)
		return g, g, nil
	default:
		d := source.NewDir(src.Dir)
		return d, d, nil
	}
}

// batch creates the batch driver over f with the configured tuning.
func (a *app) batch(f ingest.Fetcher, extra ...ingest.BatchOption) (*ingest.Batch, error) {
	opts := []ingest.BatchOption{
		ingest.WithWorkers(a.cfg.Ingest.Workers),
		ingest.WithFetchTimeout(a.cfg.Ingest.FetchTimeout),
		ingest.WithMaxTries(a.cfg.Ingest.MaxTries),
	}
	if path := a.cfg.Ingest.FailureLog; path != "" {
		fl, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open failure log", err)
		}
		a.closers = append(a.closers, fl)
		opts = append(opts, ingest.WithFailureLog(fl))
	}
	return ingest.NewBatch(a.coord, f, append(opts, extra...)...), nil
}

// Close releases everything the app opened, last opened first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("error closing resources", "error", err)
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
