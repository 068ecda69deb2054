package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/procura/internal/logging"
)

// Batch defaults.
const (
	DefaultWorkers      = 4
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxTries     = 5
)

// Fetcher retrieves a raw document by name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Summary counts the outcomes of a batch.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Skipped   int
	Failed    int

	// FailedDocuments lists failed names in completion order.
	FailedDocuments []string
}

func (s *Summary) add(out Outcome) {
	s.Total++
	switch out.Status {
	case StatusSuccess:
		s.Succeeded++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
		s.FailedDocuments = append(s.FailedDocuments, out.Document)
	}
}

// Batch ingests many documents in parallel.
type Batch struct {
	coord        *Coordinator
	fetcher      Fetcher
	workers      int
	fetchTimeout time.Duration
	maxTries     uint
	newBackOff   func() backoff.BackOff
	failureLog   io.Writer
	onOutcome    func(Outcome)

	logMu sync.Mutex
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithWorkers bounds the number of documents in flight.
func WithWorkers(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithFetchTimeout bounds a single fetch.
func WithFetchTimeout(d time.Duration) BatchOption {
	return func(b *Batch) {
		b.fetchTimeout = d
	}
}

// WithMaxTries bounds the attempts for a retryable failure.
func WithMaxTries(n uint) BatchOption {
	return func(b *Batch) {
		b.maxTries = n
	}
}

// WithBackOff sets the retry schedule. Each document gets a fresh BackOff.
func WithBackOff(newBackOff func() backoff.BackOff) BatchOption {
	return func(b *Batch) {
		b.newBackOff = newBackOff
	}
}

// WithFailureLog appends one "name - error" line per failed document to w.
func WithFailureLog(w io.Writer) BatchOption {
	return func(b *Batch) {
		b.failureLog = w
	}
}

// WithOutcomeHook calls fn with every final outcome. Calls may be
// concurrent.
func WithOutcomeHook(fn func(Outcome)) BatchOption {
	return func(b *Batch) {
		b.onOutcome = fn
	}
}

// NewBatch creates a Batch fetching through f.
func NewBatch(c *Coordinator, f Fetcher, opts ...BatchOption) *Batch {
	b := &Batch{
		coord:        c,
		fetcher:      f,
		workers:      DefaultWorkers,
		fetchTimeout: DefaultFetchTimeout,
		maxTries:     DefaultMaxTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run ingests names and returns the outcome counts. Blank names and names
// ending in "/" (directory markers) are ignored. Per-document failures never
// abort the run; the only error is the context's.
func (b *Batch) Run(ctx context.Context, names []string) (Summary, error) {
	runID := logging.RunID(ctx)
	if runID == "" {
		runID = b.coord.ids.Generate()
		ctx = logging.WithRunID(ctx, runID)
	}
	log := logging.FromContext(ctx)

	var (
		mu  sync.Mutex
		sum = Summary{RunID: runID}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := b.Process(gctx, name)
			mu.Lock()
			sum.add(out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Info("batch finished",
		"total", sum.Total,
		"succeeded", sum.Succeeded,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum, ctx.Err()
}

// Process fetches and ingests one document, retrying transient failures.
// A final failure is recorded in the ledger and the failure logs.
func (b *Batch) Process(ctx context.Context, name string) Outcome {
	out := b.attempt(ctx, name)
	if out.Failed() {
		b.recordFailure(ctx, out)
	}
	if b.onOutcome != nil {
		b.onOutcome(out)
	}
	return out
}

func (b *Batch) attempt(ctx context.Context, name string) Outcome {
	raw, err := b.fetch(ctx, name)
	if err != nil {
		return b.coord.fail(logging.WithDocument(ctx, name), Outcome{Document: name}, KindFetch, err)
	}

	var last Outcome
	_, err = backoff.Retry(ctx, func() (Outcome, error) {
		last = b.coord.Ingest(ctx, raw, name)
		if last.Failed() && IsRetryable(last.Err) {
			return last, last.Err
		}
		return last, nil
	},
		backoff.WithBackOff(b.newBackOff()),
		backoff.WithMaxTries(b.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logging.FromContext(logging.WithDocument(ctx, name)).Info("retrying document", "error", err, "wait", wait)
		}),
	)
	if err != nil && !last.Failed() {
		// Cancelled between attempts.
		return b.coord.fail(logging.WithDocument(ctx, name), last, KindStoreUnavailable, err)
	}
	return last
}

func (b *Batch) fetch(ctx context.Context, name string) ([]byte, error) {
	if b.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.fetchTimeout)
		defer cancel()
	}
	return b.fetcher.Fetch(ctx, name)
}

func (b *Batch) recordFailure(ctx context.Context, out Outcome) {
	log := logging.FromContext(logging.WithDocument(ctx, out.Document))
	if err := b.coord.RecordFailure(context.WithoutCancel(ctx), out); err != nil {
		log.Error("failed to record failure", "error", err)
	}
	if b.failureLog == nil {
		return
	}
	b.logMu.Lock()
	defer b.logMu.Unlock()
	if _, err := fmt.Fprintf(b.failureLog, "%s - %v\n", out.Document, out.Err); err != nil {
		log.Error("failed to write failure log", "error", err)
	}
}
