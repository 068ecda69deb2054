package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/procura/internal/extract"
	"github.com/roach88/procura/internal/lock"
	"github.com/roach88/procura/internal/logging"
	"github.com/roach88/procura/internal/reconcile"
	"github.com/roach88/procura/internal/store"
)

// Status is the result class of one ingestion.
type Status string

// Status values match the ledger's outcome column.
const (
	StatusSuccess Status = store.OutcomeSuccess
	StatusSkipped Status = store.OutcomeSkipped
	StatusFailed  Status = store.OutcomeFailed
)

// Skip reasons.
const (
	ReasonUnknownVariant = "unknown variant"
	ReasonUnchanged      = "unchanged since last success"
)

// ReasonPendingProcess annotates the ledger row of a snapshot applied before
// its process was published. Such rows do not count as a prior success, so
// the document is reconciled again once the publication has landed.
const ReasonPendingProcess = "process not yet published"

// Outcome is the result of ingesting one document.
type Outcome struct {
	Document  string
	Digest    string
	Status    Status
	Reason    string
	ProcessID string
	StageTag  string

	// Err is set when Status is StatusFailed, always as an *Error.
	Err error

	// Report is set when Status is StatusSuccess.
	Report *reconcile.Report
}

// Failed reports whether the ingestion failed.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Coordinator ingests single documents.
type Coordinator struct {
	store         *store.Store
	registry      *extract.Registry
	engine        *reconcile.Engine
	locker        lock.Locker
	ids           IDGenerator
	now           func() time.Time
	skipUnchanged bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEngine replaces the default reconciliation engine.
func WithEngine(e *reconcile.Engine) Option {
	return func(c *Coordinator) {
		c.engine = e
	}
}

// WithLocker replaces the in-process lock, e.g. with a lock.Redis shared by
// several instances.
func WithLocker(l lock.Locker) Option {
	return func(c *Coordinator) {
		c.locker = l
	}
}

// WithIDGenerator sets the generator of run and ledger ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithClock sets the time source for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithSkipUnchanged skips documents whose exact content was already
// ingested successfully.
func WithSkipUnchanged(skip bool) Option {
	return func(c *Coordinator) {
		c.skipUnchanged = skip
	}
}

// NewCoordinator creates a Coordinator over st, routing names through reg.
func NewCoordinator(st *store.Store, reg *extract.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		registry: reg,
		engine:   reconcile.New(),
		locker:   lock.NewLocal(),
		ids:      UUIDv7Generator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the store the coordinator writes to.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Digest returns the content digest recorded in the ledger.
func Digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Ingest extracts and reconciles one document. Failures are returned in the
// Outcome, never as a panic or a partial write. Failed outcomes are not
// written to the ledger; the caller decides once retries are exhausted (see
// RecordFailure).
func (c *Coordinator) Ingest(ctx context.Context, raw []byte, name string) Outcome {
	ctx = logging.WithDocument(ctx, name)
	if logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, c.ids.Generate())
	}
	log := logging.FromContext(ctx)
	out := Outcome{Document: name, Digest: Digest(raw)}

	x, variant, err := c.registry.Lookup(name)
	if err != nil {
		if errors.Is(err, extract.ErrUnknownVariant) {
			log.Info("document skipped", "reason", ReasonUnknownVariant, "variant", variant)
			return c.skip(ctx, out, ReasonUnknownVariant)
		}
		return c.fail(ctx, out, KindExtraction, err)
	}

	if c.skipUnchanged {
		done, err := c.store.Succeeded(ctx, name, out.Digest)
		if err != nil {
			return c.fail(ctx, out, storeKind(err), err)
		}
		if done {
			log.Debug("document skipped", "reason", ReasonUnchanged)
			return c.skip(ctx, out, ReasonUnchanged)
		}
	}

	snap, err := x.Extract(extract.Document{Name: name, Body: raw})
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		if errors.Is(err, extract.ErrNoProcessID) {
			return c.fail(ctx, out, KindIdentityMissing, err)
		}
		return c.fail(ctx, out, KindExtraction, err)
	}
	out.ProcessID = snap.ProcessID
	out.StageTag = snap.StageTag
	ctx = logging.WithProcessID(ctx, snap.ProcessID)

	unlock, err := c.locker.Lock(ctx, snap.ProcessID)
	if err != nil {
		return c.fail(ctx, out, KindLockUnavailable, err)
	}
	defer unlock()

	var rep reconcile.Report
	err = c.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		rep, err = c.engine.Apply(ctx, tx, snap)
		if err != nil {
			return err
		}
		reason := ""
		if pendingProcess(rep) {
			reason = ReasonPendingProcess
		}
		return tx.RecordIngestion(ctx, c.ledgerRow(ctx, out, StatusSuccess, reason))
	})
	if err != nil {
		return c.fail(ctx, out, storeKind(err), err)
	}

	out.Status = StatusSuccess
	out.Report = &rep
	log.Info("document ingested",
		"variant", variant,
		"stage_tag", snap.StageTag,
		"status", rep.ProcessStatus,
		"created", len(rep.Created),
		"updated", len(rep.Updated),
		"deserted", len(rep.Deserted),
		"diagnostics", len(rep.Diagnostics),
	)
	return out
}

// RecordFailure writes a failed outcome to the ledger and the failure log.
func (c *Coordinator) RecordFailure(ctx context.Context, out Outcome) error {
	if !out.Failed() {
		return nil
	}
	msg := ""
	if out.Err != nil {
		msg = out.Err.Error()
	}
	kind := KindOf(out.Err)
	err := c.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.RecordIngestion(ctx, c.ledgerRow(ctx, out, StatusFailed, msg)); err != nil {
			return err
		}
		return tx.RecordFailure(ctx, store.Failure{
			RunID:      logging.RunID(ctx),
			Document:   out.Document,
			Kind:       string(kind),
			Message:    msg,
			RecordedAt: c.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("record failure of %s: %w", out.Document, err)
	}
	return nil
}

func (c *Coordinator) skip(ctx context.Context, out Outcome, reason string) Outcome {
	out.Status = StatusSkipped
	out.Reason = reason
	if err := c.store.RecordIngestion(ctx, c.ledgerRow(ctx, out, StatusSkipped, reason)); err != nil {
		logging.FromContext(ctx).Warn("failed to record skipped document", "error", err)
	}
	return out
}

func (c *Coordinator) fail(ctx context.Context, out Outcome, kind Kind, err error) Outcome {
	out.Status = StatusFailed
	out.Err = &Error{Kind: kind, Document: out.Document, ProcessID: out.ProcessID, Err: err}
	out.Reason = string(kind)
	logging.FromContext(ctx).Warn("document failed", "kind", kind, "error", err)
	return out
}

func (c *Coordinator) ledgerRow(ctx context.Context, out Outcome, status Status, reason string) store.Ingestion {
	return store.Ingestion{
		ID:         c.ids.Generate(),
		RunID:      logging.RunID(ctx),
		Document:   out.Document,
		Digest:     out.Digest,
		ProcessID:  out.ProcessID,
		StageTag:   out.StageTag,
		Outcome:    string(status),
		Reason:     reason,
		RecordedAt: c.now(),
	}
}

func pendingProcess(rep reconcile.Report) bool {
	return slices.ContainsFunc(rep.Diagnostics, func(d reconcile.Diagnostic) bool {
		return d.Kind == reconcile.DiagMissingProcess
	})
}

func storeKind(err error) Kind {
	if store.IsUnavailable(err) {
		return KindStoreUnavailable
	}
	return KindStore
}
