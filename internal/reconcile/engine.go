package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/procura/internal/logging"
	"github.com/roach88/procura/internal/record"
	"github.com/roach88/procura/internal/store"
)

// Documents is the store surface the engine is written against. Both
// *store.Store and *store.Tx satisfy it.
type Documents interface {
	Get(ctx context.Context, collection, key string) (store.Document, bool, error)
	SetMerge(ctx context.Context, collection, key string, fields map[string]any) error
	UpdateIfExists(ctx context.Context, collection, key string, fields map[string]any) (bool, error)
	CreateIfAbsent(ctx context.Context, collection, key string, fields map[string]any) (bool, error)
	QueryByField(ctx context.Context, collection, field string, value any) ([]store.Document, error)
	ArrayUnion(ctx context.Context, collection, key, field string, values ...string) (bool, error)
}

// DefaultImplicitCause is recorded on items deserted because a reception
// snapshot did not list them.
const DefaultImplicitCause = "not listed in reception"

// Engine applies snapshots. It holds no per-process state; one Engine can
// serve any number of processes.
type Engine struct {
	implicitCause string
}

// Option configures an Engine.
type Option func(*Engine)

// WithImplicitCause sets the desertion cause recorded for items deserted by
// omission.
func WithImplicitCause(cause string) Option {
	return func(e *Engine) {
		e.implicitCause = cause
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{implicitCause: DefaultImplicitCause}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report summarizes what one Apply call changed.
type Report struct {
	ProcessID string
	StageTag  string
	Stage     record.Stage

	// ProcessStatus is the status after the snapshot was applied, empty when
	// the process does not exist.
	ProcessStatus record.ProcessStatus

	// Created, Updated and Deserted hold item keys in the order they were
	// touched.
	Created  []string
	Updated  []string
	Deserted []string

	Diagnostics []Diagnostic
}

// Apply reconciles snap into the records held by docs.
//
// Non-fatal anomalies (unmatched or ambiguous lines, a snapshot for a
// process that does not exist yet) are returned as Report.Diagnostics and
// logged at warn level; they never fail the call. Errors are store failures
// or an invalid snapshot.
func (e *Engine) Apply(ctx context.Context, docs Documents, snap record.Snapshot) (Report, error) {
	if err := snap.Validate(); err != nil {
		return Report{}, err
	}
	ctx = logging.WithProcessID(ctx, snap.ProcessID)

	rep := &Report{
		ProcessID: snap.ProcessID,
		StageTag:  snap.StageTag,
		Stage:     snap.Stage,
	}

	var entity record.Entity
	if snap.Entity.Code != "" {
		var err error
		entity, err = resolveEntity(ctx, docs, snap.Entity)
		if err != nil {
			return Report{}, err
		}
	}

	proc, exists, err := upsertProcess(ctx, docs, snap, entity)
	if err != nil {
		return Report{}, err
	}
	if !exists {
		rep.note(ctx, Diagnostic{
			Kind:    DiagMissingProcess,
			Message: fmt.Sprintf("%s snapshot for unknown process; nothing applied", snap.Stage),
		})
		return *rep, nil
	}
	rep.ProcessStatus = proc.Status

	if len(snap.Lines) == 0 && snap.Stage != record.StageReception {
		return *rep, nil
	}

	m, err := loadMatcher(ctx, docs, snap.ProcessID)
	if err != nil {
		return Report{}, err
	}

	p := &pass{
		docs:    docs,
		snap:    snap,
		process: proc,
		matcher: m,
		report:  rep,
	}
	if err := p.applyLines(ctx); err != nil {
		return Report{}, err
	}
	if snap.Stage == record.StageReception {
		if err := p.applyVoids(ctx); err != nil {
			return Report{}, err
		}
		if err := p.desertUntouched(ctx, e.implicitCause); err != nil {
			return Report{}, err
		}
	}

	logging.FromContext(ctx).Debug("snapshot applied",
		"stage_tag", snap.StageTag,
		"status", rep.ProcessStatus,
		"created", len(rep.Created),
		"updated", len(rep.Updated),
		"deserted", len(rep.Deserted),
		"diagnostics", len(rep.Diagnostics),
	)
	return *rep, nil
}

// note records a diagnostic and logs it.
func (r *Report) note(ctx context.Context, d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
	args := []any{"kind", d.Kind, "stage_tag", r.StageTag}
	if d.Description != "" {
		args = append(args, "description", d.Description)
	}
	if len(d.Candidates) > 0 {
		args = append(args, "candidates", d.Candidates)
	}
	logging.FromContext(ctx).Warn(d.Message, args...)
}
