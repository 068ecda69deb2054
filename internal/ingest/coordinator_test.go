package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procura/internal/extract"
	"github.com/roach88/procura/internal/lock"
	"github.com/roach88/procura/internal/reconcile"
	"github.com/roach88/procura/internal/record"
	"github.com/roach88/procura/internal/store"
)

const processID = "25-0001-00-1234567-1-1"

// fakeExtractor returns canned snapshots keyed by document name.
type fakeExtractor struct {
	mu    sync.Mutex
	snaps map[string]record.Snapshot
	errs  map[string]error
	calls int
}

func (f *fakeExtractor) Extract(doc extract.Document) (record.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[doc.Name]; ok {
		return record.Snapshot{}, err
	}
	snap, ok := f.snaps[doc.Name]
	if !ok {
		return record.Snapshot{}, fmt.Errorf("%w: no fixture for %s", extract.ErrMalformed, doc.Name)
	}
	return snap, nil
}

func publication(id string, lines ...string) record.Snapshot {
	snap := record.Snapshot{
		ProcessID: id,
		StageTag:  "FORM100",
		Stage:     record.StagePublication,
		Entity:    record.Entity{Code: "0001", Name: "Ministerio de Salud"},
	}
	for _, l := range lines {
		snap.Lines = append(snap.Lines, record.PublishedLine{Text: l, RequestedQty: record.Ptr(1.0)})
	}
	return snap
}

type fixture struct {
	store *store.Store
	fake  *fakeExtractor
	coord *Coordinator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "procura.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fake := &fakeExtractor{
		snaps: map[string]record.Snapshot{
			processID + "_FORM100.html": publication(processID, "Laptop HP", "Mouse"),
		},
		errs: map[string]error{},
	}
	reg := extract.NewRegistry()
	reg.Register("FORM100", fake)
	reg.Register("FORM500", fake)

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithIDGenerator(NewSequenceGenerator("id")),
		WithClock(func() time.Time { return clock }),
	}, opts...)
	return &fixture{store: st, fake: fake, coord: NewCoordinator(st, reg, opts...)}
}

func (f *fixture) items(t *testing.T) []store.Document {
	t.Helper()
	docs, err := f.store.QueryByField(context.Background(), record.Items, "process_id", processID)
	require.NoError(t, err)
	return docs
}

func itemBody(t *testing.T, st *store.Store, key string) map[string]any {
	t.Helper()
	doc, ok, err := st.Get(context.Background(), record.Items, key)
	require.NoError(t, err)
	require.True(t, ok, "item %s not found", key)
	var m map[string]any
	require.NoError(t, doc.Decode(&m))
	return m
}

func TestIngest_Success(t *testing.T) {
	f := newFixture(t)
	name := processID + "_FORM100.html"

	out := f.coord.Ingest(context.Background(), []byte("<html>a</html>"), name)
	require.Equal(t, StatusSuccess, out.Status, "%v", out.Err)
	assert.Equal(t, processID, out.ProcessID)
	assert.Equal(t, "FORM100", out.StageTag)
	require.NotNil(t, out.Report)
	assert.Len(t, out.Report.Created, 2)
	assert.Len(t, f.items(t), 2)

	rows, err := f.store.Ingestions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, store.OutcomeSuccess, rows[0].Outcome)
	assert.Equal(t, name, rows[0].Document)
	assert.Equal(t, Digest([]byte("<html>a</html>")), rows[0].Digest)
	assert.Equal(t, processID, rows[0].ProcessID)
	assert.NotEmpty(t, rows[0].RunID)
}

func TestIngest_SameDocumentTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	name := processID + "_FORM100.html"

	first := f.coord.Ingest(context.Background(), []byte("x"), name)
	require.Equal(t, StatusSuccess, first.Status)
	before := f.items(t)

	second := f.coord.Ingest(context.Background(), []byte("x"), name)
	require.Equal(t, StatusSuccess, second.Status)
	assert.Empty(t, second.Report.Created)
	assert.Equal(t, before, f.items(t))
}

func TestIngest_SkipUnchanged(t *testing.T) {
	f := newFixture(t, WithSkipUnchanged(true))
	name := processID + "_FORM100.html"

	require.Equal(t, StatusSuccess, f.coord.Ingest(context.Background(), []byte("x"), name).Status)

	out := f.coord.Ingest(context.Background(), []byte("x"), name)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, ReasonUnchanged, out.Reason)
	assert.Equal(t, 1, f.fake.calls)

	// Changed content is ingested again.
	out = f.coord.Ingest(context.Background(), []byte("y"), name)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, 2, f.fake.calls)
}

func TestIngest_ReceptionBeforePublicationIsRetried(t *testing.T) {
	f := newFixture(t, WithSkipUnchanged(true))
	ctx := context.Background()
	early := processID + "_FORM500.html"
	f.fake.snaps[early] = record.Snapshot{
		ProcessID: processID,
		StageTag:  "FORM500",
		Stage:     record.StageReception,
		Lines:     []record.ItemUpdate{record.ReceivedLine{Text: "Laptop HP", State: "Recepción Definitiva"}},
	}

	out := f.coord.Ingest(ctx, []byte("reception"), early)
	require.Equal(t, StatusSuccess, out.Status, "%v", out.Err)
	require.Len(t, out.Report.Diagnostics, 1)
	assert.Equal(t, reconcile.DiagMissingProcess, out.Report.Diagnostics[0].Kind)

	rows, err := f.store.Ingestions(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ReasonPendingProcess, rows[0].Reason)

	require.Equal(t, StatusSuccess, f.coord.Ingest(ctx, []byte("publication"), processID+"_FORM100.html").Status)

	out = f.coord.Ingest(ctx, []byte("reception"), early)
	require.Equal(t, StatusSuccess, out.Status, "same bytes must be reconciled once the process exists")
	assert.Empty(t, out.Report.Diagnostics)
	item := itemBody(t, f.store, record.ItemKey(processID, "laptop_hp"))
	assert.Equal(t, "Delivered", item["status"])

	// Now a genuine success, so unchanged content is skipped.
	out = f.coord.Ingest(ctx, []byte("reception"), early)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, ReasonUnchanged, out.Reason)
}

func TestIngest_UnknownVariantIsSkipped(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"readme.txt", processID + "_FORM999.html"} {
		out := f.coord.Ingest(context.Background(), []byte("x"), name)
		assert.Equal(t, StatusSkipped, out.Status, name)
		assert.Equal(t, ReasonUnknownVariant, out.Reason, name)
	}

	rows, err := f.store.Ingestions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, store.OutcomeSkipped, rows[0].Outcome)
}

func TestIngest_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"identity missing", fmt.Errorf("doc: %w", extract.ErrNoProcessID), KindIdentityMissing},
		{"malformed", fmt.Errorf("%w: bad", extract.ErrMalformed), KindExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			name := "P_FORM100.html"
			f.fake.errs[name] = tt.err

			out := f.coord.Ingest(context.Background(), []byte("x"), name)
			require.True(t, out.Failed())
			assert.Equal(t, tt.want, KindOf(out.Err))
			assert.False(t, IsRetryable(out.Err))
			assert.ErrorIs(t, out.Err, tt.err)

			var ie *Error
			require.True(t, errors.As(out.Err, &ie))
			assert.Equal(t, name, ie.Document)

			rows, err := f.store.Ingestions(context.Background(), "")
			require.NoError(t, err)
			assert.Empty(t, rows, "failures are recorded by the caller")
		})
	}
}

func TestIngest_InvalidSnapshotIsExtractionFailure(t *testing.T) {
	f := newFixture(t)
	name := "P_FORM500.html"
	snap := publication("P", "Laptop")
	snap.Stage = record.StageReception
	f.fake.snaps[name] = snap

	out := f.coord.Ingest(context.Background(), []byte("x"), name)
	require.True(t, out.Failed())
	assert.Equal(t, KindExtraction, KindOf(out.Err))
}

// failingLocker refuses the first n lock attempts.
type failingLocker struct {
	mu    sync.Mutex
	n     int
	calls int
	inner lock.Locker
}

func (l *failingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.calls++
	refuse := l.calls <= l.n
	l.mu.Unlock()
	if refuse {
		return nil, fmt.Errorf("%w: %s", lock.ErrNotObtained, key)
	}
	return l.inner.Lock(ctx, key)
}

func TestIngest_LockFailureIsRetryable(t *testing.T) {
	f := newFixture(t, WithLocker(&failingLocker{n: 1, inner: lock.NewLocal()}))

	out := f.coord.Ingest(context.Background(), []byte("x"), processID+"_FORM100.html")
	require.True(t, out.Failed())
	assert.Equal(t, KindLockUnavailable, KindOf(out.Err))
	assert.True(t, IsRetryable(out.Err))
	assert.ErrorIs(t, out.Err, lock.ErrNotObtained)
	assert.Empty(t, f.items(t))
}

func TestRecordFailure(t *testing.T) {
	f := newFixture(t)
	name := "P_FORM100.html"
	f.fake.errs[name] = extract.ErrNoProcessID

	out := f.coord.Ingest(context.Background(), []byte("x"), name)
	require.NoError(t, f.coord.RecordFailure(context.Background(), out))

	failures, err := f.store.Failures(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, name, failures[0].Document)
	assert.Equal(t, string(KindIdentityMissing), failures[0].Kind)

	rows, err := f.store.Ingestions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, store.OutcomeFailed, rows[0].Outcome)

	// Successful outcomes are ignored.
	require.NoError(t, f.coord.RecordFailure(context.Background(), Outcome{Status: StatusSuccess}))
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("run")
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-2", g.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	a, b := UUIDv7Generator{}.Generate(), UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
