package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ingestion outcomes as stored in the ledger.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Ingestion is one ledger row: the result of ingesting one document once.
type Ingestion struct {
	Seq        int64
	ID         string
	RunID      string
	Document   string
	Digest     string
	ProcessID  string
	StageTag   string
	Outcome    string
	Reason     string
	RecordedAt time.Time
}

// Failure is one entry of the durable failure log.
type Failure struct {
	Seq        int64
	RunID      string
	Document   string
	Kind       string
	Message    string
	RecordedAt time.Time
}

// RecordIngestion appends a ledger row.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (o ops) RecordIngestion(ctx context.Context, in Ingestion) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO ingestions
		(id, run_id, document, digest, process_id, stage_tag, outcome, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		in.ID,
		in.RunID,
		in.Document,
		in.Digest,
		in.ProcessID,
		in.StageTag,
		in.Outcome,
		in.Reason,
		in.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record ingestion: %w", classify(err))
	}
	return nil
}

// Succeeded reports whether document was already ingested successfully with
// the given content digest. Successes recorded with a reason are provisional
// and do not count.
func (o ops) Succeeded(ctx context.Context, document, digest string) (bool, error) {
	var one int
	err := o.q.QueryRowContext(ctx, `
		SELECT 1 FROM ingestions
		WHERE document = ? AND digest = ? AND outcome = ? AND reason = ''
		LIMIT 1
	`, document, digest, OutcomeSuccess).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", classify(err))
	}
	return true, nil
}

// Ingestions returns the ledger rows of a run, or of every run when runID is
// empty, in the order they were recorded.
func (o ops) Ingestions(ctx context.Context, runID string) ([]Ingestion, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT seq, id, run_id, document, digest, process_id, stage_tag, outcome, reason, recorded_at
		FROM ingestions
		WHERE ? = '' OR run_id = ?
		ORDER BY seq ASC
	`, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("query ingestions: %w", classify(err))
	}
	defer rows.Close()

	out := []Ingestion{}
	for rows.Next() {
		var in Ingestion
		var recorded string
		if err := rows.Scan(&in.Seq, &in.ID, &in.RunID, &in.Document, &in.Digest,
			&in.ProcessID, &in.StageTag, &in.Outcome, &in.Reason, &recorded); err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		in.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingestions: %w", err)
	}
	return out, nil
}

// RecordFailure appends an entry to the failure log.
func (o ops) RecordFailure(ctx context.Context, f Failure) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO failures (run_id, document, kind, message, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.RunID, f.Document, f.Kind, f.Message, f.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record failure: %w", classify(err))
	}
	return nil
}

// Failures returns the failure log of a run, or of every run when runID is
// empty, in the order the failures were recorded.
func (o ops) Failures(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT seq, run_id, document, kind, message, recorded_at
		FROM failures
		WHERE ? = '' OR run_id = ?
		ORDER BY seq ASC
	`, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", classify(err))
	}
	defer rows.Close()

	out := []Failure{}
	for rows.Next() {
		var f Failure
		var recorded string
		if err := rows.Scan(&f.Seq, &f.RunID, &f.Document, &f.Kind, &f.Message, &recorded); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}
