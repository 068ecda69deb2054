package reconcile

// DiagnosticKind classifies a non-fatal reconciliation anomaly.
type DiagnosticKind string

const (
	// DiagUnmatched: an award-class line names no stored item. Nothing is
	// created; it usually means the upstream documents drifted.
	DiagUnmatched DiagnosticKind = "unmatched"

	// DiagAmbiguous: several stored items share the line's normalized
	// description and the snapshot does not list the same number of them.
	// The first unmatched candidate in key order was used.
	DiagAmbiguous DiagnosticKind = "ambiguous"

	// DiagUnmatchedVoid: a void-table entry names no stored item.
	DiagUnmatchedVoid DiagnosticKind = "unmatched_void"

	// DiagEmptyDescription: a line has no usable description and cannot be
	// identified.
	DiagEmptyDescription DiagnosticKind = "empty_description"

	// DiagMissingProcess: a non-publication snapshot arrived for a process
	// that does not exist. Process and items are left alone.
	DiagMissingProcess DiagnosticKind = "missing_process"
)

// Diagnostic describes one anomaly found while applying a snapshot.
type Diagnostic struct {
	Kind        DiagnosticKind
	Description string
	Candidates  []string
	Message     string
}
