// Package ingest drives documents through extraction and reconciliation.
//
// A Coordinator handles one document: it routes the name to an extractor,
// checks the snapshot identifies its process, serializes on the process id
// and applies the snapshot inside a single store transaction together with
// its ledger row. A document either lands completely or not at all.
//
// A Batch fans documents out over a bounded worker pool, fetching each
// through a Fetcher, retrying transient store failures and recording
// permanent failures in the durable failure log. Failures are always local
// to their document; a batch never aborts because one document failed.
package ingest
