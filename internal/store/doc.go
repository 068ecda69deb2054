// Package store provides SQLite-backed storage for procurement records.
//
// Records live in a single documents table as JSON bodies keyed by
// (collection, key). The store exposes the primitives the reconciliation
// engine is written against:
//   - Get: read one document
//   - SetMerge: create or field-merge a document (json_patch)
//   - UpdateIfExists: field-merge only when the document exists
//   - QueryByField: list documents of a collection by one attribute
//   - ArrayUnion: add values to an array attribute without duplicates
//
// The same primitives are available on *Tx, so a whole read-modify-write
// pass can run inside one transaction via Store.Update.
//
// # Merge semantics
//
// Payloads never carry JSON null: absent values are dropped by the caller
// before the write, so a merge can add or overwrite attributes but never
// clear them.
//
// # Deterministic Query Results
//
// QueryByField orders by key and the ledger tables by seq, so reads are
// stable across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: transactions take the write lock up front
//
// Lock contention that outlasts the busy timeout surfaces as ErrUnavailable,
// which callers treat as retryable.
package store
