// Package reconcile converges stage snapshots of a procurement process into
// one consistent set of records.
//
// A single Apply call handles one snapshot:
//
//  1. Entity resolution: the contracting authority is sticky-merged and its
//     enrichment (department) is returned for denormalization.
//  2. Process upsert: descriptive fields are sticky-merged, the stage tag is
//     set-unioned into stages_seen, and status moves forward only:
//     Published -> Awarded -> Contracted -> Received. Only publication-class
//     snapshots create a process; reception sets Received on an existing
//     process regardless of its current status.
//  3. Item matching: each line is matched against the process' stored items
//     by normalized description. Publication lines without a match create an
//     item, award lines without a match are reported and dropped, reception
//     lines without a match create an item directly in its received state.
//  4. Reception post-pass: the explicit void table deserts the items it
//     names; every item the snapshot did not mention is deserted implicitly
//     unless a previous snapshot already confirmed it as received or
//     delivered.
//
// Apply performs read-modify-write against per-process state and must not run
// concurrently for the same process id. Callers run it inside a store
// transaction under a per-process lock.
package reconcile
