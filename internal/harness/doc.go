// Package harness runs reconciliation scenarios against a fresh store.
//
// A scenario is a sequence of documents, each carrying the snapshot its
// extractor would have produced, followed by assertions on the stored
// records. Documents go through the same ingestion path as production
// (registry lookup, validation, per-process lock, engine pass in one
// transaction, ledger row), so a scenario exercises everything except the
// HTML extraction itself.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	implicit_cause: "not listed in reception"   # optional
//	steps:
//	  - document: FORM100_25-0001.html
//	    snapshot:
//	      process_id: "25-0001"
//	      stage: publication
//	      entity: { code: "E1", name: "Ministry" }
//	      process: { purpose: "Laptops", modality: "Tender" }
//	      lines:
//	        - { text: "Laptop 14in", requested_qty: 10, ref_total_price: 9000 }
//	    expect:
//	      status: success
//	      process_status: Published
//	      created: 1
//	assertions:
//	  - type: process_state
//	    process: "25-0001"
//	    expect: { status: Published, stages_seen: [FORM100] }
//	  - type: item_state
//	    process: "25-0001"
//	    item: laptop_14in
//	    expect: { status: Published, requested_qty: 10 }
//	  - type: item_count
//	    process: "25-0001"
//	    count: 1
//
// The stage tag of a snapshot is the FORM tag of its document name. A step
// whose document has no FORM tag is skipped like any unknown variant; a step
// without a snapshot fails extraction.
//
// # Assertion Types
//
//   - process_state: subset match against the stored process
//   - item_state: subset match against one stored item, by slug
//   - item_count: number of items stored for a process
//   - entity_state: subset match against a stored contracting authority
//
// Expected values are compared with the records' JSON form, so field names
// are the JSON names and timestamps compare as instants.
//
// # Deterministic Testing
//
// Ledger ids come from a sequence and timestamps from a stepping clock, so
// the same scenario always produces the same records. RunWithGolden compares
// a text rendering of the steps and the final state against
// testdata/golden/<name>.golden.
package harness
