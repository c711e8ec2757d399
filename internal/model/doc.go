// Package model defines the core data structures shared across the
// recovery engine.
//
// This package contains the following main types:
//   - Candidate: A signature match location awaiting extraction
//   - Artifact: A verified, deduplicated recovery result
//   - RunReport: The complete result of one recovery run
//   - RunStats: Aggregated skip/drop/dedup counters for a run
//
// Design decision: We separate models into their own package to avoid
// circular dependencies. Multiple packages (scanner, carver, catalog,
// pipeline, report) need these types, so centralizing them prevents
// import cycles.
//
// The models are designed to be serializable to JSON for report output
// and database storage.
package model
