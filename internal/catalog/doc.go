// Package catalog records what recovery runs produce.
//
// The package has two layers:
//   - Catalog, the in-memory hash-keyed collection for the run in
//     progress. It preserves insertion order and rejects duplicate
//     content, which is how the pipeline suppresses re-recovery of
//     identical bytes found at different locations.
//   - Store, the SQLite-backed archive of completed runs, so past
//     recovery sessions can be listed and inspected after the fact.
//
// Design decision: We use SQLite (via modernc.org/sqlite) for the
// archive because:
// 1. The whole history is a single file under the user's data directory
// 2. CGO-free implementation allows easy cross-compilation
// 3. One writer at a time matches how recovery runs actually execute
// 4. WAL mode keeps history queries cheap while a run is archiving
package catalog
