// Package pipeline orchestrates recovery runs end to end.
//
// A run moves candidate by candidate through a fixed cycle: the scanner
// produces a signature match, the carver extracts its bytes, the
// verifier hashes and deduplicates them, and the catalog records the
// written artifact. The observable State tracks that cycle. One bad
// candidate is counted and skipped; only misconfiguration detected
// before the first candidate refuses to start the run.
//
// Design decision: Runs are streaming. Run returns an iter.Seq of
// artifacts instead of a slice because:
// 1. Disk images produce artifacts over minutes; callers want progress
// 2. Stopping early is just breaking out of the range
// 3. Memory stays bounded by one extraction at a time
//
// In buffer mode the pipeline pulls the scanner one candidate ahead so
// each extraction can be bounded by the next candidate's offset.
//
// BatchProcessor runs several sources concurrently through per-source
// pipelines; sharing one catalog across them deduplicates content
// across sources.
package pipeline
