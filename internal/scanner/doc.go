// Package scanner locates signature matches in byte sources.
//
// Two scanners share one contract surface, a lazy iter.Seq of
// model.Candidate:
//   - TreeScanner: walks a directory tree and probes each regular
//     file's leading bytes, one candidate per matching file
//   - BufferScanner: sweeps a contiguous buffer (disk image) for every
//     occurrence of every pattern
//
// Design decision: Candidates are produced through iter.Seq rather than
// channels or callback registration because the consumer drives the
// pace: the pipeline carves candidate-at-a-time to bound memory, and a
// caller that has seen enough simply stops ranging. No cancellation
// plumbing is needed beyond ceasing to pull, though both scanners also
// honor context cancellation for long sweeps.
//
// Error posture: an unreadable file or directory is logged, counted in
// RunStats.SkippedUnreadable, and skipped. Nothing a scanner meets in
// the filesystem aborts a scan.
package scanner
