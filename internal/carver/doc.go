// Package carver extracts bounded byte ranges for candidates and
// materializes them as artifact files.
//
// The boundary question only exists in buffer mode. A tree-mode
// candidate is a whole file and filesystem metadata delimits it; a
// buffer-mode candidate sits somewhere in an undifferentiated image
// with no trustworthy end marker.
//
// Design decision: The buffer boundary is the minimum of four limits
// because each guards against a different failure:
//  1. The format's registered maximum size keeps one false positive
//     from swallowing megabytes of unrelated data
//  2. The next candidate of any tag marks where another file plausibly
//     begins
//  3. The safety cap bounds formats with no registered maximum
//  4. The remaining buffer is a hard physical limit
//
// Cuts at limits 1 and 2 are treated as complete; cuts at 3 and 4 mark
// the artifact truncated, because the content may well continue beyond
// the cut and the caller must be able to tell.
package carver
