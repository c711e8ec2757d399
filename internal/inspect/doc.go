// Package inspect provides content analyzers for recovered artifacts.
//
// # Purpose
//
// Recovery tells you that a file existed; inspection tells you what it
// was. This package looks inside recovered artifacts and extracts the
// attributes an examiner triages by: where a photo was taken, what a
// database held, who a page linked to.
//
// # Design Philosophy
//
// Each content format gets its own Inspector, dispatched by the format
// tag the carver assigned. This design was chosen because:
//  1. Each format has unique parsing logic and dependencies
//  2. New formats can be added without modifying existing inspectors
//  3. Individual inspectors are trivial to test in isolation
//
// Inspectors never modify the artifact. Recovered files are evidence;
// everything here opens them read-only.
//
// # Built-in Inspectors
//
//   - EXIF: camera make/model/serial, GPS coordinates, software,
//     timestamps, and author information in recovered images
//   - SQLite: table names, row counts, page size, and schema version
//     of recovered databases
//   - HTML: title, link targets, and email addresses in recovered pages
//
// # Usage
//
//	runner := inspect.NewRunner()
//	findings, err := runner.Run(ctx, "jpg", "recovered/jpg_000001.jpg")
package inspect
