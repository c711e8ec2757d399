// Package signature defines the format signature registry and the
// matcher that identifies formats from raw bytes.
//
// A FormatSignature maps a format tag (e.g. "jpg") to one or more magic
// byte patterns and optional plausible size bounds. The Registry holds
// signatures in registration order and seeds a builtin table covering
// common image, document, archive, media, executable, database, and
// email formats. The Matcher answers prefix queries over a registry with
// a deterministic precedence: longest pattern first, then registration
// order.
//
// Design decision: Registration order is part of the public contract
// rather than an implementation detail because carving results must be
// reproducible across runs and builds. Two equal-length patterns
// matching at the same offset always resolve the same way, and the
// builtin table's order is therefore a compatibility-relevant artifact.
//
// Everything in this package is immutable after construction and safe
// for concurrent readers.
package signature
