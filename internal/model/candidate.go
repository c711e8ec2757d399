package model

// SourceKind identifies the kind of byte source a candidate came from.
// The carver uses it to choose the extraction strategy: whole-file reads
// for tree sources, bounded range extraction for buffer sources.
type SourceKind int

const (
	// SourceTree is a directory-walk source: each candidate is a whole
	// regular file whose header matched a signature.
	SourceTree SourceKind = iota

	// SourceBuffer is a contiguous byte buffer source (disk or partition
	// image): candidates are offsets inside one large region.
	SourceBuffer
)

// String returns the human-readable source kind name.
func (k SourceKind) String() string {
	switch k {
	case SourceTree:
		return "tree"
	case SourceBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// ParseSourceKind returns the SourceKind named by s. The second return
// value is false when the name is not a known kind.
func ParseSourceKind(s string) (SourceKind, bool) {
	switch s {
	case "tree":
		return SourceTree, true
	case "buffer":
		return SourceBuffer, true
	default:
		return SourceTree, false
	}
}

// Candidate is a signature match location awaiting extraction.
// Candidates are ephemeral: produced by the scanner, consumed exactly once
// by the carver, never persisted.
//
// Design decision: Candidate carries the signature length alongside the
// offset so the carver never needs to re-run the matcher to know how many
// bytes of the extraction are signature bytes.
type Candidate struct {
	// Source locates the byte source: a file path in tree mode, the
	// image path (or a caller-chosen name) in buffer mode.
	Source string

	// Kind tells which scanning mode produced this candidate.
	Kind SourceKind

	// Tag is the matched format identifier (e.g. "jpg", "sqlite").
	Tag string

	// Offset is the byte offset of the signature match within the
	// source. Always 0 in tree mode.
	Offset int64

	// SigLen is the length in bytes of the matched signature pattern.
	SigLen int
}
