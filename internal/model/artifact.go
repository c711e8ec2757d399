package model

import "time"

// Artifact is a verified, deduplicated recovery result. It is immutable
// once created: the pipeline builds it after a successful carve and hash,
// writes the content to the destination exactly once, and never mutates
// the record afterwards.
type Artifact struct {
	// Tag is the format identifier the artifact was carved as.
	Tag string `json:"tag"`

	// Source is the origin locator: the original file path in tree mode,
	// or the image path in buffer mode.
	Source string `json:"source"`

	// Offset is the byte offset of the signature match in the source.
	// Always 0 for tree-mode artifacts.
	Offset int64 `json:"offset"`

	// Size is the extracted length in bytes.
	Size int64 `json:"size"`

	// Hash is the hex-encoded content digest of the extracted bytes.
	// It doubles as the catalog dedup key.
	Hash string `json:"hash"`

	// Destination is the path the artifact was written to, inside the
	// per-run recovery directory.
	Destination string `json:"destination"`

	// Truncated is true when the carve was cut at the safety cap or at
	// the end of the source without finding a better boundary. A carve
	// bounded by the format's registered maximum size or by the next
	// candidate is complete, not truncated.
	Truncated bool `json:"truncated"`

	// RecoveredAt is the timestamp the artifact was written.
	RecoveredAt time.Time `json:"recovered_at"`
}
