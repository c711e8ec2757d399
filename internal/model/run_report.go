package model

import "time"

// RunStats aggregates the non-fatal conditions of a recovery run.
// Nothing counted here ever aborts a run; the counters are the caller's
// window into everything that was skipped, dropped, or suppressed.
type RunStats struct {
	// FilesScanned is the number of regular files probed in tree mode.
	FilesScanned int `json:"files_scanned"`

	// BytesScanned is the total number of source bytes examined.
	BytesScanned int64 `json:"bytes_scanned"`

	// Candidates is the number of signature matches the scanner produced.
	Candidates int `json:"candidates"`

	// Recovered is the number of artifacts written and cataloged.
	Recovered int `json:"recovered"`

	// SkippedUnreadable counts files and directories that could not be
	// opened or read (permission denied, vanished mid-scan).
	SkippedUnreadable int `json:"skipped_unreadable"`

	// DroppedBelowMin counts extractions discarded for being empty or
	// smaller than the format's registered minimum size. These are
	// expected noise from false-positive signature matches.
	DroppedBelowMin int `json:"dropped_below_min"`

	// Duplicates counts candidates whose content hash was already in the
	// catalog and which were therefore suppressed, not re-copied.
	Duplicates int `json:"duplicates"`

	// Truncated counts artifacts cut at the safety cap without a better
	// boundary. Each is still recovered and flagged on the artifact.
	Truncated int `json:"truncated"`
}

// RunReport is the complete result of one recovery run: metadata, the
// aggregated statistics, and the ordered artifact records. It is the
// structure the report writers and the catalog store consume.
//
// Design decision: We keep the full artifact list on the report rather
// than only counters because the report writers need per-artifact rows
// and the list is already bounded by what was actually recovered.
type RunReport struct {
	// Source is the scanned root path or image path.
	Source string `json:"source"`

	// Mode is the scanning mode the run used.
	Mode SourceKind `json:"-"`

	// ModeName is the string form of Mode, kept for serialization.
	ModeName string `json:"mode"`

	// RecoveryDir is the per-run timestamped directory artifacts were
	// written to.
	RecoveryDir string `json:"recovery_dir"`

	// HashAlgorithm is the digest algorithm used for verification.
	HashAlgorithm string `json:"hash_algorithm"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed.
	FinishedAt time.Time `json:"finished_at"`

	// Stats holds the aggregated counters.
	Stats RunStats `json:"stats"`

	// Artifacts holds the recovered artifacts in catalog insertion order.
	Artifacts []Artifact `json:"artifacts"`

	// Error holds the fatal error that prevented the run from starting
	// or completing, if any. Per-candidate failures never set it; they
	// are counted in Stats instead.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error, kept for serialization.
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewRunReport creates a report for a run over the given source.
func NewRunReport(source string, mode SourceKind) *RunReport {
	return &RunReport{
		Source:    source,
		Mode:      mode,
		ModeName:  mode.String(),
		StartedAt: time.Now(),
		Artifacts: []Artifact{},
	}
}

// Finish stamps the completion time.
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
}

// Duration returns the elapsed run time.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CountByTag returns the number of recovered artifacts per format tag.
func (r *RunReport) CountByTag() map[string]int {
	counts := make(map[string]int)
	for _, a := range r.Artifacts {
		counts[a.Tag]++
	}
	return counts
}

// TotalRecoveredBytes returns the summed size of all recovered artifacts.
func (r *RunReport) TotalRecoveredBytes() int64 {
	var total int64
	for _, a := range r.Artifacts {
		total += a.Size
	}
	return total
}

// TruncatedArtifacts returns the artifacts that were cut at the safety
// cap, in insertion order.
func (r *RunReport) TruncatedArtifacts() []Artifact {
	var out []Artifact
	for _, a := range r.Artifacts {
		if a.Truncated {
			out = append(out, a)
		}
	}
	return out
}

// HasFindings reports whether the run recovered anything at all.
func (r *RunReport) HasFindings() bool {
	return len(r.Artifacts) > 0
}
