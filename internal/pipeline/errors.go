package pipeline

import "errors"

// Sentinel errors for pipeline construction. All of them mean the
// pipeline was misconfigured and refused to start; nothing here is ever
// returned for a per-candidate failure, which only surfaces in the run
// counters.
var (
	// ErrNilRegistry is returned when New is called without a signature
	// registry.
	ErrNilRegistry = errors.New("pipeline: signature registry is nil")

	// ErrNoSignatures is returned when the matcher ends up with no
	// patterns, typically because a tag filter excluded everything.
	ErrNoSignatures = errors.New("pipeline: no signatures to scan for")

	// ErrNoRecoveryRoot is returned when no recovery root directory was
	// configured.
	ErrNoRecoveryRoot = errors.New("pipeline: recovery root not configured")
)
