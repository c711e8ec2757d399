package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoRecoveryRoot is returned when no recovery root is configured.
	// Recovered artifacts need a destination before any scanning starts.
	ErrNoRecoveryRoot = errors.New("no recovery root specified: set --recovery-dir or the recoveryRoot config key")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	// Zero workers would mean no scanning at all.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidSafetyCap is returned when the safety cap is not positive.
	// A non-positive cap would make every buffer-mode carve empty.
	ErrInvalidSafetyCap = errors.New("invalid safety cap: must be positive")

	// ErrInvalidBatchSize is returned when the batch concurrency is not
	// positive. One means sequential processing, never zero.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingFormats is returned when both JSON and Markdown report
	// output are requested at once.
	ErrConflictingFormats = errors.New("conflicting report formats: --json and --markdown are mutually exclusive")
)
