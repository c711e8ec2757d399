package config

import (
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/nao1215/salvage/internal/carver"
	"github.com/nao1215/salvage/internal/verify"
)

// Default configuration values.
// These values are chosen for evidence-handling workflows where
// reproducibility matters more than raw throughput.
const (
	// DefaultRecoveryRoot is the destination root for recovered artifacts,
	// relative to the working directory. Keeping it next to where the
	// operator runs the tool makes the evidence trail obvious; each run
	// creates its own timestamped subdirectory beneath it.
	DefaultRecoveryRoot = "forensic_recovery"

	// DefaultWorkers of 1 keeps tree scanning fully sequential, so two
	// runs over the same tree recover artifacts in the same order.
	// Operators can raise this via --workers when walking large trees;
	// candidate order across files then depends on scheduling.
	DefaultWorkers = 1

	// DefaultSafetyCap bounds a single buffer-mode carve when neither the
	// registered maximum nor a following candidate limits it. Matches the
	// carver's own default so the config layer and the engine agree.
	DefaultSafetyCap = carver.DefaultSafetyCap

	// DefaultHashAlgorithm is SHA-256. Evidence handling conventions
	// expect SHA-256 digests; BLAKE2b is available via --hash for large
	// images where hashing dominates run time.
	DefaultHashAlgorithm = string(verify.SHA256)

	// DefaultBatchSize of 1 processes multiple sources sequentially.
	// Raising it via --batch runs sources concurrently, each with its own
	// recovery pipeline.
	DefaultBatchSize = 1

	// AppName is the application name used for XDG directory paths.
	AppName = "salvage"
)

// Config holds all configuration options for a recovery run.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., ScanConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Sources are the scan targets: directory roots in tree mode, image
	// files in buffer mode. Populated from positional CLI arguments.
	Sources []string

	// RecoveryRoot is the destination root for recovered artifacts.
	// Each run creates a timestamped subdirectory beneath it, so repeated
	// runs never overwrite each other's output.
	RecoveryRoot string

	// CatalogDir is the directory holding the persistent catalog database.
	// The database filename inside it is fixed; the directory is the
	// configuration surface. Defaults to the XDG data directory.
	CatalogDir string

	// Workers is the number of concurrent header probes during tree
	// scanning. Values above 1 trade deterministic candidate order for
	// throughput. Buffer scanning is always sequential.
	Workers int

	// SafetyCap is the maximum size in bytes of a single buffer-mode
	// carve when nothing else bounds it. It exists to keep one bad match
	// in a large image from swallowing the rest of the buffer.
	SafetyCap int64

	// HashAlgorithm selects the content digest: "sha256" or "blake2b".
	// The digest keys deduplication and is recorded on every artifact.
	HashAlgorithm string

	// Recursive controls descent into subdirectories during tree scans.
	Recursive bool

	// BatchSize is the number of sources processed concurrently when more
	// than one source is given. One means sequential processing.
	BatchSize int

	// Tags restricts scanning to the named format tags. Empty means all
	// registered formats. Unknown tags are rejected at startup.
	Tags []string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only info and above are logged.
	Verbose bool

	// NoStore disables archiving runs to the catalog database.
	// Recovery itself is unaffected; only history queries lose the run.
	NoStore bool

	// DryRun lists candidate matches without carving, verifying, or
	// writing anything. No recovery directory, catalog row, or audit
	// file is created.
	DryRun bool

	// JSONReport renders the run report as JSON instead of plain text.
	JSONReport bool

	// MarkdownReport renders the run report as Markdown instead of plain
	// text. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the report destination path. Empty means stdout.
	ReportFile string

	// AuditLogPath is the forensic log file that mirrors every log
	// record. Empty means console logging only; commands that write
	// evidence derive a default beside the recovery root.
	AuditLogPath string

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for salvage.yml in the current
	// directory and then in the XDG config directory.
	ConfigFilePath string

	// Signatures holds custom format signatures loaded from the config
	// file. This is populated by LoadConfigFile and merged into the
	// registry after the builtin table.
	Signatures *File
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because several defaults are non-zero (recovery root,
// safety cap, hash algorithm). This also serves as documentation of
// what the defaults are.
func NewConfig() *Config {
	return &Config{
		RecoveryRoot:  DefaultRecoveryRoot,
		CatalogDir:    XDGDataDir(),
		Workers:       DefaultWorkers,
		SafetyCap:     DefaultSafetyCap,
		HashAlgorithm: DefaultHashAlgorithm,
		Recursive:     true,
		BatchSize:     DefaultBatchSize,
	}
}

// XDGDataDir returns the XDG data directory for the catalog database.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/salvage
// On macOS: ~/Library/Application Support/salvage
// On Windows: %LOCALAPPDATA%\salvage
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory searched for salvage.yml.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.config/salvage
// On macOS: ~/Library/Application Support/salvage
// On Windows: %APPDATA%\salvage
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.cache/salvage
// On macOS: ~/Library/Caches/salvage
// On Windows: %LOCALAPPDATA%\salvage\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any recovery begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	// Without a recovery root there is nowhere to write artifacts
	if c.RecoveryRoot == "" {
		return ErrNoRecoveryRoot
	}

	// Workers must be positive; zero would mean no scanning
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	// SafetyCap must be positive; a zero cap would carve nothing
	if c.SafetyCap <= 0 {
		return ErrInvalidSafetyCap
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	// A report has exactly one rendering
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingFormats
	}

	// The algorithm sentinel lives in the verify package so that config
	// and engine reject the same set of names
	if _, err := verify.ParseAlgorithm(c.HashAlgorithm); err != nil {
		return err
	}

	return nil
}
