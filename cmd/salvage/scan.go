package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/salvage/internal/catalog"
	"github.com/nao1215/salvage/internal/config"
	"github.com/nao1215/salvage/internal/log"
	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/pipeline"
	"github.com/nao1215/salvage/internal/report"
	"github.com/nao1215/salvage/internal/scanner"
	"github.com/nao1215/salvage/internal/signature"
	"github.com/nao1215/salvage/internal/verify"
)

// auditLogName is the forensic trail file created beside the recovery
// root when --audit-log is not given.
const auditLogName = "forensic_log.txt"

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [directory]...",
		Short: "Recover files from directory trees",
		Long: `Scan walks directory trees and recovers every file whose content
matches a known format signature, regardless of its name or extension.

Each matching file is copied into a timestamped recovery directory,
hashed, deduplicated against everything already recovered, and archived
in the local catalog. The originals are never touched.

Examples:
  # Recover from a mounted evidence image
  salvage scan /mnt/evidence

  # Recover from several trees in one invocation
  salvage scan /mnt/evidence /mnt/backup

  # Only photos and PDFs, with four probe workers
  salvage scan --tags jpg,png,pdf --workers 4 /mnt/evidence

  # Top-level files only, report as JSON
  salvage scan --no-recursive --json /mnt/evidence

  # List what would be recovered without writing anything
  salvage scan --dry-run /mnt/evidence

  # Custom signatures from a config file
  salvage scan -c salvage.yml /mnt/evidence`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	addRecoveryFlags(cmd)

	// Tree scanning flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent header probes (1 keeps recovery order deterministic)")
	cmd.Flags().Bool("no-recursive", false,
		"Do not descend into subdirectories")

	return cmd
}

// addRecoveryFlags registers the flags shared by scan and carve.
func addRecoveryFlags(cmd *cobra.Command) {
	// Recovery destination flags
	cmd.Flags().StringP("recovery-dir", "r", config.DefaultRecoveryRoot,
		"Destination root for recovered artifacts")
	cmd.Flags().String("hash", config.DefaultHashAlgorithm,
		"Content digest algorithm: sha256 or blake2b")
	cmd.Flags().StringSliceP("tags", "t", nil,
		"Restrict recovery to these format tags (default: all registered formats)")

	// Batch processing flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sources processed concurrently")

	// Probe-only mode
	cmd.Flags().Bool("dry-run", false,
		"List candidate matches without recovering anything")

	// Catalog flags
	cmd.Flags().String("catalog-dir", "",
		"Catalog directory (default: XDG data directory)")
	cmd.Flags().Bool("no-store", false,
		"Do not archive this run in the catalog")

	// Forensic trail
	cmd.Flags().String("audit-log", "",
		"Audit log path (default: forensic_log.txt beside the recovery directory)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: salvage.yml in current or XDG config directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	cfg.Workers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return err
	}

	noRecursive, err := cmd.Flags().GetBool("no-recursive")
	if err != nil {
		return err
	}
	cfg.Recursive = !noRecursive

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if len(cfg.Sources) == 0 {
		return errors.New("no directories provided (specify one or more directory paths as arguments)")
	}

	sources := make([]scanner.Source, 0, len(cfg.Sources))
	for _, root := range cfg.Sources {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("cannot scan %s: %w", root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("cannot scan %s: not a directory (use 'salvage carve' for disk images)", root)
		}
		sources = append(sources, scanner.TreeSource(root))
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runRecovery(ctx, cfg, sources, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the flags shared by scan and carve.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	// Get flag values
	var err error

	cfg.RecoveryRoot, err = cmd.Flags().GetString("recovery-dir")
	if err != nil {
		return nil, err
	}

	cfg.HashAlgorithm, err = cmd.Flags().GetString("hash")
	if err != nil {
		return nil, err
	}

	cfg.Tags, err = cmd.Flags().GetStringSlice("tags")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	catalogDir, err := cmd.Flags().GetString("catalog-dir")
	if err != nil {
		return nil, err
	}
	if catalogDir != "" {
		cfg.CatalogDir = catalogDir
	}

	cfg.NoStore, err = cmd.Flags().GetBool("no-store")
	if err != nil {
		return nil, err
	}

	cfg.DryRun, err = cmd.Flags().GetBool("dry-run")
	if err != nil {
		return nil, err
	}

	cfg.AuditLogPath, err = cmd.Flags().GetString("audit-log")
	if err != nil {
		return nil, err
	}
	if cfg.AuditLogPath == "" {
		// The forensic trail lives beside the artifacts it describes
		cfg.AuditLogPath = filepath.Join(cfg.RecoveryRoot, auditLogName)
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load custom signatures from the config file.
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently skip when no file is found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.Signatures, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// Positional arguments are the sources
	cfg.Sources = args

	return cfg, nil
}

// setupLogger creates the run logger. The console stays at warnings
// unless verbose is set; the audit trail records the full run narrative
// regardless. A dry run writes nothing, the audit file included.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	opts := []log.Option{log.WithLevel(level)}
	if cfg.AuditLogPath != "" && !cfg.DryRun {
		opts = append(opts, log.WithAuditFile(cfg.AuditLogPath))
	}

	return log.NewLogger(os.Stderr, opts...)
}

// runRecovery drives the recovery pipeline over the prepared sources.
func runRecovery(ctx context.Context, cfg *config.Config, sources []scanner.Source, logger *slog.Logger) error {
	reg := signature.NewRegistry()
	if cfg.Signatures != nil {
		if err := cfg.Signatures.Apply(reg); err != nil {
			return fmt.Errorf("failed to apply custom signatures: %w", err)
		}
	}

	if cfg.DryRun {
		return runDryRun(ctx, cfg, sources, reg, logger)
	}

	alg, err := verify.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return err
	}

	logger.Info("starting recovery",
		"sources", cfg.Sources,
		"recoveryRoot", cfg.RecoveryRoot,
		"hash", cfg.HashAlgorithm,
		"batchSize", cfg.BatchSize,
		"archive", !cfg.NoStore,
	)

	// Open catalog archive if saving is enabled
	var store *catalog.Store
	if !cfg.NoStore {
		store, err = catalog.Open(cfg.CatalogDir, catalog.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer store.Close()
		logger.Info("catalog opened", "dir", cfg.CatalogDir)
	}

	// One shared catalog across sources, so content recovered from the
	// first source counts as a duplicate in the second
	dedup := catalog.New()

	factory := func() (*pipeline.Pipeline, error) {
		opts := []pipeline.Option{
			pipeline.WithLogger(logger),
			pipeline.WithRecoveryRoot(cfg.RecoveryRoot),
			pipeline.WithHashAlgorithm(alg),
			pipeline.WithSafetyCap(cfg.SafetyCap),
			pipeline.WithWorkers(cfg.Workers),
			pipeline.WithRecursive(cfg.Recursive),
			pipeline.WithCatalog(dedup),
		}
		if len(cfg.Tags) > 0 {
			opts = append(opts, pipeline.WithTags(cfg.Tags...))
		}
		if store != nil {
			opts = append(opts, pipeline.WithStore(store))
		}
		return pipeline.New(reg, opts...)
	}

	// Use batch processor for parallel recovery if multiple sources
	if len(sources) > 1 && cfg.BatchSize > 1 {
		return runBatchRecovery(ctx, cfg, sources, factory, logger)
	}

	// Single source or sequential recovery
	return runSequentialRecovery(ctx, cfg, sources, factory, logger)
}

// runDryRun lists candidate matches without carving, hashing, or
// touching the catalog. Nothing is written anywhere.
func runDryRun(ctx context.Context, cfg *config.Config, sources []scanner.Source, reg *signature.Registry, logger *slog.Logger) error {
	var matcherOpts []signature.MatcherOption
	if len(cfg.Tags) > 0 {
		matcherOpts = append(matcherOpts, signature.WithTags(cfg.Tags...))
	}
	matcher, err := signature.NewMatcher(reg, matcherOpts...)
	if err != nil {
		return err
	}

	total := 0
	for _, src := range sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Printf("Probing %s (dry run)...\n", src.Locator())

		var stats model.RunStats
		var candidates iter.Seq[model.Candidate]
		switch src.Kind {
		case model.SourceTree:
			ts := scanner.NewTreeScanner(matcher,
				scanner.WithRecursive(cfg.Recursive),
				scanner.WithWorkers(cfg.Workers),
				scanner.WithTreeLogger(logger),
			)
			candidates = ts.Scan(ctx, src.Root, &stats)
		default:
			bs := scanner.NewBufferScanner(matcher, scanner.WithBufferLogger(logger))
			candidates = bs.Scan(ctx, src.Name, src.Data, &stats)
		}

		count := 0
		for cand := range candidates {
			if cand.Kind == model.SourceBuffer {
				fmt.Printf("  [?] offset %d (%s)\n", cand.Offset, cand.Tag)
			} else {
				fmt.Printf("  [?] %s (%s)\n", cand.Source, cand.Tag)
			}
			count++
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if src.Kind == model.SourceTree {
			fmt.Printf("%d candidate(s) in %s (%d files probed)\n\n",
				count, src.Locator(), stats.FilesScanned)
		} else {
			fmt.Printf("%d candidate(s) in %s\n\n", count, src.Locator())
		}
		total += count
	}

	fmt.Printf("Dry run complete: %d candidate(s). Nothing was recovered.\n", total)
	return nil
}

// runSequentialRecovery processes sources one at a time, streaming
// per-artifact lines as the pipeline recovers them.
func runSequentialRecovery(ctx context.Context, cfg *config.Config, sources []scanner.Source, factory func() (*pipeline.Pipeline, error), logger *slog.Logger) error {
	// Per-artifact lines would corrupt a structured report on stdout
	streamArtifacts := cfg.ReportFile != "" || (!cfg.JSONReport && !cfg.MarkdownReport)

	for _, src := range sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p, err := factory()
		if err != nil {
			return err
		}

		fmt.Printf("Recovering from %s...\n", src.Locator())
		startTime := time.Now()

		artifacts, runReport, err := p.Run(ctx, src)
		if err != nil {
			logger.Error("recovery failed", "source", src.Locator(), "error", err)
			fmt.Fprintf(os.Stderr, "Recovery error for %s: %v\n", src.Locator(), err)
			continue
		}

		// The iterator drives the recovery; it must be drained even
		// when nothing is printed
		for artifact := range artifacts {
			if streamArtifacts {
				fmt.Printf("  [+] %s (%s, %s)\n",
					filepath.Base(artifact.Destination), artifact.Tag,
					humanize.IBytes(uint64(artifact.Size)))
			}
		}

		elapsed := time.Since(startTime)
		fmt.Printf("Recovery completed in %s\n\n", elapsed.Round(time.Millisecond))

		if err := outputReport(cfg, runReport); err != nil {
			logger.Error("report failed", "source", src.Locator(), "error", err)
		}
	}

	return nil
}

// runBatchRecovery processes multiple sources concurrently using the
// batch processor.
func runBatchRecovery(ctx context.Context, cfg *config.Config, sources []scanner.Source, factory func() (*pipeline.Pipeline, error), logger *slog.Logger) error {
	fmt.Printf("Starting batch recovery of %d sources (concurrency: %d)...\n\n",
		len(sources), cfg.BatchSize)

	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	reports, err := bp.ProcessBatch(ctx, sources)

	for i, runReport := range reports {
		if runReport == nil {
			continue
		}
		if runReport.ErrorMessage != "" {
			fmt.Printf("[%d/%d] %s: FAILED (%s)\n",
				i+1, len(reports), runReport.Source, runReport.ErrorMessage)
			continue
		}

		fmt.Printf("[%d/%d] %s: %d artifact(s) recovered\n",
			i+1, len(reports), runReport.Source, runReport.Stats.Recovered)

		if oerr := outputReport(cfg, runReport); oerr != nil {
			logger.Error("report failed", "source", runReport.Source, "error", oerr)
		}
	}

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch recovery completed in %s\n", elapsed.Round(time.Millisecond))

	return err
}

// outputReport renders the run report in the requested format.
func outputReport(cfg *config.Config, runReport *model.RunReport) error {
	// Determine output destination
	var output *os.File
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports name every recovered artifact, so owner-only permissions
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	// JSON output (versioned full report)
	if cfg.JSONReport {
		writer := report.NewFullJSONWriter(output, getVersion())
		_, err := writer.Write(runReport)
		return err
	}

	// Markdown output
	if cfg.MarkdownReport {
		writer := report.NewMarkdownWriter(output)
		_, err := writer.Write(runReport)
		return err
	}

	// Human-readable report (default)
	writer := report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	_, err := writer.Write(runReport)
	return err
}
