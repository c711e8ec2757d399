package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/salvage/internal/catalog"
	"github.com/nao1215/salvage/internal/model"
)

// NewCompareCmd creates the compare command.
// This command compares recovery runs archived in the catalog.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [source]",
		Short: "Compare recovery runs archived for a source",
		Long: `Compare shows what changed between two recovery runs over the same
evidence source: artifacts that appeared, artifacts that are gone, and
how the run counters moved.

Artifacts are matched by content digest, so a renamed destination still
counts as unchanged; a missing digest means the content itself became
unrecoverable. The comparison requires at least two archived runs for
the source.

Examples:
  # Compare the latest two runs over an image
  salvage compare /evidence/usb_image.dd

  # List run history for a source
  salvage compare --list /evidence/usb_image.dd

  # Compare the latest run with a specific earlier run
  salvage compare --with-run-id 5 /evidence/usb_image.dd

  # List every archived source
  salvage compare --list-sources

  # Output comparison in JSON format
  salvage compare --json /evidence/usb_image.dd`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List run history for the specified source")
	cmd.Flags().BoolP("list-sources", "L", false,
		"List all sources with archived runs")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare the latest run with a specific run by ID (use --list to see IDs)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")

	cmd.Flags().String("catalog-dir", "",
		"Catalog directory (default: XDG data directory)")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	// Handle --list-sources first (requires the catalog but no source)
	listSources, err := cmd.Flags().GetBool("list-sources")
	if err != nil {
		return err
	}

	var source string
	if !listSources {
		if len(args) == 0 {
			return errors.New("source is required (use --list-sources to see archived sources)")
		}
		source = args[0]
	}

	catalogDir, err := cmd.Flags().GetString("catalog-dir")
	if err != nil {
		return err
	}

	store, err := openCatalog(catalogDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	if listSources {
		return listCatalogSources(ctx, store)
	}

	listHistory, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listHistory {
		return listSourceHistory(ctx, store, source)
	}

	withRunID, err := cmd.Flags().GetInt64("with-run-id")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	return runComparison(ctx, store, source, withRunID, jsonOutput)
}

// listCatalogSources lists every source that has archived runs.
func listCatalogSources(ctx context.Context, store *catalog.Store) error {
	sources, err := store.Sources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if len(sources) == 0 {
		fmt.Println("No archived sources found.")
		fmt.Println("\nUse 'salvage scan <directory>' or 'salvage carve <image>' to recover files.")
		return nil
	}

	fmt.Printf("Archived sources (%d):\n\n", len(sources))
	for _, s := range sources {
		fmt.Printf("  • %s\n", s)
	}
	fmt.Println("\nUse 'salvage compare --list <source>' to see run history for a source.")

	return nil
}

// listSourceHistory lists all archived runs over one source.
func listSourceHistory(ctx context.Context, store *catalog.Store, source string) error {
	runs, err := store.RunsBySource(ctx, source, 0)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Printf("No run history found for %s\n", source)
		fmt.Println("\nUse 'salvage scan' or 'salvage carve' to recover from this source.")
		return nil
	}

	fmt.Printf("Run history for %s (%d runs):\n\n", source, len(runs))
	fmt.Printf("  %-6s  %-19s  %-9s  %-10s  %s\n",
		"ID", "Started", "Recovered", "Duplicates", "Truncated")
	fmt.Println("  " + strings.Repeat("-", 60))

	for _, r := range runs {
		fmt.Printf("  %-6d  %-19s  %-9d  %-10d  %d\n",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Recovered,
			r.Duplicates,
			r.Truncated,
		)
	}

	fmt.Println("\nUse 'salvage compare <source>' to compare the latest two runs.")
	fmt.Println("Use 'salvage compare --with-run-id <id> <source>' to compare with a specific run.")

	return nil
}

// runComparison performs the actual comparison between archived runs.
func runComparison(ctx context.Context, store *catalog.Store, source string, withRunID int64, jsonOutput bool) error {
	runs, err := store.RunsBySource(ctx, source, 0)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		return fmt.Errorf("no run history found for %s", source)
	}

	// Latest run is always the current one
	current := runs[0]

	var previous *catalog.RunSummary
	if withRunID > 0 {
		// Resolving the ID inside this source's history also validates
		// that the run belongs to the source
		for i := range runs {
			if runs[i].ID == withRunID {
				previous = &runs[i]
				break
			}
		}
		if previous == nil {
			return fmt.Errorf("run %d not found for %s (use --list to see run IDs)", withRunID, source)
		}
	} else {
		if len(runs) < 2 {
			return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
		}
		previous = &runs[1]
	}

	comparison, err := compareRuns(ctx, store, *previous, current)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(comparison)
	}
	return outputComparisonText(comparison)
}

// ComparisonResult holds the differences between two recovery runs.
type ComparisonResult struct {
	// Source is the evidence source both runs recovered from.
	Source string `json:"source"`

	// PreviousRun identifies the older side of the comparison.
	PreviousRun RunMetadata `json:"previous_run"`

	// CurrentRun identifies the newer side of the comparison.
	CurrentRun RunMetadata `json:"current_run"`

	// NewArtifacts were recovered by the current run only: content that
	// appeared on the source, or became recoverable.
	NewArtifacts []ArtifactRef `json:"new_artifacts,omitempty"`

	// MissingArtifacts were recovered by the previous run only: content
	// that has since been overwritten or lost.
	MissingArtifacts []ArtifactRef `json:"missing_artifacts,omitempty"`

	// UnchangedCount is the number of digests present in both runs.
	UnchangedCount int `json:"unchanged_count"`

	// Deltas are the run counter changes, current minus previous.
	Deltas StatDeltas `json:"deltas"`
}

// RunMetadata identifies one side of a comparison.
type RunMetadata struct {
	// ID is the run's catalog identifier.
	ID int64 `json:"id"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Recovered is the number of artifacts the run cataloged.
	Recovered int `json:"recovered"`

	// Duplicates is the number of suppressed duplicate extractions.
	Duplicates int `json:"duplicates"`

	// Truncated is the number of artifacts cut short by the carver.
	Truncated int `json:"truncated"`
}

// ArtifactRef names one artifact for comparison display.
type ArtifactRef struct {
	// Tag is the format the artifact was carved as.
	Tag string `json:"tag"`

	// Name is the artifact's file name inside its recovery directory.
	Name string `json:"name"`

	// Size is the artifact length in bytes.
	Size int64 `json:"size"`

	// Digest is the artifact's content hash.
	Digest string `json:"digest"`
}

// StatDeltas holds the counter changes between two runs.
type StatDeltas struct {
	// Recovered is the change in recovered artifact count.
	Recovered int `json:"recovered"`

	// Duplicates is the change in suppressed duplicate count.
	Duplicates int `json:"duplicates"`

	// Truncated is the change in truncated artifact count.
	Truncated int `json:"truncated"`
}

// compareRuns diffs the artifact digest sets of two archived runs.
func compareRuns(ctx context.Context, store *catalog.Store, previous, current catalog.RunSummary) (*ComparisonResult, error) {
	previousArtifacts, err := store.ArtifactsByRun(ctx, previous.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts of run %d: %w", previous.ID, err)
	}
	currentArtifacts, err := store.ArtifactsByRun(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts of run %d: %w", current.ID, err)
	}

	result := &ComparisonResult{
		Source:      current.Source,
		PreviousRun: runMetadata(previous),
		CurrentRun:  runMetadata(current),
		Deltas: StatDeltas{
			Recovered:  current.Recovered - previous.Recovered,
			Duplicates: current.Duplicates - previous.Duplicates,
			Truncated:  current.Truncated - previous.Truncated,
		},
	}

	previousByDigest := make(map[string]model.Artifact, len(previousArtifacts))
	for _, a := range previousArtifacts {
		previousByDigest[a.Hash] = a
	}
	currentByDigest := make(map[string]model.Artifact, len(currentArtifacts))
	for _, a := range currentArtifacts {
		currentByDigest[a.Hash] = a
	}

	// New artifacts: in current but not in previous
	for digest, a := range currentByDigest {
		if _, exists := previousByDigest[digest]; !exists {
			result.NewArtifacts = append(result.NewArtifacts, artifactRef(a))
		}
	}

	// Missing artifacts: in previous but not in current
	for digest, a := range previousByDigest {
		if _, exists := currentByDigest[digest]; !exists {
			result.MissingArtifacts = append(result.MissingArtifacts, artifactRef(a))
		} else {
			result.UnchangedCount++
		}
	}

	// Map order is random; sort for stable output
	sort.Slice(result.NewArtifacts, func(i, j int) bool {
		return result.NewArtifacts[i].Name < result.NewArtifacts[j].Name
	})
	sort.Slice(result.MissingArtifacts, func(i, j int) bool {
		return result.MissingArtifacts[i].Name < result.MissingArtifacts[j].Name
	})

	return result, nil
}

// runMetadata extracts the comparison metadata from a run summary.
func runMetadata(r catalog.RunSummary) RunMetadata {
	return RunMetadata{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		Recovered:  r.Recovered,
		Duplicates: r.Duplicates,
		Truncated:  r.Truncated,
	}
}

// artifactRef extracts the comparison display fields from an artifact.
func artifactRef(a model.Artifact) ArtifactRef {
	return ArtifactRef{
		Tag:    a.Tag,
		Name:   filepath.Base(a.Destination),
		Size:   a.Size,
		Digest: a.Hash,
	}
}

// outputComparisonText outputs the comparison result in human-readable
// text format.
func outputComparisonText(result *ComparisonResult) error {
	fmt.Printf("Run Comparison: %s\n", result.Source)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\nPrevious run: #%d  %s\n",
		result.PreviousRun.ID, result.PreviousRun.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Current run:  #%d  %s\n",
		result.CurrentRun.ID, result.CurrentRun.StartedAt.Format("2006-01-02 15:04:05"))

	fmt.Println("\nRun Summary:")
	fmt.Printf("  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Println("  " + strings.Repeat("-", 45))
	fmt.Printf("  %-10s  %-10d  %-10d  %-10s\n", "Recovered",
		result.PreviousRun.Recovered, result.CurrentRun.Recovered,
		formatDelta(result.Deltas.Recovered))
	fmt.Printf("  %-10s  %-10d  %-10d  %-10s\n", "Duplicates",
		result.PreviousRun.Duplicates, result.CurrentRun.Duplicates,
		formatDelta(result.Deltas.Duplicates))
	fmt.Printf("  %-10s  %-10d  %-10d  %-10s\n", "Truncated",
		result.PreviousRun.Truncated, result.CurrentRun.Truncated,
		formatDelta(result.Deltas.Truncated))

	if len(result.NewArtifacts) > 0 {
		fmt.Printf("\nNew Artifacts (%d):\n", len(result.NewArtifacts))
		for _, a := range result.NewArtifacts {
			fmt.Printf("  [+] %s (%s, %s)\n", a.Name, a.Tag, humanize.IBytes(uint64(a.Size)))
		}
	}

	if len(result.MissingArtifacts) > 0 {
		fmt.Printf("\nMissing Artifacts (%d):\n", len(result.MissingArtifacts))
		for _, a := range result.MissingArtifacts {
			fmt.Printf("  [-] %s (%s, %s)\n", a.Name, a.Tag, humanize.IBytes(uint64(a.Size)))
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Printf("\nUnchanged: %d artifacts\n", result.UnchangedCount)
	}

	return nil
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}
