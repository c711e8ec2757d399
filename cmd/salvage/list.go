package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/salvage/internal/catalog"
	"github.com/nao1215/salvage/internal/config"
	"github.com/nao1215/salvage/internal/model"
)

// defaultListLimit bounds the run history listing when --limit is not
// given.
const defaultListLimit = 20

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived recovery runs and artifacts",
		Long: `List shows recovery runs archived in the local catalog.

Without flags it lists the most recent runs. With --run it lists the
artifacts one run recovered; with --tag it lists every archived
artifact of one format.

Examples:
  # List the 20 most recent runs
  salvage list

  # List more history
  salvage list --limit 50

  # List runs over one evidence source
  salvage list --source /evidence/usb_image.dd

  # List the artifacts recovered by run 12
  salvage list --run 12

  # List every archived JPEG
  salvage list --tag jpg

  # JSON output for scripting
  salvage list --json`,
		Args: cobra.NoArgs,
		RunE: runListCmd,
	}

	cmd.Flags().Int64("run", 0,
		"List artifacts recovered by the run with this ID")
	cmd.Flags().StringP("source", "s", "",
		"List runs over this evidence source only")
	cmd.Flags().StringP("tag", "t", "",
		"List archived artifacts with this format tag")
	cmd.Flags().IntP("limit", "n", defaultListLimit,
		"Maximum number of rows to list")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("catalog-dir", "",
		"Catalog directory (default: XDG data directory)")

	return cmd
}

// runListCmd executes the list command.
func runListCmd(cmd *cobra.Command, _ []string) error {
	runID, err := cmd.Flags().GetInt64("run")
	if err != nil {
		return err
	}
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	tag, err := cmd.Flags().GetString("tag")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
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

	switch {
	case runID > 0:
		return listRunArtifacts(ctx, store, runID, jsonOutput)
	case tag != "":
		return listTagArtifacts(ctx, store, tag, limit, jsonOutput)
	default:
		return listRuns(ctx, store, source, limit, jsonOutput)
	}
}

// openCatalog opens the archive read-style: an absent catalog is an
// operator hint, not a reason to create an empty one.
func openCatalog(catalogDir string) (*catalog.Store, error) {
	if catalogDir == "" {
		catalogDir = config.XDGDataDir()
	}

	store, err := catalog.Open(catalogDir, catalog.Options{
		CreateIfNotExists: false,
		EnableWAL:         true,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogNotFound) {
			return nil, fmt.Errorf("no catalog at %s (run 'salvage scan' or 'salvage carve' first)", catalogDir)
		}
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return store, nil
}

// listRuns lists archived run summaries, optionally for one source.
func listRuns(ctx context.Context, store *catalog.Store, source string, limit int, jsonOutput bool) error {
	var (
		runs []catalog.RunSummary
		err  error
	)
	if source != "" {
		runs, err = store.RunsBySource(ctx, source, limit)
	} else {
		runs, err = store.RunHistory(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}

	if len(runs) == 0 {
		if source != "" {
			fmt.Printf("No archived runs found for %s\n", source)
		} else {
			fmt.Println("No archived runs found.")
		}
		fmt.Println("\nUse 'salvage scan <directory>' or 'salvage carve <image>' to recover files.")
		return nil
	}

	fmt.Printf("Archived runs (%d):\n\n", len(runs))
	fmt.Printf("  %-6s  %-19s  %-6s  %-9s  %-10s  %s\n",
		"ID", "Started", "Mode", "Recovered", "Duplicates", "Source")
	fmt.Println("  " + strings.Repeat("-", 76))

	for _, r := range runs {
		fmt.Printf("  %-6d  %-19s  %-6s  %-9d  %-10d  %s\n",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Mode,
			r.Recovered,
			r.Duplicates,
			r.Source,
		)
	}

	fmt.Println("\nUse 'salvage list --run <id>' to list the artifacts of a run.")
	return nil
}

// listRunArtifacts lists the artifacts recovered by one archived run.
func listRunArtifacts(ctx context.Context, store *catalog.Store, runID int64, jsonOutput bool) error {
	run, err := store.RunByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	if run == nil {
		return fmt.Errorf("run %d not found (use 'salvage list' to see run IDs)", runID)
	}

	artifacts, err := store.ArtifactsByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(artifacts)
	}

	fmt.Printf("Run %d: %s (%s)\n", runID, run.Source, run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Recovered into %s\n\n", run.RecoveryDir)

	if len(artifacts) == 0 {
		fmt.Println("No artifacts were recovered by this run.")
		return nil
	}

	printArtifactTable(artifacts)
	return nil
}

// listTagArtifacts lists archived artifacts of one format across runs.
func listTagArtifacts(ctx context.Context, store *catalog.Store, tag string, limit int, jsonOutput bool) error {
	artifacts, err := store.ArtifactsByTag(ctx, tag, limit)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(artifacts)
	}

	if len(artifacts) == 0 {
		fmt.Printf("No archived artifacts with tag %q\n", tag)
		return nil
	}

	fmt.Printf("Archived %s artifacts (%d):\n\n", tag, len(artifacts))
	printArtifactTable(artifacts)
	return nil
}

// printArtifactTable renders artifact rows as an aligned table.
func printArtifactTable(artifacts []model.Artifact) {
	fmt.Printf("  %-5s  %-10s  %-12s  %s\n", "Tag", "Size", "Offset", "Artifact")
	fmt.Println("  " + strings.Repeat("-", 64))
	for _, a := range artifacts {
		fmt.Printf("  %-5s  %-10s  %-12d  %s\n",
			a.Tag,
			humanize.IBytes(uint64(a.Size)),
			a.Offset,
			filepath.Base(a.Destination),
		)
	}
}
