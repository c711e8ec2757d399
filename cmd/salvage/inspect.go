package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/salvage/internal/inspect"
	"github.com/nao1215/salvage/internal/log"
)

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [artifact]...",
		Short: "Inspect recovered artifacts for identifying metadata",
		Long: `Inspect examines recovered artifacts and surfaces metadata that says
where they came from: EXIF camera and GPS data in photos, table
contents in carved databases, titles and addresses in saved pages.

The format is inferred from the file extension. Use --tag when the
artifact has no extension or a misleading one. Artifacts are opened
read-only and never modified.

Examples:
  # Inspect one recovered photo
  salvage inspect forensic_recovery/20250314_092653/jpg_000001.jpg

  # Inspect everything a run recovered
  salvage inspect forensic_recovery/20250314_092653/*

  # Force the format when the extension is missing
  salvage inspect --tag sqlite suspicious.bin

  # JSON output
  salvage inspect --json jpg_000001.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: runInspectCmd,
	}

	cmd.Flags().StringP("tag", "t", "",
		"Format tag to inspect as (default: inferred from the extension)")
	cmd.Flags().BoolP("json", "j", false,
		"Output findings in JSON format")

	return cmd
}

// runInspectCmd executes the inspect command.
func runInspectCmd(cmd *cobra.Command, args []string) error {
	tagOverride, err := cmd.Flags().GetString("tag")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if getVerboseFlag(cmd) {
		level = slog.LevelDebug
	}
	logger, err := log.NewLogger(os.Stderr, log.WithLevel(level))
	if err != nil {
		return err
	}

	runner := inspect.NewRunner(inspect.WithLogger(logger))
	ctx := context.Background()

	var findings []inspect.Finding
	for _, path := range args {
		tag := tagOverride
		if tag == "" {
			tag = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		}
		if tag == "" {
			fmt.Fprintf(os.Stderr, "Cannot infer a format for %s (use --tag)\n", path)
			continue
		}

		results, err := runner.Run(ctx, tag, path)
		if err != nil {
			if errors.Is(err, inspect.ErrNoInspector) {
				fmt.Fprintf(os.Stderr, "No inspector for %s artifacts: %s\n", tag, path)
				continue
			}
			fmt.Fprintf(os.Stderr, "Inspection error for %s: %v\n", path, err)
			continue
		}
		findings = append(findings, results...)
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(findings)
	}

	if len(findings) == 0 {
		fmt.Println("No findings.")
		return nil
	}
	for _, f := range findings {
		printFinding(f)
	}
	return nil
}

// printFinding renders one finding with its details indented.
func printFinding(f inspect.Finding) {
	fmt.Printf("%s (%s)\n", f.Path, f.Inspector)
	fmt.Printf("  %s\n", f.Summary)
	for _, d := range f.Details {
		if d.Note != "" {
			fmt.Printf("    %s: %s (%s)\n", d.Key, d.Value, d.Note)
		} else {
			fmt.Printf("    %s: %s\n", d.Key, d.Value)
		}
	}
	fmt.Println()
}
