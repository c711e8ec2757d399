// Package main provides the entry point for the salvage CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for salvage.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salvage",
		Short: "Signature-based recovery of deleted files",
		Long: `Salvage recovers deleted and orphaned files by their content signatures.

It walks directory trees or sweeps raw disk images for known format
headers (photos, documents, archives, databases, media), carves the
matching content back out, verifies it, and archives every run in a
local catalog.

Recovered artifacts are written to a timestamped recovery directory
and never modified afterwards; each one carries its content digest.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCarveCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewInspectCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
