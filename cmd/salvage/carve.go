package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/salvage/internal/scanner"
)

// NewCarveCmd creates the carve command.
func NewCarveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carve [image-file]...",
		Short: "Carve files out of raw disk images",
		Long: `Carve sweeps raw disk or partition images byte by byte for known
format headers and extracts the matching content, including files whose
directory entries are long gone.

Each extraction is bounded by the format's registered size limits, the
next signature match, or the safety cap; it is then hashed,
deduplicated, and archived exactly like a scanned file. The image
itself is never modified.

Examples:
  # Carve a USB stick image
  salvage carve /evidence/usb_image.dd

  # Carve several images concurrently
  salvage carve --batch 2 usb.dd sdcard.dd

  # Only photos, with a 32 MiB per-file safety cap
  salvage carve --tags jpg,png --safety-cap 32MiB usb.dd

  # List match offsets without extracting anything
  salvage carve --dry-run usb.dd

  # Markdown report into a file
  salvage carve --markdown -o report.md usb.dd`,
		Args: cobra.ArbitraryArgs,
		RunE: runCarveCmd,
	}

	addRecoveryFlags(cmd)

	// Buffer carving flags
	cmd.Flags().String("safety-cap", "",
		"Maximum size of one unbounded extraction, e.g. 10MiB (default: 10 MiB)")

	return cmd
}

// runCarveCmd executes the carve command.
func runCarveCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	safetyCap, err := cmd.Flags().GetString("safety-cap")
	if err != nil {
		return err
	}
	if safetyCap != "" {
		capBytes, err := humanize.ParseBytes(safetyCap)
		if err != nil {
			return fmt.Errorf("invalid safety cap %q: %w", safetyCap, err)
		}
		cfg.SafetyCap = int64(capBytes)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if len(cfg.Sources) == 0 {
		return errors.New("no images provided (specify one or more disk image files as arguments)")
	}

	// Buffer mode is memory-resident: each image is read up front
	sources := make([]scanner.Source, 0, len(cfg.Sources))
	for _, path := range cfg.Sources {
		src, err := scanner.BufferSourceFromFile(path)
		if err != nil {
			return err
		}
		sources = append(sources, src)
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
