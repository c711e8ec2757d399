package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/salvage/internal/model"
)

// DefaultArtifactLimit caps the artifact listing in terminal output.
// Large image carves can produce thousands of artifacts; the full list
// lives in the JSON report and the catalog.
const DefaultArtifactLimit = 100

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no artifacts are shown.
	showEmpty bool

	// verbose adds source, offset, and digest lines per artifact.
	verbose bool

	// artifactLimit caps the artifact list. Zero means no cap.
	artifactLimit int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithArtifactLimit caps the number of listed artifacts. Zero removes
// the cap.
func WithArtifactLimit(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.artifactLimit = n
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:    newBaseWriter(output),
		showEmpty:     false,
		verbose:       false,
		artifactLimit: DefaultArtifactLimit,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	// Header
	w.writeHeader(&sb, report)

	// Summary counters
	w.writeSummary(&sb, report)

	// Per-format counts
	w.writeFormats(&sb, report)

	// Artifact listing
	w.writeArtifacts(&sb, report)

	// Footer
	w.writeFooter(&sb)

	// Write to output
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       SALVAGE RECOVERY REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Source:        %s\n", report.Source))
	sb.WriteString(fmt.Sprintf("Mode:          %s\n", cases.Title(language.English).String(report.ModeName)))
	sb.WriteString(fmt.Sprintf("Recovery Dir:  %s\n", report.RecoveryDir))
	sb.WriteString(fmt.Sprintf("Hash:          %s\n", report.HashAlgorithm))
	sb.WriteString(fmt.Sprintf("Started:       %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:      %s\n", report.Duration()))

	if report.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Status:        FAILED - %s\n", report.ErrorMessage))
	} else {
		sb.WriteString("Status:        Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the run counter section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	stats := report.Stats
	sb.WriteString(fmt.Sprintf("  %-22s %d\n", "Files Scanned:", stats.FilesScanned))
	sb.WriteString(fmt.Sprintf("  %-22s %s\n", "Bytes Scanned:", humanize.IBytes(uint64(stats.BytesScanned))))
	sb.WriteString(fmt.Sprintf("  %-22s %d\n", "Candidates:", stats.Candidates))
	sb.WriteString(fmt.Sprintf("  %-22s %d (%s)\n", "Recovered:", stats.Recovered, humanize.IBytes(uint64(report.TotalRecoveredBytes()))))
	sb.WriteString(fmt.Sprintf("  %-22s %d\n", "Duplicates:", stats.Duplicates))
	sb.WriteString(fmt.Sprintf("  %-22s %d\n", "Dropped (too small):", stats.DroppedBelowMin))
	sb.WriteString(fmt.Sprintf("  %-22s %d\n", "Skipped (unreadable):", stats.SkippedUnreadable))
	sb.WriteString(fmt.Sprintf("  %-22s %d\n", "Truncated:", stats.Truncated))
	sb.WriteString("\n")
}

// writeFormats writes the per-format artifact counts.
func (w *SimpleWriter) writeFormats(sb *strings.Builder, report *model.RunReport) {
	counts := report.CountByTag()
	if len(counts) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ARTIFACTS BY FORMAT\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(counts) == 0 {
		sb.WriteString("  No artifacts recovered\n")
	} else {
		tags := make([]string, 0, len(counts))
		for tag := range counts {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		for _, tag := range tags {
			sb.WriteString(fmt.Sprintf("  [+] %-8s %d\n", tag, counts[tag]))
		}
	}
	sb.WriteString("\n")
}

// writeArtifacts writes the recovered artifact listing.
func (w *SimpleWriter) writeArtifacts(sb *strings.Builder, report *model.RunReport) {
	if !report.HasFindings() && !w.showEmpty {
		return
	}

	arts := report.Artifacts
	limited := w.artifactLimit > 0 && len(arts) > w.artifactLimit
	if limited {
		arts = arts[:w.artifactLimit]
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	if limited {
		sb.WriteString(fmt.Sprintf("RECOVERED ARTIFACTS (first %d of %d)\n", len(arts), len(report.Artifacts)))
	} else {
		sb.WriteString("RECOVERED ARTIFACTS\n")
	}
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(arts) == 0 {
		sb.WriteString("  No artifacts recovered\n")
	}

	for _, art := range arts {
		marker := ""
		if art.Truncated {
			marker = " [truncated]"
		}
		sb.WriteString(fmt.Sprintf("  * %s (%s, %s)%s\n",
			filepath.Base(art.Destination), art.Tag, humanize.IBytes(uint64(art.Size)), marker))

		if w.verbose {
			sb.WriteString(fmt.Sprintf("    Source: %s (offset %d)\n", art.Source, art.Offset))
			sb.WriteString(fmt.Sprintf("    Digest: %s\n", art.Hash))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by salvage\n")
	sb.WriteString("https://github.com/nao1215/salvage\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
