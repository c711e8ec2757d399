package report

import (
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/salvage/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	// Header
	w.writeHeader(md, report)

	// Summary
	w.writeSummary(md, report)

	// Artifact table
	w.writeArtifacts(md, report)

	// Footer
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("Salvage Recovery Report")
	md.PlainText("")

	// Basic info table
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Source", "`" + report.Source + "`"},
			{"Mode", cases.Title(language.English).String(report.ModeName)},
			{"Recovery Dir", "`" + report.RecoveryDir + "`"},
			{"Hash Algorithm", report.HashAlgorithm},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().String()},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.RunReport) string {
	if report.ErrorMessage != "" {
		return "❌ Failed - " + report.ErrorMessage
	}
	return "✅ Complete"
}

// writeSummary writes the run counter section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Run Summary")
	md.PlainText("")

	stats := report.Stats
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Files Scanned", strconv.Itoa(stats.FilesScanned)},
			{"Bytes Scanned", humanize.IBytes(uint64(stats.BytesScanned))},
			{"Candidates", strconv.Itoa(stats.Candidates)},
			{"**Recovered**", "**" + strconv.Itoa(stats.Recovered) + "** (" + humanize.IBytes(uint64(report.TotalRecoveredBytes())) + ")"},
			{"Duplicates", strconv.Itoa(stats.Duplicates)},
			{"Dropped Below Minimum", strconv.Itoa(stats.DroppedBelowMin)},
			{"Skipped Unreadable", strconv.Itoa(stats.SkippedUnreadable)},
			{"Truncated", strconv.Itoa(stats.Truncated)},
		},
	})
	md.PlainText("")

	// Add pie chart if anything was recovered
	if report.HasFindings() {
		w.writePieChart(md, report)
	}

	// Add alert based on run state
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of artifacts per format.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.RunReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Artifacts by Format"),
		piechart.WithShowData(true),
	)

	counts := report.CountByTag()
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		chart.LabelAndIntValue(tag, uint64(counts[tag]))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the run outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.RunReport) {
	stats := report.Stats
	switch {
	case report.ErrorMessage != "":
		md.Cautionf("Recovery run failed: %s", report.ErrorMessage)
	case stats.Truncated > 0:
		md.Warningf(
			"%d artifact(s) were cut at the safety cap before a boundary was found. Their digests cover the extracted bytes only.",
			stats.Truncated,
		)
	case stats.SkippedUnreadable > 0:
		md.Importantf(
			"%d file(s) could not be read and were skipped. Artifacts may be missing from this report.",
			stats.SkippedUnreadable,
		)
	case !report.HasFindings():
		md.Note("No recoverable content matched the registered signatures.")
	default:
		md.Tip("All artifacts were recovered cleanly and verified.")
	}
	md.PlainText("")
}

// writeArtifacts writes the recovered artifact table.
func (w *MarkdownWriter) writeArtifacts(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Recovered Artifacts")
	md.PlainText("")

	if !report.HasFindings() {
		md.PlainText("No artifacts recovered.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Artifacts))
	for i, a := range report.Artifacts {
		truncated := "-"
		if a.Truncated {
			truncated = "yes"
		}

		rows[i] = []string{
			truncateString(filepath.Base(a.Destination), 40),
			a.Tag,
			humanize.IBytes(uint64(a.Size)),
			strconv.FormatInt(a.Offset, 10),
			shortDigest(a.Hash),
			truncated,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Artifact", "Format", "Size", "Offset", "Digest", "Truncated"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [salvage](https://github.com/nao1215/salvage)*")
}

// shortDigest abbreviates a content hash for table display.
func shortDigest(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
