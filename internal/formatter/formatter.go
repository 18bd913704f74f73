// package formatter renders run reports to various formats (plain text, JSON, CSV, Markdown)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// Format is a report output format.
type Format string

const (
	Text     Format = "text"
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// FormatFromPath picks the report format from a file extension. No extension or .txt means plain text.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case "", ".txt", ".text", ".log":
		return Text, nil
	case ".json":
		return JSON, nil
	case ".csv":
		return CSV, nil
	case ".md", ".markdown":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: unsupported report extension %q", shared.ErrInvalidArgument, ext)
	}
}

// Render converts report to the given format.
func Render(report *models.RunReport, format Format) ([]byte, error) {
	switch format {
	case Text:
		return ReportToText(report)
	case JSON:
		return ReportToJSON(report)
	case CSV:
		return UnmatchedToCSV(report)
	case Markdown:
		return ReportToMarkdown(report)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

func verbs(report *models.RunReport) (added, removed string) {
	if report.DryRun {
		return "Would add", "Would remove"
	}
	return "Added", "Removed"
}

// ReportToText converts a RunReport to plain text with a summary followed by the unmatched lines and failed batches
func ReportToText(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	added, removed := verbs(report)

	fmt.Fprintf(&buf, "Playlist: %s\n", report.Playlist)
	if report.PlaylistID != "" {
		fmt.Fprintf(&buf, "Playlist ID: %s\n", report.PlaylistID)
	}
	fmt.Fprintf(&buf, "Run: %s\n", report.RunID)
	fmt.Fprintf(&buf, "Policy: %s\n", report.Policy)
	if report.DryRun {
		buf.WriteString("Dry run: no changes were made\n")
	}
	if report.Created {
		buf.WriteString("Playlist created\n")
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "Lines: %d\n", len(report.Entries))
	fmt.Fprintf(&buf, "Matched: %d\n", report.MatchedCount())
	fmt.Fprintf(&buf, "%s: %d\n", added, report.Added)
	fmt.Fprintf(&buf, "Already present: %d\n", report.AlreadyPresent)
	fmt.Fprintf(&buf, "%s: %d\n", removed, report.Removed)
	fmt.Fprintf(&buf, "Unmatched: %d\n", len(report.Unmatched))
	fmt.Fprintf(&buf, "Failed batches: %d\n", len(report.FailedMutations))
	if d := report.Duration(); d > 0 {
		fmt.Fprintf(&buf, "Duration: %s\n", d.Round(time.Millisecond))
	}

	if len(report.Unmatched) > 0 {
		buf.WriteString("\nUnmatched lines:\n")
		for _, e := range report.Unmatched {
			fmt.Fprintf(&buf, "  %d. [%s] %s: %s\n", e.Query.Line, e.Status, e.Query.Raw, e.Reason)
		}
	}

	if len(report.FailedMutations) > 0 {
		buf.WriteString("\nFailed batches:\n")
		for _, f := range report.FailedMutations {
			fmt.Fprintf(&buf, "  %s #%d (%d tracks): %s\n", f.Op, f.Batch, len(f.TrackIDs), f.Reason)
		}
	}

	return buf.Bytes(), nil
}

// ReportToJSON converts a RunReport to indented JSON
func ReportToJSON(report *models.RunReport) ([]byte, error) {
	data, err := shared.MarshalJSON(report, true)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// UnmatchedToCSV converts the unmatched lines of a RunReport to CSV with columns: Line, Raw, Track, Artist, Album, Status, Reason, Best Candidate, Confidence
//
// The Raw column can be edited and fed back as input.
func UnmatchedToCSV(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Line", "Raw", "Track", "Artist", "Album", "Status", "Reason", "Best Candidate", "Confidence"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range report.Unmatched {
		candidate := ""
		if e.Candidate != nil {
			candidate = e.Candidate.ID
		}
		record := []string{
			strconv.Itoa(e.Query.Line),
			e.Query.Raw,
			e.Query.Track,
			e.Query.Artist,
			e.Query.Album,
			e.Status.String(),
			e.Reason,
			candidate,
			strconv.FormatFloat(e.Confidence, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown converts a RunReport to Markdown with a summary table and the unmatched lines
func ReportToMarkdown(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	added, removed := verbs(report)

	fmt.Fprintf(&buf, "# %s\n\n", report.Playlist)
	if report.DryRun {
		buf.WriteString("> Dry run: no changes were made\n\n")
	}
	fmt.Fprintf(&buf, "**Run**: %s\n", report.RunID)
	fmt.Fprintf(&buf, "**Policy**: %s\n", report.Policy)
	if !report.StartedAt.IsZero() {
		fmt.Fprintf(&buf, "**Started**: %s\n", report.StartedAt.Format(time.RFC3339))
	}
	buf.WriteString("\n")

	buf.WriteString("| | Tracks |\n|---|---|\n")
	fmt.Fprintf(&buf, "| Matched | %d / %d |\n", report.MatchedCount(), len(report.Entries))
	fmt.Fprintf(&buf, "| %s | %d |\n", added, report.Added)
	fmt.Fprintf(&buf, "| Already present | %d |\n", report.AlreadyPresent)
	fmt.Fprintf(&buf, "| %s | %d |\n", removed, report.Removed)
	fmt.Fprintf(&buf, "| Unmatched | %d |\n", len(report.Unmatched))
	fmt.Fprintf(&buf, "| Failed batches | %d |\n", len(report.FailedMutations))

	if len(report.Unmatched) > 0 {
		buf.WriteString("\n## Unmatched\n\n")
		for _, e := range report.Unmatched {
			fmt.Fprintf(&buf, "- Line %d `%s` (%s): %s\n", e.Query.Line, e.Query.Raw, e.Status, e.Reason)
		}
	}

	if len(report.FailedMutations) > 0 {
		buf.WriteString("\n## Failed batches\n\n")
		for _, f := range report.FailedMutations {
			fmt.Fprintf(&buf, "- %s batch %d, %d tracks: %s\n", f.Op, f.Batch, len(f.TrackIDs), f.Reason)
		}
	}

	return buf.Bytes(), nil
}

// HistoryToText renders stored run summaries as an aligned list, newest first as given.
func HistoryToText(runs []models.RunSummary) []byte {
	var buf bytes.Buffer
	if len(runs) == 0 {
		buf.WriteString("No runs recorded\n")
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "%-4s %-8s %-20s %-24s %-9s %5s %5s %5s %5s\n", "#", "ID", "Started", "Playlist", "Policy", "Add", "Rem", "Miss", "Fail")
	for _, s := range runs {
		policy := s.Policy.String()
		if s.DryRun {
			policy += "*"
		}
		fmt.Fprintf(&buf, "%-4d %-8s %-20s %-24s %-9s %5d %5d %5d %5d\n",
			s.Sequence, shortID(s.RunID), s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(s.Playlist, 24), policy, s.Added, s.Removed, s.Unmatched, s.FailedMutations)
	}
	return buf.Bytes()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// WriteReport renders report in the format implied by path's extension and writes it, creating parent directories.
//
// Returns the path written.
func WriteReport(report *models.RunReport, path string) (string, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return "", err
	}

	data, err := Render(report, format)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}
