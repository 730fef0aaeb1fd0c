// Package report renders batch results and instrument checks for the CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/autoreduction/autosubmit/internal/batch"
	"github.com/autoreduction/autosubmit/internal/checks"
	"github.com/autoreduction/autosubmit/internal/rbcategory"
)

// OutputFormat specifies how results are written.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated reasons
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes the complete result as indented JSON
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates an --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	}
	return "", fmt.Errorf("invalid output format: %s (must be '%s' or '%s')", s, OutputFormatDefault, OutputFormatJSON)
}

// Write renders result in the requested format.
func Write(w io.Writer, result *batch.Result, format OutputFormat) error {
	if format == OutputFormatJSON {
		return FormatJSON(w, result)
	}
	FormatTable(w, result)
	return nil
}

// FormatTable writes a batch result as a table of runs.
// Columns: RUN, STATUS, RB NUMBER, CATEGORY, SOURCE and DETAIL.
// Returns the number of runs listed.
func FormatTable(w io.Writer, result *batch.Result) int {
	total := len(result.Submitted) + len(result.Skipped)
	if total == 0 {
		fmt.Fprintf(w, "No runs processed for %s (batch %s)\n", result.Instrument, formatID(result.BatchID))
		return 0
	}

	fmt.Fprintf(w, "Runs for %s (batch %s):\n\n", result.Instrument, formatID(result.BatchID))

	fmt.Fprintf(w, "%-9s %-10s %-10s %-22s %-10s %s\n",
		"RUN", "STATUS", "RB NUMBER", "CATEGORY", "SOURCE", "DETAIL")
	fmt.Fprintf(w, "%-9s %-10s %-10s %-22s %-10s %s\n",
		"---------", "----------", "----------", "----------------------", "----------", "----------------------------------------")

	for _, s := range result.Submitted {
		fmt.Fprintf(w, "%-9d %-10s %-10s %-22s %-10s %s\n",
			s.RunNumber, "submitted", dash(s.ExperimentID), s.Category, dash(string(s.Source)), truncate(s.DataLocation))
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(w, "%-9d %-10s %-10s %-22s %-10s %s\n",
			s.RunNumber, "skipped", "-", "-", "-", truncate(string(s.Stage)+": "+s.Reason))
	}

	fmt.Fprintf(w, "\n%d submitted, %d skipped\n", len(result.Submitted), len(result.Skipped))
	return total
}

// FormatJSON writes the complete result as pretty-printed JSON.
func FormatJSON(w io.Writer, result *batch.Result) error {
	out := *result
	if out.Submitted == nil {
		out.Submitted = []batch.Submission{}
	}
	if out.Skipped == nil {
		out.Skipped = []batch.Skip{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatCategories writes one "RB  category" line per RB number.
func FormatCategories(w io.Writer, rbNumbers []string) {
	for _, rb := range rbNumbers {
		fmt.Fprintf(w, "%-10s %s\n", rb, rbcategory.Classify(rb))
	}
}

// FormatActivity writes the last-run check as a table.
func FormatActivity(w io.Writer, statuses []checks.Status, now time.Time) {
	fmt.Fprintf(w, "%-12s %-8s %s\n", "INSTRUMENT", "STATUS", "LAST RUN")
	fmt.Fprintf(w, "%-12s %-8s %s\n", "------------", "--------", "----------")
	for _, s := range statuses {
		state := "ok"
		switch {
		case !s.Active:
			state = "inactive"
		case s.Stale:
			state = "STALE"
		}
		fmt.Fprintf(w, "%-12s %-8s %s\n", s.Instrument, state, formatAge(s.LastFinished, now))
	}
}

// formatID truncates a batch ID to its first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens details to 60 characters for table display.
func truncate(s string) string {
	if s == "" {
		return "-"
	}
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge shows relative time like "2m ago", "1h ago", or "never".
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := now.Sub(t)
	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
}
