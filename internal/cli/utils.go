// Package cli provides terminal output, an HTTP session client and the interactive demo loop.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/findify/internal/models"
	"github.com/hyperjump/findify/pkg/utils"
)

// OutputFormat is the format for session state output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const descriptionWidth = 120

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteState writes a session state to w in the given format.
func WriteState(w io.Writer, state models.SessionState, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	case OutputCompact:
		for _, r := range state.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Category, r.Title)
		}
		return nil
	default:
		writeStateText(w, state)
		return nil
	}
}

func writeStateText(w io.Writer, state models.SessionState) {
	fmt.Fprintf(w, "\nQuery: %q\n", state.Query)
	fmt.Fprintln(w, PageSummary(state))
	fmt.Fprintln(w)
	WriteResults(w, state.Results, 0)
	if len(state.Messages) > 0 {
		fmt.Fprintln(w, "--- Chat ---")
		for _, m := range state.Messages {
			WriteMessage(w, m)
		}
	}
}

// PageSummary describes the paging position of state in one line.
func PageSummary(state models.SessionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page %d of %d, %d results", state.Page, state.MaxPages, len(state.Results))
	switch {
	case state.Loading:
		b.WriteString(" (loading)")
	case state.HasMore:
		b.WriteString(" (more available)")
	case state.Page > 0:
		b.WriteString(" (no more results)")
	}
	return b.String()
}

// WriteResults prints results numbered from offset+1.
func WriteResults(w io.Writer, results []models.SearchResult, offset int) {
	for i, r := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. [%s] %s\n", offset+i+1, r.Category, r.Title)
		fmt.Fprintf(w, "   %s | %s\n", r.ID, r.Timestamp.Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "   %s\n", utils.Truncate(r.Description, descriptionWidth))
	}
	if len(results) > 0 {
		fmt.Fprintln(w)
	}
}

// WriteMessage prints one chat message with its role.
func WriteMessage(w io.Writer, m models.ChatMessage) {
	fmt.Fprintf(w, "[%s] %s\n", m.Role, m.Content)
}
