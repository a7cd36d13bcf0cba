// Package cli provides output formatting for the Kensaku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kensaku-io/kensaku/internal/models"
)

// OutputFormat selects how query results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// QueryOutput bundles everything a query returns for printing.
type QueryOutput struct {
	Results    []*models.QueryResult    `json:"results"`
	Context    string                   `json:"context"`
	Highlights []models.HighlightRegion `json:"highlights,omitempty"`
}

// WriteQueryResults writes query results to w in the given format.
func WriteQueryResults(w io.Writer, out *QueryOutput, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		writeQueryResultsText(w, out)
		return nil
	}
}

func writeQueryResultsText(w io.Writer, out *QueryOutput) {
	fmt.Fprintf(w, "\nFound %d results\n\n", len(out.Results))
	for rank, result := range out.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", rank+1, result.Score)
		fmt.Fprintf(w, "%s\n", Citation(result.Metadata))
		fmt.Fprintf(w, "\n%s\n\n", TruncateWords(result.Text, 80))
	}
	if len(out.Highlights) > 0 {
		fmt.Fprintf(w, "Highlights: %d region(s)\n", len(out.Highlights))
	}
}

// Citation formats a result's source for display, e.g.
// "Source: report.pdf (pages 1, 3)".
func Citation(meta models.ChunkMetadata) string {
	source := "unknown"
	if meta.Filename != nil && *meta.Filename != "" {
		source = *meta.Filename
	}
	if len(meta.PageNumbers) == 0 {
		return "Source: " + source
	}
	pages := make([]string, len(meta.PageNumbers))
	for i, p := range meta.PageNumbers {
		pages[i] = fmt.Sprintf("%d", p)
	}
	return fmt.Sprintf("Source: %s (pages %s)", source, strings.Join(pages, ", "))
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
