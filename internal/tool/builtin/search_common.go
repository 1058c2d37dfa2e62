package builtin

import (
	"fmt"
	"strings"

	"github.com/vibecli/vibe-core/internal/tool"
	"github.com/vibecli/vibe-core/internal/util"
)

const (
	searchDescMaxRunes  = 300
	searchQueryMaxRunes = 1000
)

// searchResult is a single result entry shared between search tools.
type searchResult struct {
	Title       string
	URL         string
	Description string
}

// parseSearchQuery extracts and validates the "query" parameter.
func parseSearchQuery(args tool.ToolArgs) (string, error) {
	q := strings.TrimSpace(args.GetOr("query", ""))
	if q == "" {
		return "", fmt.Errorf("query is required")
	}
	if len([]rune(q)) > searchQueryMaxRunes {
		return "", fmt.Errorf("query too long (max %d characters)", searchQueryMaxRunes)
	}
	return q, nil
}

// formatSearchResults formats a slice of searchResult into a human-readable string.
func formatSearchResults(results []searchResult) string {
	if len(results) == 0 {
		return "no results found"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d results:\n\n", len(results)))
	for i, r := range results {
		desc := util.TruncateRunes(r.Description, searchDescMaxRunes)
		sb.WriteString(fmt.Sprintf("[%d] %s\n    %s\n    %s\n\n", i+1, r.Title, r.URL, desc))
	}
	return sb.String()
}
