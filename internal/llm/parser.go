package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taxquill/taxquill/internal/catalog"
)

// cleanMarkdownWrapper strips ```json fences that models sometimes emit
// despite the system prompt.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	return strings.TrimSpace(content)
}

// parseResponse parses and validates the model's JSON output. Anything that
// fails validation here is a per-item classification failure upstream.
func parseResponse(content string) (Response, error) {
	var jsonResp struct {
		Category    string   `json:"category"`
		Line        string   `json:"line"`
		Reasoning   string   `json:"reasoning"`
		QuickLabels []string `json:"quickLabels"`
		Confidence  float64  `json:"confidence"`
		IsMeal      bool     `json:"isMeal"`
		IsTravel    bool     `json:"isTravel"`
	}

	content = cleanMarkdownWrapper(content)

	if err := json.Unmarshal([]byte(content), &jsonResp); err != nil {
		return Response{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if jsonResp.Category == "" {
		return Response{}, fmt.Errorf("no category found in response")
	}
	if jsonResp.Confidence < 0 || jsonResp.Confidence > 1 {
		return Response{}, fmt.Errorf("confidence %.2f out of range", jsonResp.Confidence)
	}
	if len(jsonResp.QuickLabels) < 3 {
		return Response{}, fmt.Errorf("expected 3-4 quick labels, got %d", len(jsonResp.QuickLabels))
	}
	if len(jsonResp.QuickLabels) > 4 {
		jsonResp.QuickLabels = jsonResp.QuickLabels[:4]
	}

	// The catalog is authoritative for line mapping; the model's line field is
	// accepted only when it agrees with the table.
	line := catalog.LineFor(jsonResp.Category)
	if cat, ok := catalog.Lookup(jsonResp.Category); ok {
		line = cat.ScheduleCLine
	} else if jsonResp.Line != "" {
		line = jsonResp.Line
	}

	return Response{
		Category:      jsonResp.Category,
		ScheduleCLine: line,
		Reasoning:     jsonResp.Reasoning,
		QuickLabels:   jsonResp.QuickLabels,
		Confidence:    jsonResp.Confidence,
		IsMeal:        jsonResp.IsMeal,
		IsTravel:      jsonResp.IsTravel,
	}, nil
}
