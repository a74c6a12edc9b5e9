package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ecomstack/shelfsort/internal/common"
)

// cleanMarkdownWrapper strips a ```json ... ``` fence if the model
// wrapped its output in one despite instructions.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx != -1 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	return strings.TrimSpace(content)
}

// parseClassifyPayload decodes the model's JSON body into a
// ClassifyResponse. Anything that is not valid JSON in the expected shape
// is a malformed response, never a hard failure for the caller.
func parseClassifyPayload(content string) (ClassifyResponse, error) {
	content = cleanMarkdownWrapper(content)

	var resp ClassifyResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return ClassifyResponse{}, fmt.Errorf("%w: %v", common.ErrMalformedResponse, err)
	}

	// A suggestion without a name is no suggestion at all.
	if resp.NewCollectionSuggestion != nil && strings.TrimSpace(resp.NewCollectionSuggestion.SuggestedName) == "" {
		resp.NewCollectionSuggestion = nil
	}

	return resp, nil
}
