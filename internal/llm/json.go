package llm

import (
	"encoding/json"
	"strings"

	daacserrors "github.com/Iron-Ham/daacs/internal/errors"
)

// ExtractJSON pulls the outermost JSON object out of a model response. Code
// fences and surrounding prose are dropped.
func ExtractJSON(text string) (string, bool) {
	stripped := strings.TrimSpace(text)
	if strings.HasPrefix(stripped, "```") {
		stripped = strings.Trim(stripped, "`")
		stripped = strings.TrimSpace(strings.TrimPrefix(stripped, "json"))
	}
	start := strings.Index(stripped, "{")
	end := strings.LastIndex(stripped, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return stripped[start : end+1], true
}

// ParseJSON decodes the JSON object embedded in text.
func ParseJSON(text string) (map[string]any, error) {
	candidate, ok := ExtractJSON(text)
	if !ok {
		return nil, daacserrors.ErrInvalidJSON
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, daacserrors.Wrap(daacserrors.ErrInvalidJSON, err.Error())
	}
	return obj, nil
}
