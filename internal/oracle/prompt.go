package oracle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/propflow/veritas/internal/model"
)

// buildPrompt renders a formula into an evaluation request for an LLM-backed
// provider. The response contract is a bare JSON object with a single numeric
// "result" field.
func buildPrompt(f model.Formula) string {
	var sb strings.Builder

	sb.WriteString("Evaluate the following ")
	sb.WriteString(string(f.Kind))
	sb.WriteString(" formula extracted from a property management report.\n\n")
	sb.WriteString("Expression: ")
	sb.WriteString(f.Expression)
	sb.WriteString("\n\nVariable bindings:\n")

	names := make([]string, 0, len(f.Variables))
	for name := range f.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "  %s = %g\n", name, f.Variables[name])
	}

	sb.WriteString("\nRespond with ONLY a JSON object in this exact format:\n")
	sb.WriteString(`{"result": <number>}`)
	sb.WriteString("\nDo not include any explanation or units.")

	return sb.String()
}

// parseNumeric extracts the numeric result from a provider's text response.
// Failure to parse is a malformed-response error, not a transport error.
func parseNumeric(content string) (float64, error) {
	content = cleanMarkdownWrapper(content)

	var resp struct {
		Result *float64 `json:"result"`
	}
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return 0, NewCallError(ErrMalformed, fmt.Errorf("failed to parse JSON response: %w", err))
	}
	if resp.Result == nil {
		return 0, NewCallError(ErrMalformed, fmt.Errorf("no result field in response"))
	}

	return *resp.Result, nil
}

// cleanMarkdownWrapper strips ```json fences that some models wrap around
// JSON output.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
