// Package delegate sends orchestrator tasks to a language model and turns
// the replies into outcomes.
package delegate

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ShayCichocki/rlm/internal/orchestrator"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// SystemPrompt frames every dispatch.
const SystemPrompt = `You are one subagent in a recursive code and document analysis system.
You receive a single task. Either answer it directly, or, if it is too large,
delegate exactly one narrower sub-task and wait for its result; you will be
called again with the result under "Child results".

Reply with one JSON object and nothing else.`

var roleGuidance = map[models.Role]string{
	models.RoleExplorer:    "Survey the material, split the question into focused sub-tasks, and combine child results into a final answer.",
	models.RoleWorker:      "Examine the specific files or sections named in the context and report concrete findings.",
	models.RoleSynthesizer: "Merge the child results into one coherent answer without repeating them verbatim.",
}

const protocol = `Response protocol.

To answer:
` + "```json" + `
{"type": "RESULT", "content": "your analysis", "metadata": {}}
` + "```" + `

To delegate a sub-task:
` + "```json" + `
{"type": "CONTINUATION", "role": "Worker", "task": "what the sub-task must do", "context": {"key": "value"}, "return_to": "unique_result_key"}
` + "```"

// BuildPrompt renders the user message for one dispatch.
func BuildPrompt(req orchestrator.DispatchRequest) string {
	t := req.Task
	var b strings.Builder

	fmt.Fprintf(&b, "Role: %s\n", t.Role)
	if g, ok := roleGuidance[t.Role]; ok {
		fmt.Fprintf(&b, "%s\n", g)
	}
	fmt.Fprintf(&b, "\nTask: %s\n", t.Description)
	fmt.Fprintf(&b, "Depth: %d/%d\n", t.Depth, req.MaxDepth)
	if t.Depth >= req.MaxDepth {
		b.WriteString("You are at the maximum depth. Do not delegate; answer with a RESULT.\n")
	}

	if len(t.Context) > 0 {
		b.WriteString("\nContext:\n")
		b.WriteString(indentJSON(t.Context))
		b.WriteString("\n")
	}

	if len(t.ChildResults) > 0 {
		b.WriteString("\nChild results:\n")
		keys := make([]string, 0, len(t.ChildResults))
		for k := range t.ChildResults {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			r := t.ChildResults[k]
			if r == nil {
				continue
			}
			fmt.Fprintf(&b, "\n### %s\n%s\n", k, r.Content)
		}
	}

	b.WriteString("\n---\n")
	b.WriteString(protocol)
	b.WriteString("\n")
	return b.String()
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
