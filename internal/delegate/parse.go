package delegate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/rlm/pkg/models"
)

// Error kinds reported by this package.
const (
	KindProtocol = "protocol"
	KindAPI      = "api"
	KindConfig   = "config"
)

// Error is a delegation failure. The orchestrator reads Kind through
// ErrorKind.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind returns Kind.
func (e *Error) ErrorKind() string {
	return e.Kind
}

// wireOutcome is the JSON object a worker replies with. Continuations may
// name the role as "role" or "agent_type".
type wireOutcome struct {
	Type       string         `json:"type"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	TokenCount int            `json:"token_count"`
	CostUSD    float64        `json:"cost_usd"`
	Role       string         `json:"role"`
	AgentType  string         `json:"agent_type"`
	Task       string         `json:"task"`
	Context    map[string]any `json:"context"`
	ReturnTo   string         `json:"return_to"`
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n(.*?)```")

// ParseOutcome decodes a worker reply. The JSON object may be wrapped in a
// markdown fence or surrounded by prose. A reply with no tagged JSON object
// is taken as a plain-text result; an object with an unrecognized "type" is
// a protocol error.
func ParseOutcome(data []byte) (models.Outcome, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return models.Outcome{}, &Error{Kind: KindProtocol, Message: "empty response"}
	}

	w, ok := findTagged(text)
	if !ok {
		return models.ResultOutcome(&models.AnalysisResult{Content: text}), nil
	}

	var out models.Outcome
	switch strings.ToUpper(w.Type) {
	case "RESULT":
		out = models.ResultOutcome(&models.AnalysisResult{
			Content:    w.Content,
			Metadata:   w.Metadata,
			TokenCount: w.TokenCount,
			CostUSD:    w.CostUSD,
		})
	case "CONTINUATION":
		role := w.Role
		if role == "" {
			role = w.AgentType
		}
		out = models.ContinuationOutcome(&models.ContinuationRequest{
			Role:     models.Role(role),
			Task:     w.Task,
			Context:  w.Context,
			ReturnTo: w.ReturnTo,
			Metadata: w.Metadata,
		})
	default:
		return models.Outcome{}, &Error{Kind: KindProtocol, Message: fmt.Sprintf("unknown outcome type %q", w.Type)}
	}

	if err := out.Validate(); err != nil {
		return models.Outcome{}, &Error{Kind: KindProtocol, Message: "invalid outcome", Err: err}
	}
	return out, nil
}

// findTagged returns the first JSON object in text that carries a "type"
// field, looking inside fences first.
func findTagged(text string) (wireOutcome, bool) {
	var candidates []string
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, text)

	for _, c := range candidates {
		for i := strings.IndexByte(c, '{'); i >= 0; {
			var w wireOutcome
			dec := json.NewDecoder(bytes.NewReader([]byte(c[i:])))
			if err := dec.Decode(&w); err == nil && w.Type != "" {
				return w, true
			}
			next := strings.IndexByte(c[i+1:], '{')
			if next < 0 {
				break
			}
			i += next + 1
		}
	}
	return wireOutcome{}, false
}
