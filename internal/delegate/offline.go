package delegate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ShayCichocki/rlm/internal/orchestrator"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// OfflineDispatcher answers every task locally with a deterministic result.
// It never delegates, so runs finish in one step per task. It is used when no
// provider is configured and in tests.
type OfflineDispatcher struct{}

var _ orchestrator.Dispatcher = OfflineDispatcher{}

// Dispatch implements orchestrator.Dispatcher.
func (OfflineDispatcher) Dispatch(ctx context.Context, req orchestrator.DispatchRequest) (models.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}

	t := req.Task
	var b strings.Builder
	fmt.Fprintf(&b, "%s analysis of %q", t.Role, t.Description)
	if p, ok := t.Context["path"].(string); ok && p != "" {
		fmt.Fprintf(&b, " for %s", p)
	}
	b.WriteString(" (offline; no model provider configured)")

	if len(t.ChildResults) > 0 {
		keys := make([]string, 0, len(t.ChildResults))
		for k := range t.ChildResults {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if r := t.ChildResults[k]; r != nil {
				fmt.Fprintf(&b, "\n- %s: %s", k, r.Content)
			}
		}
	}

	return models.ResultOutcome(&models.AnalysisResult{
		Content:  b.String(),
		Metadata: map[string]any{"provider": "offline", "depth": t.Depth},
	}), nil
}

// String describes the dispatcher for status output.
func (OfflineDispatcher) String() string {
	return "offline"
}
