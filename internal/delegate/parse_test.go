package delegate

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/rlm/pkg/models"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantKind    models.OutcomeKind
		wantContent string
		wantRole    models.Role
		wantReturn  string
	}{
		{
			name:        "bare result",
			input:       `{"type": "RESULT", "content": "all good", "metadata": {"files": 3}}`,
			wantKind:    models.OutcomeResult,
			wantContent: "all good",
		},
		{
			name:        "fenced result with prose",
			input:       "Here is my answer:\n```json\n{\"type\": \"RESULT\", \"content\": \"fenced\"}\n```\nHope that helps.",
			wantKind:    models.OutcomeResult,
			wantContent: "fenced",
		},
		{
			name:       "continuation with role",
			input:      `{"type": "CONTINUATION", "role": "Worker", "task": "read auth.go", "context": {"file": "auth.go"}, "return_to": "auth"}`,
			wantKind:   models.OutcomeContinuation,
			wantRole:   models.RoleWorker,
			wantReturn: "auth",
		},
		{
			name:       "continuation with agent_type",
			input:      `I need more detail. {"type": "continuation", "agent_type": "Synthesizer", "task": "merge", "return_to": "merged"}`,
			wantKind:   models.OutcomeContinuation,
			wantRole:   models.RoleSynthesizer,
			wantReturn: "merged",
		},
		{
			name:        "untagged prose is a result",
			input:       "The module exposes two handlers.",
			wantKind:    models.OutcomeResult,
			wantContent: "The module exposes two handlers.",
		},
		{
			name:        "nested braces before the tagged object",
			input:       `Context was {"a": 1}. {"type": "RESULT", "content": "second"}`,
			wantKind:    models.OutcomeResult,
			wantContent: "second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOutcome([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseOutcome: %v", err)
			}
			if out.Kind != tt.wantKind {
				t.Fatalf("Kind = %q, want %q", out.Kind, tt.wantKind)
			}
			switch out.Kind {
			case models.OutcomeResult:
				if out.Result.Content != tt.wantContent {
					t.Errorf("Content = %q, want %q", out.Result.Content, tt.wantContent)
				}
			case models.OutcomeContinuation:
				if out.Continuation.Role != tt.wantRole {
					t.Errorf("Role = %q, want %q", out.Continuation.Role, tt.wantRole)
				}
				if out.Continuation.ReturnTo != tt.wantReturn {
					t.Errorf("ReturnTo = %q, want %q", out.Continuation.ReturnTo, tt.wantReturn)
				}
			}
		})
	}
}

func TestParseOutcome_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", "   "},
		{"unknown tag", `{"type": "MAYBE", "content": "?"}`},
		{"continuation without task", `{"type": "CONTINUATION", "role": "Worker", "return_to": "x"}`},
		{"continuation without role", `{"type": "CONTINUATION", "task": "x", "return_to": "x"}`},
		{"negative tokens", `{"type": "RESULT", "content": "x", "token_count": -5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOutcome([]byte(tt.input))
			var de *Error
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if de.ErrorKind() != KindProtocol {
				t.Errorf("Kind = %q, want %q", de.Kind, KindProtocol)
			}
		})
	}
}
