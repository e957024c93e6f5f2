package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler func(req map[string]any) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	var gotModel string
	srv := newTestServer(t, func(req map[string]any) (int, any) {
		gotModel, _ = req["model"].(string)
		return http.StatusOK, map[string]any{
			"model":      gotModel,
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		}
	})

	e, err := NewOllamaEmbedder(srv.URL, "")
	if err != nil {
		t.Fatalf("NewOllamaEmbedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vec = %v", vec)
	}
	if gotModel != DefaultModel {
		t.Errorf("model = %q, want %q", gotModel, DefaultModel)
	}
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := newTestServer(t, func(req map[string]any) (int, any) {
		inputs, _ := req["input"].([]any)
		out := make([][]float32, len(inputs))
		for i := range inputs {
			out[i] = []float32{float32(i + 1)}
		}
		return http.StatusOK, map[string]any{"embeddings": out}
	})

	e, err := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("NewOllamaEmbedder: %v", err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 2 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
	}{
		{"server error", http.StatusInternalServerError, map[string]any{"error": "model not found"}},
		{"no embeddings", http.StatusOK, map[string]any{"embeddings": [][]float32{}}},
		{"empty vector", http.StatusOK, map[string]any{"embeddings": [][]float32{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(map[string]any) (int, any) { return tt.status, tt.body })
			e, err := NewOllamaEmbedder(srv.URL, "")
			if err != nil {
				t.Fatalf("NewOllamaEmbedder: %v", err)
			}
			if _, err := e.Embed(context.Background(), "x"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
