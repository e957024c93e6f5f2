package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Orchestrator.MaxRecursionDepth != 10 {
		t.Errorf("expected max_recursion_depth 10, got %d", cfg.Orchestrator.MaxRecursionDepth)
	}

	if cfg.Orchestrator.MaxIterations != 1000 {
		t.Errorf("expected max_iterations 1000, got %d", cfg.Orchestrator.MaxIterations)
	}

	if !cfg.Orchestrator.CacheEnabled {
		t.Error("expected cache_enabled to be true")
	}

	if cfg.Orchestrator.CacheTTL() != 24*time.Hour {
		t.Errorf("expected cache TTL 24h, got %v", cfg.Orchestrator.CacheTTL())
	}

	if !cfg.Orchestrator.CostTracking {
		t.Error("expected cost_tracking to be true")
	}

	if cfg.Storage.RAGDir != ".rlm" {
		t.Errorf("expected rag_dir '.rlm', got %q", cfg.Storage.RAGDir)
	}

	if !cfg.Storage.VectorEnabled {
		t.Error("expected vector_enabled to be true")
	}

	if cfg.Storage.EmbeddingModel != "all-minilm" {
		t.Errorf("expected embedding_model 'all-minilm', got %q", cfg.Storage.EmbeddingModel)
	}

	if cfg.Storage.TextBackend != "keyword" {
		t.Errorf("expected text_backend 'keyword', got %q", cfg.Storage.TextBackend)
	}

	if cfg.Storage.QdrantAddress != "localhost:6334" {
		t.Errorf("expected qdrant_address 'localhost:6334', got %q", cfg.Storage.QdrantAddress)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging level 'info', got %q", cfg.Logging.Level)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
orchestrator:
  max_recursion_depth: 4
  max_iterations: 200
  cache_enabled: false
  cache_ttl_hours: 2
storage:
  rag_dir: /var/lib/rlm
  vector_enabled: false
delegate:
  provider: bedrock
  aws_region: us-west-2
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Orchestrator.MaxRecursionDepth != 4 {
		t.Errorf("expected max_recursion_depth 4, got %d", cfg.Orchestrator.MaxRecursionDepth)
	}

	if cfg.Orchestrator.MaxIterations != 200 {
		t.Errorf("expected max_iterations 200, got %d", cfg.Orchestrator.MaxIterations)
	}

	if cfg.Orchestrator.CacheEnabled {
		t.Error("expected cache_enabled to be false")
	}

	if cfg.Orchestrator.CacheTTL() != 2*time.Hour {
		t.Errorf("expected cache TTL 2h, got %v", cfg.Orchestrator.CacheTTL())
	}

	// Unset keys keep their defaults.
	if !cfg.Orchestrator.CostTracking {
		t.Error("expected cost_tracking to default to true")
	}

	if cfg.Storage.RAGDir != "/var/lib/rlm" {
		t.Errorf("expected rag_dir '/var/lib/rlm', got %q", cfg.Storage.RAGDir)
	}

	if cfg.Storage.EmbeddingModel != "all-minilm" {
		t.Errorf("expected embedding_model default, got %q", cfg.Storage.EmbeddingModel)
	}

	if cfg.Delegate.ResolvedProvider() != ProviderBedrock {
		t.Errorf("expected provider bedrock, got %q", cfg.Delegate.ResolvedProvider())
	}

	if cfg.Delegate.AWSRegion != "us-west-2" {
		t.Errorf("expected aws_region 'us-west-2', got %q", cfg.Delegate.AWSRegion)
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("expected logging format 'json', got %q", cfg.Logging.Format)
	}
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("orchestrator:\n  max_recursion_depth: 4\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("RLM_ORCHESTRATOR_MAX_RECURSION_DEPTH", "7")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Orchestrator.MaxRecursionDepth != 7 {
		t.Errorf("expected env override 7, got %d", cfg.Orchestrator.MaxRecursionDepth)
	}

	if cfg.Delegate.APIKey != "sk-ant-from-env" {
		t.Errorf("expected api key from ANTHROPIC_API_KEY, got %q", cfg.Delegate.APIKey)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"negative depth", "orchestrator:\n  max_recursion_depth: -1\n", "max_recursion_depth"},
		{"zero iterations", "orchestrator:\n  max_iterations: 0\n", "max_iterations"},
		{"unknown provider", "delegate:\n  provider: carrier-pigeon\n", "delegate.provider"},
		{"unknown text backend", "storage:\n  text_backend: grep\n", "storage.text_backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}

			_, err := LoadFromPath(configPath)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFromPath() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := "/custom/config/rlm"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ProjectConfigName), []byte("{}\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Chdir(nested)

	got := findProjectConfig()
	want, _ := filepath.EvalSymlinks(filepath.Join(root, ProjectConfigName))
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Errorf("findProjectConfig() = %q, want %q", got, want)
	}
}
