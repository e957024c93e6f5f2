// Package config handles configuration loading and management for rlm.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level override file.
const ProjectConfigName = ".rlm.yaml"

// Delegation providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderOffline   = "offline"
)

// Config holds all configuration for rlm.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Delegate     DelegateConfig     `mapstructure:"delegate" yaml:"delegate"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// OrchestratorConfig holds the run limits and cache settings.
type OrchestratorConfig struct {
	MaxRecursionDepth int  `mapstructure:"max_recursion_depth" yaml:"max_recursion_depth"`
	MaxIterations     int  `mapstructure:"max_iterations" yaml:"max_iterations"`
	CacheEnabled      bool `mapstructure:"cache_enabled" yaml:"cache_enabled"`
	CacheTTLHours     int  `mapstructure:"cache_ttl_hours" yaml:"cache_ttl_hours"`
	// ParallelBranches is reserved; tasks always run one at a time.
	ParallelBranches int  `mapstructure:"parallel_branches" yaml:"parallel_branches"`
	CostTracking     bool `mapstructure:"cost_tracking" yaml:"cost_tracking"`
}

// CacheTTL returns the cache TTL as a duration.
func (c OrchestratorConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// StorageConfig holds analysis storage settings.
type StorageConfig struct {
	// RAGDir holds stored analyses, relative to the working directory unless
	// absolute.
	RAGDir         string `mapstructure:"rag_dir" yaml:"rag_dir"`
	VectorEnabled  bool   `mapstructure:"vector_enabled" yaml:"vector_enabled"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
	// OllamaHost overrides OLLAMA_HOST when set.
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`
	// TextBackend is the search used without vectors: "keyword" or "bm25".
	TextBackend string `mapstructure:"text_backend" yaml:"text_backend"`
	// QdrantAddress is host:port of the Qdrant gRPC endpoint. Empty keeps
	// vectors in the local SQLite index.
	QdrantAddress    string `mapstructure:"qdrant_address" yaml:"qdrant_address"`
	QdrantCollection string `mapstructure:"qdrant_collection" yaml:"qdrant_collection"`
	QdrantAPIKey     string `mapstructure:"qdrant_api_key" yaml:"qdrant_api_key,omitempty"`
}

// DelegateConfig selects and configures the delegation provider.
type DelegateConfig struct {
	// Provider is anthropic, bedrock or offline. Empty picks anthropic when
	// an API key is available and offline otherwise.
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	AWSRegion  string `mapstructure:"aws_region" yaml:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile"`
	MaxTokens  int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ResolvedProvider returns the provider to use, resolving the empty default.
func (d DelegateConfig) ResolvedProvider() string {
	if d.Provider != "" {
		return strings.ToLower(d.Provider)
	}
	if _, err := d.Key(); err == nil {
		return ProviderAnthropic
	}
	return ProviderOffline
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
	// DebugFile, when set, receives debug-level logs in addition to stderr.
	DebugFile string `mapstructure:"debug_file" yaml:"debug_file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (RLM_<SECTION>_<KEY>, ANTHROPIC_API_KEY)
// 2. Project config (.rlm.yaml in current directory or parent)
// 3. User config (~/.config/rlm/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	// Load user config from XDG path
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("delegate.api_key", "RLM_DELEGATE_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Delegate.APIKey = expandEnv(cfg.Delegate.APIKey)
	cfg.Storage.OllamaHost = expandEnv(cfg.Storage.OllamaHost)
	cfg.Storage.QdrantAddress = expandEnv(cfg.Storage.QdrantAddress)
	cfg.Storage.QdrantAPIKey = expandEnv(cfg.Storage.QdrantAPIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxRecursionDepth < 0 {
		return fmt.Errorf("orchestrator.max_recursion_depth must be >= 0, got %d", c.Orchestrator.MaxRecursionDepth)
	}
	if c.Orchestrator.MaxIterations <= 0 {
		return fmt.Errorf("orchestrator.max_iterations must be > 0, got %d", c.Orchestrator.MaxIterations)
	}
	if c.Orchestrator.CacheTTLHours <= 0 {
		return fmt.Errorf("orchestrator.cache_ttl_hours must be > 0, got %d", c.Orchestrator.CacheTTLHours)
	}
	switch c.Storage.TextBackend {
	case "", "keyword", "bm25":
	default:
		return fmt.Errorf("storage.text_backend must be keyword or bm25, got %q", c.Storage.TextBackend)
	}
	switch c.Delegate.ResolvedProvider() {
	case ProviderAnthropic, ProviderBedrock, ProviderOffline:
	default:
		return fmt.Errorf("unknown delegate.provider %q", c.Delegate.Provider)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("orchestrator.max_recursion_depth", d.Orchestrator.MaxRecursionDepth)
	v.SetDefault("orchestrator.max_iterations", d.Orchestrator.MaxIterations)
	v.SetDefault("orchestrator.cache_enabled", d.Orchestrator.CacheEnabled)
	v.SetDefault("orchestrator.cache_ttl_hours", d.Orchestrator.CacheTTLHours)
	v.SetDefault("orchestrator.parallel_branches", d.Orchestrator.ParallelBranches)
	v.SetDefault("orchestrator.cost_tracking", d.Orchestrator.CostTracking)

	v.SetDefault("storage.rag_dir", d.Storage.RAGDir)
	v.SetDefault("storage.vector_enabled", d.Storage.VectorEnabled)
	v.SetDefault("storage.embedding_model", d.Storage.EmbeddingModel)
	v.SetDefault("storage.ollama_host", d.Storage.OllamaHost)
	v.SetDefault("storage.text_backend", d.Storage.TextBackend)
	v.SetDefault("storage.qdrant_address", d.Storage.QdrantAddress)
	v.SetDefault("storage.qdrant_collection", d.Storage.QdrantCollection)
	v.SetDefault("storage.qdrant_api_key", d.Storage.QdrantAPIKey)

	v.SetDefault("delegate.provider", d.Delegate.Provider)
	v.SetDefault("delegate.model", d.Delegate.Model)
	v.SetDefault("delegate.api_key", d.Delegate.APIKey)
	v.SetDefault("delegate.aws_region", d.Delegate.AWSRegion)
	v.SetDefault("delegate.aws_profile", d.Delegate.AWSProfile)
	v.SetDefault("delegate.max_tokens", d.Delegate.MaxTokens)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.debug_file", d.Logging.DebugFile)
}

// getUserConfigDir returns the XDG config directory for rlm.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "rlm")
	}

	// Fall back to ~/.config/rlm
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "rlm")
	}
	return filepath.Join(home, ".config", "rlm")
}

// findProjectConfig searches for .rlm.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxRecursionDepth: 10,
			MaxIterations:     1000,
			CacheEnabled:      true,
			CacheTTLHours:     24,
			ParallelBranches:  1,
			CostTracking:      true,
		},
		Storage: StorageConfig{
			RAGDir:           ".rlm",
			VectorEnabled:    true,
			EmbeddingModel:   "all-minilm",
			TextBackend:      "keyword",
			QdrantAddress:    "localhost:6334",
			QdrantCollection: "rlm_analyses",
		},
		Delegate: DelegateConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
