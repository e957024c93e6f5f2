package config

import (
	"errors"
	"testing"
)

func TestDelegateKey(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		configured string
		wantKey    string
		wantSource KeySource
	}{
		{"environment wins", "sk-ant-env-key", "sk-ant-config-key", "sk-ant-env-key", KeySourceEnv},
		{"config", "", "sk-ant-config-key", "sk-ant-config-key", KeySourceConfig},
		{"unexpanded reference", "", "${RLM_TEST_UNSET_KEY}", "", KeySourceNone},
		{"none", "", "", "", KeySourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(APIKeyEnv, tt.env)
			d := DelegateConfig{APIKey: tt.configured}

			key, err := d.Key()
			if tt.wantSource == KeySourceNone {
				if !errors.Is(err, ErrNoAPIKey) {
					t.Errorf("Key() error = %v, want ErrNoAPIKey", err)
				}
			} else if err != nil || key != tt.wantKey {
				t.Errorf("Key() = %q, %v; want %q", key, err, tt.wantKey)
			}
			if got := d.KeySource(); got != tt.wantSource {
				t.Errorf("KeySource() = %q, want %q", got, tt.wantSource)
			}
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty key", "", true},
		{"wrong prefix", "sk-openai-12345678901234567890", true},
		{"too short", "sk-ant-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"valid key", "sk-ant-REDACTED", "sk-ant-...wxyz"},
		{"empty key", "", "(not set)"},
		{"short key", "short", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskAPIKey(tt.key)
			if result != tt.expected {
				t.Errorf("MaskAPIKey() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestResolvedProvider(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		cfg    DelegateConfig
		expect string
	}{
		{"explicit bedrock", "", DelegateConfig{Provider: "Bedrock"}, ProviderBedrock},
		{"explicit offline with key", "sk-ant-env", DelegateConfig{Provider: "offline"}, ProviderOffline},
		{"auto with env key", "sk-ant-env", DelegateConfig{}, ProviderAnthropic},
		{"auto with config key", "", DelegateConfig{APIKey: "sk-ant-config"}, ProviderAnthropic},
		{"auto without key", "", DelegateConfig{}, ProviderOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(APIKeyEnv, tt.env)
			if got := tt.cfg.ResolvedProvider(); got != tt.expect {
				t.Errorf("ResolvedProvider() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestMasked(t *testing.T) {
	cfg := Default()
	cfg.Delegate.APIKey = "sk-ant-REDACTED"
	cfg.Storage.QdrantAPIKey = "qdrant-secret-key-0123"

	masked := cfg.Masked()
	if masked.Delegate.APIKey != "sk-ant-...wxyz" {
		t.Errorf("masked key = %q", masked.Delegate.APIKey)
	}
	if masked.Storage.QdrantAPIKey != "qdrant-...0123" {
		t.Errorf("masked qdrant key = %q", masked.Storage.QdrantAPIKey)
	}
	if cfg.Delegate.APIKey != "sk-ant-REDACTED" {
		t.Error("Masked modified the original config")
	}
}
