package config

import (
	"errors"
	"os"
	"strings"
)

// APIKeyEnv is checked before delegate.api_key.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured (set " + APIKeyEnv + " or delegate.api_key)")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// resolveKey finds the API key and where it came from. A configured value
// may reference environment variables; an unexpanded reference counts as
// unset.
func (d DelegateConfig) resolveKey() (string, KeySource) {
	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, KeySourceEnv
	}
	if d.APIKey == "" {
		return "", KeySourceNone
	}
	key := os.ExpandEnv(d.APIKey)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", KeySourceNone
	}
	return key, KeySourceConfig
}

// Key returns the Anthropic API key, preferring the environment over the
// configured value.
func (d DelegateConfig) Key() (string, error) {
	key, src := d.resolveKey()
	if src == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// KeySource reports where Key would read the API key from.
func (d DelegateConfig) KeySource() KeySource {
	_, src := d.resolveKey()
	return src
}

// ValidateAPIKey checks the key's shape. It does not contact the API.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	case len(key) < 20:
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey keeps the "sk-ant-" prefix and the last four characters.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// Masked returns a copy of cfg safe to print.
func (c *Config) Masked() *Config {
	out := *c
	if out.Delegate.APIKey != "" {
		out.Delegate.APIKey = MaskAPIKey(out.Delegate.APIKey)
	}
	if out.Storage.QdrantAPIKey != "" {
		out.Storage.QdrantAPIKey = MaskAPIKey(out.Storage.QdrantAPIKey)
	}
	return &out
}
