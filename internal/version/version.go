// Package version reports the rlm release embedded at build time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the release version, or "dev" when VERSION is empty.
func Get() string {
	if v := strings.TrimSpace(versionContent); v != "" {
		return v
	}
	return "dev"
}
