package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" || strings.ContainsAny(v, " \n\t") {
		t.Errorf("Get() = %q, want a trimmed non-empty version", v)
	}
}
