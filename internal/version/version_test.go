package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	info := Get()
	if info.Version != "1.2.3" {
		t.Errorf("version = %q", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("go version = %q", info.GoVersion)
	}
	if !strings.HasPrefix(info.String(), "1.2.3 (commit ") {
		t.Errorf("string = %q", info.String())
	}
}
