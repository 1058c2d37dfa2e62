package config

import (
	"strings"
	"testing"
)

func TestGatherSystemContextNeverPanics(t *testing.T) {
	sc := GatherSystemContext()
	if sc.OS == "" || sc.Arch == "" {
		t.Errorf("GatherSystemContext() = %+v, want OS/Arch populated from runtime", sc)
	}
}

func TestCompactRendersAllFields(t *testing.T) {
	sc := SystemContext{OS: "linux", Arch: "amd64", Distro: "debian", Hostname: "h", User: "u", Shell: "/bin/bash", CWD: "/tmp"}
	got := sc.Compact()
	for _, want := range []string{"linux", "amd64", "debian", "h", "u", "/bin/bash", "/tmp"} {
		if !strings.Contains(got, want) {
			t.Errorf("Compact() = %q, missing %q", got, want)
		}
	}
}
