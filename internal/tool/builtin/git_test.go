package builtin

import "testing"

func TestIsDangerousGitArg(t *testing.T) {
	cases := map[string]bool{
		"--exec=foo":       true,
		"--work-tree=/etc": true,
		"-cfoo=bar":        true,
		"-20":              false,
		"--oneline":        false,
	}
	for arg, want := range cases {
		if got := isDangerousGitArg(arg); got != want {
			t.Errorf("isDangerousGitArg(%q) = %v, want %v", arg, got, want)
		}
	}
}

func TestSplitGitArgs(t *testing.T) {
	got := splitGitArgs("  --oneline   -5 ")
	want := []string{"--oneline", "-5"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
