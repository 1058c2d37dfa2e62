package config

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// SystemContext is a compact snapshot of the host the agent is running on,
// gathered once per process and folded into planner prompts so the LLM
// grounds its suggestions in the actual OS/shell/cwd instead of guessing.
// Kept deliberately small (a handful of fields, one line rendered) to avoid
// the prompt bloat a full system profile would add.
type SystemContext struct {
	OS       string
	Arch     string
	Distro   string
	Hostname string
	User     string
	Shell    string
	CWD      string
}

// GatherSystemContext collects SystemContext from the environment and a
// couple of cheap shell-outs, the same commands a human would run by hand
// (uname, /etc/os-release). Any field that can't be determined is left
// "unknown" rather than failing the whole gather.
func GatherSystemContext() SystemContext {
	sc := SystemContext{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Distro:   "unknown",
		Hostname: "unknown",
		User:     "unknown",
		Shell:    "unknown",
		CWD:      "unknown",
	}

	if h, err := os.Hostname(); err == nil {
		sc.Hostname = h
	}
	if u := os.Getenv("USER"); u != "" {
		sc.User = u
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		sc.Shell = sh
	}
	if cwd, err := os.Getwd(); err == nil {
		sc.CWD = cwd
	}
	if runtime.GOOS == "linux" {
		if distro := runCommand("sh", "-c", "grep -m1 PRETTY_NAME /etc/os-release 2>/dev/null | cut -d'\"' -f2"); distro != "" {
			sc.Distro = distro
		}
	}
	return sc
}

// runCommand runs name with args and returns its trimmed stdout, or "" on
// any failure. Used only for best-effort context enrichment, never for
// anything the agent's own operation depends on.
func runCommand(name string, args ...string) string {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Compact renders sc as the single line folded into planner prompts.
func (sc SystemContext) Compact() string {
	return "os=" + sc.OS + " arch=" + sc.Arch + " distro=" + sc.Distro +
		" host=" + sc.Hostname + " user=" + sc.User + " shell=" + sc.Shell + " cwd=" + sc.CWD
}
