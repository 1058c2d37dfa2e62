package tool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// Enforcer runs the subprocess-forking tools (process_list, sed_replace,
// awk_extract, git_*) under the resource envelope described in spec §4.2:
// wall-clock timeout, output-size cap, process-count cap, and an optional
// working-directory pin. On timeout it kills the subprocess and reports a
// Timeout error. curl_fetch and web_search use it only for the network-rate
// ceiling (WaitNetwork); grep_search and find_files do not go through it.
type Enforcer struct {
	activeProcesses int64
	networkLimiter  *rate.Limiter
}

// NewEnforcer builds an Enforcer. maxNetworkRequests bounds the rate of
// outbound calls made by curl_fetch/web_search, shared across tool
// invocations (spec §4.1 resource_limits.max_network_requests).
func NewEnforcer(maxNetworkRequests int) *Enforcer {
	if maxNetworkRequests <= 0 {
		maxNetworkRequests = 30
	}
	return &Enforcer{
		// One token bucket refilling at maxNetworkRequests per minute, with a
		// burst of maxNetworkRequests — smooths bursts instead of hard-denying them.
		networkLimiter: rate.NewLimiter(rate.Limit(maxNetworkRequests)/60, maxNetworkRequests),
	}
}

// WaitNetwork blocks until a network-call token is available or ctx expires.
func (e *Enforcer) WaitNetwork(ctx context.Context) error {
	if e.networkLimiter == nil {
		return nil
	}
	if err := e.networkLimiter.Wait(ctx); err != nil {
		return vibeerr.New(vibeerr.KindResource, "network_rate_limit", err).WithBound("max_network_requests")
	}
	return nil
}

// CommandSpec describes a subprocess to run under the enforcer.
type CommandSpec struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// Result is the raw outcome of an enforced subprocess run.
type Result struct {
	Stdout       string
	Stderr       string
	ExitCode     int
	Truncated    bool
	ProcessCount int
}

// Run executes spec under limits, enforcing the wall-clock timeout, the
// process-count cap and the output-size cap.
func (e *Enforcer) Run(ctx context.Context, limits ResourceLimits, spec CommandSpec) (Result, error) {
	if limits.MaxProcesses > 0 {
		n := atomic.AddInt64(&e.activeProcesses, 1)
		defer atomic.AddInt64(&e.activeProcesses, -1)
		if int(n) > limits.MaxProcesses {
			return Result{}, vibeerr.Newf(vibeerr.KindResource, spec.Name, "process-count cap exceeded (%d active)", limits.MaxProcesses).WithBound("max_processes")
		}
	}

	timeout := limits.MaxExecutionTime
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Name, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	} else if limits.WorkingDirectoryPin != "" {
		cmd.Dir = limits.WorkingDirectoryPin
	}
	cmd.Env = spec.Env
	// Cancel kills the process directly on deadline/cancel. Only that
	// process is signalled; children it spawned are not killed with it.
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}

	output, err := cmd.CombinedOutput()
	outStr := string(output)

	maxOut := limits.MaxOutputSize
	if maxOut <= 0 {
		maxOut = 200 * 1024
	}
	truncated := false
	if int64(len(outStr)) > maxOut {
		outStr = truncateBytes(outStr, int(maxOut))
		truncated = true
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Stdout: outStr, Truncated: truncated}, vibeerr.Newf(vibeerr.KindTimeout, spec.Name, "subprocess exceeded %v", timeout).WithBound("max_execution_time")
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{Stdout: outStr, Truncated: truncated}, vibeerr.New(vibeerr.KindExecution, spec.Name, err)
		}
	}

	return Result{
		Stdout:    outStr,
		ExitCode:  exitCode,
		Truncated: truncated,
	}, nil
}

// truncateBytes truncates s to at most maxBytes bytes on a valid UTF-8
// boundary and appends a notice with the full byte count, matching the
// teacher's safe-truncation convention.
func truncateBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	b := []byte(s)[:maxBytes]
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b) + fmt.Sprintf("\n... (output truncated, %d bytes total)", len(s))
}

// FilterEnv returns a copy of env with sensitive variables stripped, reused
// by every subprocess-forking tool so secrets never leak into a forked
// process's environment just because the host process had them.
func FilterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) < 2 {
			continue
		}
		nameUpper := strings.ToUpper(parts[0])
		if isSensitiveEnvName(nameUpper) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

var sensitiveEnvSuffixes = []string{
	"_KEY", "_SECRET", "_TOKEN", "_PASSWORD", "_PASSWD",
	"_PASSPHRASE", "_CREDENTIALS", "_AUTH", "_DSN",
}

var sensitiveEnvPrefixes = []string{
	"DATABASE_URL", "REDIS_URL", "MONGO_URL",
}

func isSensitiveEnvName(nameUpper string) bool {
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(nameUpper, suffix) {
			return true
		}
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(nameUpper, prefix) {
			return true
		}
	}
	return false
}

// HostEnv returns the current process environment with secrets filtered.
func HostEnv() []string {
	return FilterEnv(os.Environ())
}
