package tool

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/vibecli/vibe-core/internal/config"
)

// Outcome is the closed set of policy-gate decisions (spec §4.2).
type Outcome string

const (
	Allow           Outcome = "allow"
	Deny            Outcome = "deny"
	RequireApproval Outcome = "require_approval"
	Escalate        Outcome = "escalate"
	LogOnly         Outcome = "log_only"
)

// Decision is the policy engine's verdict for a single tool call.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Proceeds reports whether the call may run. Only Allow and LogOnly do;
// every other outcome fails the call with a SecurityViolation.
func (d Decision) Proceeds() bool {
	return d.Outcome == Allow || d.Outcome == LogOnly
}

func allow() Decision   { return Decision{Outcome: Allow} }
func logOnly() Decision { return Decision{Outcome: LogOnly} }
func deny(reason string, args ...any) Decision {
	return Decision{Outcome: Deny, Reason: fmt.Sprintf(reason, args...)}
}
func requireApproval(reason string, args ...any) Decision {
	return Decision{Outcome: RequireApproval, Reason: fmt.Sprintf(reason, args...)}
}
func escalate(reason string, args ...any) Decision {
	return Decision{Outcome: Escalate, Reason: fmt.Sprintf(reason, args...)}
}

// Request bundles everything the policy gate needs to evaluate a call,
// gathered by the registry before a tool runs (spec §4.2 "Policy gate").
type Request struct {
	ToolName       string
	Parameters     map[string]string
	Limits         ResourceLimits
	ImpliesNetwork bool
	Paths          []string
}

// networkTools is the subset of the closed enumeration that performs
// outbound network I/O and is therefore subject to NetworkSecurity globs.
var networkTools = map[string]bool{
	"curl_fetch": true,
	"web_search": true,
}

// readOnlyTools never mutate the workspace; their Allow decisions are
// logged as LogOnly so the audit trail distinguishes reads from writes.
var readOnlyTools = map[string]bool{
	"file_read":    true,
	"directory_list": true,
	"process_list": true,
	"grep_search":  true,
	"find_files":   true,
	"git_status":   true,
	"git_diff":     true,
	"git_log":      true,
}

// Engine is the policy gate consulted before every tool execution.
type Engine struct {
	cfg         *config.Config
	projectRoot string
}

// NewEngine builds a policy engine bound to cfg and the detected project root.
func NewEngine(cfg *config.Config, projectRoot string) *Engine {
	return &Engine{cfg: cfg, projectRoot: projectRoot}
}

// Evaluate returns the gate's decision for req.
func (e *Engine) Evaluate(req Request) Decision {
	if d, blocked := e.checkContentSanitization(req); blocked {
		return d
	}

	for _, p := range req.Paths {
		if d, blocked := e.checkPath(req.ToolName, p); blocked {
			return d
		}
	}

	if req.ImpliesNetwork || networkTools[req.ToolName] {
		if d, blocked := e.checkNetwork(req); blocked {
			return d
		}
	}

	if cmd, ok := req.Parameters["command"]; ok && cmd != "" {
		if !e.cfg.Permissions.Allowed(cmd) {
			return deny("command %q is blocked by permissions policy", cmd)
		}
	}

	if readOnlyTools[req.ToolName] {
		return logOnly()
	}
	return allow()
}

// checkContentSanitization runs the C1 content-sanitization detectors
// (secret, prompt-injection, and SQL-injection heuristics, an allowed MIME
// list, and a max content length) over every parameter value, each gated
// by its own ContentSanitizationConfig flag so an operator can disable a
// detector without losing the others. The secret/injection heuristics are
// coarse by design (spec §9 open question): a hit forces human
// confirmation rather than an outright denial; a MIME or length violation
// is denied outright since those are exact checks, not heuristics.
func (e *Engine) checkContentSanitization(req Request) (Decision, bool) {
	cs := e.cfg.ContentSanitization

	if mime, ok := req.Parameters["mime_type"]; ok {
		if !mimeAllowed(mime, cs.AllowedMIMETypes) {
			return deny("mime_type %q for %s is not in the allowed MIME list", mime, req.ToolName), true
		}
	}

	for key, v := range req.Parameters {
		if cs.MaxContentLength > 0 && len(v) > cs.MaxContentLength {
			return deny("parameter %q for %s exceeds max content length (%d > %d bytes)",
				key, req.ToolName, len(v), cs.MaxContentLength), true
		}
		if cs.DetectSecrets && detectSecrets(v) {
			return requireApproval("parameter for %s appears to contain a secret value", req.ToolName), true
		}
		if cs.DetectPromptInjection && detectPromptInjection(v) {
			return requireApproval("parameter for %s appears to contain a prompt-injection attempt", req.ToolName), true
		}
		if cs.DetectSQLInjection && detectSQLInjection(v) {
			return requireApproval("parameter for %s appears to contain a SQL-injection attempt", req.ToolName), true
		}
	}
	return Decision{}, false
}

// checkPath escalates any path that resolves outside the project root; it
// keeps no separate list of system prefixes. It does not duplicate per-tool path validation
// (safeResolvePath in builtin) — this is the registry-level second gate.
func (e *Engine) checkPath(tool, path string) (Decision, bool) {
	if path == "" {
		return Decision{}, false
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.projectRoot, abs)
	}
	abs = filepath.Clean(abs)

	root := filepath.Clean(e.projectRoot)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return escalate("path %q for tool %s lies outside the project root %s", path, tool, root), true
	}
	return Decision{}, false
}

// checkNetwork applies NetworkSecurity allow/deny globs against any
// URL-shaped parameter value.
func (e *Engine) checkNetwork(req Request) (Decision, bool) {
	ns := e.cfg.NetworkSecurity
	var target string
	for _, key := range []string{"url", "query"} {
		if v, ok := req.Parameters[key]; ok && v != "" {
			target = v
			break
		}
	}
	if target == "" {
		return Decision{}, false
	}
	for _, g := range ns.DenyGlobs {
		if matched, _ := filepath.Match(g, target); matched {
			return deny("target %q matches denied network pattern %q", target, g), true
		}
	}
	if len(ns.AllowGlobs) > 0 {
		allowed := false
		for _, g := range ns.AllowGlobs {
			if matched, _ := filepath.Match(g, target); matched {
				allowed = true
				break
			}
		}
		if !allowed {
			return deny("target %q does not match any allowed network pattern", target), true
		}
	}
	return Decision{}, false
}

// LogSecurityEvent records a non-Allow/LogOnly decision for observability
// (spec §4.2 "Observability").
func LogSecurityEvent(toolName string, d Decision) {
	log.Printf("[Policy] %s on tool %q: %s", d.Outcome, toolName, d.Reason)
}
