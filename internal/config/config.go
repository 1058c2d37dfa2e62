// Package config implements C1: typed, layered configuration (agent limits,
// resource ceilings, network allow/deny, content sanitization, command
// allow/deny) plus project-root detection. Layering is process defaults →
// config file (project-local overrides global) → environment variables,
// following the same NewXFromEnv/Validate shape as internal/llm/openai.Config.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// AgentExecutionConfig bounds the C5 reason-act loop.
type AgentExecutionConfig struct {
	MaxIterations           int           `json:"max_iterations" yaml:"max_iterations" toml:"max_iterations"`
	MaxToolsPerIteration    int           `json:"max_tools_per_iteration" yaml:"max_tools_per_iteration" toml:"max_tools_per_iteration"`
	MaxExecutionTime        time.Duration `json:"-" yaml:"-" toml:"-"`
	VerificationTimeout     time.Duration `json:"-" yaml:"-" toml:"-"`
	AllowIterationOnFailure bool          `json:"allow_iteration_on_failure" yaml:"allow_iteration_on_failure" toml:"allow_iteration_on_failure"`
	ConvergenceThreshold    float64       `json:"convergence_threshold" yaml:"convergence_threshold" toml:"convergence_threshold"`
	TimeBoundsPerIteration  time.Duration `json:"-" yaml:"-" toml:"-"`
	// MemoryLimit is nil when unset. Kept distinct from the sampled
	// peak-memory observation recorded on AgentExecutionState (see
	// DESIGN.md's note on the memory_usage_bytes open question).
	MemoryLimit *int64 `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty" toml:"memory_limit,omitempty"`
}

// ResourceLimitsConfig bounds subprocess and file-operation resource usage.
type ResourceLimitsConfig struct {
	MaxMemory          int64   `json:"max_memory" yaml:"max_memory" toml:"max_memory"`
	MaxCPUPercent      float64 `json:"max_cpu_percent" yaml:"max_cpu_percent" toml:"max_cpu_percent"`
	MaxFileOperations  int     `json:"max_file_operations" yaml:"max_file_operations" toml:"max_file_operations"`
	MaxNetworkRequests int     `json:"max_network_requests" yaml:"max_network_requests" toml:"max_network_requests"`
	SandboxEnabled     bool    `json:"sandbox_enabled" yaml:"sandbox_enabled" toml:"sandbox_enabled"`
}

// NetworkSecurityConfig governs the curl_fetch / web_search egress path.
type NetworkSecurityConfig struct {
	AllowGlobs     []string      `json:"allow_globs" yaml:"allow_globs" toml:"allow_globs"`
	DenyGlobs      []string      `json:"deny_globs" yaml:"deny_globs" toml:"deny_globs"`
	MaxRequestSize int64         `json:"max_request_size" yaml:"max_request_size" toml:"max_request_size"`
	Timeout        time.Duration `json:"-" yaml:"-" toml:"-"`
	VerifySSL      bool          `json:"verify_ssl" yaml:"verify_ssl" toml:"verify_ssl"`
}

// ContentSanitizationConfig configures the secret/prompt-injection/SQL-
// injection detectors, the allowed MIME list, and the max content length
// the policy gate's checkContentSanitization consults before admitting a
// tool call (internal/tool/sanitize.go).
type ContentSanitizationConfig struct {
	DetectPromptInjection bool     `json:"detect_prompt_injection" yaml:"detect_prompt_injection" toml:"detect_prompt_injection"`
	DetectSQLInjection    bool     `json:"detect_sql_injection" yaml:"detect_sql_injection" toml:"detect_sql_injection"`
	DetectSecrets         bool     `json:"detect_secrets" yaml:"detect_secrets" toml:"detect_secrets"`
	AllowedMIMETypes      []string `json:"allowed_mime_types" yaml:"allowed_mime_types" toml:"allowed_mime_types"`
	MaxContentLength      int      `json:"max_content_length" yaml:"max_content_length" toml:"max_content_length"`
}

// PermissionsConfig is the allow/deny regex pair for shell-forking tools.
// Policy: blocklist always wins; if the allowlist is non-empty the command
// must match it; otherwise it is allowed.
type PermissionsConfig struct {
	AllowedCommands []string `json:"allowed_commands" yaml:"allowed_commands" toml:"allowed_commands"`
	BlockedCommands []string `json:"blocked_commands" yaml:"blocked_commands" toml:"blocked_commands"`

	allowRe []*regexp.Regexp
	denyRe  []*regexp.Regexp
}

// compile lazily compiles the regex lists, skipping any pattern that fails
// to compile (logged, not fatal — a bad pattern should not crash startup).
func (p *PermissionsConfig) compile() {
	p.allowRe = compilePatterns(p.AllowedCommands)
	p.denyRe = compilePatterns(p.BlockedCommands)
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Printf("[Config] WARNING: invalid command pattern %q, ignoring: %v", p, err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// Allowed reports whether command passes the allow/deny policy.
func (p *PermissionsConfig) Allowed(command string) bool {
	for _, re := range p.denyRe {
		if re.MatchString(command) {
			return false
		}
	}
	if len(p.allowRe) == 0 {
		return true
	}
	for _, re := range p.allowRe {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// Config is the fully resolved C1 configuration.
type Config struct {
	AgentExecution      AgentExecutionConfig      `json:"agent_execution" yaml:"agent_execution" toml:"agent_execution"`
	ResourceLimits      ResourceLimitsConfig      `json:"resource_limits" yaml:"resource_limits" toml:"resource_limits"`
	NetworkSecurity     NetworkSecurityConfig     `json:"network_security" yaml:"network_security" toml:"network_security"`
	ContentSanitization ContentSanitizationConfig `json:"content_sanitization" yaml:"content_sanitization" toml:"content_sanitization"`
	Permissions         PermissionsConfig         `json:"permissions" yaml:"permissions" toml:"permissions"`

	// Duration fields are not read from config files (their tags are "-");
	// only the environment layer sets them, in whole seconds via the *_SEC
	// variables. Load does not populate the *Sec fields below.
	maxExecutionTimeSec       int
	verificationTimeoutSec    int
	timeBoundsPerIterationSec int
	networkTimeoutSec         int
}

// Default returns the process-wide defaults (layer 1 of 3).
func Default() *Config {
	c := &Config{
		AgentExecution: AgentExecutionConfig{
			MaxIterations:           10,
			MaxToolsPerIteration:    5,
			MaxExecutionTime:        5 * time.Minute,
			VerificationTimeout:     10 * time.Second,
			AllowIterationOnFailure: true,
			ConvergenceThreshold:    0.8,
			TimeBoundsPerIteration:  60 * time.Second,
		},
		ResourceLimits: ResourceLimitsConfig{
			MaxMemory:          512 << 20,
			MaxCPUPercent:      80,
			MaxFileOperations:  200,
			MaxNetworkRequests: 30,
			SandboxEnabled:     true,
		},
		NetworkSecurity: NetworkSecurityConfig{
			AllowGlobs:     nil,
			DenyGlobs:      []string{"169.254.*", "10.*", "192.168.*"},
			MaxRequestSize: 5 << 20,
			Timeout:        15 * time.Second,
			VerifySSL:      true,
		},
		ContentSanitization: ContentSanitizationConfig{
			DetectPromptInjection: true,
			DetectSQLInjection:    true,
			DetectSecrets:         true,
			AllowedMIMETypes:      []string{"text/plain", "text/markdown", "application/json"},
			MaxContentLength:      1 << 20,
		},
		Permissions: PermissionsConfig{
			BlockedCommands: []string{`\brm\s+-rf\s+/`, `\bmkfs\b`, `\bdd\s+if=`, `:\(\)\{.*\}:`},
		},
	}
	c.Permissions.compile()
	return c
}

// projectMarkers mirrors the marker set used by project-root detection
// (DetectProjectRoot) — repeated here because config files may themselves
// live at a project root and we want the same vocabulary when searching
// for well-known config paths.
var projectMarkers = []string{".git", "go.mod", "Cargo.toml", "package.json", "pyproject.toml", ".hg", ".svn"}

// WellKnownConfigPaths returns the project-local then global config file
// candidates, in priority order (project-local overrides global).
func WellKnownConfigPaths(projectRoot string) []string {
	var paths []string
	for _, name := range []string{"vibe.yaml", "vibe.yml", "vibe.toml", "vibe.json"} {
		paths = append(paths, filepath.Join(projectRoot, ".vibe", name))
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"config.yaml", "config.yml", "config.toml", "config.json"} {
			paths = append(paths, filepath.Join(home, ".config", "vibe_cli", name))
		}
	}
	return paths
}

// Load builds the fully layered configuration: defaults → first well-known
// file found under projectRoot/home → environment variable overrides.
// VIBE_SECURITY_CONFIG, if set, selects an explicit file and is tried first.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	candidates := WellKnownConfigPaths(projectRoot)
	if explicit := os.Getenv("VIBE_SECURITY_CONFIG"); explicit != "" {
		candidates = append([]string{explicit}, candidates...)
	}
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := cfg.mergeFile(p, data); err != nil {
			log.Printf("[Config] WARNING: failed to parse config file %s, keeping defaults for its layer: %v", p, err)
		} else {
			log.Printf("[Config] Loaded config overrides from %s", p)
		}
		break
	}

	cfg.applyEnvOverrides()
	cfg.Permissions.compile()
	return cfg, cfg.Validate()
}

// mergeFile unmarshals data (format selected by p's extension) on top of cfg.
func (c *Config) mergeFile(p string, data []byte) error {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	case ".toml":
		return toml.Unmarshal(data, c)
	case ".json":
		return json.Unmarshal(data, c)
	default:
		return fmt.Errorf("unrecognized config format: %s", p)
	}
}

// applyEnvOverrides applies the environment-variable layer (layer 3 of 3).
// Unparseable values fall back to the already-resolved value with a logged
// warning, never a hard failure.
func (c *Config) applyEnvOverrides() {
	c.AgentExecution.MaxIterations = envIntOrDefault("VIBE_MAX_ITERATIONS", c.AgentExecution.MaxIterations)
	c.AgentExecution.MaxToolsPerIteration = envIntOrDefault("VIBE_MAX_TOOLS_PER_ITERATION", c.AgentExecution.MaxToolsPerIteration)
	c.AgentExecution.MaxExecutionTime = envDurationSecOrDefault("VIBE_MAX_EXECUTION_TIME_SEC", c.AgentExecution.MaxExecutionTime)
	c.AgentExecution.VerificationTimeout = envDurationSecOrDefault("VIBE_VERIFICATION_TIMEOUT_SEC", c.AgentExecution.VerificationTimeout)
	c.AgentExecution.TimeBoundsPerIteration = envDurationSecOrDefault("VIBE_TIME_BOUNDS_PER_ITERATION_SEC", c.AgentExecution.TimeBoundsPerIteration)
	c.AgentExecution.AllowIterationOnFailure = envBoolOrDefault("VIBE_ALLOW_ITERATION_ON_FAILURE", c.AgentExecution.AllowIterationOnFailure)
	c.AgentExecution.ConvergenceThreshold = envFloatOrDefault("VIBE_CONVERGENCE_THRESHOLD", c.AgentExecution.ConvergenceThreshold)

	c.ResourceLimits.MaxMemory = envInt64OrDefault("VIBE_MAX_MEMORY", c.ResourceLimits.MaxMemory)
	c.ResourceLimits.MaxFileOperations = envIntOrDefault("VIBE_MAX_FILE_OPERATIONS", c.ResourceLimits.MaxFileOperations)
	c.ResourceLimits.MaxNetworkRequests = envIntOrDefault("VIBE_MAX_NETWORK_REQUESTS", c.ResourceLimits.MaxNetworkRequests)
	c.ResourceLimits.SandboxEnabled = envBoolOrDefault("VIBE_SANDBOX_ENABLED", c.ResourceLimits.SandboxEnabled)

	c.NetworkSecurity.Timeout = envDurationSecOrDefault("VIBE_NETWORK_TIMEOUT_SEC", c.NetworkSecurity.Timeout)
	c.NetworkSecurity.MaxRequestSize = envInt64OrDefault("VIBE_MAX_REQUEST_SIZE", c.NetworkSecurity.MaxRequestSize)
	c.NetworkSecurity.VerifySSL = envBoolOrDefault("VIBE_VERIFY_SSL", c.NetworkSecurity.VerifySSL)

	c.ContentSanitization.MaxContentLength = envIntOrDefault("VIBE_MAX_CONTENT_LENGTH", c.ContentSanitization.MaxContentLength)
	c.ContentSanitization.DetectSecrets = envBoolOrDefault("VIBE_SECRET_DETECTION", c.ContentSanitization.DetectSecrets)
	c.ContentSanitization.DetectPromptInjection = envBoolOrDefault("VIBE_PROMPT_INJECTION_DETECTION", c.ContentSanitization.DetectPromptInjection)
	c.ContentSanitization.DetectSQLInjection = envBoolOrDefault("VIBE_SQL_INJECTION_DETECTION", c.ContentSanitization.DetectSQLInjection)
	if v := os.Getenv("VIBE_ALLOWED_CONTENT_TYPES"); v != "" {
		types := strings.Split(v, ",")
		for i := range types {
			types[i] = strings.TrimSpace(types[i])
		}
		c.ContentSanitization.AllowedMIMETypes = types
	}
}

// Validate reports a structural error in the resolved configuration. Unlike
// per-field env parsing (which degrades to defaults), a failed Validate is
// surfaced to the caller since it means the fully-merged config is unusable.
func (c *Config) Validate() error {
	if c.AgentExecution.MaxIterations <= 0 {
		return fmt.Errorf("agent_execution.max_iterations must be positive, got %d", c.AgentExecution.MaxIterations)
	}
	if c.AgentExecution.MaxToolsPerIteration <= 0 {
		return fmt.Errorf("agent_execution.max_tools_per_iteration must be positive, got %d", c.AgentExecution.MaxToolsPerIteration)
	}
	if c.AgentExecution.ConvergenceThreshold < 0 || c.AgentExecution.ConvergenceThreshold > 1 {
		return fmt.Errorf("agent_execution.convergence_threshold must be in [0,1], got %f", c.AgentExecution.ConvergenceThreshold)
	}
	if c.ResourceLimits.MaxFileOperations <= 0 {
		return fmt.Errorf("resource_limits.max_file_operations must be positive, got %d", c.ResourceLimits.MaxFileOperations)
	}
	return nil
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}

func envInt64OrDefault(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %f", key, v, def)
	}
	return def
}

func envBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %v", key, v, def)
	}
	return def
}

func envDurationSecOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
		log.Printf("[Config] WARNING: invalid value for %s=%q, using default %v", key, v, def)
	}
	return def
}
