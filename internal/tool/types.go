package tool

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the unified interface for every member of the closed safe-tool
// enumeration (spec §4.2). Unlike an open-polymorphism plugin interface,
// every implementation here is one of the thirteen enumerated tools wired
// up in internal/tool/builtin. The registry itself runs whatever Tool is
// registered with it and does not check membership in the enumeration.
type Tool interface {
	// Name returns the tool identifier (the closed enumeration key).
	Name() string

	// Description returns a natural-language description for LLM prompt injection.
	Description() string

	// InputSchema returns a standard JSON Schema for the tool's parameters,
	// compatible with OpenAI function-calling tool definitions.
	InputSchema() json.RawMessage

	// Validate checks args for missing/empty/malformed parameters without
	// performing any side effect. Called by the registry before the policy
	// gate so a ValidationError never reaches the policy engine.
	Validate(args ToolArgs) error

	// Execute runs the tool. Callers must have already called Validate and
	// cleared the policy gate.
	Execute(ctx context.Context, args ToolArgs) (ToolOutput, error)

	// ResourceLimits returns this tool's default execution envelope.
	ResourceLimits() ResourceLimits

	// Init initializes tool resources (e.g. HTTP clients, API key checks).
	Init(ctx context.Context) error

	// Close releases tool resources.
	Close() error
}

// ToolArgs is the parameter envelope passed to a tool's Validate/Execute.
type ToolArgs struct {
	Parameters       map[string]string `json:"parameters"`
	Timeout          time.Duration     `json:"timeout,omitempty"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
}

// Get returns the named parameter, or "" with ok=false if absent.
func (a ToolArgs) Get(name string) (string, bool) {
	if a.Parameters == nil {
		return "", false
	}
	v, ok := a.Parameters[name]
	return v, ok
}

// GetOr returns the named parameter or def if absent or empty.
func (a ToolArgs) GetOr(name, def string) string {
	if v, ok := a.Get(name); ok && v != "" {
		return v
	}
	return def
}

// ResourceUsage reports what a single tool execution actually consumed.
type ResourceUsage struct {
	OutputSize     int64         `json:"output_size"`
	ProcessCount   int           `json:"process_count,omitempty"`
	NetworkCalls   int           `json:"network_calls,omitempty"`
	ExecutionTime  time.Duration `json:"execution_time"`
	TruncatedBytes int64         `json:"truncated_bytes,omitempty"`
}

// ToolOutput is the result of a tool execution (spec §4.2).
type ToolOutput struct {
	Success       bool          `json:"success"`
	Stdout        string        `json:"stdout,omitempty"`
	Stderr        string        `json:"stderr,omitempty"`
	ExitCode      *int          `json:"exit_code,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	ResourcesUsed ResourceUsage `json:"resources_used"`
}

// ToolResult is the legacy single-string shape used when formatting a
// ToolOutput back into a chat message for the LLM (assistant-visible text).
// Kept distinct from ToolOutput so the rich envelope is never lossily
// collapsed before the controller has recorded it.
type ToolResult struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Flatten renders a ToolOutput as the single-string ToolResult shape used
// in conversation history.
func (o ToolOutput) Flatten() ToolResult {
	if !o.Success {
		msg := o.Stderr
		if msg == "" {
			msg = "tool execution failed"
		}
		return ToolResult{Error: msg}
	}
	return ToolResult{Output: o.Stdout}
}

// ResourceLimits is the execution envelope a resource enforcer applies to a
// tool invocation (spec §4.2 "Execution envelope").
type ResourceLimits struct {
	MaxExecutionTime    time.Duration `json:"max_execution_time"`
	MaxOutputSize       int64         `json:"max_output_size"`
	MaxProcesses        int           `json:"max_processes"`
	WorkingDirectoryPin string        `json:"working_directory_pin,omitempty"`
}

// SchemaParam describes a single parameter for the BuildSchema helper.
type SchemaParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "integer", "boolean", "number"
	Description string   `json:"description"`
	Required    bool     `json:"-"`
	Enum        []string `json:"enum,omitempty"`
}

// BuildSchema generates a standard JSON Schema object from a list of SchemaParams.
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}
