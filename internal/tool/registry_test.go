package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/vibecli/vibe-core/internal/config"
)

// dummyTool is a minimal Tool implementation for testing.
type dummyTool struct {
	name    string
	execute func(ctx context.Context, args ToolArgs) (ToolOutput, error)
}

func (d *dummyTool) Name() string                        { return d.name }
func (d *dummyTool) Description() string                 { return "test tool" }
func (d *dummyTool) InputSchema() json.RawMessage         { return nil }
func (d *dummyTool) Validate(_ ToolArgs) error            { return nil }
func (d *dummyTool) ResourceLimits() ResourceLimits       { return ResourceLimits{} }
func (d *dummyTool) Init(_ context.Context) error         { return nil }
func (d *dummyTool) Close() error                         { return nil }
func (d *dummyTool) Execute(ctx context.Context, args ToolArgs) (ToolOutput, error) {
	if d.execute != nil {
		return d.execute(ctx, args)
	}
	return ToolOutput{Success: true}, nil
}

func newTestRegistry() *Registry {
	return NewRegistry(nil, nil)
}

func TestRegistry_WithExtra_ContainsBoth(t *testing.T) {
	r := newTestRegistry()
	r.Register(&dummyTool{name: "original"})

	extra := &dummyTool{name: "extra"}
	cp := r.WithExtra(extra)

	if _, ok := cp.Get("original"); !ok {
		t.Error("WithExtra copy should contain original tool")
	}
	if _, ok := cp.Get("extra"); !ok {
		t.Error("WithExtra copy should contain extra tool")
	}
}

func TestRegistry_WithExtra_NoMutationOfOriginal(t *testing.T) {
	r := newTestRegistry()
	r.Register(&dummyTool{name: "original"})

	r.WithExtra(&dummyTool{name: "extra"})

	if _, ok := r.Get("extra"); ok {
		t.Error("original registry should NOT contain extra tool after WithExtra")
	}
}

func TestRegistry_WithExtra_OverrideExisting(t *testing.T) {
	r := newTestRegistry()
	r.Register(&dummyTool{name: "shared"})

	override := &dummyTool{name: "shared"}
	cp := r.WithExtra(override)

	got, ok := cp.Get("shared")
	if !ok {
		t.Fatal("shared tool should exist")
	}
	if got != Tool(override) {
		t.Error("WithExtra should override existing tool with same name")
	}
}

func TestRegistry_Invoke_UnknownTool(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Invoke(context.Background(), "nonexistent", ToolArgs{})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRegistry_Invoke_Success(t *testing.T) {
	r := newTestRegistry()
	r.Register(&dummyTool{name: "echo", execute: func(_ context.Context, args ToolArgs) (ToolOutput, error) {
		return ToolOutput{Success: true, Stdout: args.GetOr("msg", "")}, nil
	}})

	out, err := r.Invoke(context.Background(), "echo", ToolArgs{Parameters: map[string]string{"msg": "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stdout != "hi" {
		t.Errorf("got stdout %q, want %q", out.Stdout, "hi")
	}
}

func TestRegistry_Invoke_PolicyDeniesSecret(t *testing.T) {
	r := NewRegistry(NewEngine(config.Default(), "/proj"), nil)
	r.Register(&dummyTool{name: "echo"})

	_, err := r.Invoke(context.Background(), "echo", ToolArgs{Parameters: map[string]string{"token": "super-secret-value"}})
	if err == nil {
		t.Fatal("expected policy to require approval for a secret-looking parameter")
	}
}
