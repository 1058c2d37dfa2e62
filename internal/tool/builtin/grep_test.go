package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vibecli/vibe-core/internal/tool"
)

func TestGrepSearchFindsMatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfunc main() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	g := NewGrepSearchTool(dir)

	out, err := g.Execute(context.Background(), tool.ToolArgs{Parameters: map[string]string{"pattern": "func main"}})
	if err != nil || !out.Success {
		t.Fatalf("grep failed: %+v err=%v", out, err)
	}
	if out.Stdout == "no matches found" {
		t.Error("expected a match")
	}
}

func TestGrepSearchInvalidRegexRejectedAtValidate(t *testing.T) {
	g := NewGrepSearchTool(t.TempDir())
	err := g.Validate(tool.ToolArgs{Parameters: map[string]string{"pattern": "("}})
	if err == nil {
		t.Fatal("expected validation error for invalid regex")
	}
}

func TestIsGrepBinaryDetectsNullByte(t *testing.T) {
	if !isGrepBinary([]byte{0x00, 0x01, 0x02}) {
		t.Error("expected null-byte sample to be detected as binary")
	}
	if isGrepBinary([]byte("hello world")) {
		t.Error("expected plain text to not be detected as binary")
	}
}
