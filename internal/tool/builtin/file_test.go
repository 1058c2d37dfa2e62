package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vibecli/vibe-core/internal/tool"
)

func TestFileReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	write := NewFileWriteTool(dir)
	read := NewFileReadTool(dir)

	out, err := write.Execute(context.Background(), tool.ToolArgs{Parameters: map[string]string{
		"path": "notes.txt", "content": "hello",
	}})
	if err != nil || !out.Success {
		t.Fatalf("write failed: out=%+v err=%v", out, err)
	}

	out, err = read.Execute(context.Background(), tool.ToolArgs{Parameters: map[string]string{"path": "notes.txt"}})
	if err != nil || !out.Success {
		t.Fatalf("read failed: out=%+v err=%v", out, err)
	}
	if out.Stdout != "hello" {
		t.Errorf("got %q, want %q", out.Stdout, "hello")
	}
}

func TestFileReadRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	read := NewFileReadTool(dir)

	_, err := safeResolvePath("../../etc/passwd", dir)
	if err == nil {
		t.Fatal("expected safeResolvePath to reject escape")
	}

	out, _ := read.Execute(context.Background(), tool.ToolArgs{Parameters: map[string]string{"path": "../../etc/passwd"}})
	if out.Success {
		t.Error("expected read to fail for path outside workspace")
	}
}

func TestDirectoryListEmptyDir(t *testing.T) {
	dir := t.TempDir()
	l := NewDirectoryListTool(dir)

	out, err := l.Execute(context.Background(), tool.ToolArgs{Parameters: map[string]string{"path": "."}})
	if err != nil || !out.Success {
		t.Fatalf("list failed: %+v err=%v", out, err)
	}
	if out.Stdout != "(empty directory)" {
		t.Errorf("got %q", out.Stdout)
	}
}

func TestFindFilesByGlob(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}
	f := NewFindFilesTool(dir)

	out, err := f.Execute(context.Background(), tool.ToolArgs{Parameters: map[string]string{"pattern": "*.go"}})
	if err != nil || !out.Success {
		t.Fatalf("find failed: %+v err=%v", out, err)
	}
	if out.Stdout == "" {
		t.Error("expected at least one match")
	}
}

func TestFileWriteRejectsOversizedContent(t *testing.T) {
	dir := t.TempDir()
	w := NewFileWriteTool(dir)
	big := make([]byte, maxWriteSize+1)
	err := w.Validate(tool.ToolArgs{Parameters: map[string]string{"path": "big.txt", "content": string(big)}})
	if err == nil {
		t.Fatal("expected validation error for oversized content")
	}
}
