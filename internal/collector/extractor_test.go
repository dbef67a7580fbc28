package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeScript 在临时目录写一个可执行的 sh 脚本
func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "extract.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func TestExtractorEchoesInput(t *testing.T) {
	script := writeScript(t, "cat")
	out, err := NewExtractor(5*time.Second).Invoke(context.Background(), script, "foo https://acme.test/item/42 bar")
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if out != "foo https://acme.test/item/42 bar" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExtractorAcceptsNonZeroExit(t *testing.T) {
	script := writeScript(t, "echo hello\nexit 3")
	out, err := NewExtractor(5*time.Second).Invoke(context.Background(), script, "")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if out != "hello\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExtractorSpawnFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.sh")
	_, err := NewExtractor(time.Second).Invoke(context.Background(), missing, "x")
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
}

func TestExtractorInvalidUTF8(t *testing.T) {
	script := writeScript(t, `printf '\377\376'`)
	_, err := NewExtractor(5*time.Second).Invoke(context.Background(), script, "")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestExtractorTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5")
	start := time.Now()
	_, err := NewExtractor(200*time.Millisecond).Invoke(context.Background(), script, "")
	if !errors.Is(err, ErrExecIO) {
		t.Fatalf("expected ErrExecIO on timeout, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("timeout was not enforced, took %s", time.Since(start))
	}
}
