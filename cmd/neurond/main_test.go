package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRun_ListSynapses(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-list-synapses"}, &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "identity") || !strings.Contains(out.String(), "zeros") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRun_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neuron.toml")
	if err := os.WriteFile(path, []byte("[axon]\nbogus = 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-config", path}, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "axon.bogus") {
		t.Fatalf("expected unknown key in error, got %q", errOut.String())
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var out, errOut bytes.Buffer
	args := []string{"-listen", "127.0.0.1:0", "-seed-hex", strings.Repeat("11", 32)}
	if code := run(ctx, args, &out, &errOut); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut.String())
	}
}
