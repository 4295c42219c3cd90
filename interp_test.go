package pymodgraph

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestProbeInterpreter(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter is a shell script")
	}
	fake := filepath.Join(t.TempDir(), "fakepython")
	script := `#!/bin/sh
echo '{"path": ["/app", "/app/vendor.zip"], "builtins": ["sys", "marshal"], "extension_suffixes": [".abi3.so", ".so"]}'
`
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := ProbeInterpreter(context.Background(), fake)
	if err != nil {
		t.Fatalf("ProbeInterpreter: %v", err)
	}
	if diff := cmp.Diff([]string{"/app", "/app/vendor.zip"}, cfg.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"sys", "marshal"}, cfg.Builtins); diff != "" {
		t.Errorf("builtins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{".abi3.so", ".so"}, cfg.ExtensionSuffixes); diff != "" {
		t.Errorf("suffixes mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeInterpreterFailure(t *testing.T) {
	t.Parallel()
	if _, err := ProbeInterpreter(context.Background(), "/no/such/python"); err == nil {
		t.Error("ProbeInterpreter on a missing interpreter succeeded; want error")
	}
}
