package pymodgraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/observeroftime01/pymodgraph/internal/command"
)

// probeProgram prints the interpreter facts a [Config] needs as one JSON object.
const probeProgram = `import json, sys, importlib.machinery
print(json.dumps({
    "path": [p for p in sys.path if p],
    "builtins": list(sys.builtin_module_names),
    "extension_suffixes": importlib.machinery.EXTENSION_SUFFIXES,
}))`

// ProbeInterpreter runs the given Python interpreter and returns a [Config] capturing its search
// path, builtin-module table, and extension-module suffixes.  The graph then analyzes for that
// interpreter's environment without ever importing anything into it.
func ProbeInterpreter(ctx context.Context, python string) (Config, error) {
	probe, err := command.DecodeJson[struct {
		Path              []string `json:"path"`
		Builtins          []string `json:"builtins"`
		ExtensionSuffixes []string `json:"extension_suffixes"`
	}](ctx, "", python, "-c", probeProgram)
	if err != nil {
		return Config{}, fmt.Errorf("failed to probe interpreter %q: %w", python, err)
	}
	slog.DebugContext(ctx, "probed interpreter", "python", python,
		"pathEntries", len(probe.Path), "builtins", len(probe.Builtins))
	cfg := DefaultConfig()
	cfg.Path = probe.Path
	cfg.Builtins = probe.Builtins
	cfg.ExtensionSuffixes = probe.ExtensionSuffixes
	return cfg, nil
}
