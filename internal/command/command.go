// Package command runs external commands and decodes their JSON output.  The module graph uses it
// to interrogate a host Python interpreter for its search path, builtin-module table, and
// extension-module suffixes.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

type envKeyType struct{}

// EnvKey is a [context.Context.WithValue] key that can be used to override the environment of
// commands that are executed by this package.  The value must have type []string where each entry
// has the form "name=value".
var EnvKey = envKeyType{}

// New constructs a new [exec.Cmd] with the given arguments, leaving its stdout and stderr
// connected to stdout and stderr.
func New(ctx context.Context, wd string, args ...string) *exec.Cmd {
	slog.DebugContext(ctx, "running command", "wd", wd, "args", args)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = wd
	if v := ctx.Value(EnvKey); v != nil {
		cmd.Env = v.([]string)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Pipe is like [New] except it connects the command's stdout to a pipe and the reading side is
// returned.  The command is started before returning.
func Pipe(ctx context.Context, wd string, args ...string) (*exec.Cmd, io.ReadCloser, error) {
	cmd := New(ctx, wd, args...)
	cmd.Stdout = nil
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get stdout pipe for command %q: %w",
			strings.Join(args, " "), err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start command %q: %w", strings.Join(args, " "), err)
	}
	return cmd, out, nil
}

// DecodeJson runs the given command and decodes its entire stdout as a single JSON value of type
// T.
func DecodeJson[T any](ctx context.Context, wd string, args ...string) (T, error) {
	obj := *new(T)
	cmd, out, err := Pipe(ctx, wd, args...)
	if err != nil {
		return obj, err
	}
	dec := json.NewDecoder(out)
	decErr := dec.Decode(&obj)
	if err := out.Close(); decErr == nil && err != nil {
		decErr = err
	}
	if err := cmd.Wait(); err != nil {
		return obj, fmt.Errorf("command %q failed: %w", strings.Join(args, " "), err)
	}
	if decErr != nil {
		return obj, fmt.Errorf("failed to decode JSON from command %q: %w",
			strings.Join(args, " "), decErr)
	}
	return obj, nil
}
