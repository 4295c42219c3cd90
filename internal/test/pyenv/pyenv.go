// Package pyenv builds throwaway Python search-path environments for tests: directories of
// source and compiled modules, packages, and zip/egg archives, all rooted in a per-test temporary
// directory.
package pyenv

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/observeroftime01/pymodgraph/pycode"
)

// An Env is one throwaway search-path environment.  Dir is its root; every builder method returns
// the absolute path of what it created so tests can assert on node filenames.
type Env struct {
	t   *testing.T
	Dir string
}

func New(t *testing.T) *Env {
	t.Helper()
	return &Env{t: t, Dir: t.TempDir()}
}

// Source writes a .py file at the given slash-separated path below the environment root.
func (e *Env) Source(relpath, src string) string {
	e.t.Helper()
	return e.write(relpath, []byte(src))
}

// Compiled writes a bare .pyc file holding the marshaled form of co.
func (e *Env) Compiled(relpath string, co *pycode.Code) string {
	e.t.Helper()
	return e.write(relpath, pycode.Marshal(co))
}

// Extension writes a placeholder native extension file.  Lookup never reads extension contents,
// only probes for the name.
func (e *Env) Extension(relpath string) string {
	e.t.Helper()
	return e.write(relpath, []byte("\x7fELF"))
}

// Package creates a package directory with the given __init__.py source and returns the
// directory path.
func (e *Env) Package(relpath, initSrc string) string {
	e.t.Helper()
	e.write(filepath.Join(relpath, "__init__.py"), []byte(initSrc))
	return filepath.Join(e.Dir, filepath.FromSlash(relpath))
}

// Zip writes a zip archive with the given members (slash-separated member names) and returns its
// path.  Name it with a .egg extension to get egg lookup semantics.
func (e *Env) Zip(name string, members map[string][]byte) string {
	e.t.Helper()
	path := filepath.Join(e.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		e.t.Fatalf("failed to create archive: %v", err)
	}
	zw := zip.NewWriter(f)
	for member, data := range members {
		w, err := zw.Create(member)
		if err != nil {
			e.t.Fatalf("failed to add archive member %q: %v", member, err)
		}
		if _, err := w.Write(data); err != nil {
			e.t.Fatalf("failed to write archive member %q: %v", member, err)
		}
	}
	if err := zw.Close(); err != nil {
		e.t.Fatalf("failed to finish archive: %v", err)
	}
	if err := f.Close(); err != nil {
		e.t.Fatalf("failed to close archive: %v", err)
	}
	return path
}

// TrivialCode returns a minimal compiled module with the given name and no imports.
func TrivialCode(name string) *pycode.Code {
	b := pycode.NewBuilder(name, name+".py")
	return b.Code()
}

func (e *Env) write(relpath string, data []byte) string {
	e.t.Helper()
	path := filepath.Join(e.Dir, filepath.FromSlash(relpath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", relpath, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.t.Fatalf("failed to write %q: %v", relpath, err)
	}
	return path
}
