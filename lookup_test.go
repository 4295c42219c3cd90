package pymodgraph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/observeroftime01/pymodgraph/internal/test/pyenv"
	"github.com/observeroftime01/pymodgraph/pycode"
)

func testConfig(path ...string) Config {
	cfg := DefaultConfig()
	cfg.Path = path
	cfg.ExtensionSuffixes = []string{".so"}
	return cfg
}

func TestFindModuleBuiltin(t *testing.T) {
	t.Parallel()
	g := NewModuleGraph(testConfig())
	found, err := g.FindModule("sys", nil)
	if err != nil {
		t.Fatalf("FindModule(sys, nil): %v", err)
	}
	if found.Kind != KindBuiltinModule {
		t.Errorf("kind = %v; want %v", found.Kind, KindBuiltinModule)
	}
	if found.Filename != "" {
		t.Errorf("builtin has filename %q; want none", found.Filename)
	}

	// With an explicit package path, builtins do not apply.
	if _, err := g.FindModule("sys", []string{t.TempDir()}); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("FindModule(sys, path) error = %v; want ErrModuleNotFound", err)
	}
}

func TestFindModuleAlreadyInGraph(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := pyenv.New(t)
	env.Source("mymodule.py", "")
	g := NewModuleGraph(testConfig(env.Dir))
	g.CreateNode(ctx, KindSourceModule, "mymodule")
	if _, err := g.FindModule("mymodule", nil); err == nil {
		t.Error("FindModule for an in-graph name succeeded; want error")
	}

	// The check applies to top-level lookups only: a package-relative probe for the same bare
	// name resolves a different module entirely.
	found, err := g.FindModule("mymodule", []string{env.Dir})
	if err != nil {
		t.Fatalf("package-relative FindModule(mymodule): %v", err)
	}
	if found.Kind != KindSourceModule {
		t.Errorf("kind = %v; want %v", found.Kind, KindSourceModule)
	}
}

func TestSplitArchivePath(t *testing.T) {
	t.Parallel()
	env := pyenv.New(t)
	archive := env.Zip("vendor.zip", map[string][]byte{"mypkg/__init__.py": []byte("")})
	for _, tc := range []struct {
		desc        string
		entry       string
		wantArchive string
		wantPrefix  string
		wantOK      bool
	}{
		{
			desc:        "package inside archive",
			entry:       filepath.Join(archive, "mypkg"),
			wantArchive: archive,
			wantPrefix:  "mypkg/",
			wantOK:      true,
		},
		{desc: "no archive ancestor", entry: filepath.Join(env.Dir, "no", "such", "entry")},
		// Relative entries without an archive ancestor must terminate at ".", not spin.
		{desc: "relative nonexistent", entry: "no/such/entry"},
		{desc: "bare dot", entry: "."},
		{desc: "root", entry: "/"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			gotArchive, gotPrefix, ok := splitArchivePath(tc.entry)
			if ok != tc.wantOK || gotArchive != tc.wantArchive || gotPrefix != tc.wantPrefix {
				t.Errorf("splitArchivePath(%q) = %q, %q, %v; want %q, %q, %v",
					tc.entry, gotArchive, gotPrefix, ok, tc.wantArchive, tc.wantPrefix, tc.wantOK)
			}
		})
	}
}

func TestFindModuleSkipsBogusEntry(t *testing.T) {
	t.Parallel()
	env := pyenv.New(t)
	src := env.Source("mymodule.py", "")
	g := NewModuleGraph(testConfig("relative/nonexistent", env.Dir))

	found, err := g.FindModule("mymodule", nil)
	if err != nil {
		t.Fatalf("FindModule(mymodule): %v", err)
	}
	if found.Filename != src {
		t.Errorf("filename = %q; want %q", found.Filename, src)
	}
}

func TestFindModuleInDirectory(t *testing.T) {
	t.Parallel()
	env := pyenv.New(t)
	srcPath := env.Source("mymodule.py", "import sys\n")
	pycPath := env.Compiled("mymodule2.pyc", pyenv.TrivialCode("mymodule2"))
	extPath := env.Extension("myext.so")
	env.Source("myext.py", "")
	pkgDir := env.Package("mypkg", "import sys\n")
	g := NewModuleGraph(testConfig(env.Dir))

	for _, tc := range []struct {
		name         string
		wantKind     NodeKind
		wantFilename string
	}{
		{name: "mymodule", wantKind: KindSourceModule, wantFilename: srcPath},
		{name: "mymodule2", wantKind: KindCompiledModule, wantFilename: pycPath},
		// The native extension shadows the .py shim of the same basename.
		{name: "myext", wantKind: KindExtension, wantFilename: extPath},
		{name: "mypkg", wantKind: KindPackage, wantFilename: filepath.Join(pkgDir, "__init__.py")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			found, err := g.FindModule(tc.name, nil)
			if err != nil {
				t.Fatalf("FindModule(%s): %v", tc.name, err)
			}
			if found.Kind != tc.wantKind {
				t.Errorf("kind = %v; want %v", found.Kind, tc.wantKind)
			}
			if found.Filename != tc.wantFilename {
				t.Errorf("filename = %q; want %q", found.Filename, tc.wantFilename)
			}
			if tc.wantKind == KindPackage && len(found.PackagePath) == 0 {
				t.Error("package match has empty package path")
			}
			if tc.wantKind == KindCompiledModule && found.Code == nil {
				t.Error("compiled match has no code object")
			}
		})
	}

	if _, err := g.FindModule("nosuchmodule", nil); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("FindModule(nosuchmodule) error = %v; want ErrModuleNotFound", err)
	}
}

func TestFindModuleInZip(t *testing.T) {
	t.Parallel()
	env := pyenv.New(t)
	archive := env.Zip("vendor.zip", map[string][]byte{
		"mymodule.py":       []byte("import sys\n"),
		"mymodule2.pyc":     pycode.Marshal(pyenv.TrivialCode("mymodule2")),
		"mypkg/__init__.py": []byte(""),
		"myext.so":          []byte("\x7fELF"),
		"badmodule.pyc":     []byte("not a code object"),
	})
	g := NewModuleGraph(testConfig(archive))

	found, err := g.FindModule("mymodule", nil)
	if err != nil {
		t.Fatalf("FindModule(mymodule): %v", err)
	}
	if found.Kind != KindSourceModule {
		t.Errorf("mymodule kind = %v; want %v", found.Kind, KindSourceModule)
	}
	if want := filepath.Join(archive, "mymodule.py"); found.Filename != want {
		t.Errorf("mymodule filename = %q; want %q", found.Filename, want)
	}

	// Compiled-only members satisfy imports.
	found, err = g.FindModule("mymodule2", nil)
	if err != nil {
		t.Fatalf("FindModule(mymodule2): %v", err)
	}
	if found.Kind != KindCompiledModule || found.Code == nil {
		t.Errorf("mymodule2 = kind %v, code %v; want compiled with code", found.Kind, found.Code)
	}

	found, err = g.FindModule("mypkg", nil)
	if err != nil {
		t.Fatalf("FindModule(mypkg): %v", err)
	}
	if found.Kind != KindPackage || len(found.PackagePath) == 0 {
		t.Errorf("mypkg = kind %v, packagepath %v; want package with path", found.Kind, found.PackagePath)
	}

	// Plain zip archives never resolve native extensions.
	if _, err := g.FindModule("myext", nil); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("FindModule(myext) error = %v; want ErrModuleNotFound", err)
	}

	// A corrupt compiled member is skipped, not fatal.
	if _, err := g.FindModule("badmodule", nil); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("FindModule(badmodule) error = %v; want ErrModuleNotFound", err)
	}
}

func TestFindModuleInEgg(t *testing.T) {
	t.Parallel()
	env := pyenv.New(t)
	archive := env.Zip("vendor.egg", map[string][]byte{
		// A native extension next to its pure-Python shim: the extension wins.
		"myext.so":      []byte("\x7fELF"),
		"myext.py":      []byte("def shim(): pass\n"),
		"mymodule2.pyc": pycode.Marshal(pyenv.TrivialCode("mymodule2")),
	})
	g := NewModuleGraph(testConfig(archive))

	found, err := g.FindModule("myext", nil)
	if err != nil {
		t.Fatalf("FindModule(myext): %v", err)
	}
	if found.Kind != KindExtension {
		t.Errorf("myext kind = %v; want %v", found.Kind, KindExtension)
	}
	if want := filepath.Join(archive, "myext.so"); found.Filename != want {
		t.Errorf("myext filename = %q; want %q", found.Filename, want)
	}

	found, err = g.FindModule("mymodule2", nil)
	if err != nil {
		t.Fatalf("FindModule(mymodule2): %v", err)
	}
	if found.Kind != KindCompiledModule {
		t.Errorf("mymodule2 kind = %v; want %v", found.Kind, KindCompiledModule)
	}
}

func TestFindModuleSearchOrder(t *testing.T) {
	t.Parallel()
	env1 := pyenv.New(t)
	env2 := pyenv.New(t)
	first := env1.Source("mymodule.py", "a = 1\n")
	env2.Source("mymodule.py", "a = 2\n")
	g := NewModuleGraph(testConfig(env1.Dir, env2.Dir))

	found, err := g.FindModule("mymodule", nil)
	if err != nil {
		t.Fatalf("FindModule(mymodule): %v", err)
	}
	if found.Filename != first {
		t.Errorf("filename = %q; want first entry's %q", found.Filename, first)
	}
}

func TestFindModulePackageInsideArchive(t *testing.T) {
	t.Parallel()
	env := pyenv.New(t)
	archive := env.Zip("vendor.zip", map[string][]byte{
		"mypkg/__init__.py": []byte(""),
		"mypkg/sub.py":      []byte("import sys\n"),
	})
	g := NewModuleGraph(testConfig(archive))

	pkg, err := g.FindModule("mypkg", nil)
	if err != nil {
		t.Fatalf("FindModule(mypkg): %v", err)
	}
	sub, err := g.FindModule("sub", pkg.PackagePath)
	if err != nil {
		t.Fatalf("FindModule(sub, %v): %v", pkg.PackagePath, err)
	}
	if sub.Kind != KindSourceModule {
		t.Errorf("sub kind = %v; want %v", sub.Kind, KindSourceModule)
	}
	if want := filepath.Join(archive, "mypkg", "sub.py"); sub.Filename != want {
		t.Errorf("sub filename = %q; want %q", sub.Filename, want)
	}
}
