package pymodgraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/observeroftime01/pymodgraph/pycode"
)

func TestReplacePathsInCode(t *testing.T) {
	t.Parallel()
	g := NewModuleGraph(Config{ReplacePaths: []PathReplacement{
		{Prefix: "/build", Replacement: "/app"},
		{Prefix: "/build/vendor", Replacement: "/vendor"},
	}})

	for _, tc := range []struct {
		desc string
		in   string
		want string
	}{
		{desc: "simple prefix", in: "/build/mymodule.py", want: "/app/mymodule.py"},
		// The longest matching prefix wins, regardless of configuration order.
		{desc: "longest prefix wins", in: "/build/vendor/dep.py", want: "/vendor/dep.py"},
		{desc: "no match", in: "/other/mymodule.py", want: "/other/mymodule.py"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			co := &pycode.Code{Name: "<module>", Filename: tc.in}
			got := g.ReplacePathsInCode(co)
			if got.Filename != tc.want {
				t.Errorf("filename = %q; want %q", got.Filename, tc.want)
			}
			if co.Filename != tc.in {
				t.Errorf("input mutated: filename now %q", co.Filename)
			}
		})
	}
}

func TestReplacePathComponentBoundary(t *testing.T) {
	t.Parallel()
	g := NewModuleGraph(Config{ReplacePaths: []PathReplacement{
		{Prefix: "/build/pkg", Replacement: "/out"},
	}})

	for _, tc := range []struct {
		desc string
		in   string
		want string
	}{
		// A filename that merely extends the prefix string lies outside the mapped directory.
		{desc: "sibling file", in: "/build/pkg.py", want: "/build/pkg.py"},
		{desc: "sibling directory", in: "/build/pkgextra/mod.py", want: "/build/pkgextra/mod.py"},
		{desc: "inside directory", in: "/build/pkg/mod.py", want: "/out/mod.py"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			co := &pycode.Code{Name: "<module>", Filename: tc.in}
			if got := g.ReplacePathsInCode(co).Filename; got != tc.want {
				t.Errorf("filename = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestReplacePathsInCodeNested(t *testing.T) {
	t.Parallel()
	g := NewModuleGraph(Config{ReplacePaths: []PathReplacement{
		{Prefix: "/build", Replacement: "/app"},
	}})

	sameFile := &pycode.Code{Name: "myfunc", Filename: "/build/mymodule.py"}
	otherFile := &pycode.Code{Name: "inlined", Filename: "/elsewhere/template.py"}
	co := &pycode.Code{
		Name:     "<module>",
		Filename: "/build/mymodule.py",
		Consts: []pycode.Const{
			pycode.StrConst("unrelated"),
			pycode.CodeConst(sameFile),
			pycode.CodeConst(otherFile),
		},
	}

	got := g.ReplacePathsInCode(co)
	if want := "/app/mymodule.py"; got.Filename != want {
		t.Errorf("filename = %q; want %q", got.Filename, want)
	}
	if want := "/app/mymodule.py"; got.Consts[1].Code.Filename != want {
		t.Errorf("nested filename = %q; want %q", got.Consts[1].Code.Filename, want)
	}
	// Code compiled from a different file keeps its origin.
	if want := "/elsewhere/template.py"; got.Consts[2].Code.Filename != want {
		t.Errorf("foreign nested filename = %q; want %q", got.Consts[2].Code.Filename, want)
	}
	if diff := cmp.Diff("/build/mymodule.py", sameFile.Filename); diff != "" {
		t.Errorf("input nested code mutated (-want +got):\n%s", diff)
	}
}
