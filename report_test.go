package pymodgraph

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReportEmpty(t *testing.T) {
	t.Parallel()
	g := NewModuleGraph(Config{})
	var sb strings.Builder
	if err := g.Report(&sb); err != nil {
		t.Fatalf("Report: %v", err)
	}
	want := "\n" +
		"Class           Name                      File\n" +
		"-----           ----                      ----\n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestReportRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewModuleGraph(Config{})
	mod := g.CreateNode(ctx, KindSourceModule, "mymodule")
	mod.Filename = "/src/mymodule.py"
	g.CreateNode(ctx, KindBuiltinModule, "sys")
	g.CreateNode(ctx, KindMissingModule, "nosuchmodule")

	var sb strings.Builder
	if err := g.Report(&sb); err != nil {
		t.Fatalf("Report: %v", err)
	}
	want := "\n" +
		"Class           Name                      File\n" +
		"-----           ----                      ----\n" +
		"SourceModule    mymodule                  /src/mymodule.py\n" +
		"MissingModule   nosuchmodule              \n" +
		"BuiltinModule   sys                       \n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestIterGraphReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewModuleGraph(Config{})
	a := g.CreateNode(ctx, KindSourceModule, "a")
	b := g.CreateNode(ctx, KindMissingModule, "b")
	g.AddEdge(a, b, InfoEdge(DependencyInfo{Conditional: true}))

	lines := slices.Collect(g.IterGraphReport("myapp"))
	if got, want := lines[0], `digraph "myapp" {`; got != want {
		t.Errorf("first line = %q; want %q", got, want)
	}
	if got, want := lines[len(lines)-1], "}"; got != want {
		t.Errorf("last line = %q; want %q", got, want)
	}
	joined := strings.Join(lines, "\n")
	for _, want := range []string{
		`"a" [label="a"];`,
		`"b" [label="b",color=red];`,
		`"a" -> "b" [label="conditional"];`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("dot output missing %q:\n%s", want, joined)
		}
	}

	// The sequence is restartable.
	again := slices.Collect(g.IterGraphReport("myapp"))
	if diff := cmp.Diff(lines, again); diff != "" {
		t.Errorf("second pass mismatch (-first +second):\n%s", diff)
	}

	var sb strings.Builder
	if err := g.GraphReport(&sb, "myapp"); err != nil {
		t.Fatalf("GraphReport: %v", err)
	}
	if got, want := sb.String(), joined+"\n"; got != want {
		t.Errorf("GraphReport = %q; want %q", got, want)
	}
}

func TestCreateXref(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewModuleGraph(Config{})
	a := g.CreateNode(ctx, KindSourceModule, "a")
	a.Filename = "/src/a.py"
	b := g.CreateNode(ctx, KindSourceModule, "b")
	g.AddEdge(a, b, DirectEdge())

	var sb strings.Builder
	if err := g.CreateXref(&sb, "myapp"); err != nil {
		t.Fatalf("CreateXref: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		"<title>myapp</title>",
		"/src/a.py",
		`<a href="#b">b</a>`,
		`<a href="#a">a</a>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("xref output missing %q", want)
		}
	}
}
