package pymodgraph

import (
	"fmt"
	"html"
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/observeroftime01/pymodgraph/internal/itertools"
)

// Report writes the classic fixed-width module table: one row per node, sorted by graph
// identifier, with the node's class, name, and file.
func (g *ModuleGraph) Report(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "\n%-15s %-25s %s\n", "Class", "Name", "File"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%-15s %-25s %s\n", "-----", "----", "----"); err != nil {
		return err
	}
	for n := range g.Nodes() {
		if _, err := fmt.Fprintf(w, "%-15s %-25s %s\n", n.Kind, n.Identifier, n.Filename); err != nil {
			return err
		}
	}
	return nil
}

// IterGraphReport yields the lines of a Graphviz dot rendering of the graph, one line per node or
// edge.  Each call returns a fresh, restartable sequence over the same graph.
func (g *ModuleGraph) IterGraphReport(name string) iter.Seq[string] {
	header := slices.Values([]string{
		fmt.Sprintf("digraph %s {", dotID(name)),
		"\trankdir=LR;",
	})
	nodes := itertools.Map(g.Nodes(), func(n *Node) string {
		attrs := fmt.Sprintf("label=%q", strings.Join(n.InfoTuple(), "\\n"))
		if n.Kind.Bad() {
			attrs += ",color=red"
		}
		return fmt.Sprintf("\t%s [%s];", dotID(n.GraphIdent), attrs)
	})
	edges := func(yield func(string) bool) {
		for n := range g.Nodes() {
			for to, data := range g.OutEdges(n) {
				line := fmt.Sprintf("\t%s -> %s [label=%q];",
					dotID(n.GraphIdent), dotID(to.GraphIdent), data)
				if !yield(line) {
					return
				}
			}
		}
	}
	return itertools.Cat(header, nodes, edges, slices.Values([]string{"}"}))
}

// GraphReport writes the dot rendering produced by [ModuleGraph.IterGraphReport].
func (g *ModuleGraph) GraphReport(w io.Writer, name string) error {
	for line := range g.IterGraphReport(name) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// dotID quotes a graph identifier for dot output.  Identifiers with dots or path separators are
// common, so everything is emitted as a quoted string.
func dotID(ident string) string {
	return fmt.Sprintf("%q", ident)
}

// CreateXref writes an HTML cross-reference of the graph: every node with links to the modules it
// imports and the modules that import it.
func (g *ModuleGraph) CreateXref(w io.Writer, title string) error {
	p := func(format string, args ...any) error {
		_, err := fmt.Fprintf(w, format+"\n", args...)
		return err
	}
	if err := p("<html><head><title>%s</title></head><body>", html.EscapeString(title)); err != nil {
		return err
	}
	if err := p("<h1>%s</h1>", html.EscapeString(title)); err != nil {
		return err
	}
	for n := range g.Nodes() {
		if err := p(`<a name=%q><h2>%s</h2></a>`,
			n.GraphIdent, html.EscapeString(n.String())); err != nil {
			return err
		}
		if n.Filename != "" {
			if err := p("<p><tt>%s</tt></p>", html.EscapeString(n.Filename)); err != nil {
				return err
			}
		}
		out, in := g.GetEdges(n)
		if err := xrefList(p, "imports:", out); err != nil {
			return err
		}
		if err := xrefList(p, "imported by:", in); err != nil {
			return err
		}
	}
	return p("</body></html>")
}

func xrefList(p func(string, ...any) error, label string, nodes iter.Seq[*Node]) error {
	var links []string
	for n := range nodes {
		links = append(links, fmt.Sprintf(`<a href="#%s">%s</a>`,
			n.GraphIdent, html.EscapeString(n.GraphIdent)))
	}
	if links == nil {
		return nil
	}
	return p("<p>%s %s</p>", label, strings.Join(links, " &#8226; "))
}
