package pymodgraph

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"runtime"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/observeroftime01/pymodgraph/internal/itertools"
	"github.com/observeroftime01/pymodgraph/internal/syncmap"
)

// A PathReplacement rewrites a filename prefix in compiled code objects; see
// [ModuleGraph.ReplacePathsInCode].
type PathReplacement struct {
	Prefix      string
	Replacement string
}

// A Config carries every piece of environment a [ModuleGraph] needs.  Nothing is read from
// ambient interpreter state; use [ProbeInterpreter] to capture a real interpreter's view of the
// world, or [DefaultConfig] for a static fallback.
type Config struct {
	// Path is the ordered list of search-path entries: plain directories, .zip archives, and
	// .egg archives.
	Path []string
	// Excludes names modules that resolve to [KindExcludedModule] without ever touching the
	// search path.
	Excludes []string
	// HiddenImports pre-declares modules the scanner cannot discover (e.g. hook-declared
	// imports).  A nil value means the module is a leaf with no further dependencies; a non-nil
	// value lists dependency names to synthesize eagerly when the module enters the graph.
	HiddenImports map[string][]string
	// Aliases maps an importable name to the module it actually denotes.  The alias enters the
	// graph as a [KindAliasNode] sharing the target's namespace.
	Aliases map[string]string
	// ReplacePaths configures [ModuleGraph.ReplacePathsInCode].
	ReplacePaths []PathReplacement
	// Builtins lists the modules compiled into the target interpreter.
	Builtins []string
	// ExtensionSuffixes lists the filename suffixes of native extension modules, most specific
	// first.
	ExtensionSuffixes []string
}

// defaultBuiltins approximates a CPython builtin-module table.  [ProbeInterpreter] replaces it
// with the host interpreter's actual table.
var defaultBuiltins = []string{
	"_abc", "_ast", "_codecs", "_collections", "_functools", "_imp", "_io", "_locale",
	"_operator", "_signal", "_sre", "_stat", "_string", "_symtable", "_thread", "_tokenize",
	"_tracemalloc", "_warnings", "_weakref", "atexit", "builtins", "errno", "faulthandler",
	"gc", "itertools", "marshal", "posix", "pwd", "sys", "time",
}

// DefaultConfig returns a [Config] with an empty search path, the static builtin table, and the
// platform's conventional extension suffixes.
func DefaultConfig() Config {
	suffixes := []string{".so"}
	if runtime.GOOS == "windows" {
		suffixes = []string{".pyd"}
	}
	return Config{
		Builtins:          slices.Clone(defaultBuiltins),
		ExtensionSuffixes: suffixes,
	}
}

type lazyNode struct {
	alias string   // non-empty: the name denotes this other module
	deps  []string // dependency names to synthesize eagerly
}

// A ModuleGraph owns the discovered node set and the dependency edges between nodes.  Construct
// one per build with [NewModuleGraph], populate it with [ModuleGraph.AddScript] and
// [ModuleGraph.ImportHook] calls until the transitive closure is reached, then treat it as
// read-only.
//
// Construction is single-threaded.  A finished graph may be read concurrently.
type ModuleGraph struct {
	path         []string
	replacePaths []PathReplacement
	excludes     mapset.Set[string]
	builtins     mapset.Set[string]
	extSuffixes  []string
	lazynodes    map[string]*lazyNode

	// nodes is the node arena, keyed by graph identifier.  out and in are the adjacency maps,
	// keyed by the same identifiers rather than pointers so that the cyclic graphs common with
	// Python imports involve no cyclic ownership.
	nodes map[string]*Node
	out   map[string]map[string]EdgeData
	in    map[string]mapset.Set[string]

	providers syncmap.Map[string, searchPathProvider]
}

// NewModuleGraph constructs an empty graph from the given configuration.
func NewModuleGraph(cfg Config) *ModuleGraph {
	g := &ModuleGraph{
		path:         slices.Clone(cfg.Path),
		replacePaths: slices.Clone(cfg.ReplacePaths),
		excludes:     mapset.NewThreadUnsafeSet(cfg.Excludes...),
		builtins:     mapset.NewThreadUnsafeSet(cfg.Builtins...),
		extSuffixes:  slices.Clone(cfg.ExtensionSuffixes),
		lazynodes:    map[string]*lazyNode{},
		nodes:        map[string]*Node{},
		out:          map[string]map[string]EdgeData{},
		in:           map[string]mapset.Set[string]{},
	}
	for name, deps := range cfg.HiddenImports {
		g.lazynodes[name] = &lazyNode{deps: deps}
	}
	for name, target := range cfg.Aliases {
		g.lazynodes[name] = &lazyNode{alias: target}
	}
	return g
}

// Path returns the graph's ordered search-path entries.
func (g *ModuleGraph) Path() []string {
	return slices.Clone(g.path)
}

// FindNode returns the node stored under the given graph identifier, or nil.
func (g *ModuleGraph) FindNode(graphident string) *Node {
	return g.nodes[graphident]
}

// CreateNode returns the node stored under the given identifier, creating it with the given kind
// if absent.  It is idempotent: a second call with the same identifier returns the same node
// instance regardless of kind.  A name pre-declared lazy ([Config.HiddenImports] or
// [Config.Aliases]) is materialized on first creation, synthesizing its declared dependencies.
func (g *ModuleGraph) CreateNode(ctx context.Context, kind NodeKind, identifier string) *Node {
	if n := g.nodes[identifier]; n != nil {
		return n
	}
	if lazy := g.lazynodes[identifier]; lazy != nil {
		delete(g.lazynodes, identifier)
		if lazy.alias != "" {
			target := g.FindNode(lazy.alias)
			if target == nil {
				target = first(g.SafeImportHook(ctx, lazy.alias, nil, nil, 0, DirectEdge()))
			}
			return g.CreateAlias(identifier, target)
		}
		n := g.addNewNode(kind, identifier)
		for _, dep := range lazy.deps {
			for _, d := range g.SafeImportHook(ctx, dep, n, nil, 0, DirectEdge()) {
				slog.DebugContext(ctx, "synthesized lazy dependency", "node", n, "dep", d)
			}
		}
		return n
	}
	return g.addNewNode(kind, identifier)
}

func (g *ModuleGraph) addNewNode(kind NodeKind, identifier string) *Node {
	n := newNode(kind, identifier, identifier)
	g.AddNode(n)
	return n
}

// AddNode stores a preconstructed node.  Panics if a different node instance is already stored
// under the same graph identifier (graph identifiers are unique by invariant).
func (g *ModuleGraph) AddNode(n *Node) {
	if old := g.nodes[n.GraphIdent]; old != nil && old != n {
		panic(fmt.Errorf("node %q already in graph", n.GraphIdent))
	}
	g.nodes[n.GraphIdent] = n
	if g.out[n.GraphIdent] == nil {
		g.out[n.GraphIdent] = map[string]EdgeData{}
		g.in[n.GraphIdent] = mapset.NewThreadUnsafeSet[string]()
	}
}

// CreateAlias stores a new [KindAliasNode] named graphident that stands for target.  The alias
// borrows — never copies — the target's global-attribute set, star-import ignore set, and
// submodule registry, so later mutations of the target are visible through the alias.
func (g *ModuleGraph) CreateAlias(graphident string, target *Node) *Node {
	if target == nil {
		panic(fmt.Errorf("alias %q has no target node", graphident))
	}
	n := &Node{
		Kind:              KindAliasNode,
		GraphIdent:        graphident,
		Identifier:        target.Identifier,
		PackagePath:       target.PackagePath,
		globalAttrNames:   target.globalAttrNames,
		starImportIgnored: target.starImportIgnored,
		submodules:        target.submodules,
	}
	g.AddNode(n)
	g.AddEdge(n, target, DirectEdge())
	return n
}

// AddEdge adds a directed edge from the importer to the imported node, merging the edge data with
// any edge already recorded for the pair (see [EdgeData.Merged]) instead of creating a duplicate.
// Both nodes must already be in the graph.
func (g *ModuleGraph) AddEdge(from, to *Node, data EdgeData) {
	for _, n := range []*Node{from, to} {
		if g.nodes[n.GraphIdent] == nil {
			panic(fmt.Errorf("edge endpoint %v is not in the graph", n))
		}
	}
	if old, ok := g.out[from.GraphIdent][to.GraphIdent]; ok {
		data = old.Merged(data)
	}
	g.out[from.GraphIdent][to.GraphIdent] = data
	g.in[to.GraphIdent].Add(from.GraphIdent)
}

// EdgeData returns the data recorded for the (from, to) edge, if any.
func (g *ModuleGraph) EdgeData(from, to *Node) (EdgeData, bool) {
	data, ok := g.out[from.GraphIdent][to.GraphIdent]
	return data, ok
}

// GetEdges returns the nodes reachable over the given node's outgoing edges and the nodes with
// edges pointing at it, each sorted by graph identifier.
func (g *ModuleGraph) GetEdges(n *Node) (outgoing, incoming iter.Seq[*Node]) {
	return g.sortedNodeSeq(slices.Collect(maps.Keys(g.out[n.GraphIdent]))),
		g.sortedNodeSeq(g.in[n.GraphIdent].ToSlice())
}

// OutEdges yields the given node's outgoing edges with their data, sorted by target identifier.
func (g *ModuleGraph) OutEdges(n *Node) iter.Seq2[*Node, EdgeData] {
	edges := g.out[n.GraphIdent]
	idents := slices.Sorted(maps.Keys(edges))
	return itertools.Map12(slices.Values(idents), func(ident string) (*Node, EdgeData) {
		return g.nodes[ident], edges[ident]
	})
}

// ImplyNodeReference records that from depends on the already-resolved node to, marking the edge
// as direct.
func (g *ModuleGraph) ImplyNodeReference(from, to *Node) {
	g.AddEdge(from, to, DirectEdge())
}

// ImplyModuleReference records that from depends on the module with the given name.  If the name
// is already in the graph the edge is added directly; otherwise the name is resolved via
// [ModuleGraph.SafeImportHook] first.
func (g *ModuleGraph) ImplyModuleReference(ctx context.Context, from *Node, name string) *Node {
	if to := g.FindNode(name); to != nil {
		g.AddEdge(from, to, DirectEdge())
		return to
	}
	return first(g.SafeImportHook(ctx, name, from, nil, 0, DirectEdge()))
}

// Nodes yields every node in the graph, sorted by graph identifier.  Each call returns a fresh,
// restartable sequence.
func (g *ModuleGraph) Nodes() iter.Seq[*Node] {
	return g.sortedNodeSeq(slices.Collect(maps.Keys(g.nodes)))
}

func (g *ModuleGraph) sortedNodeSeq(idents []string) iter.Seq[*Node] {
	slices.Sort(idents)
	return itertools.Map(slices.Values(idents), func(ident string) *Node {
		return g.nodes[ident]
	})
}

func first(nodes []*Node) *Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}
