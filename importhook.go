package pymodgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/observeroftime01/pymodgraph/pycompile"
)

// AddScript enters the given entry-point script into the graph and resolves everything it
// imports, transitively.  Script resolution is strict: an unreadable or unparseable script is an
// error, unlike module lookups which degrade to [KindMissingModule] nodes.  A non-nil caller gets
// a direct edge to the script.
func (g *ModuleGraph) AddScript(ctx context.Context, pathname string, caller *Node) (*Node, error) {
	if n := g.FindNode(pathname); n != nil {
		if caller != nil {
			g.AddEdge(caller, n, DirectEdge())
		}
		return n, nil
	}
	src, err := os.ReadFile(pathname)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	co, err := pycompile.Compile(ctx, pathname, src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script %q: %w", pathname, err)
	}
	n := newNode(KindScript, pathname, pathname)
	n.Filename = pathname
	n.Code = co
	g.AddNode(n)
	if caller != nil {
		g.AddEdge(caller, n, DirectEdge())
	}
	scanCode(n, co, false)
	g.processDeferredImports(ctx, n)
	return n, nil
}

// ImportHook resolves one import statement observed in caller: `import name`,
// `from name import fromlist...`, at the given relative-import level.  It returns the nodes the
// statement binds in the caller's namespace and records a caller edge with the given data to each
// of them.  Resolution failures are errors; see [ModuleGraph.SafeImportHook] for the degrading
// variant used during scanning.
func (g *ModuleGraph) ImportHook(ctx context.Context, name string, caller *Node,
	fromlist []string, level int, edge EdgeData) ([]*Node, error) {

	head, tail, err := g.findHeadPackage(ctx, name, caller, level)
	if err != nil {
		return nil, err
	}
	m, err := g.loadTail(ctx, head, tail)
	if err != nil {
		return nil, err
	}
	mods := []*Node{head}
	if len(fromlist) > 0 {
		mods = g.ensureFromList(ctx, m, fromlist, caller, edge)
	} else if m != head {
		mods = append(mods, m)
	}
	if caller != nil {
		for _, mod := range mods {
			g.AddEdge(caller, mod, edge)
		}
	}
	return mods, nil
}

// SafeImportHook is [ModuleGraph.ImportHook] with failure demoted to graph state: an excluded
// name becomes a [KindExcludedModule] node, any other failure a [KindMissingModule] node, each
// with a caller edge.  This is the resolver the scanner uses, so one unresolvable import never
// aborts a build and every missing dependency is reported at once.
func (g *ModuleGraph) SafeImportHook(ctx context.Context, name string, caller *Node,
	fromlist []string, level int, edge EdgeData) []*Node {

	mods, err := g.ImportHook(ctx, name, caller, fromlist, level, edge)
	if err == nil {
		return mods
	}
	kind := KindMissingModule
	if g.excludes.Contains(name) {
		kind = KindExcludedModule
	} else if !errors.Is(err, ErrModuleNotFound) {
		slog.WarnContext(ctx, "import failed", "name", name, "caller", caller, "err", err)
	}
	n := g.CreateNode(ctx, kind, name)
	if caller != nil {
		g.AddEdge(caller, n, edge)
	}
	// The fromlist names are unresolvable along with their module; record each so the packaging
	// pipeline can name them.
	for _, attr := range fromlist {
		if attr == "*" {
			continue
		}
		sub := g.CreateNode(ctx, kind, name+"."+attr)
		g.AddEdge(sub, n, DirectEdge())
		if caller != nil {
			g.AddEdge(caller, sub, edge)
		}
	}
	return []*Node{n}
}

// processDeferredImports drains the node's deferred-import queue, resolving each request against
// the graph.  Several sites may import the same module under different guards; their
// [DependencyInfo] is merged per distinct name before resolution, so every request for a name
// resolves with the one combined classification.  Resolving one request may load further modules
// whose own queues drain recursively, so the loop reruns until the queue stays empty.
func (g *ModuleGraph) processDeferredImports(ctx context.Context, n *Node) {
	type nameKey struct {
		name  string
		level int
	}
	for len(n.deferredImports) > 0 {
		reqs := n.deferredImports
		n.deferredImports = nil
		merged := make(map[nameKey]DependencyInfo, len(reqs))
		for _, req := range reqs {
			key := nameKey{req.name, req.level}
			if info, ok := merged[key]; ok {
				merged[key] = info.Merged(req.info)
			} else {
				merged[key] = req.info
			}
		}
		for _, req := range reqs {
			g.SafeImportHook(ctx, req.name, n, req.fromlist, req.level,
				InfoEdge(merged[nameKey{req.name, req.level}]))
		}
	}
}

// findHeadPackage resolves the first dotted component of name and returns its node along with the
// unresolved tail.  A positive level resolves relative to the caller's enclosing package; level
// -1 (historical relative-or-absolute semantics) tries an absolute import first and falls back to
// a relative one.
func (g *ModuleGraph) findHeadPackage(ctx context.Context, name string, caller *Node,
	level int) (head *Node, tail string, err error) {

	headname, tail, _ := strings.Cut(name, ".")
	if headname == "" {
		// `from . import x` names no module at all; the head is the caller's package itself.
		if level <= 0 || tail != "" {
			return nil, "", fmt.Errorf("invalid module name %q", name)
		}
		parent, err := g.determineParent(caller, level)
		if err != nil {
			return nil, "", err
		}
		return parent, "", nil
	}

	try := func(parent *Node) (*Node, error) {
		qname := headname
		if parent != nil {
			qname = parent.Identifier + "." + headname
		}
		return g.importModule(ctx, headname, qname, parent)
	}

	switch {
	case level == 0:
		head, err = try(nil)
	case level > 0:
		parent, perr := g.determineParent(caller, level)
		if perr != nil {
			return nil, "", perr
		}
		head, err = try(parent)
	default:
		head, err = try(nil)
		if err != nil {
			if parent, perr := g.determineParent(caller, 1); perr == nil && parent != nil {
				if relHead, relErr := try(parent); relErr == nil {
					head, err = relHead, nil
				}
			}
		}
	}
	if err != nil {
		return nil, "", err
	}
	return head, tail, nil
}

// determineParent returns the package that a relative import of the given level resolves against.
// Level 1 is the caller's own package; each additional level climbs one package further.
func (g *ModuleGraph) determineParent(caller *Node, level int) (*Node, error) {
	if caller == nil {
		return nil, fmt.Errorf("relative import with no caller context")
	}
	pname := caller.Identifier
	if caller.Kind != KindPackage {
		i := strings.LastIndex(pname, ".")
		if i < 0 {
			return nil, fmt.Errorf("relative import beyond top-level package in %v", caller)
		}
		pname = pname[:i]
	}
	for ; level > 1; level-- {
		i := strings.LastIndex(pname, ".")
		if i < 0 {
			return nil, fmt.Errorf("relative import beyond top-level package in %v", caller)
		}
		pname = pname[:i]
	}
	parent := g.FindNode(pname)
	if parent == nil {
		return nil, fmt.Errorf("package %q of %v is not in the graph", pname, caller)
	}
	return parent, nil
}

// loadTail resolves the remaining dotted components below the head package, one submodule at a
// time, and returns the final module.
func (g *ModuleGraph) loadTail(ctx context.Context, head *Node, tail string) (*Node, error) {
	m := head
	for tail != "" {
		var part string
		part, tail, _ = strings.Cut(tail, ".")
		fullname := m.Identifier + "." + part
		sub, err := g.importModule(ctx, part, fullname, m)
		if err != nil {
			return nil, err
		}
		m = sub
	}
	return m, nil
}

// ensureFromList resolves the names of a `from m import a, b` statement.  Each name is a
// submodule of m, an attribute of m, or missing; "*" expands to the target's known global
// attributes.  The returned nodes are the ones the statement binds — the module itself stands in
// for plain attributes.
func (g *ModuleGraph) ensureFromList(ctx context.Context, m *Node, fromlist []string,
	caller *Node, edge EdgeData) []*Node {

	var mods []*Node
	for _, attr := range fromlist {
		if attr == "*" {
			g.importStar(ctx, m, caller)
			mods = append(mods, m)
			continue
		}
		if m.Kind == KindPackage {
			fullname := m.Identifier + "." + attr
			if sub, err := g.importModule(ctx, attr, fullname, m); err == nil {
				mods = append(mods, sub)
				continue
			} else if !errors.Is(err, ErrModuleNotFound) {
				slog.WarnContext(ctx, "fromlist import failed", "module", m, "name", attr, "err", err)
			}
		}
		if m.IsGlobalAttr(attr) || m.Code == nil {
			// An attribute of the module (or unknowable, when there is no code to scan).
			mods = append(mods, m)
			continue
		}
		if m.starImportIgnored.Cardinality() > 0 {
			// m star-imported modules whose exports are unknown; attr may come from one of them.
			mods = append(mods, m)
			continue
		}
		missing := g.CreateNode(ctx, KindMissingModule, m.Identifier+"."+attr)
		g.AddEdge(missing, m, DirectEdge())
		g.AddEdge(m, missing, edge)
		mods = append(mods, missing)
	}
	return mods
}

// importStar resolves `from m import *` as far as static analysis can: with code available, the
// target's module-level bindings are its star exports, and they become global attributes of the
// caller.  Without code the export set is unknowable; the caller records the target as an
// ignored star-import source so later attribute lookups do not misreport it.
func (g *ModuleGraph) importStar(ctx context.Context, m, caller *Node) {
	if caller == nil {
		return
	}
	if m.Code == nil {
		caller.IgnoreStarImportName(m.Identifier)
		slog.DebugContext(ctx, "star import with unknowable exports", "module", m, "caller", caller)
		return
	}
	for name := range m.GlobalAttrs().Iter() {
		if m.IsStarImportIgnored(name) {
			continue
		}
		caller.AddGlobalAttr(name)
	}
	// The caller inherits m's unknowable star sources: a name m could not account for may surface
	// through the caller too.
	for name := range m.starImportIgnored.Iter() {
		caller.IgnoreStarImportName(name)
	}
}

// importModule returns the node for fullname, loading it from the search path if it is not
// already in the graph.  A freshly loaded submodule is registered with its parent and gets a
// direct edge to it (a submodule always depends on its package).
func (g *ModuleGraph) importModule(ctx context.Context, partname, fullname string,
	parent *Node) (*Node, error) {

	if n := g.FindNode(fullname); n != nil {
		return n, nil
	}
	if g.excludes.Contains(fullname) || g.excludes.Contains(partname) {
		return g.CreateNode(ctx, KindExcludedModule, fullname), nil
	}
	if g.lazynodes[fullname] != nil {
		return g.CreateNode(ctx, KindNode, fullname), nil
	}
	var path []string
	if parent != nil {
		if parent.PackagePath == nil {
			return nil, fmt.Errorf("%w: %q (parent %v is not a package)", ErrModuleNotFound,
				fullname, parent)
		}
		path = parent.PackagePath
	}
	found, err := g.FindModule(partname, path)
	if err != nil {
		return nil, err
	}
	n, err := g.loadModule(ctx, fullname, found)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		g.AddEdge(n, parent, DirectEdge())
		parent.AddSubmodule(partname, n)
	}
	return n, nil
}

// loadModule enters a located module into the graph, compiling or decoding its code as the match
// kind requires, then scans that code and resolves what it imports.
func (g *ModuleGraph) loadModule(ctx context.Context, fullname string,
	found *FoundModule) (*Node, error) {

	n := newNode(found.Kind, fullname, fullname)
	n.Filename = found.Filename
	n.PackagePath = found.PackagePath
	n.Code = found.Code
	if found.Source != nil {
		co, err := pycompile.Compile(ctx, found.Filename, found.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %q: %w", found.Filename, err)
		}
		n.Code = co
	}
	g.AddNode(n)
	slog.DebugContext(ctx, "loaded module", "node", n)
	if n.Code != nil {
		scanCode(n, n.Code, false)
		g.processDeferredImports(ctx, n)
	}
	return n, nil
}
