// Package pymodgraph builds the module dependency graph of a Python application for a
// freezer/packager.  Given an entry script, it discovers every module the application can reach at
// run time — plain imports, `from` imports, star imports, imports nested in functions or guarded
// by conditionals and try/except — and classifies each discovered module by how it was found and
// resolved.
//
// # Quick Start
//
// Construct a [ModuleGraph] with an explicit [Config] (the search path and builtin-module table
// are never taken from ambient state; use [ProbeInterpreter] to capture them from a host Python
// interpreter):
//
//	cfg := pymodgraph.DefaultConfig()
//	cfg.Path = []string{"/app", "/app/vendor.zip"}
//	g := pymodgraph.NewModuleGraph(cfg)
//
// Seed the graph with the entry script and let resolution run to its fixed point:
//
//	script, err := g.AddScript(ctx, "/app/main.py", nil)
//	if err != nil {
//		return err
//	}
//
// Optionally normalize embedded source locations for reproducible builds (see
// [Config.ReplacePaths]), then hand the node set to the packaging pipeline:
//
//	for n := range g.Nodes() {
//		fmt.Println(n.Kind, n.Identifier, n.Filename)
//	}
//
// [ModuleGraph.Report] renders the classic fixed-width diagnostic table, and
// [ModuleGraph.IterGraphReport] / [ModuleGraph.CreateXref] render dot and HTML cross-reference
// views of the same graph.
//
// # Resolution Model
//
// Each import discovered by the bytecode scanner carries a [DependencyInfo] describing the context
// of the reference (function-local, conditional, inside try/except, fromlist form).  Multiple
// discoveries of the same edge are merged: an edge is only as conditional as its least conditional
// discovery path.  Lookup failures become [KindMissingModule] nodes by default so a build can
// report every missing dependency at once; resolving the entry script itself is strict because an
// unresolvable root makes the build meaningless.
//
// Module lookup walks the configured search path in order.  Each entry is a plain directory, a
// .zip archive, or a .egg archive.  Archives may satisfy a module with a compiled-only (.pyc)
// entry when no source is present; eggs prefer a native extension over a Python shim of the same
// basename; plain (non-egg) zip archives never resolve native extensions.
//
// # Concurrency
//
// Graph construction is strictly single-threaded: one scan/resolve pass at a time until no new
// names are discovered.  Once construction completes the graph is read-only, and the reporting
// walks ([ModuleGraph.WalkGraph], [ModuleGraph.AllReachable]) may safely run concurrently.
package pymodgraph
