package pymodgraph

// An EdgeData annotates one directed edge from an importer node to an imported node.  It is
// either the direct sentinel — an unconditional, implicit dependency such as a root script's edge
// to the interpreter runtime — or a [DependencyInfo] describing the import site.
type EdgeData struct {
	// Direct marks an unconditional, non-contextual dependency.  Info is meaningless when Direct
	// is true.
	Direct bool
	Info   DependencyInfo
}

// DirectEdge returns the sentinel marking an unconditional, implicit dependency.
func DirectEdge() EdgeData {
	return EdgeData{Direct: true}
}

// InfoEdge returns edge data carrying the given discovery context.
func InfoEdge(di DependencyInfo) EdgeData {
	return EdgeData{Info: di}
}

// Merged combines the data of two discoveries of the same (from, to) edge.  A direct discovery
// absorbs any contextual one (direct is the least conditional context possible); two contextual
// discoveries merge their [DependencyInfo] per [DependencyInfo.Merged].
func (e EdgeData) Merged(o EdgeData) EdgeData {
	if e.Direct || o.Direct {
		return DirectEdge()
	}
	return InfoEdge(e.Info.Merged(o.Info))
}

func (e EdgeData) String() string {
	if e.Direct {
		return "direct"
	}
	return e.Info.String()
}
