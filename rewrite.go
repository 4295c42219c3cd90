package pymodgraph

import (
	"path/filepath"
	"strings"

	"github.com/observeroftime01/pymodgraph/pycode"
)

// ReplacePathsInCode returns a copy of co with every embedded filename rewritten per
// [Config.ReplacePaths].  A prefix names a directory and matches on path-component boundaries:
// "build/pkg" rewrites "build/pkg/mod.py" but never "build/pkg.py".  When several configured
// prefixes match a filename the longest one wins, so more specific mappings shadow broader ones
// regardless of configuration order.  Nested code constants are rewritten recursively, but only
// those compiled from the same file as their parent; code inlined from elsewhere keeps its
// origin.
//
// The input is not modified.  With no matching prefix the filename is kept as is.
func (g *ModuleGraph) ReplacePathsInCode(co *pycode.Code) *pycode.Code {
	out := &pycode.Code{
		Name:     co.Name,
		Filename: g.replacePath(co.Filename),
		Names:    co.Names,
		Consts:   make([]pycode.Const, len(co.Consts)),
		Instrs:   co.Instrs,
	}
	copy(out.Consts, co.Consts)
	for i, c := range out.Consts {
		if c.Kind == pycode.ConstCode && c.Code.Filename == co.Filename {
			out.Consts[i] = pycode.CodeConst(g.ReplacePathsInCode(c.Code))
		}
	}
	return out
}

func (g *ModuleGraph) replacePath(filename string) string {
	sep := string(filepath.Separator)
	var bestPrefix, bestReplacement string
	for _, r := range g.replacePaths {
		prefix := r.Prefix
		if !strings.HasSuffix(prefix, sep) {
			prefix += sep
		}
		if strings.HasPrefix(filename, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix, bestReplacement = prefix, r.Replacement
		}
	}
	if bestPrefix == "" {
		return filename
	}
	return filepath.Join(bestReplacement, filename[len(bestPrefix):])
}
