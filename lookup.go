package pymodgraph

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/observeroftime01/pymodgraph/pycode"
)

// ErrModuleNotFound reports that every search-path entry was probed without finding a match.  Use
// [errors.Is] to test for it; the returned error also names the module.
var ErrModuleNotFound = errors.New("module not found")

// A FoundModule describes a successful search-path match, before the module enters the graph.
type FoundModule struct {
	Kind NodeKind
	// Filename is empty for builtins.  For archive members it joins the archive path and the
	// member name.
	Filename string
	// PackagePath is non-nil exactly when Kind is [KindPackage].
	PackagePath []string
	// Source holds the module's source text when the match is a .py file.
	Source []byte
	// Code holds the decoded code object when the match is compiled-only (a bare .pyc).
	Code *pycode.Code
}

// FindModule locates the module with the given name without adding it to the graph.
//
// A nil path means "top-level import": builtins are consulted first (a builtin match has no
// filename), then the graph's configured search path.  A non-nil path is a package's
// [Node.PackagePath]; builtins never match there.
//
// A top-level name already present in the graph is an error, not a match: lookup is only
// meaningful for names that still need resolving.  Package-relative lookups skip that check,
// since a submodule's bare basename may collide with an unrelated in-graph module.  A name with
// no match in any entry returns [ErrModuleNotFound].
func (g *ModuleGraph) FindModule(name string, path []string) (*FoundModule, error) {
	if path == nil {
		if n := g.FindNode(name); n != nil {
			return nil, fmt.Errorf("module %q is already in the graph as %v", name, n)
		}
		if g.builtins.Contains(name) {
			return &FoundModule{Kind: KindBuiltinModule}, nil
		}
		path = g.path
	}
	for _, entry := range path {
		p, err := g.provider(entry)
		if err != nil {
			slog.Debug("skipping unusable search-path entry", "entry", entry, "err", err)
			continue
		}
		if found, ok := p.find(name); ok {
			return found, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
}

// A searchPathProvider resolves bare module basenames within one search-path entry.
type searchPathProvider interface {
	find(name string) (*FoundModule, bool)
}

// provider returns the cached provider for a search-path entry, constructing it on first use.
// Providers are immutable once constructed, so concurrent readers of a finished graph may share
// them.
func (g *ModuleGraph) provider(entry string) (searchPathProvider, error) {
	if p, ok := g.providers.Load(entry); ok {
		return p, nil
	}
	p, err := newSearchPathProvider(entry, g.extSuffixes)
	if err != nil {
		return nil, err
	}
	p, _ = g.providers.LoadOrStore(entry, p)
	return p, nil
}

func newSearchPathProvider(entry string, extSuffixes []string) (searchPathProvider, error) {
	fi, err := os.Stat(entry)
	if err != nil {
		// A package inside an archive has a PackagePath entry like "vendor.zip/mypkg", which
		// does not exist on the filesystem.  Resolve it against the enclosing archive.
		if archive, prefix, ok := splitArchivePath(entry); ok {
			return newArchiveProvider(archive, prefix,
				strings.EqualFold(filepath.Ext(archive), ".egg"), extSuffixes)
		}
		return nil, err
	}
	if fi.IsDir() {
		return &dirProvider{dir: entry, extSuffixes: extSuffixes}, nil
	}
	switch ext := strings.ToLower(filepath.Ext(entry)); ext {
	case ".zip", ".egg":
		return newArchiveProvider(entry, "", ext == ".egg", extSuffixes)
	default:
		return nil, fmt.Errorf("search-path entry %q is neither a directory nor a .zip/.egg archive", entry)
	}
}

// splitArchivePath splits a path like "/lib/vendor.zip/mypkg/sub" into the deepest existing .zip
// or .egg ancestor and the slash-separated member prefix below it.  The climb stops at the
// filesystem root or at "." for relative paths, so a nonexistent entry reports no match rather
// than looping.
func splitArchivePath(entry string) (archive, prefix string, ok bool) {
	dir := filepath.Clean(entry)
	var tail []string
	for {
		parent, base := filepath.Split(dir)
		parent = filepath.Clean(parent)
		if base == "" || base == "." || parent == dir {
			return "", "", false
		}
		tail = append([]string{base}, tail...)
		dir = parent
		switch strings.ToLower(filepath.Ext(dir)) {
		case ".zip", ".egg":
			if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
				return dir, strings.Join(tail, "/") + "/", true
			}
		}
	}
}

// A dirProvider resolves modules in a plain filesystem directory.  Probe order per name: package
// subdirectory, native extension suffixes, .py source, bare .pyc.
type dirProvider struct {
	dir         string
	extSuffixes []string
}

func (p *dirProvider) find(name string) (*FoundModule, bool) {
	pkgdir := filepath.Join(p.dir, name)
	if fi, err := os.Stat(pkgdir); err == nil && fi.IsDir() {
		if found, ok := p.findPackageInit(name, pkgdir); ok {
			return found, true
		}
	}
	for _, suffix := range p.extSuffixes {
		filename := filepath.Join(p.dir, name+suffix)
		if fi, err := os.Stat(filename); err == nil && !fi.IsDir() {
			return &FoundModule{Kind: KindExtension, Filename: filename}, true
		}
	}
	if filename := filepath.Join(p.dir, name+".py"); fileExists(filename) {
		src, err := os.ReadFile(filename)
		if err != nil {
			slog.Debug("unreadable source file", "filename", filename, "err", err)
			return nil, false
		}
		return &FoundModule{Kind: KindSourceModule, Filename: filename, Source: src}, true
	}
	if filename := filepath.Join(p.dir, name+".pyc"); fileExists(filename) {
		co, err := readCompiled(filename)
		if err != nil {
			slog.Debug("unreadable compiled file", "filename", filename, "err", err)
			return nil, false
		}
		return &FoundModule{Kind: KindCompiledModule, Filename: filename, Code: co}, true
	}
	return nil, false
}

func (p *dirProvider) findPackageInit(name, pkgdir string) (*FoundModule, bool) {
	if filename := filepath.Join(pkgdir, "__init__.py"); fileExists(filename) {
		src, err := os.ReadFile(filename)
		if err != nil {
			return nil, false
		}
		return &FoundModule{
			Kind:        KindPackage,
			Filename:    filename,
			PackagePath: []string{pkgdir},
			Source:      src,
		}, true
	}
	if filename := filepath.Join(pkgdir, "__init__.pyc"); fileExists(filename) {
		co, err := readCompiled(filename)
		if err != nil {
			return nil, false
		}
		return &FoundModule{
			Kind:        KindPackage,
			Filename:    filename,
			PackagePath: []string{pkgdir},
			Code:        co,
		}, true
	}
	return nil, false
}

func fileExists(filename string) bool {
	fi, err := os.Stat(filename)
	return err == nil && !fi.IsDir()
}

func readCompiled(filename string) (*pycode.Code, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return pycode.Unmarshal(data)
}

// An archiveProvider resolves modules inside a .zip or .egg archive.  The member table is read
// once at construction; member contents are read on demand.
//
// Eggs differ from plain zips in one way: an egg may carry a native extension, and when it also
// carries a pure-Python shim of the same basename the extension wins.  A plain zip never resolves
// native extensions.
type archiveProvider struct {
	path        string
	prefix      string // member-name prefix when resolving a package directory inside the archive
	egg         bool
	extSuffixes []string
	members     map[string]struct{}
}

func newArchiveProvider(path, prefix string, egg bool, extSuffixes []string) (*archiveProvider, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %q: %w", path, err)
	}
	defer r.Close()
	members := make(map[string]struct{}, len(r.File))
	for _, f := range r.File {
		members[f.Name] = struct{}{}
	}
	return &archiveProvider{
		path: path, prefix: prefix, egg: egg, extSuffixes: extSuffixes, members: members,
	}, nil
}

func (p *archiveProvider) has(member string) bool {
	_, ok := p.members[p.prefix+member]
	return ok
}

func (p *archiveProvider) filename(member string) string {
	return filepath.Join(p.path, filepath.FromSlash(p.prefix+member))
}

func (p *archiveProvider) find(name string) (*FoundModule, bool) {
	if found, ok := p.findPackageInit(name); ok {
		return found, true
	}
	if p.egg {
		for _, suffix := range p.extSuffixes {
			if p.has(name + suffix) {
				return &FoundModule{
					Kind:     KindExtension,
					Filename: p.filename(name + suffix),
				}, true
			}
		}
	}
	if p.has(name + ".py") {
		src, err := p.read(name + ".py")
		if err != nil {
			slog.Debug("unreadable archive member", "archive", p.path, "member", name+".py", "err", err)
			return nil, false
		}
		return &FoundModule{
			Kind:     KindSourceModule,
			Filename: p.filename(name + ".py"),
			Source:   src,
		}, true
	}
	if p.has(name + ".pyc") {
		data, err := p.read(name + ".pyc")
		if err != nil {
			return nil, false
		}
		co, err := pycode.Unmarshal(data)
		if err != nil {
			// A corrupt compiled member does not satisfy the import; later entries may.
			slog.Debug("malformed compiled archive member", "archive", p.path, "member", name+".pyc", "err", err)
			return nil, false
		}
		return &FoundModule{
			Kind:     KindCompiledModule,
			Filename: p.filename(name + ".pyc"),
			Code:     co,
		}, true
	}
	return nil, false
}

func (p *archiveProvider) findPackageInit(name string) (*FoundModule, bool) {
	pkgpath := p.filename(name)
	if member := name + "/__init__.py"; p.has(member) {
		src, err := p.read(member)
		if err != nil {
			return nil, false
		}
		return &FoundModule{
			Kind:        KindPackage,
			Filename:    p.filename(member),
			PackagePath: []string{pkgpath},
			Source:      src,
		}, true
	}
	if member := name + "/__init__.pyc"; p.has(member) {
		data, err := p.read(member)
		if err != nil {
			return nil, false
		}
		co, err := pycode.Unmarshal(data)
		if err != nil {
			return nil, false
		}
		return &FoundModule{
			Kind:        KindPackage,
			Filename:    p.filename(member),
			PackagePath: []string{pkgpath},
			Code:        co,
		}, true
	}
	return nil, false
}

func (p *archiveProvider) read(member string) ([]byte, error) {
	r, err := zip.OpenReader(p.path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	f, err := r.Open(p.prefix + member)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
