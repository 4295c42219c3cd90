package main

import (
	"bytes"
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/amterp/color"
	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"

	pmg "github.com/observeroftime01/pymodgraph"
	"github.com/observeroftime01/pymodgraph/internal/command"
	"github.com/observeroftime01/pymodgraph/internal/logging"
)

//go:embed pymodgraph.1.in
var man []byte

var (
	cyanf    = color.New(color.FgCyan).SprintfFunc()
	hicyanf  = color.New(color.FgHiCyan).SprintfFunc()
	hiblackf = color.New(color.FgHiBlack).SprintfFunc()
)

type outputFn = func(ctx context.Context, g *pmg.ModuleGraph, root *pmg.Node) error

type config struct {
	scripts []string
	python  string
	specs   []string
	output  *outputFn
}

// A freezeSpec is the YAML build description accepted via --spec.  Everything in it is optional;
// fields merge over the probed or default interpreter configuration.
type freezeSpec struct {
	Path          []string            `yaml:"path"`
	Excludes      []string            `yaml:"excludes"`
	HiddenImports map[string][]string `yaml:"hidden_imports"`
	Aliases       map[string]string   `yaml:"aliases"`
	ReplacePaths  []struct {
		Prefix      string `yaml:"prefix"`
		Replacement string `yaml:"replacement"`
	} `yaml:"replace_paths"`
}

func (fs *freezeSpec) mergeInto(cfg *pmg.Config) {
	cfg.Path = append(cfg.Path, fs.Path...)
	cfg.Excludes = append(cfg.Excludes, fs.Excludes...)
	if len(fs.HiddenImports) > 0 && cfg.HiddenImports == nil {
		cfg.HiddenImports = map[string][]string{}
	}
	maps.Copy(cfg.HiddenImports, fs.HiddenImports)
	if len(fs.Aliases) > 0 && cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	maps.Copy(cfg.Aliases, fs.Aliases)
	for _, r := range fs.ReplacePaths {
		cfg.ReplacePaths = append(cfg.ReplacePaths, pmg.PathReplacement{
			Prefix:      r.Prefix,
			Replacement: r.Replacement,
		})
	}
}

func ver() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "(devel)" {
		return ""
	}
	return bi.Main.Version
}

func showMan(ctx context.Context) error {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Errorf("failed to fetch Go build information")
	}
	date := ""
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.time":
			when, err := time.Parse(time.RFC3339, s.Value)
			if err != nil {
				return fmt.Errorf("failed to parse vcs.time %q: %w", s.Value, err)
			}
			date = when.Format(time.DateOnly)
		}
	}
	man := bytes.ReplaceAll(man, []byte("%DATE%"), []byte(date))
	man = bytes.ReplaceAll(man, []byte("%VERSION%"), []byte(ver()))
	cmd := command.New(ctx, ".", "man", "-l", "-")
	cmd.Stdin = bytes.NewBuffer(man)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("man failed: %w", err)
	}
	return nil
}

var allOutputFuncs = [...]outputFn{
	outputReport,
	outputTree,
	outputRaw,
	outputDot,
	outputXref,
}

var allOutput = map[string]*outputFn{
	"report": &allOutputFuncs[0],
	"tree":   &allOutputFuncs[1],
	"raw":    &allOutputFuncs[2],
	"dot":    &allOutputFuncs[3],
	"xref":   &allOutputFuncs[4],
}

func outputReport(ctx context.Context, g *pmg.ModuleGraph, root *pmg.Node) error {
	return g.Report(os.Stdout)
}

func outputTree(ctx context.Context, g *pmg.ModuleGraph, root *pmg.Node) error {
	seenMsg := hiblackf(" (repeat)")
	seen := mapset.NewSet[*pmg.Node]()
	var visit func(n *pmg.Node, data pmg.EdgeData, indent int) error
	visit = func(n *pmg.Node, data pmg.EdgeData, indent int) error {
		wasSeen := !seen.Add(n)
		fmt.Print(strings.Repeat("  ", indent))
		label := n.String()
		if n.Kind.Bad() {
			label = hicyanf("%v", n)
		}
		switch {
		case wasSeen:
			fmt.Printf("%s%s", hiblackf("%v", n), seenMsg)
		case data.Direct:
			fmt.Print(label)
		default:
			fmt.Printf("%s %s", label, cyanf("(%v)", data))
		}
		fmt.Print("\n")
		if !wasSeen {
			for child, cdata := range g.OutEdges(n) {
				if err := visit(child, cdata, indent+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return visit(root, pmg.DirectEdge(), 0)
}

func outputRaw(ctx context.Context, g *pmg.ModuleGraph, root *pmg.Node) error {
	reachable, walkErr := g.AllReachable(ctx, root)
	nodes := slices.SortedFunc(reachable, pmg.NodeCompare)
	if err := walkErr(); err != nil {
		return err
	}
	for _, n := range nodes {
		fmt.Printf("%s\n", strings.Join(n.InfoTuple(), " "))
	}
	return nil
}

func outputDot(ctx context.Context, g *pmg.ModuleGraph, root *pmg.Node) error {
	return g.GraphReport(os.Stdout, filepath.Base(root.Identifier))
}

func outputXref(ctx context.Context, g *pmg.ModuleGraph, root *pmg.Node) error {
	return g.CreateXref(os.Stdout, root.Identifier)
}

func run(ctx context.Context, cfg *config, script string) error {
	var mcfg pmg.Config
	if cfg.python != "" {
		var err error
		if mcfg, err = pmg.ProbeInterpreter(ctx, cfg.python); err != nil {
			return err
		}
	} else {
		mcfg = pmg.DefaultConfig()
	}
	for _, spec := range cfg.specs {
		data, err := os.ReadFile(spec)
		if err != nil {
			return fmt.Errorf("failed to read freeze spec: %w", err)
		}
		var fs freezeSpec
		if err := yaml.Unmarshal(data, &fs); err != nil {
			return fmt.Errorf("failed to parse freeze spec %q: %w", spec, err)
		}
		fs.mergeInto(&mcfg)
	}
	// The script's own directory is the first search-path entry, as it would be at run time.
	mcfg.Path = append([]string{filepath.Dir(script)}, mcfg.Path...)
	g := pmg.NewModuleGraph(mcfg)
	root, err := g.AddScript(ctx, script, nil)
	if err != nil {
		return err
	}
	return (*cfg.output)(ctx, g, root)
}

var slogLevel = func() *slog.LevelVar {
	lvl := &slog.LevelVar{}
	lvl.Set(logging.LevelInfo)
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
	return lvl
}()

func choiceFlag[T any](p *T, name string, choices map[string]T, dflt string, post func(string) error, usage string) {
	cstr := strings.Join(slices.Sorted(maps.Keys(choices)), ", ")
	var ok bool
	if *p, ok = choices[dflt]; !ok {
		panic(fmt.Errorf("invalid default for %v option: %v", dflt, name))
	}
	usage += fmt.Sprintf(" (one of: %v; default: %v)", cstr, dflt)
	flag.Func(name, usage, func(arg string) error {
		if arg == "" {
			arg = dflt
		}
		v, ok := choices[arg]
		if !ok {
			return fmt.Errorf("expected one of: %v", cstr)
		}
		*p = v
		if post != nil {
			return post(arg)
		}
		return nil
	})
}

func parseFlags(ctx context.Context) *config {
	cfg := &config{}

	bumpLogLevel := func(lower bool) {
		slog.Debug("log level pre-change", "level", slogLevel.Level())
		slogLevel.Set(logging.BumpLevel(slogLevel.Level(), lower))
		slog.Debug("log level post-change", "level", slogLevel.Level())
	}
	setLogLevel := func(arg string) error {
		lvl, err := logging.StringToLevel(arg)
		if err != nil {
			return err
		}
		slogLevel.Set(lvl)
		return nil
	}
	flag.BoolFunc("v", "Increase log verbosity.", func(arg string) error {
		switch arg {
		case "", "true":
			bumpLogLevel(true)
		default:
			return setLogLevel(arg)
		}
		return nil
	})
	flag.BoolFunc("q", "Decrease log verbosity.", func(arg string) error {
		switch arg {
		case "", "true":
			bumpLogLevel(false)
		default:
			return setLogLevel(arg)
		}
		return nil
	})

	colorChoices := map[string]bool{
		"auto":   color.NoColor,
		"never":  true,
		"always": false,
	}
	choiceFlag(&color.NoColor, "color", colorChoices, "auto", nil,
		"Output colors according to `mode`.")
	flag.StringVar(&cfg.python, "python", "",
		"Probe the given Python `interpreter` for the search path, builtin modules, and extension suffixes.  Without this option a static default configuration is used.")
	flag.Func("spec", "Merge the YAML freeze `spec` into the configuration.  May be repeated.",
		func(arg string) error {
			cfg.specs = append(cfg.specs, arg)
			return nil
		})
	choiceFlag(&cfg.output, "format", allOutput, "report", nil,
		"Print the module graph according to `mode`.")
	flag.BoolFunc("man", "Show the usage manual and exit.", func(_ string) error {
		if err := showMan(ctx); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
		return nil
	})
	help := func(string) error {
		// Pet peeve: Help output should be written to standard output, not standard error, when the
		// user explicitly requests the help.  This makes it easier for them to pipe the help output to
		// a pager.
		flag.CommandLine.SetOutput(os.Stdout)
		flag.Usage()
		os.Exit(0)
		return nil
	}
	helpUsage := "Print usage information and exit."
	flag.BoolFunc("h", helpUsage, help)
	flag.BoolFunc("help", helpUsage, help)
	flag.BoolFunc("version", "Print the version and exit.", func(string) error {
		v := ver()
		if v == "" {
			log.Fatal("the Go build information is unavalable; try passing the \"-buildvcs=true\" build option to go")
		}
		fmt.Printf("%s\n", v)
		os.Exit(0)
		return nil
	})
	flag.Parse()
	cfg.scripts = flag.Args()
	if len(cfg.scripts) == 0 {
		log.Fatal("at least one entry-point script is required")
	}
	return cfg
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := parseFlags(ctx)
	for _, script := range cfg.scripts {
		if err := run(ctx, cfg, script); err != nil {
			slog.ErrorContext(ctx, "failed", "error", err)
			os.Exit(1)
		}
	}
}
