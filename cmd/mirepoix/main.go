package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xamarin/mirepoix/internal/config"
	"github.com/xamarin/mirepoix/internal/consolidate"
	"github.com/xamarin/mirepoix/internal/depgraph"
	"github.com/xamarin/mirepoix/internal/export"
	"github.com/xamarin/mirepoix/internal/logging"
	"github.com/xamarin/mirepoix/internal/msbuild"
	"github.com/xamarin/mirepoix/internal/solution"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the state shared by every subcommand.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	debug   bool
	logJSON bool
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirepoix",
		Short: "Build graph and solution tooling for MSBuild projects",
		Long: "mirepoix loads the ProjectReference graph of MSBuild projects and generates\n" +
			"Visual Studio solutions from traversal projects.\n\n" +
			"Settings are read from .mirepoix/settings.yaml next to the input project,\n" +
			"then from the MIREPOIX_* environment variables (a .env file is honoured).",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Set log level to debug")
	cmd.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "Write log records to stderr as JSON")

	cmd.AddCommand(
		newSlngenCommand(a),
		newGraphCommand(a),
		newConsolidateCommand(a),
	)
	return cmd
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		color.NoColor = true
	}
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCommand(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, color.RedString("Error: %s", oneLine(err)))
		return 1
	}
	return 0
}

// oneLine folds a multi-line error, such as one built by errors.Join, onto a
// single line.
func oneLine(err error) string {
	var parts []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "; ")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// rangeArgsWithUsage accepts between minArgs and maxArgs positional
// arguments (maxArgs < 0 means unbounded) and prints usage otherwise.
func rangeArgsWithUsage(minArgs, maxArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) >= minArgs && (maxArgs < 0 || len(args) <= maxArgs) {
			return nil
		}
		_ = cmd.Usage()
		switch {
		case len(args) < minArgs && minArgs == 1:
			return fmt.Errorf("requires at least 1 argument")
		case len(args) < minArgs:
			return fmt.Errorf("requires at least %d arguments", minArgs)
		case maxArgs == 1:
			return fmt.Errorf("accepts at most 1 argument")
		}
		return fmt.Errorf("accepts at most %d arguments", maxArgs)
	}
}

// setup loads the settings that apply to projectPath and builds the logger
// and evaluator from them.
func (a *app) setup(projectPath string) (*config.Settings, *slog.Logger, msbuild.Evaluator, error) {
	settings, err := config.Load(filepath.Dir(projectPath))
	if err != nil {
		return nil, nil, nil, err
	}
	level := logging.LevelDebug
	if !a.debug {
		if level, err = logging.ParseLevel(settings.LogLevel()); err != nil {
			return nil, nil, nil, err
		}
	}
	logger := logging.New(a.stderr, level)
	if a.logJSON {
		logger = logging.NewJSON(a.stderr, level)
	}

	xml := msbuild.NewXMLEvaluator(msbuild.WithLogger(logger))
	if settings.CacheSize() < 0 {
		return settings, logger, xml, nil
	}
	cached, err := msbuild.NewCachingEvaluator(xml, settings.CacheSize(), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return settings, logger, cached, nil
}

// encode writes v to w as indented JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// ---------------------------------------------------------------------------
// slngen
// ---------------------------------------------------------------------------

type slngenFlags struct {
	conflictPolicy string
	parallelism    int
	directOnly     bool
	strict         bool
}

func newSlngenCommand(a *app) *cobra.Command {
	var f slngenFlags
	cmd := &cobra.Command{
		Use:   "slngen PROJECT_FILE [SOLUTION_FILE]",
		Short: "Generate a solution from a traversal project",
		Long: "Generate a Visual Studio solution from the projects referenced by a traversal\n" +
			"project. Each SolutionConfiguration item of the traversal project becomes a\n" +
			"solution configuration. SOLUTION_FILE defaults to PROJECT_FILE with a .sln\n" +
			"extension; an existing solution is updated in place.",
		Example: "  mirepoix slngen dirs.proj\n  mirepoix slngen build/dirs.proj All.sln --conflict-policy error",
		Args:    rangeArgsWithUsage(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := ""
			if len(args) > 1 {
				output = args[1]
			}
			return a.runSlngen(cmd, args[0], output, f)
		},
	}
	cmd.Flags().StringVar(&f.conflictPolicy, "conflict-policy", "", "How disagreeing reference overrides resolve: last-wins, first-wins or error")
	cmd.Flags().IntVar(&f.parallelism, "parallelism", 0, "Number of configurations loaded at once")
	cmd.Flags().BoolVar(&f.directOnly, "direct-only", false, "Only add projects the traversal project references directly")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Fail when any project fails to load")
	return cmd
}

func (a *app) runSlngen(cmd *cobra.Command, projectPath, outputPath string, f slngenFlags) error {
	settings, logger, evaluator, err := a.setup(projectPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("conflict-policy") {
		settings.Solution.ConflictPolicy = f.conflictPolicy
	}
	if cmd.Flags().Changed("parallelism") {
		settings.Solution.Parallelism = f.parallelism
	}
	if f.directOnly {
		transient := false
		settings.Solution.AddTransientReferences = &transient
	}
	if f.strict {
		settings.Solution.Strict = true
	}
	policy, err := settings.ConflictPolicy()
	if err != nil {
		return err
	}

	b, err := solution.FromTraversalProject(cmd.Context(), projectPath, outputPath,
		solution.WithEvaluator(evaluator),
		solution.WithLogger(logger),
		solution.WithConflictPolicy(policy),
		solution.WithParallelism(settings.Parallelism()),
		solution.WithAddTransientReferences(settings.AddTransientReferences()),
		solution.WithStrictLoad(settings.Strict()),
		solution.WithExclude(settings.IsExcluded),
		solution.WithGlobalProperties(settings.GlobalProperties()),
	)
	if err != nil {
		return err
	}
	if err := b.Write(""); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "wrote %s\n", b.FileName)
	return nil
}

// ---------------------------------------------------------------------------
// graph
// ---------------------------------------------------------------------------

// graphNode is the json/yaml form of one loaded project.
type graphNode struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Path       string   `json:"path" yaml:"path"`
	References []string `json:"references,omitempty" yaml:"references,omitempty"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type graphOutput struct {
	GlobalProperties map[string]string `json:"globalProperties,omitempty" yaml:"globalProperties,omitempty"`
	Roots            []string          `json:"roots" yaml:"roots"`
	Projects         []graphNode       `json:"projects" yaml:"projects"`
}

type graphFlags struct {
	output     string
	report     string
	properties map[string]string
}

func newGraphCommand(a *app) *cobra.Command {
	var f graphFlags
	cmd := &cobra.Command{
		Use:   "graph PROJECT_OR_SOLUTION...",
		Short: "Print the project reference graph in build order",
		Long: "Load the ProjectReference graph rooted at the given projects or solutions and\n" +
			"print it in build order. Projects that fail to load are reported, not fatal.\n" +
			"With --report, a Markdown and HTML report is also written to a directory.",
		Example: "  mirepoix graph App.csproj\n  mirepoix graph All.sln -o json -p Configuration=Release\n  mirepoix graph dirs.proj --report out/graph",
		Args:    rangeArgsWithUsage(1, -1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGraph(cmd.Context(), args, f)
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "Output format. One of: (text | json | yaml | html)")
	cmd.Flags().StringVar(&f.report, "report", "", "Write a graph report to this directory")
	cmd.Flags().StringToStringVarP(&f.properties, "property", "p", nil, "Global property NAME=VALUE (repeatable)")
	return cmd
}

func (a *app) runGraph(ctx context.Context, roots []string, f graphFlags) error {
	switch f.output {
	case "text", "json", "yaml", "html":
	default:
		return fmt.Errorf("unknown output format %q", f.output)
	}
	settings, logger, evaluator, err := a.setup(roots[0])
	if err != nil {
		return err
	}
	globals := settings.GlobalProperties()
	if globals == nil {
		globals = make(map[string]string)
	}
	maps.Copy(globals, f.properties)

	g, err := depgraph.Load(ctx, depgraph.Create(roots, globals),
		depgraph.WithEvaluator(evaluator),
		depgraph.WithLogger(logger))
	if err != nil {
		return err
	}

	if f.report != "" {
		report, err := export.GenerateReport(g)
		if err != nil {
			return err
		}
		if err := export.WriteReport(report, f.report); err != nil {
			return err
		}
		logger.Info("wrote graph report", "dir", f.report)
	}

	switch f.output {
	case "html":
		html, err := export.GenerateHTML(g)
		if err != nil {
			return err
		}
		_, err = io.WriteString(a.stdout, html)
		return err
	case "text":
		writeGraphText(a.stdout, g)
		return nil
	}
	return encode(a.stdout, f.output, newGraphOutput(g))
}

func newGraphOutput(g *depgraph.Graph) graphOutput {
	refs := make(map[*depgraph.Node][]string)
	for _, r := range g.Relationships() {
		refs[r.Dependent] = append(refs[r.Dependent], r.Dependency.ProjectPath)
	}
	out := graphOutput{GlobalProperties: g.Spec.GlobalProperties, Roots: []string{}, Projects: []graphNode{}}
	for _, n := range g.Roots() {
		out.Roots = append(out.Roots, n.ProjectPath)
	}
	for _, n := range g.TopologicallySortedNodes() {
		node := graphNode{ID: n.ID, Name: n.Label, Path: n.ProjectPath, References: refs[n]}
		if n.LoadErr != nil {
			node.Error = n.LoadErr.Error()
		}
		out.Projects = append(out.Projects, node)
	}
	return out
}

func writeGraphText(w io.Writer, g *depgraph.Graph) {
	for i, n := range g.TopologicallySortedNodes() {
		fmt.Fprintf(w, "%3d. %s  %s\n", i+1, n.Label, n.ProjectPath)
		if n.LoadErr != nil {
			for _, line := range strings.Split(n.LoadErr.Error(), "\n") {
				fmt.Fprintf(w, "     %s %s\n", color.RedString("error:"), line)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// consolidate
// ---------------------------------------------------------------------------

type consolidateFlags struct {
	output    string
	condition string
}

func newConsolidateCommand(a *app) *cobra.Command {
	var f consolidateFlags
	cmd := &cobra.Command{
		Use:   "consolidate PROJECT_FILE",
		Short: "Print the items of every project a project depends on",
		Long: "Load the reference closure of PROJECT_FILE and print the Compile,\n" +
			"ProjectReference, Reference, EmbeddedResource and PackageReference items of\n" +
			"every project it depends on, deduplicated, with package versions merged to\n" +
			"the highest.",
		Args: rangeArgsWithUsage(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConsolidate(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "yaml", "Output format. One of: (json | yaml)")
	cmd.Flags().StringVar(&f.condition, "condition", "", "Only consolidate projects referenced with this metadata set to true")
	return cmd
}

func (a *app) runConsolidate(cmd *cobra.Command, projectPath string, f consolidateFlags) error {
	if f.output != "json" && f.output != "yaml" {
		return fmt.Errorf("unknown output format %q", f.output)
	}
	settings, logger, evaluator, err := a.setup(projectPath)
	if err != nil {
		return err
	}
	opts := settings.ConsolidateOptions()
	if cmd.Flags().Changed("condition") {
		opts.ConditionMetadata = f.condition
	}
	opts.Evaluator = evaluator
	opts.Logger = logger

	result, err := consolidate.Prepare(cmd.Context(), projectPath, opts)
	if err != nil {
		return err
	}
	return encode(a.stdout, f.output, result)
}
