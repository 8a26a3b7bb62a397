package solution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xamarin/mirepoix/internal/depgraph"
	"github.com/xamarin/mirepoix/internal/logging"
	"github.com/xamarin/mirepoix/internal/msbuild"
	"github.com/xamarin/mirepoix/internal/pathutil"
)

// Well-known metadata and properties consulted while generating.
const (
	metaConfiguration  = "Configuration"
	metaPlatform       = "Platform"
	metaSolutionFolder = "SolutionFolder"
	metaBuild          = "Build"

	propIsGeneratingSolution = "IsGeneratingSolution"
)

type traversalOptions struct {
	evaluator   msbuild.Evaluator
	logger      *slog.Logger
	transient   bool
	parallelism int
	policy      ConflictPolicy
	identifiers []IdentifierSource
	strict      bool
	exclude     func(relPath string) bool
	globals     map[string]string
}

// TraversalOption configures FromTraversalProject.
type TraversalOption func(*traversalOptions)

// WithEvaluator sets the project evaluator used for every pass.
func WithEvaluator(e msbuild.Evaluator) TraversalOption {
	return func(o *traversalOptions) { o.evaluator = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TraversalOption {
	return func(o *traversalOptions) { o.logger = l }
}

// WithAddTransientReferences controls whether projects referenced only
// indirectly are added. The default is true.
func WithAddTransientReferences(add bool) TraversalOption {
	return func(o *traversalOptions) { o.transient = add }
}

// WithParallelism sets how many configuration passes load at once. Values
// below one mean one.
func WithParallelism(n int) TraversalOption {
	return func(o *traversalOptions) { o.parallelism = n }
}

// WithConflictPolicy sets how disagreeing reference overrides are resolved.
func WithConflictPolicy(p ConflictPolicy) TraversalOption {
	return func(o *traversalOptions) { o.policy = p }
}

// WithIdentifierSources replaces the explicit GUID lookup chain.
func WithIdentifierSources(sources ...IdentifierSource) TraversalOption {
	return func(o *traversalOptions) { o.identifiers = sources }
}

// WithStrictLoad makes any project load failure fatal.
func WithStrictLoad(strict bool) TraversalOption {
	return func(o *traversalOptions) { o.strict = strict }
}

// WithExclude skips projects for which exclude returns true. It receives
// the project path relative to the solution directory.
func WithExclude(exclude func(relPath string) bool) TraversalOption {
	return func(o *traversalOptions) { o.exclude = exclude }
}

// WithGlobalProperties sets properties applied to every pass underneath
// the per-configuration ones.
func WithGlobalProperties(globals map[string]string) TraversalOption {
	return func(o *traversalOptions) { o.globals = globals }
}

// pass is one solution configuration to load.
type pass struct {
	solution ConfigurationPlatform
	project  ConfigurationPlatform
	globals  map[string]string
}

// FromTraversalProject builds a solution from the projects referenced by
// the traversal project at projectPath. Each SolutionConfiguration item of
// the traversal project is a pass: the reference graph is loaded with that
// configuration's global properties and every referenced project is added
// with a row mapping the solution configuration to the project's. When
// outputPath is empty the solution sits next to the traversal project.
func FromTraversalProject(ctx context.Context, projectPath, outputPath string, opts ...TraversalOption) (*Builder, error) {
	o := traversalOptions{transient: true, parallelism: 1}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrDiscard(o.logger)
	if o.evaluator == nil {
		o.evaluator = msbuild.NewXMLEvaluator(msbuild.WithLogger(o.logger))
	}
	if o.identifiers == nil {
		o.identifiers = DefaultIdentifierSources()
	}

	path := pathutil.ResolveFull(projectPath)
	if !pathutil.IsFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, projectPath)
	}
	if outputPath == "" {
		outputPath = pathutil.ChangeExt(path, ".sln")
	}
	outputPath = pathutil.ResolveFull(outputPath)

	traversal, err := o.evaluator.Evaluate(ctx, path, o.globals)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", path, err)
	}

	b := NewBuilder(outputPath, WithBuilderLogger(o.logger), WithPlacementPolicy(o.policy))
	passes := collectPasses(traversal, o.globals)
	if len(passes) == 0 {
		o.logger.Warn("traversal project declares no SolutionConfiguration items", "project", path)
		return b, nil
	}
	for _, p := range passes {
		b.AddSolutionConfiguration(p.solution)
	}

	o.logger.Info("generating solution", "project", path, "solution", outputPath, "configurations", len(passes))
	graphs, err := loadPasses(ctx, path, passes, o)
	if err != nil {
		return nil, err
	}
	for i, g := range graphs {
		if err := b.addGraph(g, path, passes[i], o); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// collectPasses turns the traversal project's SolutionConfiguration items
// into passes, in declaration order.
func collectPasses(traversal *msbuild.Project, base map[string]string) []pass {
	var passes []pass
	for _, item := range traversal.ItemsOfType(msbuild.ItemSolutionConfiguration) {
		solution := ParseConfigurationPlatform(item.Include)
		project := NewConfigurationPlatform(
			orDefault(item.MetadataValue(metaConfiguration), solution.Configuration),
			orDefault(item.MetadataValue(metaPlatform), solution.Platform),
		)

		globals := make(map[string]string, len(base)+3)
		for k, v := range base {
			setGlobal(globals, k, v)
		}
		setGlobal(globals, propIsGeneratingSolution, "true")
		setGlobal(globals, metaConfiguration, project.Configuration)
		setGlobal(globals, metaPlatform, project.Platform)
		for _, m := range item.Metadata {
			if strings.EqualFold(m.Name, metaConfiguration) || strings.EqualFold(m.Name, metaPlatform) {
				continue
			}
			setGlobal(globals, m.Name, m.Value)
		}
		passes = append(passes, pass{solution: solution, project: project, globals: globals})
	}
	return passes
}

// setGlobal sets name in globals, replacing a key that differs only in
// case.
func setGlobal(globals map[string]string, name, value string) {
	for k := range globals {
		if strings.EqualFold(k, name) {
			delete(globals, k)
		}
	}
	globals[name] = value
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// loadPasses loads one graph per pass. Results are indexed by pass so the
// merge order does not depend on completion order.
func loadPasses(ctx context.Context, root string, passes []pass, o traversalOptions) ([]*depgraph.Graph, error) {
	graphs := make([]*depgraph.Graph, len(passes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.parallelism, 1))
	for i, p := range passes {
		g.Go(func() error {
			o.logger.Debug("loading configuration", "configuration", p.solution.String(), "globals", p.globals)
			graph, err := depgraph.Load(gctx, depgraph.Create([]string{root}, p.globals),
				depgraph.WithEvaluator(o.evaluator),
				depgraph.WithLogger(o.logger))
			if err != nil {
				return fmt.Errorf("load %s for %s: %w", root, p.solution, err)
			}
			if err := checkGraph(graph, o.strict); err != nil {
				return fmt.Errorf("load %s for %s: %w", root, p.solution, err)
			}
			graphs[i] = graph
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return graphs, nil
}

// checkGraph fails on missing references always and on any load error when
// strict.
func checkGraph(g *depgraph.Graph, strict bool) error {
	var missing []error
	for _, n := range g.TopologicallySortedNodes() {
		var m *depgraph.MissingReferenceError
		if errors.As(n.LoadErr, &m) {
			missing = append(missing, n.LoadErr)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %w", ErrLoadFailures, errors.Join(missing...))
	}
	if err := g.LoadErrors(); err != nil && strict {
		return fmt.Errorf("%w: %w", ErrLoadFailures, err)
	}
	return nil
}

// addGraph adds every referenced project of g to the tree.
func (b *Builder) addGraph(g *depgraph.Graph, root string, p pass, o traversalOptions) error {
	for _, n := range g.TopologicallySortedNodes() {
		parents := n.Parents()
		if len(parents) == 0 {
			continue
		}
		if !o.transient && !referencedBy(parents, root) {
			continue
		}
		if o.exclude != nil {
			if rel, err := pathutil.Rel(b.solutionDir(), n.ProjectPath); err == nil && o.exclude(rel) {
				b.logger.Debug("excluded project", "project", rel)
				continue
			}
		}
		if n.LoadErr != nil {
			b.logger.Warn("adding project that failed to load", "project", n.ProjectPath, "error", n.LoadErr)
		}

		ov, err := resolveOverrides(n, o.policy)
		if err != nil {
			return err
		}
		id := identify(n, o.identifiers, b.logger)

		node, err := b.AddProject(n.ProjectPath, ov.folder, id)
		if err != nil {
			return err
		}
		node.AddConfigurationMap(ConfigurationMap{
			Solution:     p.solution,
			Project:      p.project.WithConfiguration(ov.configuration).WithPlatform(ov.platform),
			BuildEnabled: ov.build,
		})
	}
	return nil
}

func referencedBy(parents []*depgraph.Node, path string) bool {
	for _, p := range parents {
		if p.ProjectPath == path {
			return true
		}
	}
	return false
}

// identify returns the first explicit GUID in the chain, or uuid.Nil.
func identify(n *depgraph.Node, sources []IdentifierSource, logger *slog.Logger) uuid.UUID {
	for _, src := range sources {
		id, ok, err := src.ProjectGUID(n)
		if err != nil {
			logger.Debug("ignoring unusable project GUID", "project", n.ProjectPath, "error", err)
			continue
		}
		if ok {
			return id
		}
	}
	return uuid.Nil
}

// overrides are the per-reference settings that apply to one project.
type overrides struct {
	configuration string
	platform      string
	folder        string
	build         bool
}

// resolveOverrides reads the override metadata from every reference to n.
func resolveOverrides(n *depgraph.Node, policy ConflictPolicy) (overrides, error) {
	items := n.ProjectReferenceItems()
	pick := func(name string) (string, error) {
		var values []string
		for _, it := range items {
			if v := strings.TrimSpace(it.MetadataValue(name)); v != "" {
				values = append(values, v)
			}
		}
		return choose(n.ProjectPath, name, values, policy)
	}

	var ov overrides
	var err error
	if ov.configuration, err = pick(metaConfiguration); err != nil {
		return ov, err
	}
	if ov.platform, err = pick(metaPlatform); err != nil {
		return ov, err
	}
	if ov.folder, err = pick(metaSolutionFolder); err != nil {
		return ov, err
	}
	build, err := pick(metaBuild)
	if err != nil {
		return ov, err
	}
	ov.build = !strings.EqualFold(build, "false")
	return ov, nil
}

func choose(project, field string, values []string, policy ConflictPolicy) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	switch policy {
	case ConflictPolicyFirstWins:
		return values[0], nil
	case ConflictPolicyError:
		for _, v := range values[1:] {
			if !strings.EqualFold(v, values[0]) {
				return "", &ConflictError{Project: project, Field: field, Values: values}
			}
		}
		return values[0], nil
	}
	return values[len(values)-1], nil
}
